package physics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "physics.yaml")
	if err := os.WriteFile(path, []byte("spring_k: 250\nfixed_timestep: 0.02\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.SpringK != 250 {
		t.Errorf("Expected spring_k 250, got %v", cfg.SpringK)
	}
	if cfg.FixedTimestep != 0.02 {
		t.Errorf("Expected fixed_timestep 0.02, got %v", cfg.FixedTimestep)
	}
	if cfg.Gravity != DefaultConfig().Gravity {
		t.Errorf("Missing keys should keep defaults, got gravity %v", cfg.Gravity)
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("fixed_timestep: -1\n"), 0o644)
	if _, err := LoadConfig(bad); err == nil {
		t.Error("Expected error for negative timestep")
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "physics.yaml")
	if err := os.WriteFile(path, []byte("fixed_timestep: 0\nparticle_diameter: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("Expected invalid config to be rejected")
	}
	if !strings.Contains(err.Error(), "fixed_timestep") || !strings.Contains(err.Error(), "particle_diameter") {
		t.Errorf("Expected both problems reported, got %v", err)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuned.yaml")
	cfg := DefaultConfig()
	cfg.Gravity = 12
	cfg.MaxActiveFragments = 7

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("Expected save to succeed, got %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Expected saved config to load, got %v", err)
	}
	if loaded != cfg {
		t.Errorf("Expected %+v, got %+v", cfg, loaded)
	}
}

func TestSaveConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	cfg := DefaultConfig()
	cfg.GridDims = 0

	if err := SaveConfig(path, cfg); err == nil {
		t.Error("Expected invalid config to be refused")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected no file to be written")
	}
}
