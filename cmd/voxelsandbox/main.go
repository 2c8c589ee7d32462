package main

import (
	"flag"
	"log"

	"github.com/OptimusLime/creature-3d-studio-sub000/internal/game"
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/physics"
)

func main() {
	configPath := flag.String("config", "", "physics config YAML (defaults when empty)")
	savePath := flag.String("save", "physics.yaml", "where Ctrl+S writes the tuned physics config")
	forceGPU := flag.Bool("gpu", false, "initialize the GPU narrow phase even where it is off by default")
	async := flag.Bool("async", false, "read GPU contacts one frame late instead of stalling")
	seed := flag.Int64("seed", 1, "terrain seed")
	flag.Parse()

	cfg := physics.DefaultConfig()
	if *configPath != "" {
		loaded, err := physics.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Physics: %v", err)
		}
		cfg = loaded
	}

	g := game.New(game.Options{
		Config:     cfg,
		ConfigPath: *savePath,
		Seed:       *seed,
		ForceGPU:   *forceGPU,
		AsyncGPU:   *async,
	})
	g.Run()
}
