package compute

import (
	"errors"
	"testing"

	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"
)

func TestChunkHashWrapsNegativeCoords(t *testing.T) {
	got := chunkHash(occupancy.ChunkCoord{X: -1}, 32)
	if got != 31 {
		t.Errorf("Expected hash 31, got %d", got)
	}
}

func TestChunkIndexInsertLookup(t *testing.T) {
	ci := NewChunkIndex(8)
	a := occupancy.ChunkCoord{X: 0, Y: 0, Z: 0}
	b := occupancy.ChunkCoord{X: -3, Y: 1, Z: 7}

	layerA, inserted, err := ci.Insert(a)
	if err != nil || !inserted {
		t.Fatalf("Insert a failed: inserted=%v err=%v", inserted, err)
	}
	if layerA != 0 {
		t.Errorf("Expected first layer 0, got %d", layerA)
	}
	layerB, _, err := ci.Insert(b)
	if err != nil {
		t.Fatalf("Insert b failed: %v", err)
	}
	if layerB != 1 {
		t.Errorf("Expected second layer 1, got %d", layerB)
	}

	again, inserted, err := ci.Insert(a)
	if err != nil || inserted || again != layerA {
		t.Errorf("Expected re-insert to return layer %d without allocating, got %d inserted=%v err=%v", layerA, again, inserted, err)
	}

	if got, ok := ci.Lookup(b); !ok || got != layerB {
		t.Errorf("Expected lookup of b to give %d, got %d ok=%v", layerB, got, ok)
	}
	if _, ok := ci.Lookup(occupancy.ChunkCoord{X: 5}); ok {
		t.Error("Lookup of a missing chunk should fail")
	}
	if ci.Len() != 2 {
		t.Errorf("Expected 2 resident chunks, got %d", ci.Len())
	}
}

func TestChunkIndexProbeChainSurvivesRemove(t *testing.T) {
	ci := NewChunkIndex(8) // 32 slots; (0,0,32k) all hash to slot 0
	coords := []occupancy.ChunkCoord{{Z: 0}, {Z: 32}, {Z: 64}, {Z: 96}}
	for _, c := range coords {
		if _, _, err := ci.Insert(c); err != nil {
			t.Fatalf("Insert %v failed: %v", c, err)
		}
	}

	if _, _, err := ci.Insert(occupancy.ChunkCoord{Z: 128}); !errors.Is(err, ErrChunkIndexFull) {
		t.Errorf("Expected ErrChunkIndexFull, got %v", err)
	}

	if !ci.Remove(coords[1]) {
		t.Fatal("Remove of a resident chunk should succeed")
	}
	if ci.Entries()[1].Layer != removedLayer {
		t.Errorf("Expected tombstone in slot 1, got layer %d", ci.Entries()[1].Layer)
	}
	if _, ok := ci.Lookup(coords[1]); ok {
		t.Error("Removed chunk should not be found")
	}
	for _, c := range []occupancy.ChunkCoord{coords[2], coords[3]} {
		if _, ok := ci.Lookup(c); !ok {
			t.Errorf("Expected %v to be found past the tombstone", c)
		}
	}

	layer, inserted, err := ci.Insert(occupancy.ChunkCoord{Z: 128})
	if err != nil || !inserted {
		t.Fatalf("Insert into tombstone failed: inserted=%v err=%v", inserted, err)
	}
	if layer != 1 {
		t.Errorf("Expected freed layer 1 to be reused, got %d", layer)
	}
	if ci.Entries()[1].Z != 128 {
		t.Errorf("Expected slot 1 to hold the new chunk, got %+v", ci.Entries()[1])
	}
}

func TestChunkIndexLayersFull(t *testing.T) {
	ci := NewChunkIndex(2)
	ci.Insert(occupancy.ChunkCoord{X: 0})
	ci.Insert(occupancy.ChunkCoord{X: 1})

	if ci.FreeLayers() != 0 {
		t.Errorf("Expected no free layers, got %d", ci.FreeLayers())
	}
	if _, _, err := ci.Insert(occupancy.ChunkCoord{X: 2}); !errors.Is(err, ErrChunkLayersFull) {
		t.Errorf("Expected ErrChunkLayersFull, got %v", err)
	}

	ci.Remove(occupancy.ChunkCoord{X: 0})
	if ci.FreeLayers() != 1 {
		t.Errorf("Expected 1 free layer after remove, got %d", ci.FreeLayers())
	}
	if ci.Remove(occupancy.ChunkCoord{X: 0}) {
		t.Error("Second remove should report false")
	}
}
