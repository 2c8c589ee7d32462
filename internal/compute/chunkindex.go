package compute

import (
	"errors"

	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"
)

const (
	emptyLayer   int32 = -1
	removedLayer int32 = -2
)

var (
	ErrChunkLayersFull = errors.New("compute: no free chunk layer")
	ErrChunkIndexFull  = errors.New("compute: chunk index probe sequence full")
)

// chunkHash is the index hash shared with the shader's lookup:
// h = x; h = h*31 + y; h = h*31 + z in wrapping u32, then mod size.
func chunkHash(c occupancy.ChunkCoord, size int) int {
	h := uint32(c.X)
	h = h*31 + uint32(c.Y)
	h = h*31 + uint32(c.Z)
	return int(h % uint32(size))
}

// ChunkIndex is the CPU mirror of the GPU chunk index: an open addressing
// table from chunk coord to texture layer with ChunkIndexProbes linear
// probes. Removed slots become tombstones so probe chains stay intact.
type ChunkIndex struct {
	entries    []GpuChunkEntry
	freeLayers []int32
	count      int
}

// NewChunkIndex creates a table for maxChunks layers with 4x as many slots.
func NewChunkIndex(maxChunks int) *ChunkIndex {
	ci := &ChunkIndex{
		entries:    make([]GpuChunkEntry, maxChunks*4),
		freeLayers: make([]int32, 0, maxChunks),
	}
	for i := range ci.entries {
		ci.entries[i].Layer = emptyLayer
	}
	// Pop order hands out layer 0 first
	for l := maxChunks - 1; l >= 0; l-- {
		ci.freeLayers = append(ci.freeLayers, int32(l))
	}
	return ci
}

func (ci *ChunkIndex) slot(c occupancy.ChunkCoord, probe int) int {
	return (chunkHash(c, len(ci.entries)) + probe) % len(ci.entries)
}

func matches(e GpuChunkEntry, c occupancy.ChunkCoord) bool {
	return e.Layer >= 0 && e.X == c.X && e.Y == c.Y && e.Z == c.Z
}

// Lookup follows the same probe sequence as the shader.
func (ci *ChunkIndex) Lookup(c occupancy.ChunkCoord) (int32, bool) {
	for k := 0; k < ChunkIndexProbes; k++ {
		e := ci.entries[ci.slot(c, k)]
		if e.Layer == emptyLayer {
			return 0, false
		}
		if matches(e, c) {
			return e.Layer, true
		}
	}
	return 0, false
}

// Insert assigns c a layer, returning the existing one if already present.
// The bool reports whether a new layer was allocated.
func (ci *ChunkIndex) Insert(c occupancy.ChunkCoord) (int32, bool, error) {
	if layer, ok := ci.Lookup(c); ok {
		return layer, false, nil
	}
	if len(ci.freeLayers) == 0 {
		return 0, false, ErrChunkLayersFull
	}
	for k := 0; k < ChunkIndexProbes; k++ {
		idx := ci.slot(c, k)
		if ci.entries[idx].Layer >= 0 {
			continue
		}
		layer := ci.freeLayers[len(ci.freeLayers)-1]
		ci.freeLayers = ci.freeLayers[:len(ci.freeLayers)-1]
		ci.entries[idx] = GpuChunkEntry{X: c.X, Y: c.Y, Z: c.Z, Layer: layer}
		ci.count++
		return layer, true, nil
	}
	return 0, false, ErrChunkIndexFull
}

// Remove frees c's layer. It reports whether c was present.
func (ci *ChunkIndex) Remove(c occupancy.ChunkCoord) bool {
	for k := 0; k < ChunkIndexProbes; k++ {
		idx := ci.slot(c, k)
		e := ci.entries[idx]
		if e.Layer == emptyLayer {
			return false
		}
		if matches(e, c) {
			ci.freeLayers = append(ci.freeLayers, e.Layer)
			ci.entries[idx].Layer = removedLayer
			ci.count--
			return true
		}
	}
	return false
}

// Len returns the number of resident chunks.
func (ci *ChunkIndex) Len() int {
	return ci.count
}

// FreeLayers returns how many layers are still unassigned.
func (ci *ChunkIndex) FreeLayers() int {
	return len(ci.freeLayers)
}

// Entries exposes the table in upload order.
func (ci *ChunkIndex) Entries() []GpuChunkEntry {
	return ci.entries
}
