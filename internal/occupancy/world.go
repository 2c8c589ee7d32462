package occupancy

import (
	"cmp"
	"slices"
)

// WorldOccupancy is the sparse terrain: loaded chunks keyed by chunk coord.
// A chunk that is not loaded reads as empty everywhere.
//
// Every load, unload or write bumps the chunk's version so GPU mirrors can
// re-upload only what changed. Mutation must happen between physics steps.
type WorldOccupancy struct {
	chunks   map[ChunkCoord]*ChunkOccupancy
	versions map[ChunkCoord]uint64
	clock    uint64
}

// NewWorld returns an empty world.
func NewWorld() *WorldOccupancy {
	return &WorldOccupancy{
		chunks:   make(map[ChunkCoord]*ChunkOccupancy),
		versions: make(map[ChunkCoord]uint64),
	}
}

// FromRegion builds a world covering the inclusive cell box [min, max],
// sampling solid once per cell. Chunks that end up empty are not loaded.
func FromRegion(min, max Cell, solid func(x, y, z int32) bool) *WorldOccupancy {
	w := NewWorld()
	lo := WorldToChunk(min.X, min.Y, min.Z)
	hi := WorldToChunk(max.X, max.Y, max.Z)
	inBox := func(x, y, z int32) bool {
		return x >= min.X && y >= min.Y && z >= min.Z && x <= max.X && y <= max.Y && z <= max.Z
	}
	for cz := lo.Z; cz <= hi.Z; cz++ {
		for cy := lo.Y; cy <= hi.Y; cy++ {
			for cx := lo.X; cx <= hi.X; cx++ {
				coord := ChunkCoord{X: cx, Y: cy, Z: cz}
				chunk := ChunkFromRegion(ChunkToWorld(coord), func(x, y, z int32) bool {
					return inBox(x, y, z) && solid(x, y, z)
				})
				if !chunk.IsEmpty() {
					w.LoadChunk(coord, chunk)
				}
			}
		}
	}
	return w
}

// LoadChunk installs or replaces a chunk.
func (w *WorldOccupancy) LoadChunk(coord ChunkCoord, chunk *ChunkOccupancy) {
	w.chunks[coord] = chunk
	w.MarkDirty(coord)
}

// UnloadChunk drops a chunk; its cells read empty afterwards.
func (w *WorldOccupancy) UnloadChunk(coord ChunkCoord) {
	if _, ok := w.chunks[coord]; !ok {
		return
	}
	delete(w.chunks, coord)
	w.MarkDirty(coord)
}

// Chunk returns a loaded chunk or nil.
func (w *WorldOccupancy) Chunk(coord ChunkCoord) *ChunkOccupancy {
	return w.chunks[coord]
}

// ChunkCount returns the number of loaded chunks.
func (w *WorldOccupancy) ChunkCount() int {
	return len(w.chunks)
}

// Chunks returns the loaded chunk coords in a stable order.
func (w *WorldOccupancy) Chunks() []ChunkCoord {
	coords := make([]ChunkCoord, 0, len(w.chunks))
	for c := range w.chunks {
		coords = append(coords, c)
	}
	sortCoords(coords)
	return coords
}

// TotalOccupied counts solid cells across all loaded chunks.
func (w *WorldOccupancy) TotalOccupied() int {
	n := 0
	for _, c := range w.chunks {
		n += c.Count()
	}
	return n
}

// GetVoxel reports whether a world cell is solid.
func (w *WorldOccupancy) GetVoxel(x, y, z int32) bool {
	chunk := w.chunks[WorldToChunk(x, y, z)]
	if chunk == nil {
		return false
	}
	lx, ly, lz := WorldToLocal(x, y, z)
	return chunk.Get(lx, ly, lz)
}

// SetVoxel writes one world cell, loading an empty chunk when needed.
func (w *WorldOccupancy) SetVoxel(x, y, z int32, solid bool) {
	coord := WorldToChunk(x, y, z)
	chunk := w.chunks[coord]
	if chunk == nil {
		if !solid {
			return
		}
		chunk = NewChunk()
		w.chunks[coord] = chunk
	}
	lx, ly, lz := WorldToLocal(x, y, z)
	chunk.Set(lx, ly, lz, solid)
	w.MarkDirty(coord)
}

// MarkDirty bumps a chunk's version.
func (w *WorldOccupancy) MarkDirty(coord ChunkCoord) {
	w.clock++
	w.versions[coord] = w.clock
}

// Version returns the latest version handed out by this world.
func (w *WorldOccupancy) Version() uint64 {
	return w.clock
}

// ChunkVersion returns the version of one chunk coord (0 if never touched).
func (w *WorldOccupancy) ChunkVersion(coord ChunkCoord) uint64 {
	return w.versions[coord]
}

// DirtyChunks lists chunk coords changed after version since, loaded or not.
func (w *WorldOccupancy) DirtyChunks(since uint64) []ChunkCoord {
	var coords []ChunkCoord
	for c, v := range w.versions {
		if v > since {
			coords = append(coords, c)
		}
	}
	sortCoords(coords)
	return coords
}

// ChunksOverlappingAABB lists loaded chunks touching the inclusive cell box.
func (w *WorldOccupancy) ChunksOverlappingAABB(min, max Cell) []ChunkCoord {
	lo := WorldToChunk(min.X, min.Y, min.Z)
	hi := WorldToChunk(max.X, max.Y, max.Z)
	var coords []ChunkCoord
	for cz := lo.Z; cz <= hi.Z; cz++ {
		for cy := lo.Y; cy <= hi.Y; cy++ {
			for cx := lo.X; cx <= hi.X; cx++ {
				c := ChunkCoord{X: cx, Y: cy, Z: cz}
				if _, ok := w.chunks[c]; ok {
					coords = append(coords, c)
				}
			}
		}
	}
	return coords
}

// RegionIsClear reports whether no cell in the inclusive box is solid.
func (w *WorldOccupancy) RegionIsClear(min, max Cell) bool {
	for z := min.Z; z <= max.Z; z++ {
		for y := min.Y; y <= max.Y; y++ {
			for x := min.X; x <= max.X; x++ {
				if w.GetVoxel(x, y, z) {
					return false
				}
			}
		}
	}
	return true
}

// Overlaps lists the solid cells in the inclusive box.
func (w *WorldOccupancy) Overlaps(min, max Cell) []Cell {
	var cells []Cell
	for z := min.Z; z <= max.Z; z++ {
		for y := min.Y; y <= max.Y; y++ {
			for x := min.X; x <= max.X; x++ {
				if w.GetVoxel(x, y, z) {
					cells = append(cells, Cell{X: x, Y: y, Z: z})
				}
			}
		}
	}
	return cells
}

func sortCoords(coords []ChunkCoord) {
	slices.SortFunc(coords, func(a, b ChunkCoord) int {
		if c := cmp.Compare(a.Z, b.Z); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Y, b.Y); c != 0 {
			return c
		}
		return cmp.Compare(a.X, b.X)
	})
}
