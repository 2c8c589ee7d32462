// Package occupancy stores solid/empty bits for terrain chunks and dynamic
// fragments and answers the collision queries the physics world runs against them.
package occupancy

import "math/bits"

// ChunkSize is the edge length of a terrain chunk in voxels.
const ChunkSize = 32

const (
	chunkShift = 5
	chunkMask  = ChunkSize - 1
	chunkWords = ChunkSize * ChunkSize * ChunkSize / 32
)

// ChunkCoord identifies a chunk on the chunk lattice.
type ChunkCoord struct {
	X, Y, Z int32
}

// Cell is an integer voxel position in world space.
type Cell struct {
	X, Y, Z int32
}

// ChunkOccupancy is a fully allocated 32³ bit set.
// Bit index is x + y*32 + z*1024.
type ChunkOccupancy struct {
	words [chunkWords]uint32
}

// NewChunk returns an empty chunk.
func NewChunk() *ChunkOccupancy {
	return &ChunkOccupancy{}
}

// ChunkFromRegion builds a chunk by sampling solid once per cell. The predicate
// receives world coordinates (origin + local).
func ChunkFromRegion(origin Cell, solid func(x, y, z int32) bool) *ChunkOccupancy {
	c := NewChunk()
	for z := int32(0); z < ChunkSize; z++ {
		for y := int32(0); y < ChunkSize; y++ {
			for x := int32(0); x < ChunkSize; x++ {
				if solid(origin.X+x, origin.Y+y, origin.Z+z) {
					c.Set(x, y, z, true)
				}
			}
		}
	}
	return c
}

func inChunk(x, y, z int32) bool {
	return uint32(x) < ChunkSize && uint32(y) < ChunkSize && uint32(z) < ChunkSize
}

func chunkIndex(x, y, z int32) int {
	return int(x) + int(y)<<chunkShift + int(z)<<(2*chunkShift)
}

// Get reports whether the local cell is solid. Out of range reads false.
func (c *ChunkOccupancy) Get(x, y, z int32) bool {
	if !inChunk(x, y, z) {
		return false
	}
	idx := chunkIndex(x, y, z)
	return c.words[idx>>5]&(1<<(idx&31)) != 0
}

// Set writes one local cell. Out of range writes are ignored.
func (c *ChunkOccupancy) Set(x, y, z int32, solid bool) {
	if !inChunk(x, y, z) {
		return
	}
	idx := chunkIndex(x, y, z)
	if solid {
		c.words[idx>>5] |= 1 << (idx & 31)
	} else {
		c.words[idx>>5] &^= 1 << (idx & 31)
	}
}

// Count returns the number of solid cells.
func (c *ChunkOccupancy) Count() int {
	return popcount(c.words[:])
}

// IsEmpty reports whether no cell is solid.
func (c *ChunkOccupancy) IsEmpty() bool {
	for _, w := range c.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Words exposes the raw bit words.
func (c *ChunkOccupancy) Words() []uint32 {
	return c.words[:]
}

// Layer converts the chunk to the GPU layer image: 32x32 texels, one u32
// per (x,y) column whose bit z is set when (x,y,z) is solid.
func (c *ChunkOccupancy) Layer() []uint32 {
	layer := make([]uint32, ChunkSize*ChunkSize)
	c.FillLayer(layer)
	return layer
}

// FillLayer writes the layer image into dst, which must hold 1024 texels.
func (c *ChunkOccupancy) FillLayer(dst []uint32) {
	for i := range dst[:ChunkSize*ChunkSize] {
		dst[i] = 0
	}
	for z := int32(0); z < ChunkSize; z++ {
		for y := int32(0); y < ChunkSize; y++ {
			for x := int32(0); x < ChunkSize; x++ {
				if c.Get(x, y, z) {
					dst[int(y)*ChunkSize+int(x)] |= 1 << uint(z)
				}
			}
		}
	}
}

func popcount(words []uint32) int {
	n := 0
	for _, w := range words {
		n += bits.OnesCount32(w)
	}
	return n
}

// WorldToChunk returns the chunk containing a world cell (floor division).
func WorldToChunk(x, y, z int32) ChunkCoord {
	return ChunkCoord{X: x >> chunkShift, Y: y >> chunkShift, Z: z >> chunkShift}
}

// WorldToLocal returns the cell position inside its chunk.
func WorldToLocal(x, y, z int32) (int32, int32, int32) {
	return x & chunkMask, y & chunkMask, z & chunkMask
}

// ChunkToWorld returns the world cell of a chunk's minimum corner.
func ChunkToWorld(c ChunkCoord) Cell {
	return Cell{X: c.X << chunkShift, Y: c.Y << chunkShift, Z: c.Z << chunkShift}
}
