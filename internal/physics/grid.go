package physics

import (
	"context"
	"sync/atomic"

	"github.com/chewxy/math32"
	rl "github.com/gen2brain/raylib-go/raylib"
	"golang.org/x/sync/errgroup"
)

// EmptySlot marks an unclaimed grid slot.
const EmptySlot int32 = -1

// SpatialHashGrid is the fragment-fragment broad phase: a dense grid of
// Dims³ cells centered on Origin, each holding Capacity particle ids.
// Cell coordinates wrap modulo Dims, so particles outside the centered
// window alias onto cells inside it instead of being dropped. Aliased
// neighbors are rejected by the distance test of the contact law.
// It is cleared and refilled every step. Slots are claimed with a
// compare-and-swap so Insert may run from several goroutines at once.
//
// The slot layout (cell-major, Capacity int32 slots per cell, -1 empty) is the
// same one the GPU grid uses, so Slots can be uploaded as is.
type SpatialHashGrid struct {
	CellSize float32
	Dims     int
	Capacity int
	Origin   rl.Vector3

	slots    []int32
	overflow atomic.Int64
}

// NewSpatialHashGrid creates an empty grid. Origin is moved so the grid is
// centered on the world origin.
func NewSpatialHashGrid(cellSize float32, dims, capacity int) *SpatialHashGrid {
	half := float32(dims) * cellSize / 2
	g := &SpatialHashGrid{
		CellSize: cellSize,
		Dims:     dims,
		Capacity: capacity,
		Origin:   rl.Vector3{X: -half, Y: -half, Z: -half},
		slots:    make([]int32, dims*dims*dims*capacity),
	}
	g.Clear()
	return g
}

// Recenter moves the grid so center sits in its middle cell. Call before
// inserting; entries are not moved.
func (g *SpatialHashGrid) Recenter(center rl.Vector3) {
	half := float32(g.Dims) * g.CellSize / 2
	snap := func(v float32) float32 {
		return math32.Floor(v/g.CellSize)*g.CellSize - half
	}
	g.Origin = rl.Vector3{X: snap(center.X), Y: snap(center.Y), Z: snap(center.Z)}
}

// Clear empties every cell and resets the overflow counter.
func (g *SpatialHashGrid) Clear() {
	for i := range g.slots {
		g.slots[i] = EmptySlot
	}
	g.overflow.Store(0)
}

func (g *SpatialHashGrid) cellOf(pos rl.Vector3) (int, int, int) {
	return int(math32.Floor((pos.X - g.Origin.X) / g.CellSize)),
		int(math32.Floor((pos.Y - g.Origin.Y) / g.CellSize)),
		int(math32.Floor((pos.Z - g.Origin.Z) / g.CellSize))
}

func (g *SpatialHashGrid) wrap(c int) int {
	return ((c % g.Dims) + g.Dims) % g.Dims
}

func (g *SpatialHashGrid) cellIndex(x, y, z int) int {
	return g.wrap(x) + g.wrap(y)*g.Dims + g.wrap(z)*g.Dims*g.Dims
}

// Insert claims the first free slot of pos's cell. It returns false, and
// counts an overflow, when the cell is full.
func (g *SpatialHashGrid) Insert(id int32, pos rl.Vector3) bool {
	base := g.cellIndex(g.cellOf(pos)) * g.Capacity
	for i := 0; i < g.Capacity; i++ {
		if atomic.CompareAndSwapInt32(&g.slots[base+i], EmptySlot, id) {
			return true
		}
	}
	g.overflow.Add(1)
	return false
}

// InsertAll inserts ids[i] at positions[i] using up to lanes goroutines.
func (g *SpatialHashGrid) InsertAll(ctx context.Context, ids []int32, positions []rl.Vector3, lanes int) error {
	if lanes <= 1 || len(ids) < 2*lanes {
		for i, id := range ids {
			g.Insert(id, positions[i])
		}
		return nil
	}
	eg, ctx := errgroup.WithContext(ctx)
	chunk := (len(ids) + lanes - 1) / lanes
	for start := 0; start < len(ids); start += chunk {
		end := min(start+chunk, len(ids))
		eg.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				g.Insert(ids[i], positions[i])
			}
			return nil
		})
	}
	return eg.Wait()
}

// Neighbors appends the ids stored in the 3x3x3 cells around pos to dst.
// An id may appear more than once, and ids of far particles sharing a
// wrapped cell are included; callers must tolerate both.
func (g *SpatialHashGrid) Neighbors(pos rl.Vector3, dst []int32) []int32 {
	cx, cy, cz := g.cellOf(pos)
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				base := g.cellIndex(cx+dx, cy+dy, cz+dz) * g.Capacity
				for i := 0; i < g.Capacity; i++ {
					id := atomic.LoadInt32(&g.slots[base+i])
					if id == EmptySlot {
						break
					}
					dst = append(dst, id)
				}
			}
		}
	}
	return dst
}

// Overflow returns how many inserts were dropped since the last Clear.
func (g *SpatialHashGrid) Overflow() int64 {
	return g.overflow.Load()
}

// Slots exposes the raw slot array.
func (g *SpatialHashGrid) Slots() []int32 {
	return g.slots
}
