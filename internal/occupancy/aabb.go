package occupancy

import (
	"github.com/chewxy/math32"
	rl "github.com/gen2brain/raylib-go/raylib"
)

// AABB is an axis-aligned box in world space.
type AABB struct {
	Min rl.Vector3
	Max rl.Vector3
}

// AABBFromCenter creates an AABB from a center point and half extents.
func AABBFromCenter(center, halfExtents rl.Vector3) AABB {
	return AABB{
		Min: rl.Vector3Subtract(center, halfExtents),
		Max: rl.Vector3Add(center, halfExtents),
	}
}

func (a AABB) Center() rl.Vector3 {
	return rl.Vector3Scale(rl.Vector3Add(a.Min, a.Max), 0.5)
}

func (a AABB) HalfExtents() rl.Vector3 {
	return rl.Vector3Scale(rl.Vector3Subtract(a.Max, a.Min), 0.5)
}

// Translate returns the box moved by offset.
func (a AABB) Translate(offset rl.Vector3) AABB {
	return AABB{Min: rl.Vector3Add(a.Min, offset), Max: rl.Vector3Add(a.Max, offset)}
}

// Expand returns the box grown by amount on every side.
func (a AABB) Expand(amount rl.Vector3) AABB {
	return AABB{Min: rl.Vector3Subtract(a.Min, amount), Max: rl.Vector3Add(a.Max, amount)}
}

func (a AABB) Intersects(b AABB) bool {
	return a.Min.X < b.Max.X && a.Max.X > b.Min.X &&
		a.Min.Y < b.Max.Y && a.Max.Y > b.Min.Y &&
		a.Min.Z < b.Max.Z && a.Max.Z > b.Min.Z
}

// CellRange returns the inclusive cell range whose unit cubes intersect the
// box: floor(min) .. ceil(max)-1. Touching faces do not count.
func (a AABB) CellRange() (Cell, Cell) {
	lo := Cell{
		X: int32(math32.Floor(a.Min.X)),
		Y: int32(math32.Floor(a.Min.Y)),
		Z: int32(math32.Floor(a.Min.Z)),
	}
	hi := Cell{
		X: int32(math32.Ceil(a.Max.X)) - 1,
		Y: int32(math32.Ceil(a.Max.Y)) - 1,
		Z: int32(math32.Ceil(a.Max.Z)) - 1,
	}
	return lo, hi
}

// CellOf returns the cell containing a world point.
func CellOf(p rl.Vector3) Cell {
	return Cell{
		X: int32(math32.Floor(p.X)),
		Y: int32(math32.Floor(p.Y)),
		Z: int32(math32.Floor(p.Z)),
	}
}

// CellCenter returns the world center of a cell.
func CellCenter(c Cell) rl.Vector3 {
	return rl.Vector3{X: float32(c.X) + 0.5, Y: float32(c.Y) + 0.5, Z: float32(c.Z) + 0.5}
}
