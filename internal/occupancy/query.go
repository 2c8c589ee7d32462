package occupancy

import (
	"github.com/chewxy/math32"
	rl "github.com/gen2brain/raylib-go/raylib"
)

var particleHalf = rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5}

// contactEpsilon drops overlaps that are only float noise on a shared face.
const contactEpsilon = 1e-5

// CheckAABB returns one contact per solid cell intersecting box.
func (w *WorldOccupancy) CheckAABB(box AABB) CollisionResult {
	var res CollisionResult
	w.collideBox(box.Center(), box.HalfExtents(), &res)
	return res
}

// CheckFragment places every solid fragment cell at its world position and
// tests it as a unit cube against terrain. Cost follows the fragment's solid
// cell count, not its bounding volume.
func (w *WorldOccupancy) CheckFragment(frag *FragmentOccupancy, position rl.Vector3, rotation rl.Quaternion) CollisionResult {
	var res CollisionResult
	if frag == nil {
		return res
	}
	frag.ForEachOccupied(func(x, y, z int32) {
		p := rl.Vector3Add(position, rl.Vector3RotateByQuaternion(frag.LocalCenter(x, y, z), rotation))
		w.collideBox(p, particleHalf, &res)
	})
	return res
}

func (w *WorldOccupancy) collideBox(center, half rl.Vector3, res *CollisionResult) {
	box := AABBFromCenter(center, half)
	lo, hi := box.CellRange()
	for z := lo.Z; z <= hi.Z; z++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for x := lo.X; x <= hi.X; x++ {
				if !w.GetVoxel(x, y, z) {
					continue
				}
				cell := Cell{X: x, Y: y, Z: z}
				normal, pen := boxVsCell(center, half, cell)
				if pen <= contactEpsilon {
					continue
				}
				res.Contacts = append(res.Contacts, Contact{
					Position:    overlapCenter(box, cell),
					Normal:      normal,
					Penetration: pen,
					Source:      center,
					Cell:        cell,
					Other:       NoBody,
				})
			}
		}
	}
}

// boxVsCell picks the dominant axis of center - cellCenter. Ties prefer Y,
// then X, so a query sitting exactly on a cell center is pushed up.
func boxVsCell(center, half rl.Vector3, cell Cell) (rl.Vector3, float32) {
	d := rl.Vector3Subtract(center, CellCenter(cell))
	ax, ay, az := math32.Abs(d.X), math32.Abs(d.Y), math32.Abs(d.Z)
	switch {
	case ay >= ax && ay >= az:
		return rl.Vector3{Y: sign(d.Y)}, half.Y + 0.5 - ay
	case ax >= az:
		return rl.Vector3{X: sign(d.X)}, half.X + 0.5 - ax
	default:
		return rl.Vector3{Z: sign(d.Z)}, half.Z + 0.5 - az
	}
}

func overlapCenter(box AABB, cell Cell) rl.Vector3 {
	cmin := rl.Vector3{X: float32(cell.X), Y: float32(cell.Y), Z: float32(cell.Z)}
	cmax := rl.Vector3Add(cmin, rl.Vector3{X: 1, Y: 1, Z: 1})
	lo := rl.Vector3{
		X: math32.Max(box.Min.X, cmin.X),
		Y: math32.Max(box.Min.Y, cmin.Y),
		Z: math32.Max(box.Min.Z, cmin.Z),
	}
	hi := rl.Vector3{
		X: math32.Min(box.Max.X, cmax.X),
		Y: math32.Min(box.Max.Y, cmax.Y),
		Z: math32.Min(box.Max.Z, cmax.Z),
	}
	return rl.Vector3Scale(rl.Vector3Add(lo, hi), 0.5)
}

func sign(v float32) float32 {
	if v < 0 {
		return -1
	}
	return 1
}

// StampFragment writes a fragment's solid cells into terrain at the given
// pose, overwriting what is there, and returns the written cells. This is the
// merge-back half of the carve/merge contract.
func (w *WorldOccupancy) StampFragment(frag *FragmentOccupancy, position rl.Vector3, rotation rl.Quaternion) []Cell {
	if frag == nil {
		return nil
	}
	cells := make([]Cell, 0, frag.Count())
	frag.ForEachOccupied(func(x, y, z int32) {
		p := rl.Vector3Add(position, rl.Vector3RotateByQuaternion(frag.LocalCenter(x, y, z), rotation))
		c := CellOf(p)
		w.SetVoxel(c.X, c.Y, c.Z, true)
		cells = append(cells, c)
	})
	return cells
}
