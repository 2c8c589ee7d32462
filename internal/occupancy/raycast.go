package occupancy

import (
	"github.com/chewxy/math32"
	rl "github.com/gen2brain/raylib-go/raylib"
)

type RaycastHit struct {
	Cell     Cell
	Point    rl.Vector3
	Normal   rl.Vector3
	Distance float32
}

// Raycast walks the voxel grid along direction and returns the first solid
// cell within maxDistance. A ray starting inside a solid cell hits it at
// distance 0 with a zero normal.
func (w *WorldOccupancy) Raycast(origin, direction rl.Vector3, maxDistance float32) (RaycastHit, bool) {
	if rl.Vector3Length(direction) == 0 {
		return RaycastHit{}, false
	}
	direction = rl.Vector3Normalize(direction)

	cell := CellOf(origin)
	if w.GetVoxel(cell.X, cell.Y, cell.Z) {
		return RaycastHit{Cell: cell, Point: origin}, true
	}

	stepX, tMaxX, tDeltaX := ddaAxis(origin.X, direction.X, cell.X)
	stepY, tMaxY, tDeltaY := ddaAxis(origin.Y, direction.Y, cell.Y)
	stepZ, tMaxZ, tDeltaZ := ddaAxis(origin.Z, direction.Z, cell.Z)

	var normal rl.Vector3
	for {
		var t float32
		// Step across the nearest cell boundary
		if tMaxX < tMaxY && tMaxX < tMaxZ {
			t = tMaxX
			cell.X += stepX
			tMaxX += tDeltaX
			normal = rl.Vector3{X: -float32(stepX)}
		} else if tMaxY < tMaxZ {
			t = tMaxY
			cell.Y += stepY
			tMaxY += tDeltaY
			normal = rl.Vector3{Y: -float32(stepY)}
		} else {
			t = tMaxZ
			cell.Z += stepZ
			tMaxZ += tDeltaZ
			normal = rl.Vector3{Z: -float32(stepZ)}
		}
		if t > maxDistance {
			return RaycastHit{}, false
		}
		if w.GetVoxel(cell.X, cell.Y, cell.Z) {
			return RaycastHit{
				Cell:     cell,
				Point:    rl.Vector3Add(origin, rl.Vector3Scale(direction, t)),
				Normal:   normal,
				Distance: t,
			}, true
		}
	}
}

// ddaAxis returns the step sign, the ray distance to the first boundary and
// the distance between boundaries along one axis.
func ddaAxis(origin, dir float32, cell int32) (int32, float32, float32) {
	inf := math32.Inf(1)
	switch {
	case dir > 0:
		return 1, (float32(cell) + 1 - origin) / dir, 1 / dir
	case dir < 0:
		return -1, (origin - float32(cell)) / -dir, -1 / dir
	default:
		return 0, inf, inf
	}
}
