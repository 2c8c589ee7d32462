package physics

import (
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"

	rl "github.com/gen2brain/raylib-go/raylib"
)

type RaycastHit struct {
	// Body is the zero handle when Terrain is set.
	Body     BodyHandle
	Terrain  bool
	Cell     occupancy.Cell
	Point    rl.Vector3
	Normal   rl.Vector3
	Distance float32
}

// Raycast checks terrain and every body and returns the closest hit
func (p *PhysicsWorld) Raycast(origin, direction rl.Vector3, maxDistance float32) (RaycastHit, bool) {
	if rl.Vector3Length(direction) == 0 {
		return RaycastHit{}, false
	}
	direction = rl.Vector3Normalize(direction)
	var closestHit RaycastHit
	closestHit.Distance = maxDistance
	hit := false

	if th, ok := p.occ.Raycast(origin, direction, maxDistance); ok {
		closestHit = RaycastHit{Terrain: true, Cell: th.Cell, Point: th.Point, Normal: th.Normal, Distance: th.Distance}
		hit = true
	}

	for i, slot := range p.slots {
		b := slot.body
		if b == nil {
			continue
		}
		var t float32
		var normal rl.Vector3
		var ok bool
		if b.Kind == Kinematic {
			t, normal, ok = raycastBox(origin, direction, NewAABBasOBB(b.Position, b.HalfExtents), closestHit.Distance)
		} else {
			t, normal, ok = raycastFragment(origin, direction, b, closestHit.Distance)
		}
		if ok && (!hit || t < closestHit.Distance) {
			closestHit = RaycastHit{
				Body:     BodyHandle{index: uint32(i), generation: slot.generation},
				Point:    rl.Vector3Add(origin, rl.Vector3Scale(direction, t)),
				Normal:   normal,
				Distance: t,
			}
			hit = true
		}
	}

	return closestHit, hit
}

// raycastFragment tests the fragment's bounding box first, then every
// particle cube.
func raycastFragment(origin, direction rl.Vector3, b *Body, maxDistance float32) (float32, rl.Vector3, bool) {
	bounds := b.OBB()
	if _, _, ok := raycastBox(origin, direction, bounds, maxDistance); !ok {
		return 0, rl.Vector3{}, false
	}
	half := rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5}
	best := maxDistance
	var bestNormal rl.Vector3
	found := false
	for _, r := range b.particles {
		cube := bounds
		cube.Center = bounds.ToWorld(r)
		cube.HalfSize = half
		if t, n, ok := raycastBox(origin, direction, cube, best); ok && (!found || t < best) {
			best, bestNormal, found = t, n, true
		}
	}
	return best, bestNormal, found
}

// raycastBox is a slab test in the box's local frame. It returns the entry
// distance and the world normal of the entered face.
func raycastBox(origin, direction rl.Vector3, box OBB, maxDistance float32) (float32, rl.Vector3, bool) {
	o := box.ToLocal(origin)
	d := rl.Vector3{
		X: rl.Vector3DotProduct(direction, box.Axes[0]),
		Y: rl.Vector3DotProduct(direction, box.Axes[1]),
		Z: rl.Vector3DotProduct(direction, box.Axes[2]),
	}

	tmin := float32(-1e30)
	tmax := float32(1e30)
	enterAxis := -1
	var enterSign float32

	for axis := 0; axis < 3; axis++ {
		oa, da, h := component(o, axis), component(d, axis), component(box.HalfSize, axis)
		if da == 0 {
			if oa < -h || oa > h {
				return 0, rl.Vector3{}, false
			}
			continue
		}
		t1 := (-h - oa) / da
		t2 := (h - oa) / da
		sign := float32(-1)
		if t1 > t2 {
			t1, t2 = t2, t1
			sign = 1
		}
		if t1 > tmin {
			tmin = t1
			enterAxis = axis
			enterSign = sign
		}
		if t2 < tmax {
			tmax = t2
		}
		if tmin > tmax {
			return 0, rl.Vector3{}, false
		}
	}

	if tmax < 0 || tmin > maxDistance {
		return 0, rl.Vector3{}, false
	}
	// Origin inside the box
	if tmin < 0 || enterAxis < 0 {
		return 0, rl.Vector3{}, true
	}
	return tmin, rl.Vector3Scale(box.Axes[enterAxis], enterSign), true
}
