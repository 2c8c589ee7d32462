package physics

import (
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// OBB represents an Oriented Bounding Box
type OBB struct {
	Center   rl.Vector3    // World-space center
	HalfSize rl.Vector3    // Half-extents along local axes
	Axes     [3]rl.Vector3 // Local X, Y, Z axes (rotated)
}

// NewOBB creates an OBB from center, half-extents and rotation
func NewOBB(center, halfSize rl.Vector3, rotation rl.Quaternion) OBB {
	return OBB{
		Center:   center,
		HalfSize: halfSize,
		Axes: [3]rl.Vector3{
			rl.Vector3RotateByQuaternion(rl.Vector3{X: 1}, rotation),
			rl.Vector3RotateByQuaternion(rl.Vector3{Y: 1}, rotation),
			rl.Vector3RotateByQuaternion(rl.Vector3{Z: 1}, rotation),
		},
	}
}

// NewAABBasOBB creates an axis-aligned OBB (no rotation)
func NewAABBasOBB(center, halfSize rl.Vector3) OBB {
	return OBB{
		Center:   center,
		HalfSize: halfSize,
		Axes: [3]rl.Vector3{
			{X: 1, Y: 0, Z: 0},
			{X: 0, Y: 1, Z: 0},
			{X: 0, Y: 0, Z: 1},
		},
	}
}

// OBB returns the body's oriented box. Kinematic bodies never rotate.
func (b *Body) OBB() OBB {
	if b.Kind == Kinematic {
		return NewAABBasOBB(b.Position, b.HalfExtents)
	}
	return NewOBB(b.Position, b.HalfExtents, b.Rotation)
}

// AABB returns the tightest world-aligned box containing o.
func (o OBB) AABB() occupancy.AABB {
	extent := func(axis int) float32 {
		var e float32
		for i, a := range o.Axes {
			e += absf(component(a, axis)) * component(o.HalfSize, i)
		}
		return e
	}
	return occupancy.AABBFromCenter(o.Center, rl.Vector3{X: extent(0), Y: extent(1), Z: extent(2)})
}

// Expand grows the box by amount on every side.
func (o OBB) Expand(amount float32) OBB {
	o.HalfSize = rl.Vector3Add(o.HalfSize, rl.Vector3{X: amount, Y: amount, Z: amount})
	return o
}

// IntersectsOBB tests if two OBBs intersect using the Separating Axis Theorem
func (a OBB) IntersectsOBB(b OBB) bool {
	// Vector from A's center to B's center
	t := rl.Vector3Subtract(b.Center, a.Center)

	// Face normals of both boxes, then the 9 edge cross products
	for i := 0; i < 3; i++ {
		if !overlapOnAxis(a, b, a.Axes[i], t) || !overlapOnAxis(a, b, b.Axes[i], t) {
			return false
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			axis := rl.Vector3CrossProduct(a.Axes[i], b.Axes[j])
			// Skip near-zero axes (parallel edges)
			if rl.Vector3Length(axis) > 0.0001 {
				if !overlapOnAxis(a, b, rl.Vector3Normalize(axis), t) {
					return false
				}
			}
		}
	}
	return true
}

// overlapOnAxis checks if two OBBs overlap when projected onto a given axis
func overlapOnAxis(a, b OBB, axis, t rl.Vector3) bool {
	distance := absf(rl.Vector3DotProduct(t, axis))
	return distance <= a.project(axis)+b.project(axis)
}

func (o OBB) project(axis rl.Vector3) float32 {
	return o.HalfSize.X*absf(rl.Vector3DotProduct(o.Axes[0], axis)) +
		o.HalfSize.Y*absf(rl.Vector3DotProduct(o.Axes[1], axis)) +
		o.HalfSize.Z*absf(rl.Vector3DotProduct(o.Axes[2], axis))
}

// ToLocal transforms a world point into the box's frame.
func (o OBB) ToLocal(p rl.Vector3) rl.Vector3 {
	d := rl.Vector3Subtract(p, o.Center)
	return rl.Vector3{
		X: rl.Vector3DotProduct(d, o.Axes[0]),
		Y: rl.Vector3DotProduct(d, o.Axes[1]),
		Z: rl.Vector3DotProduct(d, o.Axes[2]),
	}
}

// ToWorld transforms a local point back into world space.
func (o OBB) ToWorld(local rl.Vector3) rl.Vector3 {
	result := o.Center
	result = rl.Vector3Add(result, rl.Vector3Scale(o.Axes[0], local.X))
	result = rl.Vector3Add(result, rl.Vector3Scale(o.Axes[1], local.Y))
	result = rl.Vector3Add(result, rl.Vector3Scale(o.Axes[2], local.Z))
	return result
}

// ClosestPoint returns the point of the box nearest to point
func (o OBB) ClosestPoint(point rl.Vector3) rl.Vector3 {
	local := o.ToLocal(point)
	return o.ToWorld(boxPoint(rl.Vector3{}, o.HalfSize, local))
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

func component(v rl.Vector3, axis int) float32 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	}
	return v.Z
}
