package physics

import rl "github.com/gen2brain/raylib-go/raylib"

// cross computes the cross product of two vectors
func cross(a, b rl.Vector3) rl.Vector3 {
	return rl.Vector3{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

// clamp restricts a value to a range
func clamp(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// pointVelocity is the velocity of a point rigidly attached to a body.
func pointVelocity(linear, angular, r rl.Vector3) rl.Vector3 {
	return rl.Vector3Add(linear, cross(angular, r))
}

// removeComponent strips the part of v pointing into a surface with normal n.
func removeComponent(v, n rl.Vector3) rl.Vector3 {
	d := rl.Vector3DotProduct(v, n)
	if d >= 0 {
		return v
	}
	return rl.Vector3Subtract(v, rl.Vector3Scale(n, d))
}

// boxPoint returns the point of box (center, half) closest to p.
func boxPoint(center, half, p rl.Vector3) rl.Vector3 {
	return rl.Vector3{
		X: clamp(p.X, center.X-half.X, center.X+half.X),
		Y: clamp(p.Y, center.Y-half.Y, center.Y+half.Y),
		Z: clamp(p.Z, center.Z-half.Z, center.Z+half.Z),
	}
}
