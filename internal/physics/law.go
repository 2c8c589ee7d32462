package physics

import (
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// minSeparation guards the normal against coincident particles.
const minSeparation = 1e-8

// CollisionForce is the spring/damper/tangential contact law between particle
// i and particle (or virtual point) j, returning the force on i. Every pairing
// in the world uses it: terrain, kinematic boxes and other fragments.
func CollisionForce(pi, vi, pj, vj rl.Vector3, cfg *Config) rl.Vector3 {
	relative := rl.Vector3Subtract(pj, pi)
	dist := rl.Vector3Length(relative)
	if dist >= cfg.Diameter || dist < minSeparation {
		return rl.Vector3{}
	}

	// n points from i toward j, so the spring term is negated to push i away
	n := rl.Vector3Scale(relative, 1/dist)
	penetration := cfg.Diameter - dist
	repulsive := rl.Vector3Scale(n, -cfg.SpringK*penetration)

	relVel := rl.Vector3Subtract(vj, vi)
	damping := rl.Vector3Scale(relVel, cfg.DampingK)

	normalVel := rl.Vector3Scale(n, rl.Vector3DotProduct(relVel, n))
	tangential := rl.Vector3Scale(rl.Vector3Subtract(relVel, normalVel), cfg.TangentialK)

	return rl.Vector3Add(repulsive, rl.Vector3Add(damping, tangential))
}

// TerrainForce applies CollisionForce against a stationary virtual point
// placed behind the contact so the law sees exactly the contact's penetration.
func TerrainForce(c occupancy.Contact, vi rl.Vector3, cfg *Config) rl.Vector3 {
	virtual := rl.Vector3Subtract(c.Source, rl.Vector3Scale(c.Normal, cfg.Diameter-c.Penetration))
	return CollisionForce(c.Source, vi, virtual, rl.Vector3{}, cfg)
}

// IntegrateVelocity applies friction to the previous velocity, then this
// step's force. Tiny results snap to zero.
func IntegrateVelocity(v, force rl.Vector3, mass, dt float32, cfg *Config) rl.Vector3 {
	v = rl.Vector3Scale(v, 1/(1+dt*cfg.Friction))
	if mass > 0 {
		v = rl.Vector3Add(v, rl.Vector3Scale(force, cfg.LinearForceScalar*dt/mass))
	}
	if rl.Vector3Length(v) < cfg.VelocityThreshold {
		return rl.Vector3{}
	}
	return v
}

// IntegrateAngularVelocity mirrors IntegrateVelocity with its own friction and
// a magnitude clamp.
func IntegrateAngularVelocity(w, torque rl.Vector3, inertia, dt float32, cfg *Config) rl.Vector3 {
	w = rl.Vector3Scale(w, 1/(1+dt*cfg.AngularFriction))
	if inertia > 0 {
		w = rl.Vector3Add(w, rl.Vector3Scale(torque, cfg.AngularForceScalar*dt/inertia))
	}
	speed := rl.Vector3Length(w)
	if speed < cfg.VelocityThreshold {
		return rl.Vector3{}
	}
	if speed > cfg.MaxAngularSpeed {
		w = rl.Vector3Scale(w, cfg.MaxAngularSpeed/speed)
	}
	return w
}

// IntegratePosition is explicit Euler.
func IntegratePosition(p, v rl.Vector3, dt float32) rl.Vector3 {
	return rl.Vector3Add(p, rl.Vector3Scale(v, dt))
}

// IntegrateRotation advances q by angular velocity w:
// q' = normalize(q + 0.5*dt*(w ⊗ q)) with w as a pure quaternion.
func IntegrateRotation(q rl.Quaternion, w rl.Vector3, dt float32) rl.Quaternion {
	qv := rl.Vector3{X: q.X, Y: q.Y, Z: q.Z}
	xyz := rl.Vector3Add(rl.Vector3Scale(w, q.W), cross(w, qv))
	s := 0.5 * dt
	next := rl.Quaternion{
		X: q.X + xyz.X*s,
		Y: q.Y + xyz.Y*s,
		Z: q.Z + xyz.Z*s,
		W: q.W - rl.Vector3DotProduct(w, qv)*s,
	}
	return rl.QuaternionNormalize(next)
}

// AggregateForces sums forces and their torques about center.
func AggregateForces(center rl.Vector3, points, forces []rl.Vector3) (linear, torque rl.Vector3) {
	for i, f := range forces {
		linear = rl.Vector3Add(linear, f)
		r := rl.Vector3Subtract(points[i], center)
		torque = rl.Vector3Add(torque, cross(r, f))
	}
	return linear, torque
}
