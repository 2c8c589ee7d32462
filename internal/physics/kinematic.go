package physics

import (
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// moveKinematic is move-and-slide for one input-driven box: apply input and
// gravity, push out of terrain, slide along every touched surface, then
// probe for ground.
func (p *PhysicsWorld) moveKinematic(b *Body, dt float32) {
	cfg := &p.cfg
	wasGrounded := b.Grounded

	b.Velocity.X = b.InputVelocity.X
	b.Velocity.Z = b.InputVelocity.Z
	if b.jumpSpeed > 0 && b.Grounded {
		b.Velocity.Y = b.jumpSpeed
		b.Grounded = false
	}
	b.jumpSpeed = 0

	if !b.Grounded {
		b.Velocity.Y -= cfg.KinematicGravity * dt
	} else if b.Velocity.Y < 0 {
		b.Velocity.Y = 0
	}

	b.Grounded = false
	b.GroundNormal = rl.Vector3{}

	motion := rl.Vector3Scale(b.Velocity, dt)
	for i := 0; i < cfg.CollisionIterations; i++ {
		target := rl.Vector3Add(b.Position, motion)
		result := p.occ.CheckAABB(occupancy.AABBFromCenter(b.Position, b.HalfExtents).Translate(motion))
		if !result.HasCollision() {
			b.Position = target
			break
		}

		// The pushed-out target already carries the slid motion; later
		// iterations only clear leftover overlap.
		b.Position = rl.Vector3Add(target, result.ResolutionVector())
		motion = rl.Vector3{}

		if n, ok := result.FloorNormal(); ok {
			b.Grounded = true
			b.GroundNormal = n
			if b.Velocity.Y < 0 {
				b.Velocity.Y = 0
			}
		}

		// Slide along every touched surface so corners stop both axes
		for _, c := range result.Contacts {
			b.Velocity = removeComponent(b.Velocity, c.Normal)
		}
		if rl.Vector3LengthSqr(b.Velocity)*dt*dt < minMoveSqr {
			break
		}
	}

	// Stationary bodies still need to know they are standing on something
	if !b.Grounded {
		probe := occupancy.AABBFromCenter(b.Position, b.HalfExtents)
		probe.Min.Y -= cfg.GroundProbe
		result := p.occ.CheckAABB(probe)
		if n, ok := result.FloorNormal(); ok {
			b.Grounded = true
			b.GroundNormal = n
		}
	}

	// Stay attached when walking down small steps
	if wasGrounded && !b.Grounded && b.Velocity.Y <= 0 {
		foot := rl.Vector3{X: b.Position.X, Y: b.Position.Y - b.HalfExtents.Y, Z: b.Position.Z}
		hit, ok := p.occ.Raycast(foot, rl.Vector3{Y: -1}, cfg.SnapDistance)
		if ok && hit.Normal.Y > cfg.FloorThreshold {
			b.Position.Y -= hit.Distance
			b.Grounded = true
			b.GroundNormal = hit.Normal
			b.Velocity.Y = 0
		}
	}
}
