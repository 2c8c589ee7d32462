package physics

import (
	"cmp"
	"log"
	"slices"

	"github.com/OptimusLime/creature-3d-studio-sub000/internal/compute"
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// stepScratch holds the flattened particle state of one dynamic step.
type stepScratch struct {
	bodies    []*Body // participating fragments, settled ones included
	slotOf    []int   // slot index of each body, ascending and stable across steps
	poses     []occupancy.FragmentPose
	poseOwner []int // index into bodies for each pose

	pos     []rl.Vector3
	vel     []rl.Vector3
	owner   []int32
	ids     []int32
	gridPos []rl.Vector3
	stamp   []int32
	near    []int32

	// Forces on each body and the points they act at
	points [][]rl.Vector3
	forces [][]rl.Vector3
}

func (s *stepScratch) reset() {
	s.bodies = s.bodies[:0]
	s.slotOf = s.slotOf[:0]
	s.poses = s.poses[:0]
	s.poseOwner = s.poseOwner[:0]
	s.pos = s.pos[:0]
	s.vel = s.vel[:0]
	s.owner = s.owner[:0]
}

// addForce records f acting at point on body k.
func (s *stepScratch) addForce(k int, point, f rl.Vector3) {
	s.points[k] = append(s.points[k], point)
	s.forces[k] = append(s.forces[k], f)
}

// stepDynamic advances every unsettled fragment. All forces are gathered
// from the same pre-step state before any body integrates.
func (p *PhysicsWorld) stepDynamic(dt float32) {
	s := &p.scratch
	s.reset()
	cfg := &p.cfg
	p.maxPenetration = 0

	for i, slot := range p.slots {
		b := slot.body
		if b == nil || b.Kind != Dynamic || len(b.particles) == 0 {
			continue
		}
		s.bodies = append(s.bodies, b)
		s.slotOf = append(s.slotOf, i)
	}
	if len(s.bodies) == 0 {
		return
	}

	// 1. Rotation about the center of mass, so contacts are taken at the
	// new orientation
	for _, b := range s.bodies {
		if !b.Settled {
			b.rotateAboutCenterOfMass(IntegrateRotation(b.Rotation, b.AngularVelocity, dt))
		}
	}

	// 2. Particle world state. Settled fragments stay as static obstacles.
	for len(s.points) < len(s.bodies) {
		s.points = append(s.points, nil)
		s.forces = append(s.forces, nil)
	}
	for k, b := range s.bodies {
		s.points[k] = s.points[k][:0]
		s.forces[k] = s.forces[k][:0]
		com := b.CenterOfMass()
		for i := range b.particles {
			wp := b.WorldParticle(i)
			s.pos = append(s.pos, wp)
			s.vel = append(s.vel, pointVelocity(b.Velocity, b.AngularVelocity, rl.Vector3Subtract(wp, com)))
			s.owner = append(s.owner, int32(k))
		}
		if !b.Settled {
			s.poses = append(s.poses, occupancy.FragmentPose{
				ID:       s.slotOf[k],
				Fragment: b.Fragment,
				Version:  b.fragmentVersion,
				Position: b.Position,
				Rotation: b.Rotation,
			})
			s.poseOwner = append(s.poseOwner, k)
		}
	}
	if len(s.poses) == 0 {
		return
	}

	// 3. Terrain
	results, pairs := p.terrainContacts(s.poses)
	for i, res := range results {
		k := s.poseOwner[i]
		b := s.bodies[k]
		com := b.CenterOfMass()
		for _, c := range res.Contacts {
			v := pointVelocity(b.Velocity, b.AngularVelocity, rl.Vector3Subtract(c.Source, com))
			s.addForce(k, c.Position, TerrainForce(c, v, cfg))
		}
		p.maxPenetration = max(p.maxPenetration, res.MaxPenetration())
		if n, ok := res.FloorNormal(); ok {
			b.Grounded = true
			b.GroundNormal = n
		} else {
			b.Grounded = false
			b.GroundNormal = rl.Vector3{}
		}
	}

	// 4. Fragment-fragment pairs the narrow phase already found
	if pairs != nil {
		p.pairForces(pairs.FragmentContacts())
	}

	// 5. Broad phase. Pairs between moving fragments come from the narrow
	// phase when it found them, so the grid then holds resting ones only.
	p.broadPhase(s.pos, func(i int) bool {
		return pairs == nil || s.bodies[s.owner[i]].Settled
	})

	// 6. Fragment-fragment from the grid. Each pair is seen from both sides
	// and each side applies only the force on itself.
	if cap(s.stamp) < len(s.pos) {
		s.stamp = make([]int32, len(s.pos))
	}
	s.stamp = s.stamp[:len(s.pos)]
	clear(s.stamp)
	for i := range s.pos {
		k := int(s.owner[i])
		if s.bodies[k].Settled {
			continue
		}
		s.near = p.grid.Neighbors(s.pos[i], s.near[:0])
		for _, j := range s.near {
			if s.owner[j] == s.owner[i] || s.stamp[j] == int32(i)+1 {
				continue
			}
			s.stamp[j] = int32(i) + 1
			f := CollisionForce(s.pos[i], s.vel[i], s.pos[j], s.vel[j], cfg)
			if f == (rl.Vector3{}) {
				continue
			}
			s.addForce(k, rl.Vector3Lerp(s.pos[i], s.pos[j], 0.5), f)
		}
	}

	// 7. Kinematic boxes push particles; they are not pushed back
	for _, slot := range p.slots {
		kb := slot.body
		if kb == nil || kb.Kind != Kinematic {
			continue
		}
		p.kinematicForces(kb)
	}

	// 8. Integrate
	for k, b := range s.bodies {
		if b.Settled {
			continue
		}
		linear, torque := AggregateForces(b.CenterOfMass(), s.points[k], s.forces[k])
		linear.Y -= b.Mass * cfg.Gravity
		b.Velocity = IntegrateVelocity(b.Velocity, linear, b.Mass, dt, cfg)
		b.AngularVelocity = IntegrateAngularVelocity(b.AngularVelocity, torque, b.Inertia, dt, cfg)
		b.Position = IntegratePosition(b.Position, b.Velocity, dt)
		p.updateSettling(b)
	}
}

// pairForces applies the contact law to cell pairs reported by the narrow
// phase. Both cells are re-placed from the current body state; each pair is
// reported from both sides, so only the A side is pushed here.
func (p *PhysicsWorld) pairForces(contacts []compute.FragmentContact) {
	s := &p.scratch
	cfg := &p.cfg
	for _, fc := range contacts {
		ka, okA := slices.BinarySearch(s.slotOf, fc.A)
		kb, okB := slices.BinarySearch(s.slotOf, fc.B)
		if !okA || !okB || ka == kb {
			continue
		}
		a, b := s.bodies[ka], s.bodies[kb]
		if a.Settled || !a.hasCell(fc.VoxelA) || !b.hasCell(fc.VoxelB) {
			continue
		}
		pa, pb := a.cellPoint(fc.VoxelA), b.cellPoint(fc.VoxelB)
		va := pointVelocity(a.Velocity, a.AngularVelocity, rl.Vector3Subtract(pa, a.CenterOfMass()))
		vb := pointVelocity(b.Velocity, b.AngularVelocity, rl.Vector3Subtract(pb, b.CenterOfMass()))
		f := CollisionForce(pa, va, pb, vb, cfg)
		if f == (rl.Vector3{}) {
			continue
		}
		s.addForce(ka, rl.Vector3Lerp(pa, pb, 0.5), f)
	}
}

// kinematicForces treats the nearest point of kb's box as a virtual particle
// sitting just inside the surface, moving with kb.
func (p *PhysicsWorld) kinematicForces(kb *Body) {
	s := &p.scratch
	cfg := &p.cfg
	radius := cfg.Diameter / 2
	bounds := kb.Bounds().Expand(rl.Vector3{X: radius, Y: radius, Z: radius})
	reach := kb.OBB().Expand(radius)

	for k, b := range s.bodies {
		// Cheap AABB reject before the separating axis test
		if b.Settled || !bounds.Intersects(b.Bounds()) || !reach.IntersectsOBB(b.OBB()) {
			continue
		}
		for i := range s.pos {
			if int(s.owner[i]) != k {
				continue
			}
			q := boxPoint(kb.Position, kb.HalfExtents, s.pos[i])
			d := rl.Vector3Subtract(s.pos[i], q)
			dist := rl.Vector3Length(d)
			if dist >= radius {
				continue
			}
			n := rl.Vector3{Y: 1}
			if dist > minSeparation {
				n = rl.Vector3Scale(d, 1/dist)
			}
			virtual := rl.Vector3Subtract(q, rl.Vector3Scale(n, radius))
			s.addForce(k, q, CollisionForce(s.pos[i], s.vel[i], virtual, kb.Velocity, cfg))
		}
	}
}

// updateSettling counts consecutive quiet steps and freezes the body once
// it has been still long enough.
func (p *PhysicsWorld) updateSettling(b *Body) {
	speed := rl.Vector3Length(b.Velocity) + rl.Vector3Length(b.AngularVelocity)
	if speed >= p.cfg.SettleVelocity {
		b.settleFrames = 0
		return
	}
	b.settleFrames++
	if b.settleFrames >= p.cfg.SettleFrames {
		b.settle()
	}
}

func (b *Body) settle() {
	b.Settled = true
	b.Velocity = rl.Vector3{}
	b.AngularVelocity = rl.Vector3{}
}

// enforceFragmentLimit settles the oldest fragments beyond MaxActiveFragments.
func (p *PhysicsWorld) enforceFragmentLimit() {
	limit := p.cfg.MaxActiveFragments
	if limit <= 0 {
		return
	}
	var active []*Body
	for _, slot := range p.slots {
		if b := slot.body; b != nil && b.Kind == Dynamic && !b.Settled {
			active = append(active, b)
		}
	}
	if len(active) <= limit {
		return
	}
	slices.SortFunc(active, func(a, b *Body) int {
		return cmp.Compare(a.spawnOrder, b.spawnOrder)
	})
	excess := len(active) - limit
	for _, b := range active[:excess] {
		b.settle()
	}
	log.Printf("Physics: %d active fragments over limit %d, settled %d oldest", len(active), limit, excess)
}

// SettledBodies returns the handles of fragments that have come to rest and
// are ready to merge back into the terrain.
func (p *PhysicsWorld) SettledBodies() []BodyHandle {
	var out []BodyHandle
	for i, slot := range p.slots {
		if b := slot.body; b != nil && b.Kind == Dynamic && b.Settled {
			out = append(out, BodyHandle{index: uint32(i), generation: slot.generation})
		}
	}
	return out
}

// MergeBack writes a settled fragment's cells into the terrain at its
// current pose and removes the body. It returns the cells written.
func (p *PhysicsWorld) MergeBack(h BodyHandle) ([]occupancy.Cell, error) {
	b, ok := p.Body(h)
	if !ok {
		return nil, ErrBodyNotFound
	}
	if b.Kind != Dynamic {
		return nil, ErrNotDynamic
	}
	cells := p.occ.StampFragment(b.Fragment, b.Position, b.Rotation)
	if err := p.RemoveBody(h); err != nil {
		return cells, err
	}
	return cells, nil
}
