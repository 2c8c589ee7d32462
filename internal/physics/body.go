package physics

import (
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"

	"github.com/chewxy/math32"
	rl "github.com/gen2brain/raylib-go/raylib"
)

// Kind selects a body's motion discipline.
type Kind uint8

const (
	// Kinematic bodies are moved by input and resolved by push-out; they never rotate.
	Kinematic Kind = iota
	// Dynamic bodies are driven by contact forces and torque.
	Dynamic
)

func (k Kind) String() string {
	switch k {
	case Kinematic:
		return "kinematic"
	case Dynamic:
		return "dynamic"
	}
	return "unknown"
}

// Body is one simulated object. Kinematic bodies use HalfExtents as an AABB;
// Dynamic bodies use Fragment, with one particle per solid cell.
type Body struct {
	Kind            Kind
	Position        rl.Vector3
	Rotation        rl.Quaternion
	Velocity        rl.Vector3
	AngularVelocity rl.Vector3

	HalfExtents rl.Vector3
	Fragment    *occupancy.FragmentOccupancy

	Grounded     bool
	GroundNormal rl.Vector3

	// Kinematic input
	InputVelocity rl.Vector3
	jumpSpeed     float32

	// Dynamic mass properties, derived from Fragment. Inertia is taken
	// about com, the particle centroid in body space.
	Mass      float32
	Inertia   float32
	particles []rl.Vector3
	com       rl.Vector3

	// Settling
	settleFrames int
	Settled      bool
	spawnOrder   uint64

	// fragmentVersion changes whenever the fragment is replaced so GPU
	// mirrors know to re-upload it.
	fragmentVersion uint64
}

// NewKinematicBody creates an input-driven box.
func NewKinematicBody(position, halfExtents rl.Vector3) *Body {
	return &Body{
		Kind:        Kinematic,
		Position:    position,
		Rotation:    rl.QuaternionIdentity(),
		HalfExtents: halfExtents,
	}
}

// NewPlayerBody creates a kinematic body with player proportions.
func NewPlayerBody(position rl.Vector3) *Body {
	return NewKinematicBody(position, rl.Vector3{X: 0.4, Y: 0.9, Z: 0.4})
}

// NewDynamicBody creates a fragment body at the given pose. Position is the
// center of the fragment's bounding box; the body turns about its center of
// mass, which differs for asymmetric fragments.
func NewDynamicBody(frag *occupancy.FragmentOccupancy, position rl.Vector3, rotation rl.Quaternion, velocity rl.Vector3) *Body {
	b := &Body{
		Kind:     Dynamic,
		Position: position,
		Rotation: rl.QuaternionNormalize(rotation),
		Velocity: velocity,
	}
	b.SetFragment(frag)
	return b
}

// NewDynamicBox creates a solid dynamic box of round(2*halfExtents) cells.
func NewDynamicBox(position, halfExtents rl.Vector3) *Body {
	cells := func(h float32) int32 {
		n := int32(math32.Round(2 * h))
		if n < 1 {
			n = 1
		}
		return n
	}
	frag := occupancy.NewSolidFragment(cells(halfExtents.X), cells(halfExtents.Y), cells(halfExtents.Z))
	return NewDynamicBody(frag, position, rl.QuaternionIdentity(), rl.Vector3{})
}

// SetFragment replaces a dynamic body's shape and recomputes its mass
// properties. Each particle weighs one unit.
func (b *Body) SetFragment(frag *occupancy.FragmentOccupancy) {
	b.Fragment = frag
	b.fragmentVersion++
	b.particles = nil
	b.com = rl.Vector3{}
	b.Mass = 0
	b.Inertia = 0
	if frag == nil {
		return
	}
	b.particles = frag.Particles()
	b.HalfExtents = frag.HalfExtents()
	b.Mass = float32(len(b.particles))
	if b.Mass == 0 {
		return
	}
	for _, r := range b.particles {
		b.com = rl.Vector3Add(b.com, r)
	}
	b.com = rl.Vector3Scale(b.com, 1/b.Mass)
	for _, r := range b.particles {
		d := rl.Vector3Subtract(r, b.com)
		b.Inertia += rl.Vector3DotProduct(d, d)
	}
	// Each unit cell adds its own inertia about its center
	b.Inertia += b.Mass / 6
}

// CenterOfMass returns the world position of the particle centroid.
func (b *Body) CenterOfMass() rl.Vector3 {
	return rl.Vector3Add(b.Position, rl.Vector3RotateByQuaternion(b.com, b.Rotation))
}

// rotateAboutCenterOfMass sets a new orientation, moving Position so the
// center of mass stays put.
func (b *Body) rotateAboutCenterOfMass(q rl.Quaternion) {
	c := b.CenterOfMass()
	b.Rotation = q
	b.Position = rl.Vector3Subtract(c, rl.Vector3RotateByQuaternion(b.com, q))
}

// localCell converts a fragment cell index, numbered x-fastest the way the
// GPU numbers them, back to coordinates.
func (b *Body) localCell(idx uint32) (int32, int32, int32) {
	f := b.Fragment
	sx, sy := uint32(f.SizeX), uint32(f.SizeY)
	return int32(idx % sx), int32((idx / sx) % sy), int32(idx / (sx * sy))
}

// hasCell reports whether cell idx exists and is solid.
func (b *Body) hasCell(idx uint32) bool {
	f := b.Fragment
	if f == nil || idx >= uint32(f.SizeX*f.SizeY*f.SizeZ) {
		return false
	}
	return f.Get(b.localCell(idx))
}

// cellPoint returns the world center of cell idx.
func (b *Body) cellPoint(idx uint32) rl.Vector3 {
	x, y, z := b.localCell(idx)
	return rl.Vector3Add(b.Position, rl.Vector3RotateByQuaternion(b.Fragment.LocalCenter(x, y, z), b.Rotation))
}

// Particles returns the body-space particle centers.
func (b *Body) Particles() []rl.Vector3 {
	return b.particles
}

// WorldParticle returns particle i in world space.
func (b *Body) WorldParticle(i int) rl.Vector3 {
	return rl.Vector3Add(b.Position, rl.Vector3RotateByQuaternion(b.particles[i], b.Rotation))
}

// Bounds returns the world AABB of the body's oriented box.
func (b *Body) Bounds() occupancy.AABB {
	return b.OBB().AABB()
}

// FragmentVersion changes whenever the body's fragment is replaced.
func (b *Body) FragmentVersion() uint64 {
	return b.fragmentVersion
}

