package occupancy

import (
	"github.com/chewxy/math32"
	rl "github.com/gen2brain/raylib-go/raylib"
)

// NoBody marks a contact against terrain rather than another body.
const NoBody = -1

// CardinalThreshold is the normal component above which a contact counts as
// facing one of the six axis directions.
const CardinalThreshold = 0.7

// Contact is a single per-step touch. It is never kept across steps.
type Contact struct {
	// Position is the center of the overlap region.
	Position rl.Vector3
	// Normal points from the solid cell toward the query.
	Normal      rl.Vector3
	Penetration float32
	// Source is the center of the box or particle that produced the contact.
	Source rl.Vector3
	Cell   Cell
	Other  int
}

// CollisionResult collects the contacts of one query.
type CollisionResult struct {
	Contacts []Contact
}

func (r *CollisionResult) HasCollision() bool {
	return len(r.Contacts) > 0
}

func (r *CollisionResult) ContactCount() int {
	return len(r.Contacts)
}

func (r *CollisionResult) MaxPenetration() float32 {
	var m float32
	for _, c := range r.Contacts {
		if c.Penetration > m {
			m = c.Penetration
		}
	}
	return m
}

// ResolutionVector returns the push that separates the query from every
// contact. The deepest push is kept per cardinal direction and opposite
// directions cancel, so many cells along one face do not stack.
func (r *CollisionResult) ResolutionVector() rl.Vector3 {
	var posX, negX, posY, negY, posZ, negZ float32
	for _, c := range r.Contacts {
		n := c.Normal
		switch {
		case n.X > CardinalThreshold:
			posX = math32.Max(posX, c.Penetration)
		case n.X < -CardinalThreshold:
			negX = math32.Max(negX, c.Penetration)
		case n.Y > CardinalThreshold:
			posY = math32.Max(posY, c.Penetration)
		case n.Y < -CardinalThreshold:
			negY = math32.Max(negY, c.Penetration)
		case n.Z > CardinalThreshold:
			posZ = math32.Max(posZ, c.Penetration)
		case n.Z < -CardinalThreshold:
			negZ = math32.Max(negZ, c.Penetration)
		}
	}
	return rl.Vector3{X: posX - negX, Y: posY - negY, Z: posZ - negZ}
}

// HasFloorContact reports whether any contact pushes upward.
func (r *CollisionResult) HasFloorContact() bool {
	for _, c := range r.Contacts {
		if c.Normal.Y > CardinalThreshold {
			return true
		}
	}
	return false
}

// FloorNormal averages the upward-facing contact normals.
func (r *CollisionResult) FloorNormal() (rl.Vector3, bool) {
	var sum rl.Vector3
	n := 0
	for _, c := range r.Contacts {
		if c.Normal.Y > CardinalThreshold {
			sum = rl.Vector3Add(sum, c.Normal)
			n++
		}
	}
	if n == 0 {
		return rl.Vector3{}, false
	}
	return rl.Vector3Normalize(sum), true
}
