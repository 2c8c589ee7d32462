// GPU spatial hash grid used by the fragment-fragment pass
package compute

import (
	"slices"

	"github.com/chewxy/math32"
	rl "github.com/gen2brain/raylib-go/raylib"
)

// CollisionPair is two fragments, by pose ID, whose cells touch.
// A is always less than B.
type CollisionPair struct {
	A, B int
}

func (vc *VoxelCollision) gridSlots() uint32 {
	d := uint32(vc.cfg.GridDims)
	return d * d * d * uint32(vc.cfg.GridCapacity)
}

// gridOrigin snaps the hash grid so center sits in its middle cell, the
// same way the CPU grid recenters. Cells beyond the grid wrap onto it.
func (vc *VoxelCollision) gridOrigin(center rl.Vector3) [3]float32 {
	half := float32(vc.cfg.GridDims) * vc.cfg.CellSize / 2
	snap := func(v float32) float32 {
		return math32.Floor(v/vc.cfg.CellSize)*vc.cfg.CellSize - half
	}
	return [3]float32{snap(center.X), snap(center.Y), snap(center.Z)}
}

// FragmentPairs returns the distinct fragment pairs of the last reported
// round, sorted.
func (vc *VoxelCollision) FragmentPairs() []CollisionPair {
	return pairsFromContacts(vc.fragContacts)
}

func pairsFromContacts(contacts []FragmentContact) []CollisionPair {
	seen := make(map[CollisionPair]bool)
	var pairs []CollisionPair
	for _, c := range contacts {
		p := CollisionPair{A: min(c.A, c.B), B: max(c.A, c.B)}
		if p.A == p.B || seen[p] {
			continue
		}
		seen[p] = true
		pairs = append(pairs, p)
	}
	slices.SortFunc(pairs, func(x, y CollisionPair) int {
		if x.A != y.A {
			return x.A - y.A
		}
		return x.B - y.B
	})
	return pairs
}
