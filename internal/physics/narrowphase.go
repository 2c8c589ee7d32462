package physics

import (
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/compute"
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"
)

// NarrowPhase produces terrain contacts for a batch of placed fragments,
// one result per pose in the same order. Implementations only detect
// contacts; forces and integration always run in PhysicsWorld.
type NarrowPhase interface {
	TerrainContacts(occ *occupancy.WorldOccupancy, poses []occupancy.FragmentPose) ([]occupancy.CollisionResult, error)
}

// PairNarrowPhase also finds fragment-fragment cell contacts among the poses
// of its last TerrainContacts call. When one succeeds, the world applies
// these pairs and keeps only resting fragments in its CPU hash grid.
type PairNarrowPhase interface {
	NarrowPhase
	FragmentContacts() []compute.FragmentContact
}

var _ PairNarrowPhase = (*compute.VoxelCollision)(nil)

// CPUNarrowPhase runs CheckFragment for every pose.
type CPUNarrowPhase struct{}

func (CPUNarrowPhase) TerrainContacts(occ *occupancy.WorldOccupancy, poses []occupancy.FragmentPose) ([]occupancy.CollisionResult, error) {
	results := make([]occupancy.CollisionResult, len(poses))
	for i, pose := range poses {
		results[i] = occ.CheckFragment(pose.Fragment, pose.Position, pose.Rotation)
	}
	return results, nil
}
