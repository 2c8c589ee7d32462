package compute

import (
	"testing"

	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"

	rl "github.com/gen2brain/raylib-go/raylib"
)

func TestNewVoxelCollisionWithoutGPU(t *testing.T) {
	if Get() != nil {
		t.Skip("compute system already initialized")
	}
	if _, err := NewVoxelCollision(DefaultVoxelCollisionConfig()); err != ErrNotInitialized {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
}

func TestDecodeMatchesCPUOrder(t *testing.T) {
	frag := occupancy.NewSolidFragment(2, 1, 1)
	poses := []occupancy.FragmentPose{
		{ID: 7, Fragment: frag, Position: rl.Vector3{Y: 0.4}, Rotation: rl.QuaternionIdentity()},
		{ID: 9, Fragment: frag, Position: rl.Vector3{X: 5}, Rotation: rl.QuaternionIdentity()},
	}
	raw := []GpuContact{
		{Position: [3]float32{0.5, -0.05, 0}, Penetration: 0.1, Normal: [3]float32{0, 1, 0}, FragmentIndex: 0, ContactType: ContactTerrain, VoxelIndex: 1},
		{Position: [3]float32{-0.5, -0.05, 0}, Penetration: 0.1, Normal: [3]float32{0, 1, 0}, FragmentIndex: 0, ContactType: ContactTerrain, VoxelIndex: 0},
		{Position: [3]float32{1, 0.4, 0}, Penetration: 0.2, Normal: [3]float32{-1, 0, 0}, FragmentIndex: 0, ContactType: ContactFragment, OtherFragment: 1, VoxelIndex: 1, OtherVoxel: 0},
		{FragmentIndex: 5, ContactType: ContactTerrain},
	}

	vc := &VoxelCollision{}
	byID := vc.decode(poses, raw)

	got := byID[7]
	if len(got) != 2 {
		t.Fatalf("Expected 2 terrain contacts for pose 7, got %d", len(got))
	}
	wantSource := rl.Vector3{X: -0.5, Y: 0.4}
	if got[0].Source != wantSource {
		t.Errorf("Expected first contact from voxel 0 at %v, got %v", wantSource, got[0].Source)
	}
	if got[0].Cell != (occupancy.Cell{X: -1, Y: -1, Z: 0}) {
		t.Errorf("Expected cell (-1,-1,0), got %+v", got[0].Cell)
	}
	if got[0].Other != occupancy.NoBody {
		t.Errorf("Expected terrain contact, got other %d", got[0].Other)
	}
	if got[1].Source.X != 0.5 {
		t.Errorf("Expected second contact from voxel 1, got source %v", got[1].Source)
	}
	if len(byID[9]) != 0 {
		t.Errorf("Expected no contacts for pose 9, got %d", len(byID[9]))
	}

	if len(vc.fragContacts) != 1 {
		t.Fatalf("Expected 1 fragment contact, got %d", len(vc.fragContacts))
	}
	fc := vc.fragContacts[0]
	if fc.A != 7 || fc.B != 9 || fc.Contact.Other != 9 {
		t.Errorf("Expected contact 7->9, got %d->%d other %d", fc.A, fc.B, fc.Contact.Other)
	}
	if fc.VoxelA != 1 || fc.VoxelB != 0 {
		t.Errorf("Expected voxels 1->0, got %d->%d", fc.VoxelA, fc.VoxelB)
	}
}

func TestSetParticleDiameter(t *testing.T) {
	vc := &VoxelCollision{cfg: DefaultVoxelCollisionConfig()}
	if vc.cfg.Diameter != 1 {
		t.Errorf("Expected default diameter 1, got %v", vc.cfg.Diameter)
	}

	vc.SetParticleDiameter(0.8)
	if vc.cfg.Diameter != 0.8 || vc.cfg.CellSize != 0.8 {
		t.Errorf("Expected diameter and cell size 0.8, got %v and %v", vc.cfg.Diameter, vc.cfg.CellSize)
	}
}

func TestDecodeAgreesWithCheckFragmentSources(t *testing.T) {
	occ := occupancy.FromRegion(occupancy.Cell{X: -4, Y: -1, Z: -4}, occupancy.Cell{X: 4, Y: -1, Z: 4},
		func(x, y, z int32) bool { return true })
	frag := occupancy.NewSolidFragment(2, 2, 1)
	pose := occupancy.FragmentPose{ID: 1, Fragment: frag, Position: rl.Vector3{X: 0.3, Y: 0.9, Z: 0.5}, Rotation: rl.QuaternionIdentity()}

	cpu := occ.CheckFragment(frag, pose.Position, pose.Rotation)
	if !cpu.HasCollision() {
		t.Fatal("Expected the fragment to touch the floor")
	}
	for _, c := range cpu.Contacts {
		// Recover the voxel index from the source the same way the shader tags it
		local := rl.Vector3Subtract(c.Source, pose.Position)
		x := int32(local.X + 1)
		y := int32(local.Y + 1)
		src := particleCenter(pose, uint32(x+y*2))
		if src != c.Source {
			t.Errorf("Expected source %v, got %v", c.Source, src)
		}
	}
}

func TestPairsFromContacts(t *testing.T) {
	contacts := []FragmentContact{{A: 7, B: 9}, {A: 9, B: 7}, {A: 3, B: 7}, {A: 7, B: 7}}
	pairs := pairsFromContacts(contacts)

	want := []CollisionPair{{A: 3, B: 7}, {A: 7, B: 9}}
	if len(pairs) != len(want) {
		t.Fatalf("Expected %d pairs, got %v", len(want), pairs)
	}
	for i := range want {
		if pairs[i] != want[i] {
			t.Errorf("Expected pair %v at %d, got %v", want[i], i, pairs[i])
		}
	}
}
