package physics

import (
	"errors"
	"testing"

	"github.com/OptimusLime/creature-3d-studio-sub000/internal/compute"
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"

	"github.com/chewxy/math32"
	rl "github.com/gen2brain/raylib-go/raylib"
)

// floorWorld is one layer of solid cells at y = -1 over x, z in [-5, 4],
// so the walkable surface is y = 0.
func floorWorld() *occupancy.WorldOccupancy {
	return occupancy.FromRegion(occupancy.Cell{X: -5, Y: -1, Z: -5}, occupancy.Cell{X: 4, Y: -1, Z: 4}, func(x, y, z int32) bool {
		return true
	})
}

type failingNarrowPhase struct{}

func (failingNarrowPhase) TerrainContacts(*occupancy.WorldOccupancy, []occupancy.FragmentPose) ([]occupancy.CollisionResult, error) {
	return nil, errors.New("device lost")
}

func TestStepFixedCount(t *testing.T) {
	cfg := DefaultConfig()
	world := NewPhysicsWorld(nil, cfg)

	if n := world.Step(1.0 / 30.0); n != 2 {
		t.Errorf("Expected 2 steps, got %d", n)
	}
	if n := world.Step(1.0 / 120.0); n != 0 {
		t.Errorf("Expected 0 steps for half a timestep, got %d", n)
	}
	if n := world.Step(1.0 / 120.0); n != 1 {
		t.Errorf("Expected leftover time to carry over, got %d steps", n)
	}

	world = NewPhysicsWorld(nil, cfg)
	if n := world.Step(1.0); n != cfg.MaxStepsPerFrame {
		t.Errorf("Expected step cap %d, got %d", cfg.MaxStepsPerFrame, n)
	}
}

func TestDeterministicAcrossFrameRates(t *testing.T) {
	build := func() (*PhysicsWorld, []BodyHandle) {
		world := NewPhysicsWorld(floorWorld(), DefaultConfig())
		handles := []BodyHandle{
			world.AddBody(NewDynamicBox(rl.Vector3{X: 0.5, Y: 4, Z: 0.5}, rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5})),
			world.AddBody(NewDynamicBox(rl.Vector3{X: 0.9, Y: 6, Z: 0.2}, rl.Vector3{X: 1, Y: 0.5, Z: 0.5})),
			world.AddBody(NewPlayerBody(rl.Vector3{X: -3, Y: 2, Z: -3})),
		}
		return world, handles
	}

	a, ha := build()
	b, hb := build()

	stepsA, stepsB := 0, 0
	for i := 0; i < 30; i++ {
		stepsA += a.Step(1.0 / 30.0)
	}
	for i := 0; i < 120; i++ {
		stepsB += b.Step(1.0 / 120.0)
	}
	if stepsA != stepsB {
		t.Fatalf("Expected equal step counts, got %d and %d", stepsA, stepsB)
	}

	for i := range ha {
		pa, qa, _ := a.Transform(ha[i])
		pb, qb, _ := b.Transform(hb[i])
		if pa != pb || qa != qb {
			t.Errorf("Body %d diverged: %v %v vs %v %v", i, pa, qa, pb, qb)
		}
	}
}

func TestSingleFragmentSettlesOnFloor(t *testing.T) {
	const dropY = 10
	world := NewPhysicsWorld(floorWorld(), DefaultConfig())
	h := world.AddBody(NewDynamicBox(rl.Vector3{X: 0.5, Y: dropY, Z: 0.5}, rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5}))

	firstContact := -1
	prevY := float32(dropY)
	minY, reboundY := float32(dropY), float32(-1e9)
	var deepest float32
	for i := 0; i < 600; i++ {
		world.StepFixed()
		pos, _, _ := world.Transform(h)
		deepest = max(deepest, world.MaxPenetration())
		minY = min(minY, pos.Y)

		if firstContact < 0 && world.MaxPenetration() > 0 {
			firstContact = i
		}
		if firstContact < 0 {
			if pos.Y >= prevY {
				t.Fatalf("Expected a monotonic fall before contact, y went %v -> %v at step %d", prevY, pos.Y, i)
			}
		} else {
			reboundY = max(reboundY, pos.Y)
		}
		prevY = pos.Y
	}

	if firstContact < 0 {
		t.Fatal("Expected the fragment to reach the floor")
	}
	if deepest > 0.35 || minY < 0.15 {
		t.Errorf("Expected bounded penetration, deepest %v at y = %v", deepest, minY)
	}
	if reboundY >= dropY/2 {
		t.Errorf("Expected the rebound to lose energy, rose back to %v", reboundY)
	}

	pos, _, _ := world.Transform(h)
	if math32.Abs(pos.Y-0.5) > 0.1 {
		t.Errorf("Expected rest height near 0.5, got %v", pos.Y)
	}
	if !world.IsGrounded(h) {
		b, _ := world.Body(h)
		if !b.Settled {
			t.Error("Expected resting body to be grounded or settled")
		}
	}
}

func TestLFragmentRestsFlat(t *testing.T) {
	// An L of three cells; its center of mass is off the box center
	frag := occupancy.NewFragment(2, 1, 2)
	frag.Set(0, 0, 0, true)
	frag.Set(1, 0, 0, true)
	frag.Set(0, 0, 1, true)
	world := NewPhysicsWorld(floorWorld(), DefaultConfig())
	h := world.AddBody(NewDynamicBody(frag, rl.Vector3{X: 1, Y: 2, Z: 1}, rl.QuaternionIdentity(), rl.Vector3{}))

	b, _ := world.Body(h)
	if com := rl.Vector3Subtract(b.CenterOfMass(), b.Position); !nearVec(com, rl.Vector3{X: -1.0 / 6, Z: -1.0 / 6}, 1e-5) {
		t.Errorf("Expected center of mass offset (-1/6, 0, -1/6), got %v", com)
	}
	if !near(b.Inertia, 11.0/6, 1e-5) {
		t.Errorf("Expected inertia 11/6 about the center of mass, got %v", b.Inertia)
	}

	for i := 0; i < 600; i++ {
		world.StepFixed()
	}

	_, rot, _ := world.Transform(h)
	up := rl.Vector3RotateByQuaternion(rl.Vector3{Y: 1}, rot)
	if up.Y < 0.999 {
		t.Errorf("Expected the L to rest flat, up = %v", up)
	}
	pos, _, _ := world.Transform(h)
	if math32.Abs(pos.Y-0.5) > 0.1 {
		t.Errorf("Expected rest height near 0.5, got %v", pos.Y)
	}
}

func TestFragmentFallsThroughGap(t *testing.T) {
	occ := occupancy.FromRegion(occupancy.Cell{X: -5, Y: -1, Z: -5}, occupancy.Cell{X: 4, Y: -1, Z: 4}, func(x, y, z int32) bool {
		return !(x >= -1 && x <= 0 && z >= -1 && z <= 0)
	})
	world := NewPhysicsWorld(occ, DefaultConfig())
	h := world.AddBody(NewDynamicBox(rl.Vector3{Y: 3}, rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5}))

	for i := 0; i < 300; i++ {
		world.StepFixed()
	}

	pos, _, _ := world.Transform(h)
	if pos.Y > -5 {
		t.Errorf("Expected body to fall through the gap, got y = %v", pos.Y)
	}
}

func TestFragmentsPushApart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gravity = 0
	world := NewPhysicsWorld(nil, cfg)
	half := rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5}
	a := world.AddBody(NewDynamicBox(rl.Vector3{Y: 5}, half))
	b := world.AddBody(NewDynamicBox(rl.Vector3{X: 0.6, Y: 5}, half))

	for i := 0; i < 120; i++ {
		world.StepFixed()
	}

	pa, _, _ := world.Transform(a)
	pb, _, _ := world.Transform(b)
	if d := rl.Vector3Distance(pa, pb); d < 0.95 {
		t.Errorf("Expected fragments to separate, distance %v", d)
	}
	if mid := (pa.X + pb.X) / 2; math32.Abs(mid-0.3) > 1e-3 {
		t.Errorf("Expected momentum to be conserved, midpoint moved to %v", mid)
	}
	if pa.X >= pb.X {
		t.Errorf("Expected fragments to keep their order, got %v and %v", pa.X, pb.X)
	}
}

func TestFarFragmentsStillCollide(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gravity = 0
	world := NewPhysicsWorld(nil, cfg)
	half := rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5}
	// A cluster pulls the grid centroid well away from the overlapping pair
	for i := 0; i < 10; i++ {
		world.AddBody(NewDynamicBox(rl.Vector3{X: float32(3 * i), Y: 5}, half))
	}
	a := world.AddBody(NewDynamicBox(rl.Vector3{X: 100, Y: 5}, half))
	b := world.AddBody(NewDynamicBox(rl.Vector3{X: 100.6, Y: 5}, half))

	for i := 0; i < 120; i++ {
		world.StepFixed()
		if n := world.grid.Overflow(); n != 0 {
			t.Fatalf("Expected no particles dropped at step %d, got %d", i, n)
		}
	}

	pa, _, _ := world.Transform(a)
	pb, _, _ := world.Transform(b)
	if d := rl.Vector3Distance(pa, pb); d < 0.95 {
		t.Errorf("Expected the far pair to separate, distance %v", d)
	}
}

// bruteForcePairs is a PairNarrowPhase that finds terrain contacts with the
// CPU narrow phase and cell pairs by testing every cell against every other
// fragment's cells.
type bruteForcePairs struct {
	CPUNarrowPhase
	diameter float32
	silent   bool // find no pairs at all
	contacts []compute.FragmentContact
	calls    int
}

func (n *bruteForcePairs) TerrainContacts(occ *occupancy.WorldOccupancy, poses []occupancy.FragmentPose) ([]occupancy.CollisionResult, error) {
	n.calls++
	n.contacts = n.contacts[:0]
	type cell struct {
		id  int
		idx uint32
		pos rl.Vector3
	}
	var cells []cell
	for _, p := range poses {
		f := p.Fragment
		f.ForEachOccupied(func(x, y, z int32) {
			idx := uint32(x + y*f.SizeX + z*f.SizeX*f.SizeY)
			pos := rl.Vector3Add(p.Position, rl.Vector3RotateByQuaternion(f.LocalCenter(x, y, z), p.Rotation))
			cells = append(cells, cell{id: p.ID, idx: idx, pos: pos})
		})
	}
	for _, a := range cells {
		for _, b := range cells {
			if n.silent || a.id == b.id || rl.Vector3Distance(a.pos, b.pos) >= n.diameter {
				continue
			}
			n.contacts = append(n.contacts, compute.FragmentContact{A: a.id, B: b.id, VoxelA: a.idx, VoxelB: b.idx})
		}
	}
	return n.CPUNarrowPhase.TerrainContacts(occ, poses)
}

func (n *bruteForcePairs) FragmentContacts() []compute.FragmentContact {
	return n.contacts
}

func TestNarrowPhasePairsDriveFragmentContacts(t *testing.T) {
	run := func(np NarrowPhase) (rl.Vector3, rl.Vector3) {
		cfg := DefaultConfig()
		cfg.Gravity = 0
		world := NewPhysicsWorld(nil, cfg)
		if np != nil {
			world.SetNarrowPhase(np)
		}
		half := rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5}
		a := world.AddBody(NewDynamicBox(rl.Vector3{Y: 5}, half))
		b := world.AddBody(NewDynamicBox(rl.Vector3{X: 0.6, Y: 5.2}, rl.Vector3{X: 1, Y: 0.5, Z: 0.5}))
		for i := 0; i < 120; i++ {
			world.StepFixed()
		}
		pa, _, _ := world.Transform(a)
		pb, _, _ := world.Transform(b)
		return pa, pb
	}

	wantA, wantB := run(nil)
	pairs := &bruteForcePairs{diameter: 1}
	gotA, gotB := run(pairs)
	if pairs.calls == 0 {
		t.Fatal("Expected the pair narrow phase to run")
	}
	if !nearVec(gotA, wantA, 1e-3) || !nearVec(gotB, wantB, 1e-3) {
		t.Errorf("Expected narrow-phase pairs to match the grid path, got %v %v, want %v %v", gotA, gotB, wantA, wantB)
	}

	// Moving pairs come only from the narrow phase once it reports them
	silentA, silentB := run(&bruteForcePairs{diameter: 1, silent: true})
	if d := rl.Vector3Distance(silentA, rl.Vector3{Y: 5}); d > 1e-6 {
		t.Errorf("Expected no grid contact between moving fragments, a moved by %v", d)
	}
	if silentB != (rl.Vector3{X: 0.6, Y: 5.2}) {
		t.Errorf("Expected no grid contact between moving fragments, b moved to %v", silentB)
	}
}

func TestNarrowPhasePairsKeepRestingObstacles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gravity = 0
	world := NewPhysicsWorld(nil, cfg)
	world.SetNarrowPhase(&bruteForcePairs{diameter: 1})
	half := rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5}
	rest := world.AddBody(NewDynamicBox(rl.Vector3{Y: 5}, half))
	moving := world.AddBody(NewDynamicBox(rl.Vector3{X: 0.6, Y: 5}, half))
	b, _ := world.Body(rest)
	b.settle()

	for i := 0; i < 120; i++ {
		world.StepFixed()
	}

	pr, _, _ := world.Transform(rest)
	pm, _, _ := world.Transform(moving)
	if pr != (rl.Vector3{Y: 5}) {
		t.Errorf("Expected the settled fragment to stay put, got %v", pr)
	}
	if d := rl.Vector3Distance(pr, pm); d < 0.95 {
		t.Errorf("Expected the moving fragment to be pushed off the resting one, distance %v", d)
	}
}

func TestStackedFragmentsSettleApart(t *testing.T) {
	world := NewPhysicsWorld(floorWorld(), DefaultConfig())
	half := rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5}
	a := world.AddBody(NewDynamicBox(rl.Vector3{X: 0.5, Y: 3, Z: 0.5}, half))
	b := world.AddBody(NewDynamicBox(rl.Vector3{X: 0.5, Y: 5, Z: 0.5}, half))

	for i := 0; i < 900; i++ {
		world.StepFixed()
	}

	pa, _, _ := world.Transform(a)
	pb, _, _ := world.Transform(b)
	if d := rl.Vector3Distance(pa, pb); d < 0.9 {
		t.Errorf("Expected no steady-state interpenetration, distance %v", d)
	}
	if pa.Y < 0.3 || pb.Y < 0.3 {
		t.Errorf("Expected both above the floor, got %v and %v", pa.Y, pb.Y)
	}
	if len(world.SettledBodies()) != 2 {
		t.Errorf("Expected both fragments to settle, got %d", len(world.SettledBodies()))
	}
}

func TestKinematicStaysGroundedOnFloor(t *testing.T) {
	world := NewPhysicsWorld(floorWorld(), DefaultConfig())
	h := world.AddBody(NewPlayerBody(rl.Vector3{X: 1, Y: 0.9, Z: 0}))

	for i := 0; i < 60; i++ {
		world.StepFixed()
		if !world.IsGrounded(h) {
			t.Fatalf("Expected grounded at step %d", i)
		}
	}

	pos, _, _ := world.Transform(h)
	if !near(pos.Y, 0.9, 1e-3) {
		t.Errorf("Expected to stand at y = 0.9, got %v", pos.Y)
	}
	if n, ok := world.GroundNormal(h); !ok || n.Y < 0.7 {
		t.Errorf("Expected an upward ground normal, got %v", n)
	}
}

func TestKinematicWalksOnFloor(t *testing.T) {
	world := NewPhysicsWorld(floorWorld(), DefaultConfig())
	h := world.AddBody(NewPlayerBody(rl.Vector3{X: -2, Y: 0.9, Z: 0}))
	world.SetBodyInput(h, rl.Vector3{X: 1})

	for i := 0; i < 60; i++ {
		world.StepFixed()
		if !world.IsGrounded(h) {
			t.Fatalf("Expected grounded at step %d", i)
		}
	}

	pos, _, _ := world.Transform(h)
	if dx := pos.X + 2; dx < 0.9 || dx > 1.1 {
		t.Errorf("Expected to walk about 1 unit, got %v", dx)
	}
	if math32.Abs(pos.Z) > 1e-4 {
		t.Errorf("Expected no sideways drift, got z = %v", pos.Z)
	}
}

func TestKinematicBlockedByWall(t *testing.T) {
	occ := floorWorld()
	for y := int32(0); y < 3; y++ {
		for z := int32(-5); z < 5; z++ {
			occ.SetVoxel(3, y, z, true)
		}
	}
	world := NewPhysicsWorld(occ, DefaultConfig())
	h := world.AddBody(NewPlayerBody(rl.Vector3{X: 1, Y: 0.9, Z: 0}))
	if err := world.SetBodyInput(h, rl.Vector3{X: 5, Y: 100}); err != nil {
		t.Fatalf("SetBodyInput failed: %v", err)
	}

	for i := 0; i < 120; i++ {
		world.StepFixed()
		pos, _, _ := world.Transform(h)
		if pos.X+0.4 > 3+1e-3 {
			t.Fatalf("Body entered the wall at step %d: x = %v", i, pos.X)
		}
	}

	pos, _, _ := world.Transform(h)
	if pos.X < 2.5 {
		t.Errorf("Expected body to reach the wall, got x = %v", pos.X)
	}
	if !near(pos.Y, 0.9, 1e-3) {
		t.Errorf("Input Y should be ignored, got y = %v", pos.Y)
	}
}

func TestKinematicStopsInCorner(t *testing.T) {
	occ := floorWorld()
	for y := int32(0); y < 3; y++ {
		for i := int32(-5); i < 5; i++ {
			occ.SetVoxel(2, y, i, true)
			occ.SetVoxel(i, y, 2, true)
		}
	}
	world := NewPhysicsWorld(occ, DefaultConfig())
	h := world.AddBody(NewPlayerBody(rl.Vector3{X: 1, Y: 0.9, Z: 1}))
	world.SetBodyInput(h, rl.Vector3{X: 5, Z: 5})

	for i := 0; i < 60; i++ {
		world.StepFixed()
	}

	pos, _, _ := world.Transform(h)
	if pos.X+0.4 > 2+1e-3 || pos.Z+0.4 > 2+1e-3 {
		t.Errorf("Body entered the corner walls: %v", pos)
	}
	if pos.X < 1.5 || pos.Z < 1.5 {
		t.Errorf("Expected body to reach the corner, got %v", pos)
	}
	v, _ := world.Velocity(h)
	if v.X > 1e-4 || v.Z > 1e-4 {
		t.Errorf("Expected velocity into both walls removed, got %v", v)
	}
}

func TestKinematicJump(t *testing.T) {
	world := NewPhysicsWorld(floorWorld(), DefaultConfig())
	h := world.AddBody(NewPlayerBody(rl.Vector3{X: 1, Y: 0.9, Z: 0}))
	world.StepFixed()

	if err := world.Jump(h, 5); err != nil {
		t.Fatalf("Jump failed: %v", err)
	}
	world.StepFixed()
	v1, _ := world.Velocity(h)
	pos, _, _ := world.Transform(h)
	if v1.Y <= 0 || pos.Y <= 0.9 {
		t.Fatalf("Expected to leave the ground, got v = %v y = %v", v1.Y, pos.Y)
	}
	if world.IsGrounded(h) {
		t.Error("Expected airborne after jump")
	}

	// Mid-air jumps are ignored
	world.Jump(h, 5)
	world.StepFixed()
	v2, _ := world.Velocity(h)
	if v2.Y >= v1.Y {
		t.Errorf("Expected mid-air jump to be ignored, velocity went %v -> %v", v1.Y, v2.Y)
	}
}

func TestKinematicPushesFragment(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gravity = 0
	cfg.KinematicGravity = 0
	world := NewPhysicsWorld(nil, cfg)
	player := world.AddBody(NewKinematicBody(rl.Vector3{}, rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5}))
	frag := world.AddBody(NewDynamicBox(rl.Vector3{X: 0.9}, rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5}))

	for i := 0; i < 30; i++ {
		world.StepFixed()
	}

	pf, _, _ := world.Transform(frag)
	if pf.X <= 1.0 {
		t.Errorf("Expected fragment to be pushed away, got x = %v", pf.X)
	}
	pp, _, _ := world.Transform(player)
	if pp != (rl.Vector3{}) {
		t.Errorf("Kinematic body should not be pushed back, got %v", pp)
	}
}

func TestBodyHandles(t *testing.T) {
	world := NewPhysicsWorld(floorWorld(), DefaultConfig())
	player := world.AddBody(NewPlayerBody(rl.Vector3{Y: 2}))
	frag := world.AddBody(NewDynamicBox(rl.Vector3{Y: 5}, rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5}))

	if world.BodyCount() != 2 {
		t.Fatalf("Expected 2 bodies, got %d", world.BodyCount())
	}
	if err := world.SetBodyInput(frag, rl.Vector3{X: 1}); !errors.Is(err, ErrNotKinematic) {
		t.Errorf("Expected ErrNotKinematic, got %v", err)
	}
	if err := world.SetVelocity(player, rl.Vector3{}, rl.Vector3{}); !errors.Is(err, ErrNotDynamic) {
		t.Errorf("Expected ErrNotDynamic, got %v", err)
	}

	if err := world.RemoveBody(player); err != nil {
		t.Fatalf("RemoveBody failed: %v", err)
	}
	if _, ok := world.Body(player); ok {
		t.Error("Removed handle should not resolve")
	}
	if err := world.RemoveBody(player); !errors.Is(err, ErrBodyNotFound) {
		t.Errorf("Expected ErrBodyNotFound on double remove, got %v", err)
	}
	if err := world.Jump(player, 5); !errors.Is(err, ErrBodyNotFound) {
		t.Errorf("Expected ErrBodyNotFound, got %v", err)
	}
	if _, _, ok := world.Transform(player); ok {
		t.Error("Transform of a stale handle should report false")
	}
	if world.IsGrounded(player) {
		t.Error("Stale handle should not be grounded")
	}

	// The slot is reused, the old handle stays dead
	again := world.AddBody(NewPlayerBody(rl.Vector3{Y: 2}))
	if again.Index() != player.Index() {
		t.Errorf("Expected slot %d to be reused, got %d", player.Index(), again.Index())
	}
	if again == player {
		t.Error("Reused slot should carry a new generation")
	}
	if _, ok := world.Body(player); ok {
		t.Error("Old handle resolved to the new body")
	}
	if _, ok := world.Body(again); !ok {
		t.Error("New handle should resolve")
	}
	if len(world.Handles()) != 2 {
		t.Errorf("Expected 2 live handles, got %d", len(world.Handles()))
	}
}

func TestSettleAndMergeBack(t *testing.T) {
	occ := floorWorld()
	world := NewPhysicsWorld(occ, DefaultConfig())
	h := world.AddBody(NewDynamicBox(rl.Vector3{X: 0.5, Y: 2, Z: 0.5}, rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5}))

	for i := 0; i < 600; i++ {
		world.StepFixed()
	}

	settled := world.SettledBodies()
	if len(settled) != 1 || settled[0] != h {
		t.Fatalf("Expected body to settle, got %v", settled)
	}

	cells, err := world.MergeBack(h)
	if err != nil {
		t.Fatalf("MergeBack failed: %v", err)
	}
	if len(cells) != 1 || cells[0] != (occupancy.Cell{X: 0, Y: 0, Z: 0}) {
		t.Errorf("Expected merge into cell (0,0,0), got %v", cells)
	}
	if !occ.GetVoxel(0, 0, 0) {
		t.Error("Merged cell should be solid")
	}
	if world.BodyCount() != 0 {
		t.Errorf("Expected body removed after merge, got %d", world.BodyCount())
	}
	if _, err := world.MergeBack(h); !errors.Is(err, ErrBodyNotFound) {
		t.Errorf("Expected ErrBodyNotFound, got %v", err)
	}
}

func TestMaxActiveFragments(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxActiveFragments = 2
	world := NewPhysicsWorld(nil, cfg)
	half := rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5}

	oldest := world.AddBody(NewDynamicBox(rl.Vector3{X: -10, Y: 5}, half))
	world.AddBody(NewDynamicBox(rl.Vector3{Y: 5}, half))
	world.AddBody(NewDynamicBox(rl.Vector3{X: 10, Y: 5}, half))

	world.StepFixed()

	settled := world.SettledBodies()
	if len(settled) != 1 || settled[0] != oldest {
		t.Errorf("Expected only the oldest fragment settled, got %v", settled)
	}

	// A new spawn pushes the next oldest over the limit
	world.AddBody(NewDynamicBox(rl.Vector3{Z: 10, Y: 5}, half))
	world.StepFixed()
	if len(world.SettledBodies()) != 2 {
		t.Errorf("Expected 2 settled fragments, got %d", len(world.SettledBodies()))
	}
}

func TestNarrowPhaseFailure(t *testing.T) {
	run := func(fallback bool) float32 {
		world := NewPhysicsWorld(floorWorld(), DefaultConfig())
		world.SetNarrowPhase(failingNarrowPhase{})
		world.FallbackToCPU = fallback
		h := world.AddBody(NewDynamicBox(rl.Vector3{X: 0.5, Y: 2, Z: 0.5}, rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5}))
		for i := 0; i < 300; i++ {
			world.StepFixed()
		}
		pos, _, _ := world.Transform(h)
		return pos.Y
	}

	if y := run(true); y < 0 {
		t.Errorf("Expected CPU fallback to hold the body up, got y = %v", y)
	}
	if y := run(false); y > -1 {
		t.Errorf("Expected no contacts without fallback, got y = %v", y)
	}
}

func TestRaycastHitsBodyBeforeTerrain(t *testing.T) {
	world := NewPhysicsWorld(floorWorld(), DefaultConfig())
	h := world.AddBody(NewDynamicBox(rl.Vector3{X: 0.5, Y: 2, Z: 0.5}, rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5}))
	origin := rl.Vector3{X: 0.5, Y: 5, Z: 0.5}
	down := rl.Vector3{Y: -1}

	hit, ok := world.Raycast(origin, down, 10)
	if !ok || hit.Terrain || hit.Body != h {
		t.Fatalf("Expected to hit the fragment, got %+v", hit)
	}
	if !near(hit.Distance, 2.5, 1e-4) || !nearVec(hit.Normal, rl.Vector3{Y: 1}, 1e-4) {
		t.Errorf("Expected distance 2.5 with normal +Y, got %v %v", hit.Distance, hit.Normal)
	}

	world.RemoveBody(h)
	hit, ok = world.Raycast(origin, down, 10)
	if !ok || !hit.Terrain {
		t.Fatalf("Expected to hit terrain, got %+v", hit)
	}
	if !near(hit.Distance, 5, 1e-4) {
		t.Errorf("Expected distance 5, got %v", hit.Distance)
	}
}

func TestOBBBounds(t *testing.T) {
	half := rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5}
	o := NewOBB(rl.Vector3{}, half, rl.QuaternionFromAxisAngle(rl.Vector3{Y: 1}, math32.Pi/4))

	box := o.AABB()
	want := math32.Sqrt(2) / 2
	if !near(box.Max.X, want, 1e-4) || !near(box.Max.Y, 0.5, 1e-4) {
		t.Errorf("Expected rotated bounds %v x 0.5, got %v", want, box.Max)
	}

	if !o.IntersectsOBB(NewAABBasOBB(rl.Vector3{X: 1.1}, half)) {
		t.Error("Rotated corner should reach a box at x = 1.1")
	}
	if o.IntersectsOBB(NewAABBasOBB(rl.Vector3{X: 1.3}, half)) {
		t.Error("Box at x = 1.3 should be clear")
	}
}

func TestBodyMassProperties(t *testing.T) {
	b := NewDynamicBox(rl.Vector3{}, rl.Vector3{X: 1, Y: 0.5, Z: 0.5})

	if b.Mass != 2 {
		t.Errorf("Expected mass 2, got %v", b.Mass)
	}
	if len(b.Particles()) != 2 {
		t.Errorf("Expected 2 particles, got %d", len(b.Particles()))
	}
	if b.Inertia <= 0 {
		t.Errorf("Expected positive inertia, got %v", b.Inertia)
	}

	version := b.FragmentVersion()
	b.SetFragment(occupancy.NewSolidFragment(1, 1, 1))
	if b.FragmentVersion() == version {
		t.Error("Replacing the fragment should change its version")
	}
}

func TestSetConfig(t *testing.T) {
	p := NewPhysicsWorld(nil, DefaultConfig())

	bad := DefaultConfig()
	bad.FixedTimestep = 0
	if err := p.SetConfig(bad); err == nil {
		t.Error("Expected invalid config to be rejected")
	}
	if p.Config().FixedTimestep != DefaultConfig().FixedTimestep {
		t.Error("Rejected config should not be applied")
	}

	cfg := DefaultConfig()
	cfg.Gravity = 3
	cfg.GridDims = 32
	if err := p.SetConfig(cfg); err != nil {
		t.Fatalf("SetConfig failed: %v", err)
	}
	if p.Config().Gravity != 3 {
		t.Errorf("Expected gravity 3, got %v", p.Config().Gravity)
	}
	if p.grid.Dims != 32 {
		t.Errorf("Expected grid rebuilt with 32 dims, got %d", p.grid.Dims)
	}
}
