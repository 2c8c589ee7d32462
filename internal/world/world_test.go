package world

import (
	"testing"

	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/physics"

	rl "github.com/gen2brain/raylib-go/raylib"
)

func TestGenerateTerrainDeterministic(t *testing.T) {
	a := GenerateTerrain(7)
	b := GenerateTerrain(7)

	if a.TotalOccupied() != b.TotalOccupied() {
		t.Errorf("Expected equal terrain for equal seeds, got %d and %d cells", a.TotalOccupied(), b.TotalOccupied())
	}
	if !a.GetVoxel(0, -4, 0) {
		t.Error("Expected bedrock at y=-4")
	}
	if a.GetVoxel(0, 16, 0) {
		t.Error("Expected air at the top of the region")
	}
}

func TestNewPlacesPlayerAboveGround(t *testing.T) {
	w := New(physics.DefaultConfig(), 3)
	defer w.Unload()

	pos, _, ok := w.Physics.Transform(w.Player)
	if !ok {
		t.Fatal("Player body missing")
	}
	ground := w.surfaceHeight(0, 0)
	if pos.Y != ground+1 {
		t.Errorf("Expected player at y=%v, got %v", ground+1, pos.Y)
	}
	if w.Physics.BodyCount() != 1 {
		t.Errorf("Expected 1 body, got %d", w.Physics.BodyCount())
	}
}

func TestCarveAndMergeSettled(t *testing.T) {
	w := New(physics.DefaultConfig(), 3)
	defer w.Unload()

	top := int32(w.surfaceHeight(5, 5)) - 1
	cell := occupancy.Cell{X: 5, Y: top, Z: 5}
	if !w.Occ.GetVoxel(cell.X, cell.Y, cell.Z) {
		t.Fatalf("Expected solid surface cell at %v", cell)
	}

	h, err := w.Carve(cell, 0, rl.Vector3{})
	if err != nil {
		t.Fatalf("Carve failed: %v", err)
	}
	if w.Occ.GetVoxel(cell.X, cell.Y, cell.Z) {
		t.Error("Carved cell should be empty")
	}
	b, ok := w.Physics.Body(h)
	if !ok {
		t.Fatal("Carved fragment body missing")
	}
	if b.Position != occupancy.CellCenter(cell) {
		t.Errorf("Expected fragment at %v, got %v", occupancy.CellCenter(cell), b.Position)
	}

	b.Settled = true
	if n := w.MergeSettled(); n != 1 {
		t.Errorf("Expected 1 merged fragment, got %d", n)
	}
	if !w.Occ.GetVoxel(cell.X, cell.Y, cell.Z) {
		t.Error("Merged cell should be solid again")
	}
	if _, ok := w.Physics.Body(h); ok {
		t.Error("Merged body should be removed")
	}
}

func TestCarveEmptyRegion(t *testing.T) {
	w := New(physics.DefaultConfig(), 3)
	defer w.Unload()

	if _, err := w.Carve(occupancy.Cell{X: 0, Y: 15, Z: 0}, 0, rl.Vector3{}); err == nil {
		t.Error("Expected an error carving air")
	}
}

func TestAxisAngle(t *testing.T) {
	axis, angle := axisAngle(rl.QuaternionIdentity())
	if angle != 0 || axis.Y != 1 {
		t.Errorf("Expected zero rotation about +Y, got %v about %v", angle, axis)
	}
}
