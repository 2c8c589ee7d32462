// GPU voxel narrow phase check - compares every contact against the CPU path
package main

import (
	"fmt"
	"os"

	"github.com/OptimusLime/creature-3d-studio-sub000/internal/compute"
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/physics"
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/world"

	"github.com/chewxy/math32"
	rl "github.com/gen2brain/raylib-go/raylib"
)

const tolerance = 1e-4

func main() {
	info, err := compute.Initialize()
	if err != nil {
		panic(fmt.Sprintf("Failed to init compute: %v", err))
	}
	fmt.Printf("Using GPU: %s (%s)\n", info.Name, info.Backend)

	vc, err := compute.NewVoxelCollision(compute.DefaultVoxelCollisionConfig())
	if err != nil {
		panic(fmt.Sprintf("Failed to create narrow phase: %v", err))
	}
	defer vc.Release()

	occ := world.GenerateTerrain(7)

	// A solid cube resting on the ground, a tilted plank half sunk into it,
	// and two fragments overlapping each other in the air
	cube := occupancy.FragmentFromRegion(2, 2, 2, func(x, y, z int32) bool { return true })
	plank := occupancy.FragmentFromRegion(4, 1, 2, func(x, y, z int32) bool { return true })
	ground := float32(groundHeight(occ, 3, 3))
	poses := []occupancy.FragmentPose{
		{ID: 0, Fragment: cube, Version: 1, Position: rl.Vector3{X: 4, Y: ground + 0.9, Z: 4}, Rotation: rl.QuaternionIdentity()},
		{ID: 1, Fragment: plank, Version: 1, Position: rl.Vector3{X: -6, Y: float32(groundHeight(occ, -6, -6)), Z: -6},
			Rotation: rl.QuaternionFromAxisAngle(rl.Vector3{Z: 1}, 0.4)},
		{ID: 2, Fragment: cube, Version: 1, Position: rl.Vector3{X: 0, Y: 30, Z: 0}, Rotation: rl.QuaternionIdentity()},
		{ID: 3, Fragment: cube, Version: 1, Position: rl.Vector3{X: 0.5, Y: 30.2, Z: 0}, Rotation: rl.QuaternionIdentity()},
	}

	gpu, err := vc.TerrainContacts(occ, poses)
	if err != nil {
		panic(fmt.Sprintf("GPU narrow phase failed: %v", err))
	}
	cpu, _ := physics.CPUNarrowPhase{}.TerrainContacts(occ, poses)

	failed := false
	for i := range poses {
		g, c := gpu[i].Contacts, cpu[i].Contacts
		fmt.Printf("Fragment %d: GPU %d contacts, CPU %d contacts\n", i, len(g), len(c))
		if len(g) != len(c) {
			failed = true
			continue
		}
		for k := range g {
			if !sameContact(g[k], c[k]) {
				fmt.Printf("  contact %d differs:\n    GPU %+v\n    CPU %+v\n", k, g[k], c[k])
				failed = true
			}
		}
	}

	fmt.Printf("Fragment pairs: %v\n", vc.FragmentPairs())
	fmt.Printf("Resident chunks: %d\n", vc.ResidentChunks())

	if failed {
		fmt.Println("GPU and CPU narrow phases disagree")
		os.Exit(1)
	}
	fmt.Println("GPU and CPU narrow phases agree")
}

func groundHeight(occ *occupancy.WorldOccupancy, x, z int32) int32 {
	for y := int32(16); y >= -4; y-- {
		if occ.GetVoxel(x, y, z) {
			return y + 1
		}
	}
	return 0
}

func sameContact(a, b occupancy.Contact) bool {
	return a.Cell == b.Cell &&
		near(a.Penetration, b.Penetration) &&
		nearVec(a.Normal, b.Normal) &&
		nearVec(a.Position, b.Position) &&
		nearVec(a.Source, b.Source)
}

func near(a, b float32) bool {
	return math32.Abs(a-b) <= tolerance
}

func nearVec(a, b rl.Vector3) bool {
	return near(a.X, b.X) && near(a.Y, b.Y) && near(a.Z, b.Z)
}
