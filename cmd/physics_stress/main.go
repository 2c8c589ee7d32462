// Stress test comparing CPU vs GPU voxel narrow phase
package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/OptimusLime/creature-3d-studio-sub000/internal/compute"
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/physics"
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/world"

	rl "github.com/gen2brain/raylib-go/raylib"
)

func main() {
	// Initialize compute
	info, err := compute.Initialize()
	if err != nil {
		panic(fmt.Sprintf("Failed to init compute: %v", err))
	}
	fmt.Printf("GPU: %s | %s | %s\n\n", info.Backend, info.Vendor, info.Name)

	occ := world.GenerateTerrain(42)
	fmt.Printf("Terrain: %d chunks, %d cells\n\n", occ.ChunkCount(), occ.TotalOccupied())

	// Test various fragment counts
	testCounts := []int{8, 32, 128, 256, 512, 1024}

	fmt.Println("Narrow phase only:")
	for _, count := range testCounts {
		testNarrowPhase(occ, count)
	}

	fmt.Println("\nFull step:")
	for _, count := range testCounts {
		testStep(occ, count)
	}
}

// randomPoses scatters fragments just above the terrain so most of them
// touch it.
func randomPoses(count int) []occupancy.FragmentPose {
	rng := rand.New(rand.NewSource(42)) // Consistent results
	poses := make([]occupancy.FragmentPose, count)
	for i := range poses {
		frag := occupancy.FragmentFromRegion(3, 3, 3, func(x, y, z int32) bool {
			return rng.Float32() > 0.3
		})
		axis := rl.Vector3Normalize(rl.Vector3{X: rng.Float32(), Y: 1, Z: rng.Float32()})
		poses[i] = occupancy.FragmentPose{
			ID:       i,
			Fragment: frag,
			Version:  1,
			Position: rl.Vector3{
				X: rng.Float32()*(2*world.TerrainHalfSize-6) - world.TerrainHalfSize + 3,
				Y: rng.Float32() * 4,
				Z: rng.Float32()*(2*world.TerrainHalfSize-6) - world.TerrainHalfSize + 3,
			},
			Rotation: rl.QuaternionFromAxisAngle(axis, rng.Float32()*3.14159),
		}
	}
	return poses
}

func contactCount(results []occupancy.CollisionResult) int {
	n := 0
	for i := range results {
		n += results[i].ContactCount()
	}
	return n
}

func testNarrowPhase(occ *occupancy.WorldOccupancy, count int) {
	poses := randomPoses(count)

	cfg := compute.DefaultVoxelCollisionConfig()
	vc, err := compute.NewVoxelCollision(cfg)
	if err != nil {
		fmt.Printf("%5d fragments: GPU ERROR: %v\n", count, err)
		return
	}
	defer vc.Release()

	// Warm up, this also uploads the chunks
	if _, err := vc.TerrainContacts(occ, poses); err != nil {
		fmt.Printf("%5d fragments: GPU ERROR: %v\n", count, err)
		return
	}

	// Time GPU
	const iterations = 10
	var gpuResults []occupancy.CollisionResult
	gpuStart := time.Now()
	for i := 0; i < iterations; i++ {
		gpuResults, _ = vc.TerrainContacts(occ, poses)
	}
	gpuTime := time.Since(gpuStart) / iterations

	// Time CPU
	var cpu physics.CPUNarrowPhase
	var cpuResults []occupancy.CollisionResult
	cpuStart := time.Now()
	for i := 0; i < iterations; i++ {
		cpuResults, _ = cpu.TerrainContacts(occ, poses)
	}
	cpuTime := time.Since(cpuStart) / iterations

	speedup := float64(cpuTime) / float64(gpuTime)

	fmt.Printf("%5d fragments: GPU %8v (%5d contacts, %3d pairs) | CPU %10v (%5d contacts) | %.1fx speedup\n",
		count, gpuTime.Round(time.Microsecond), contactCount(gpuResults), len(vc.FragmentPairs()),
		cpuTime.Round(time.Microsecond), contactCount(cpuResults), speedup)
}

func testStep(occ *occupancy.WorldOccupancy, count int) {
	poses := randomPoses(count)

	run := func(np physics.NarrowPhase) (time.Duration, int) {
		p := physics.NewPhysicsWorld(occ, physics.DefaultConfig())
		defer p.Release()
		if np != nil {
			p.SetNarrowPhase(np)
		} else if err := p.InitGPU(); err != nil {
			return 0, 0
		}
		for _, pose := range poses {
			p.AddBody(physics.NewDynamicBody(pose.Fragment, rl.Vector3Add(pose.Position, rl.Vector3{Y: 2}), pose.Rotation, rl.Vector3{}))
		}

		const steps = 30
		start := time.Now()
		for i := 0; i < steps; i++ {
			p.StepFixed()
		}
		return time.Since(start) / steps, len(p.SettledBodies())
	}

	cpuTime, cpuSettled := run(physics.CPUNarrowPhase{})
	gpuTime, gpuSettled := run(nil)
	if gpuTime == 0 {
		fmt.Printf("%5d fragments: GPU unavailable | CPU %10v/step\n", count, cpuTime.Round(time.Microsecond))
		return
	}

	fmt.Printf("%5d fragments: GPU %8v/step (%d settled) | CPU %10v/step (%d settled) | %.1fx speedup\n",
		count, gpuTime.Round(time.Microsecond), gpuSettled,
		cpuTime.Round(time.Microsecond), cpuSettled, float64(cpuTime)/float64(gpuTime))
}
