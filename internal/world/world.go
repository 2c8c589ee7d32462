package world

import (
	"fmt"
	"log"
	"math"
	"math/rand"

	"github.com/OptimusLime/creature-3d-studio-sub000/internal/compute"
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/physics"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// TerrainHalfSize is half the terrain width in cells.
const TerrainHalfSize = 24

// World is the sandbox scene: voxel terrain, the physics world over it and
// the player body.
type World struct {
	Occ     *occupancy.WorldOccupancy
	Physics *physics.PhysicsWorld
	Player  physics.BodyHandle

	colors  map[physics.BodyHandle]rl.Color
	surface map[occupancy.ChunkCoord]*chunkSurface
	rng     *rand.Rand
	spawned int
}

var fragmentColors = []rl.Color{
	rl.Red, rl.Blue, rl.Green, rl.Purple, rl.Orange,
	rl.Yellow, rl.Pink, rl.SkyBlue, rl.Lime, rl.Magenta,
}

func New(cfg physics.Config, seed int64) *World {
	occ := GenerateTerrain(seed)
	w := &World{
		Occ:     occ,
		Physics: physics.NewPhysicsWorld(occ, cfg),
		colors:  make(map[physics.BodyHandle]rl.Color),
		surface: make(map[occupancy.ChunkCoord]*chunkSurface),
		rng:     rand.New(rand.NewSource(seed)),
	}
	w.Player = w.Physics.AddBody(physics.NewPlayerBody(rl.Vector3{X: 0.5, Y: w.surfaceHeight(0, 0) + 1, Z: 0.5}))
	return w
}

// GenerateTerrain builds rolling hills with a few pillars to knock apart.
func GenerateTerrain(seed int64) *occupancy.WorldOccupancy {
	rng := rand.New(rand.NewSource(seed))
	type pillar struct{ x, z, h int32 }
	pillars := make([]pillar, 6)
	for i := range pillars {
		pillars[i] = pillar{
			x: int32(rng.Intn(2*TerrainHalfSize-8)) - TerrainHalfSize + 4,
			z: int32(rng.Intn(2*TerrainHalfSize-8)) - TerrainHalfSize + 4,
			h: int32(4 + rng.Intn(6)),
		}
	}

	min := occupancy.Cell{X: -TerrainHalfSize, Y: -4, Z: -TerrainHalfSize}
	max := occupancy.Cell{X: TerrainHalfSize - 1, Y: 16, Z: TerrainHalfSize - 1}
	return occupancy.FromRegion(min, max, func(x, y, z int32) bool {
		if y < heightAt(x, z) {
			return true
		}
		for _, p := range pillars {
			if x >= p.x && x < p.x+2 && z >= p.z && z < p.z+2 && y < heightAt(p.x, p.z)+p.h {
				return true
			}
		}
		return false
	})
}

func heightAt(x, z int32) int32 {
	h := 1.5*math.Sin(float64(x)*0.25) + 1.5*math.Cos(float64(z)*0.2)
	return int32(math.Floor(h))
}

func (w *World) surfaceHeight(x, z int32) float32 {
	for y := int32(16); y >= -4; y-- {
		if w.Occ.GetVoxel(x, y, z) {
			return float32(y + 1)
		}
	}
	return 0
}

// InitCompute brings up the GPU narrow phase where the platform allows it.
func (w *World) InitCompute(force, async bool) {
	w.initializeCompute(force, async)
}

func (w *World) startCompute(async bool) {
	info, err := compute.Initialize()
	if err != nil {
		log.Printf("Compute shaders unavailable: %v", err)
		return
	}
	log.Printf("Compute: %s | %s | %s | %s", info.Backend, info.Vendor, info.Name, info.DeviceType)
	if err := w.Physics.InitGPU(); err != nil {
		log.Printf("Compute: narrow phase unavailable: %v", err)
		return
	}
	if err := w.Physics.SetGPUAsync(async); err != nil {
		log.Printf("Compute: %v", err)
	}
}

// SpawnFragment drops a random solid-ish fragment at pos.
func (w *World) SpawnFragment(pos, velocity rl.Vector3) physics.BodyHandle {
	sx := int32(1 + w.rng.Intn(3))
	sy := int32(1 + w.rng.Intn(3))
	sz := int32(1 + w.rng.Intn(3))
	frag := occupancy.FragmentFromRegion(sx, sy, sz, func(x, y, z int32) bool {
		return w.rng.Float32() > 0.2
	})
	if frag.IsEmpty() {
		frag.Set(0, 0, 0, true)
	}
	rot := rl.QuaternionFromAxisAngle(rl.Vector3Normalize(rl.Vector3{X: w.rng.Float32(), Y: 1, Z: w.rng.Float32()}), w.rng.Float32()*math.Pi)
	return w.addFragment(physics.NewDynamicBody(frag, pos, rot, velocity))
}

func (w *World) addFragment(b *physics.Body) physics.BodyHandle {
	h := w.Physics.AddBody(b)
	w.colors[h] = fragmentColors[w.spawned%len(fragmentColors)]
	w.spawned++
	return h
}

// Carve cuts the solid cells within radius of center out of the terrain and
// turns them into one dynamic fragment.
func (w *World) Carve(center occupancy.Cell, radius int32, velocity rl.Vector3) (physics.BodyHandle, error) {
	size := 2*radius + 1
	origin := occupancy.Cell{X: center.X - radius, Y: center.Y - radius, Z: center.Z - radius}
	frag := occupancy.FragmentFromRegion(size, size, size, func(x, y, z int32) bool {
		return w.Occ.GetVoxel(origin.X+x, origin.Y+y, origin.Z+z)
	})
	if frag.IsEmpty() {
		return physics.BodyHandle{}, fmt.Errorf("nothing to carve at %v", center)
	}
	frag.ForEachOccupied(func(x, y, z int32) {
		w.Occ.SetVoxel(origin.X+x, origin.Y+y, origin.Z+z, false)
	})

	pos := rl.Vector3Add(occupancy.CellCenter(origin), rl.Vector3{X: float32(radius), Y: float32(radius), Z: float32(radius)})
	return w.addFragment(physics.NewDynamicBody(frag, pos, rl.QuaternionIdentity(), velocity)), nil
}

// MergeSettled stamps every settled fragment back into the terrain and
// returns how many were merged.
func (w *World) MergeSettled() int {
	merged := 0
	for _, h := range w.Physics.SettledBodies() {
		if _, err := w.Physics.MergeBack(h); err != nil {
			log.Printf("Physics: merge of %v failed: %v", h, err)
			continue
		}
		delete(w.colors, h)
		merged++
	}
	return merged
}

// Update advances physics by frame time and returns the sub-steps run.
func (w *World) Update(deltaTime float32) int {
	return w.Physics.Step(float64(deltaTime))
}

// Reset removes every fragment and respawns the player.
func (w *World) Reset() {
	for _, h := range w.Physics.Handles() {
		if h == w.Player {
			continue
		}
		w.Physics.RemoveBody(h)
		delete(w.colors, h)
	}
	if b, ok := w.Physics.Body(w.Player); ok {
		b.Position = rl.Vector3{X: 0.5, Y: w.surfaceHeight(0, 0) + 1, Z: 0.5}
		b.Velocity = rl.Vector3{}
	}
}

func (w *World) Unload() {
	w.Physics.Release()
}
