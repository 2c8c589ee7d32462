package physics

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/OptimusLime/creature-3d-studio-sub000/internal/compute"
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"

	rl "github.com/gen2brain/raylib-go/raylib"
)

var (
	ErrBodyNotFound = errors.New("physics: body not found")
	ErrNotKinematic = errors.New("physics: body is not kinematic")
	ErrNotDynamic   = errors.New("physics: body is not dynamic")
	ErrNoGPU        = errors.New("physics: GPU narrow phase unavailable")
)

// GPUNarrowPhaseThreshold is the minimum active fragment count before the GPU
// narrow phase is used. Below this, CheckFragment on the CPU is faster.
const GPUNarrowPhaseThreshold = 8

// minMoveSqr is the squared length below which a kinematic body stops
// iterating its move.
const minMoveSqr = 1e-8

// accumulatorEpsilon absorbs float64 rounding so that dt = k*fixed always
// yields exactly k steps.
const accumulatorEpsilon = 1e-7

// BodyHandle refers to one body. A handle stays valid until its body is
// removed; slots are recycled with a new generation so stale handles never
// resolve to a different body.
type BodyHandle struct {
	index      uint32
	generation uint32
}

func (h BodyHandle) Index() int {
	return int(h.index)
}

func (h BodyHandle) String() string {
	return fmt.Sprintf("body(%d/%d)", h.index, h.generation)
}

type bodySlot struct {
	body       *Body
	generation uint32
}

// PhysicsWorld owns the terrain occupancy and every body, and advances them
// on a fixed timestep.
type PhysicsWorld struct {
	cfg Config
	occ *occupancy.WorldOccupancy

	slots        []bodySlot
	free         []uint32
	spawnCounter uint64
	accumulator  float64
	steps        uint64

	grid *SpatialHashGrid

	// FallbackToCPU reruns the CPU narrow phase when the GPU one fails.
	// Otherwise the step proceeds with no terrain contacts.
	FallbackToCPU bool

	narrow      NarrowPhase // explicit override, nil selects automatically
	gpu         *compute.VoxelCollision
	useGPU      bool
	lastLogTime time.Time

	maxPenetration float32

	// Per-step scratch, reused to avoid allocation
	scratch stepScratch
}

// NewPhysicsWorld creates a world over occ. A nil occ starts with empty terrain.
func NewPhysicsWorld(occ *occupancy.WorldOccupancy, cfg Config) *PhysicsWorld {
	if occ == nil {
		occ = occupancy.NewWorld()
	}
	return &PhysicsWorld{
		cfg:           cfg,
		occ:           occ,
		grid:          NewSpatialHashGrid(cfg.Diameter, cfg.GridDims, cfg.GridCapacity),
		FallbackToCPU: true,
	}
}

// InitGPU initializes the GPU narrow phase. Call after compute.Initialize().
func (p *PhysicsWorld) InitGPU() error {
	if p.gpu != nil {
		return nil // Already initialized
	}
	cfg := compute.DefaultVoxelCollisionConfig()
	cfg.Diameter = p.cfg.Diameter
	cfg.CellSize = p.cfg.Diameter
	vc, err := compute.NewVoxelCollision(cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoGPU, err)
	}
	p.gpu = vc
	log.Printf("Physics: GPU narrow phase ready (threshold: %d fragments)", GPUNarrowPhaseThreshold)
	return nil
}

// SetGPUAsync switches GPU readback to the one-frame-latency mode.
func (p *PhysicsWorld) SetGPUAsync(async bool) error {
	if p.gpu == nil {
		return ErrNoGPU
	}
	p.gpu.SetAsync(async)
	return nil
}

// UsingGPU reports whether the last step ran its narrow phase on the GPU.
func (p *PhysicsWorld) UsingGPU() bool {
	return p.useGPU
}

// SetNarrowPhase forces every step to use np. Nil restores automatic
// CPU/GPU selection.
func (p *PhysicsWorld) SetNarrowPhase(np NarrowPhase) {
	p.narrow = np
}

// Release frees GPU resources.
func (p *PhysicsWorld) Release() {
	if p.gpu != nil {
		p.gpu.Release()
		p.gpu = nil
	}
	p.useGPU = false
}

func (p *PhysicsWorld) Occupancy() *occupancy.WorldOccupancy {
	return p.occ
}

func (p *PhysicsWorld) Config() Config {
	return p.cfg
}

// SetConfig swaps the tunables between steps. The broad-phase grid is
// rebuilt when its shape changes.
func (p *PhysicsWorld) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Diameter != p.cfg.Diameter || cfg.GridDims != p.cfg.GridDims || cfg.GridCapacity != p.cfg.GridCapacity {
		p.grid = NewSpatialHashGrid(cfg.Diameter, cfg.GridDims, cfg.GridCapacity)
	}
	if p.gpu != nil && cfg.Diameter != p.cfg.Diameter {
		p.gpu.SetParticleDiameter(cfg.Diameter)
	}
	p.cfg = cfg
	return nil
}

// MaxPenetration returns the deepest terrain contact of the last step.
func (p *PhysicsWorld) MaxPenetration() float32 {
	return p.maxPenetration
}

// StepCount returns the number of fixed steps taken so far.
func (p *PhysicsWorld) StepCount() uint64 {
	return p.steps
}

// AddBody takes ownership of b and returns its handle.
func (p *PhysicsWorld) AddBody(b *Body) BodyHandle {
	p.spawnCounter++
	b.spawnOrder = p.spawnCounter
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		p.slots[idx].body = b
		return BodyHandle{index: idx, generation: p.slots[idx].generation}
	}
	p.slots = append(p.slots, bodySlot{body: b, generation: 1})
	return BodyHandle{index: uint32(len(p.slots) - 1), generation: 1}
}

// RemoveBody deletes a body. Its handle, and any copy of it, becomes stale.
func (p *PhysicsWorld) RemoveBody(h BodyHandle) error {
	if _, ok := p.Body(h); !ok {
		return ErrBodyNotFound
	}
	slot := &p.slots[h.index]
	slot.body = nil
	slot.generation++
	p.free = append(p.free, h.index)
	return nil
}

// Body resolves a handle. Stale and unknown handles report false.
func (p *PhysicsWorld) Body(h BodyHandle) (*Body, bool) {
	if int(h.index) >= len(p.slots) {
		return nil, false
	}
	slot := p.slots[h.index]
	if slot.body == nil || slot.generation != h.generation {
		return nil, false
	}
	return slot.body, true
}

// Handles returns the handles of all live bodies in slot order.
func (p *PhysicsWorld) Handles() []BodyHandle {
	out := make([]BodyHandle, 0, p.BodyCount())
	for i, slot := range p.slots {
		if slot.body != nil {
			out = append(out, BodyHandle{index: uint32(i), generation: slot.generation})
		}
	}
	return out
}

func (p *PhysicsWorld) BodyCount() int {
	return len(p.slots) - len(p.free)
}

// Transform returns a body's position and rotation.
func (p *PhysicsWorld) Transform(h BodyHandle) (rl.Vector3, rl.Quaternion, bool) {
	b, ok := p.Body(h)
	if !ok {
		return rl.Vector3{}, rl.Quaternion{}, false
	}
	return b.Position, b.Rotation, true
}

func (p *PhysicsWorld) Velocity(h BodyHandle) (rl.Vector3, bool) {
	b, ok := p.Body(h)
	if !ok {
		return rl.Vector3{}, false
	}
	return b.Velocity, true
}

// IsGrounded reports false for unknown handles.
func (p *PhysicsWorld) IsGrounded(h BodyHandle) bool {
	b, ok := p.Body(h)
	return ok && b.Grounded
}

// GroundNormal returns the floor normal of a grounded body.
func (p *PhysicsWorld) GroundNormal(h BodyHandle) (rl.Vector3, bool) {
	b, ok := p.Body(h)
	if !ok || !b.Grounded {
		return rl.Vector3{}, false
	}
	return b.GroundNormal, true
}

// SetBodyInput sets a kinematic body's desired horizontal velocity. The Y
// component is ignored.
func (p *PhysicsWorld) SetBodyInput(h BodyHandle, v rl.Vector3) error {
	b, ok := p.Body(h)
	if !ok {
		return ErrBodyNotFound
	}
	if b.Kind != Kinematic {
		return ErrNotKinematic
	}
	b.InputVelocity = rl.Vector3{X: v.X, Z: v.Z}
	return nil
}

// Jump requests an upward launch on the next step. It is dropped silently
// if the body is not grounded when that step runs.
func (p *PhysicsWorld) Jump(h BodyHandle, speed float32) error {
	b, ok := p.Body(h)
	if !ok {
		return ErrBodyNotFound
	}
	if b.Kind != Kinematic {
		return ErrNotKinematic
	}
	b.jumpSpeed = speed
	return nil
}

// SetVelocity overwrites a dynamic body's linear and angular velocity and
// wakes it if settled.
func (p *PhysicsWorld) SetVelocity(h BodyHandle, linear, angular rl.Vector3) error {
	b, ok := p.Body(h)
	if !ok {
		return ErrBodyNotFound
	}
	if b.Kind != Dynamic {
		return ErrNotDynamic
	}
	b.Velocity = linear
	b.AngularVelocity = angular
	b.Settled = false
	b.settleFrames = 0
	return nil
}

// Step advances by dt seconds of wall time using the fixed timestep, taking
// at most MaxStepsPerFrame steps. Leftover time carries to the next call. It
// returns the number of fixed steps taken.
func (p *PhysicsWorld) Step(dt float64) int {
	if dt > 0 {
		p.accumulator += dt
	}
	fixed := p.cfg.FixedTimestep
	steps := 0
	for p.accumulator+accumulatorEpsilon >= fixed && steps < p.cfg.MaxStepsPerFrame {
		p.StepFixed()
		p.accumulator -= fixed
		steps++
	}
	if p.accumulator < 0 {
		p.accumulator = 0
	}
	return steps
}

// StepFixed advances exactly one fixed timestep.
func (p *PhysicsWorld) StepFixed() {
	dt := float32(p.cfg.FixedTimestep)
	p.steps++

	// 1. Keep the active fragment count bounded
	p.enforceFragmentLimit()

	// 2. Kinematic bodies move first so fragments see their new positions
	for _, slot := range p.slots {
		if slot.body != nil && slot.body.Kind == Kinematic {
			p.moveKinematic(slot.body, dt)
		}
	}

	// 3. Fragments
	p.stepDynamic(dt)
}

// narrowPhase picks the implementation for n active fragments.
func (p *PhysicsWorld) narrowPhase(n int) NarrowPhase {
	if p.narrow != nil {
		return p.narrow
	}
	wasUsingGPU := p.useGPU
	p.useGPU = p.gpu != nil && n >= GPUNarrowPhaseThreshold

	// Log when GPU kicks in or out
	if p.useGPU && !wasUsingGPU {
		log.Printf("Physics: GPU narrow phase ON (%d fragments)", n)
	} else if !p.useGPU && wasUsingGPU {
		log.Printf("Physics: GPU narrow phase OFF (%d fragments)", n)
	}
	if p.useGPU {
		return p.gpu
	}
	return CPUNarrowPhase{}
}

// terrainContacts runs the narrow phase, falling back to the CPU (or to no
// contacts) if it fails. The pair finder is returned only when its results
// were used.
func (p *PhysicsWorld) terrainContacts(poses []occupancy.FragmentPose) ([]occupancy.CollisionResult, PairNarrowPhase) {
	np := p.narrowPhase(len(poses))
	results, err := np.TerrainContacts(p.occ, poses)
	if err == nil && len(results) != len(poses) {
		err = fmt.Errorf("narrow phase returned %d results for %d fragments", len(results), len(poses))
	}
	if err == nil {
		pairs, _ := np.(PairNarrowPhase)
		return results, pairs
	}

	// Rate-limit failure logs to once per second
	if time.Since(p.lastLogTime) >= time.Second {
		p.lastLogTime = time.Now()
		log.Printf("Physics: narrow phase failed (cpu fallback: %v): %v", p.FallbackToCPU, err)
	}
	if p.FallbackToCPU {
		results, _ = CPUNarrowPhase{}.TerrainContacts(p.occ, poses)
		return results, nil
	}
	return make([]occupancy.CollisionResult, len(poses)), nil
}

// broadPhase refills the particle grid with the particles include selects,
// around their centroid.
func (p *PhysicsWorld) broadPhase(positions []rl.Vector3, include func(i int) bool) {
	s := &p.scratch
	s.ids = s.ids[:0]
	s.gridPos = s.gridPos[:0]
	var center rl.Vector3
	for i, pos := range positions {
		if !include(i) {
			continue
		}
		s.ids = append(s.ids, int32(i))
		s.gridPos = append(s.gridPos, pos)
		center = rl.Vector3Add(center, pos)
	}

	p.grid.Clear()
	if len(s.ids) == 0 {
		return
	}
	p.grid.Recenter(rl.Vector3Scale(center, 1/float32(len(s.ids))))
	if err := p.grid.InsertAll(context.Background(), s.ids, s.gridPos, p.cfg.BroadPhaseLanes); err != nil {
		log.Printf("Physics: broad phase insert failed: %v", err)
	}
	if n := p.grid.Overflow(); n > 0 && time.Since(p.lastLogTime) >= time.Second {
		p.lastLogTime = time.Now()
		log.Printf("Physics: %d particles dropped from full broad-phase cells", n)
	}
}
