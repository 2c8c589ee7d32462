package compute

import (
	"cmp"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"

	"github.com/cogentcore/webgpu/wgpu"
	rl "github.com/gen2brain/raylib-go/raylib"
)

var (
	ErrTooManyChunks    = errors.New("compute: fragments touch more chunks than fit on the GPU")
	ErrTooManyFragments = errors.New("compute: too many fragments for one round")
	ErrFragmentsTooBig  = errors.New("compute: fragment data exceeds GPU buffers")
)

// VoxelCollisionConfig sizes the GPU buffers.
type VoxelCollisionConfig struct {
	MaxChunks        int
	MaxContacts      int
	MaxFragments     int
	MaxFragmentWords int
	MaxParticles     int
	GridDims         int
	GridCapacity     int
	CellSize         float32
	Diameter         float32
	// Async returns the previous round's contacts instead of waiting for
	// the current one.
	Async bool
}

func DefaultVoxelCollisionConfig() VoxelCollisionConfig {
	return VoxelCollisionConfig{
		MaxChunks:        MaxGPUChunks,
		MaxContacts:      MaxGPUContacts,
		MaxFragments:     MaxGPUFragments,
		MaxFragmentWords: MaxFragmentWords,
		MaxParticles:     MaxGPUParticles,
		GridDims:         HashGridDims,
		GridCapacity:     HashGridCapacity,
		CellSize:         HashGridCellSize,
		Diameter:         HashGridCellSize,
	}
}

// FragmentContact is a cell-level touch between two fragments, reported by
// pose ID and local cell index. Each touching pair appears once from each
// side.
type FragmentContact struct {
	A, B           int
	VoxelA, VoxelB uint32
	Contact        occupancy.Contact
}

type cachedFragment struct {
	frag    *occupancy.FragmentOccupancy
	version uint64
	offset  uint32
}

// round is one submitted narrow-phase dispatch and its pending readbacks.
type round struct {
	poses    []occupancy.FragmentPose
	count    *PendingRead
	contacts *PendingRead // nil until the count is known in sync mode
}

// VoxelCollision is the GPU narrow phase. It mirrors the terrain chunks the
// active fragments can reach and the fragments' bit sets, then tests every
// solid fragment cell against both on the GPU.
type VoxelCollision struct {
	system *System
	cfg    VoxelCollisionConfig

	clearGrid *Pipeline
	populate  *Pipeline
	narrow    *Pipeline

	chunkLayers  *Buffer
	chunkIndex   *Buffer
	fragmentBits *Buffer
	fragmentBuf  *Buffer
	contactBuf   *Buffer
	countBuf     *Buffer
	gridBuf      *Buffer
	particleBuf  *Buffer
	paramsBuf    *Buffer

	// Terrain residency
	occ        *occupancy.WorldOccupancy
	index      *ChunkIndex
	resident   map[occupancy.ChunkCoord]uint64
	indexDirty bool
	layer      []uint32

	// Fragment bit cache keyed by pose ID
	cache map[int]cachedFragment
	words []uint32

	fragData     []GpuFragmentData
	fragContacts []FragmentContact
	pending      *round
	lastLog      time.Time
}

// NewVoxelCollision compiles the narrow-phase pipelines and allocates the
// GPU buffers. compute.Initialize must have succeeded.
func NewVoxelCollision(cfg VoxelCollisionConfig) (*VoxelCollision, error) {
	sys := Get()
	if sys == nil {
		return nil, ErrNotInitialized
	}

	vc := &VoxelCollision{
		system:   sys,
		cfg:      cfg,
		index:    NewChunkIndex(cfg.MaxChunks),
		resident: make(map[occupancy.ChunkCoord]uint64),
		layer:    make([]uint32, ChunkLayerTexels),
		cache:    make(map[int]cachedFragment),
	}

	var err error
	if vc.clearGrid, err = sys.CreatePipeline("voxel_clear_grid", narrowPhaseShader, entryClearGrid, narrowPhaseBindings); err != nil {
		return nil, err
	}
	if vc.populate, err = sys.CreatePipeline("voxel_populate_grid", narrowPhaseShader, entryPopulateGrid, narrowPhaseBindings); err != nil {
		return nil, err
	}
	if vc.narrow, err = sys.CreatePipeline("voxel_narrow_phase", narrowPhaseShader, entryNarrowPhase, narrowPhaseBindings); err != nil {
		return nil, err
	}

	storage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
	readback := wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

	specs := []struct {
		dst   **Buffer
		label string
		size  int
		usage wgpu.BufferUsage
	}{
		{&vc.chunkLayers, "chunk_layers", cfg.MaxChunks * ChunkLayerTexels * 4, storage},
		{&vc.chunkIndex, "chunk_index", cfg.MaxChunks * 4 * 16, storage},
		{&vc.fragmentBits, "fragment_bits", cfg.MaxFragmentWords * 4, storage},
		{&vc.fragmentBuf, "fragments", cfg.MaxFragments * 64, storage},
		{&vc.contactBuf, "contacts", cfg.MaxContacts * 48, readback},
		{&vc.countBuf, "contact_count", 4, readback},
		{&vc.gridBuf, "hash_grid", int(vc.gridSlots()) * 4, storage},
		{&vc.particleBuf, "particles", cfg.MaxParticles * 16, storage},
		{&vc.paramsBuf, "params", 48, wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst},
	}
	for _, s := range specs {
		buf, err := sys.CreateBuffer(s.label, uint64(s.size), s.usage)
		if err != nil {
			vc.Release()
			return nil, err
		}
		*s.dst = buf
	}

	vc.indexDirty = true
	vc.SetAsync(cfg.Async)
	log.Printf("Compute: voxel narrow phase ready (%d chunks, %d contacts)", cfg.MaxChunks, cfg.MaxContacts)
	return vc, nil
}

// SetAsync switches between waiting for each round and consuming the
// previous round's results. Switching drops any round in flight.
func (vc *VoxelCollision) SetAsync(async bool) {
	vc.cfg.Async = async
	vc.discardPending()
}

// SetParticleDiameter sets the fragment-fragment contact distance. The hash
// grid cell follows it so neighbors stay within the 3x3x3 search.
func (vc *VoxelCollision) SetParticleDiameter(d float32) {
	vc.cfg.Diameter = d
	vc.cfg.CellSize = d
}

// Async reports whether results lag one round behind.
func (vc *VoxelCollision) Async() bool {
	return vc.cfg.Async
}

// FragmentContacts returns the fragment-fragment contacts of the round the
// last TerrainContacts call reported.
func (vc *VoxelCollision) FragmentContacts() []FragmentContact {
	return vc.fragContacts
}

// ResidentChunks returns how many terrain chunks are mirrored on the GPU.
func (vc *VoxelCollision) ResidentChunks() int {
	return vc.index.Len()
}

// TerrainContacts returns one CollisionResult per pose, in pose order.
func (vc *VoxelCollision) TerrainContacts(occ *occupancy.WorldOccupancy, poses []occupancy.FragmentPose) ([]occupancy.CollisionResult, error) {
	results := make([]occupancy.CollisionResult, len(poses))
	vc.fragContacts = vc.fragContacts[:0]
	if len(poses) == 0 {
		vc.discardPending()
		return results, nil
	}

	if !vc.cfg.Async {
		r, err := vc.submit(occ, poses)
		if err != nil {
			return nil, err
		}
		byID, err := vc.collect(r)
		if err != nil {
			return nil, err
		}
		fillResults(results, poses, byID)
		return results, nil
	}

	var byID map[int][]occupancy.Contact
	prev := vc.pending
	vc.pending = nil
	if prev != nil {
		var err error
		if byID, err = vc.collect(prev); err != nil {
			return nil, err
		}
		// Contacts only carry over to a pose whose fragment is unchanged
		stale := make(map[int]bool)
		for id, pose := range poseIndex(prev.poses) {
			if cur, ok := findPose(poses, id); !ok || cur.Version != pose.Version || cur.Fragment != pose.Fragment {
				delete(byID, id)
				stale[id] = true
			}
		}
		vc.fragContacts = slices.DeleteFunc(vc.fragContacts, func(fc FragmentContact) bool {
			return stale[fc.A] || stale[fc.B]
		})
	}

	r, err := vc.submit(occ, poses)
	if err != nil {
		return nil, err
	}
	vc.pending = r
	fillResults(results, poses, byID)
	return results, nil
}

func poseIndex(poses []occupancy.FragmentPose) map[int]occupancy.FragmentPose {
	m := make(map[int]occupancy.FragmentPose, len(poses))
	for _, p := range poses {
		m[p.ID] = p
	}
	return m
}

func findPose(poses []occupancy.FragmentPose, id int) (occupancy.FragmentPose, bool) {
	for _, p := range poses {
		if p.ID == id {
			return p, true
		}
	}
	return occupancy.FragmentPose{}, false
}

func fillResults(results []occupancy.CollisionResult, poses []occupancy.FragmentPose, byID map[int][]occupancy.Contact) {
	for i, p := range poses {
		results[i].Contacts = byID[p.ID]
	}
}

// submit uploads the round's state and dispatches clear, populate and
// narrow passes in one command buffer.
func (vc *VoxelCollision) submit(occ *occupancy.WorldOccupancy, poses []occupancy.FragmentPose) (*round, error) {
	if len(poses) > vc.cfg.MaxFragments {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyFragments, len(poses), vc.cfg.MaxFragments)
	}
	if err := vc.syncChunks(occ, poses); err != nil {
		return nil, err
	}
	if err := vc.syncFragments(poses); err != nil {
		return nil, err
	}

	vc.fragData = vc.fragData[:0]
	var particles, maxCells uint32
	var center rl.Vector3
	for i, p := range poses {
		fd := NewFragmentData(uint32(i), p.Fragment, p.Position, p.Rotation, vc.cache[p.ID].offset, particles)
		particles += fd.CellCount()
		maxCells = max(maxCells, fd.CellCount())
		vc.fragData = append(vc.fragData, fd)
		center = rl.Vector3Add(center, p.Position)
	}
	if particles > uint32(vc.cfg.MaxParticles) {
		return nil, fmt.Errorf("%w: %d cells > %d particles", ErrFragmentsTooBig, particles, vc.cfg.MaxParticles)
	}
	center = rl.Vector3Scale(center, 1/float32(len(poses)))

	gridSlots := vc.gridSlots()
	params := GpuParams{
		GridOrigin:    vc.gridOrigin(center),
		CellSize:      vc.cfg.CellSize,
		FragmentCount: uint32(len(poses)),
		IndexSize:     uint32(len(vc.index.Entries())),
		MaxContacts:   uint32(vc.cfg.MaxContacts),
		GridDims:      uint32(vc.cfg.GridDims),
		GridCapacity:  uint32(vc.cfg.GridCapacity),
		GridSlots:     gridSlots,
		Diameter:      vc.cfg.Diameter,
	}
	vc.system.WriteBuffer(vc.paramsBuf, 0, ToBytes([]GpuParams{params}))
	vc.system.WriteBuffer(vc.fragmentBuf, 0, ToBytes(vc.fragData))
	vc.system.WriteBuffer(vc.countBuf, 0, ToBytes([]uint32{0}))

	buffers := []*Buffer{
		vc.chunkLayers, vc.chunkIndex, vc.fragmentBits, vc.fragmentBuf,
		vc.contactBuf, vc.countBuf, vc.gridBuf, vc.particleBuf, vc.paramsBuf,
	}
	err := vc.system.Dispatch(
		DispatchParams{Pipeline: vc.clearGrid, Buffers: buffers, WorkgroupsX: workgroups(gridSlots)},
		DispatchParams{Pipeline: vc.populate, Buffers: buffers, WorkgroupsX: workgroups(maxCells), WorkgroupsY: uint32(len(poses))},
		DispatchParams{Pipeline: vc.narrow, Buffers: buffers, WorkgroupsX: workgroups(maxCells), WorkgroupsY: uint32(len(poses))},
	)
	if err != nil {
		return nil, err
	}

	r := &round{poses: slices.Clone(poses)}
	if r.count, err = vc.system.BeginRead(vc.countBuf, 4); err != nil {
		return nil, err
	}
	if vc.cfg.Async {
		// The count is unknown until the round completes, so take it all
		if r.contacts, err = vc.system.BeginRead(vc.contactBuf, 0); err != nil {
			r.count.Wait()
			return nil, err
		}
	}
	return r, nil
}

// collect waits for a round and decodes its contacts by pose ID. Terrain
// contacts are sorted into the order the CPU narrow phase produces them.
func (vc *VoxelCollision) collect(r *round) (map[int][]occupancy.Contact, error) {
	countData, ready, err := r.count.Poll()
	if !ready {
		countData, err = r.count.Wait()
	}
	if err != nil {
		if r.contacts != nil {
			r.contacts.Wait()
		}
		return nil, err
	}
	n := FromBytes[uint32](countData)[0]
	if n > uint32(vc.cfg.MaxContacts) {
		vc.logf("Compute: contact buffer overflow (%d > %d), dropping the excess", n, vc.cfg.MaxContacts)
		n = uint32(vc.cfg.MaxContacts)
	}

	var raw []GpuContact
	switch {
	case r.contacts != nil:
		data, err := r.contacts.Wait()
		if err != nil {
			return nil, err
		}
		raw = FromBytes[GpuContact](data)[:n]
	case n > 0:
		data, err := vc.system.ReadBuffer(vc.contactBuf, uint64(n)*48)
		if err != nil {
			return nil, err
		}
		raw = FromBytes[GpuContact](data)[:n]
	}
	return vc.decode(r.poses, raw), nil
}

func (vc *VoxelCollision) decode(poses []occupancy.FragmentPose, raw []GpuContact) map[int][]occupancy.Contact {
	byID := make(map[int][]occupancy.Contact, len(poses))
	voxel := make(map[int][]uint32, len(poses))
	for _, c := range raw {
		if int(c.FragmentIndex) >= len(poses) {
			continue
		}
		pose := poses[c.FragmentIndex]
		source := particleCenter(pose, c.VoxelIndex)
		switch c.ContactType {
		case ContactTerrain:
			byID[pose.ID] = append(byID[pose.ID], c.ToContact(source, occupancy.NoBody))
			voxel[pose.ID] = append(voxel[pose.ID], c.VoxelIndex)
		case ContactFragment:
			if int(c.OtherFragment) >= len(poses) {
				continue
			}
			other := poses[c.OtherFragment].ID
			vc.fragContacts = append(vc.fragContacts, FragmentContact{
				A: pose.ID, B: other,
				VoxelA: c.VoxelIndex, VoxelB: c.OtherVoxel,
				Contact: c.ToContact(source, other),
			})
		}
	}

	// Shader emission order depends on thread scheduling
	slices.SortFunc(vc.fragContacts, func(a, b FragmentContact) int {
		return cmp.Or(cmp.Compare(a.A, b.A), cmp.Compare(a.VoxelA, b.VoxelA), cmp.Compare(a.B, b.B), cmp.Compare(a.VoxelB, b.VoxelB))
	})

	for id, contacts := range byID {
		vs := voxel[id]
		order := make([]int, len(contacts))
		for i := range order {
			order[i] = i
		}
		slices.SortFunc(order, func(a, b int) int {
			if c := cmp.Compare(vs[a], vs[b]); c != 0 {
				return c
			}
			return compareCells(contacts[a].Cell, contacts[b].Cell)
		})
		sorted := make([]occupancy.Contact, len(contacts))
		for i, j := range order {
			sorted[i] = contacts[j]
		}
		byID[id] = sorted
	}
	return byID
}

func compareCells(a, b occupancy.Cell) int {
	return cmp.Or(cmp.Compare(a.Z, b.Z), cmp.Compare(a.Y, b.Y), cmp.Compare(a.X, b.X))
}

// particleCenter recomputes a cell's world center the way CheckFragment does.
func particleCenter(pose occupancy.FragmentPose, idx uint32) rl.Vector3 {
	f := pose.Fragment
	sx, sy := uint32(f.SizeX), uint32(f.SizeY)
	x, y, z := int32(idx%sx), int32((idx/sx)%sy), int32(idx/(sx*sy))
	return rl.Vector3Add(pose.Position, rl.Vector3RotateByQuaternion(f.LocalCenter(x, y, z), pose.Rotation))
}

// syncChunks makes every loaded chunk the poses can touch resident, and
// re-uploads chunks whose version moved since their last upload.
func (vc *VoxelCollision) syncChunks(occ *occupancy.WorldOccupancy, poses []occupancy.FragmentPose) error {
	if occ != vc.occ {
		vc.occ = occ
		vc.index = NewChunkIndex(vc.cfg.MaxChunks)
		clear(vc.resident)
		vc.indexDirty = true
	}

	needed := make(map[occupancy.ChunkCoord]bool)
	for _, p := range poses {
		lo, hi := reach(p)
		for _, c := range occ.ChunksOverlappingAABB(lo, hi) {
			needed[c] = true
		}
	}
	if len(needed) > vc.cfg.MaxChunks {
		return fmt.Errorf("%w: %d > %d", ErrTooManyChunks, len(needed), vc.cfg.MaxChunks)
	}

	for c := range vc.resident {
		if occ.Chunk(c) == nil {
			vc.evict(c)
		}
	}

	coords := make([]occupancy.ChunkCoord, 0, len(needed))
	for c := range needed {
		coords = append(coords, c)
	}
	slices.SortFunc(coords, func(a, b occupancy.ChunkCoord) int {
		return cmp.Or(cmp.Compare(a.Z, b.Z), cmp.Compare(a.Y, b.Y), cmp.Compare(a.X, b.X))
	})

	for _, c := range coords {
		if _, ok := vc.resident[c]; !ok && vc.index.FreeLayers() == 0 {
			vc.evictUnneeded(needed)
		}
		layer, inserted, err := vc.index.Insert(c)
		if err != nil {
			return err
		}
		if inserted {
			vc.indexDirty = true
		}
		version := occ.ChunkVersion(c)
		if uploaded, ok := vc.resident[c]; ok && uploaded == version {
			continue
		}
		occ.Chunk(c).FillLayer(vc.layer)
		vc.system.WriteBuffer(vc.chunkLayers, uint64(layer)*ChunkLayerTexels*4, ToBytes(vc.layer))
		vc.resident[c] = version
	}

	if vc.indexDirty {
		vc.system.WriteBuffer(vc.chunkIndex, 0, ToBytes(vc.index.Entries()))
		vc.indexDirty = false
	}
	return nil
}

// reach is the inclusive cell box a pose's cells can overlap at any
// rotation.
func reach(p occupancy.FragmentPose) (occupancy.Cell, occupancy.Cell) {
	r := rl.Vector3Length(p.Fragment.HalfExtents()) + 1
	ext := rl.Vector3{X: r, Y: r, Z: r}
	return occupancy.CellOf(rl.Vector3Subtract(p.Position, ext)), occupancy.CellOf(rl.Vector3Add(p.Position, ext))
}

func (vc *VoxelCollision) evict(c occupancy.ChunkCoord) {
	vc.index.Remove(c)
	delete(vc.resident, c)
	vc.indexDirty = true
}

func (vc *VoxelCollision) evictUnneeded(needed map[occupancy.ChunkCoord]bool) {
	for c := range vc.resident {
		if !needed[c] {
			vc.evict(c)
			return
		}
	}
}

// syncFragments re-packs and uploads every fragment's bits whenever any
// pose brings a fragment the cache has not seen at that version.
func (vc *VoxelCollision) syncFragments(poses []occupancy.FragmentPose) error {
	fresh := true
	for _, p := range poses {
		e, ok := vc.cache[p.ID]
		if !ok || e.frag != p.Fragment || e.version != p.Version {
			fresh = false
			break
		}
	}
	if fresh {
		return nil
	}

	clear(vc.cache)
	vc.words = vc.words[:0]
	for _, p := range poses {
		vc.cache[p.ID] = cachedFragment{frag: p.Fragment, version: p.Version, offset: uint32(len(vc.words))}
		vc.words = append(vc.words, p.Fragment.Words()...)
	}
	if len(vc.words) > vc.cfg.MaxFragmentWords {
		clear(vc.cache)
		return fmt.Errorf("%w: %d words > %d", ErrFragmentsTooBig, len(vc.words), vc.cfg.MaxFragmentWords)
	}
	vc.system.WriteBuffer(vc.fragmentBits, 0, ToBytes(vc.words))
	return nil
}

func (vc *VoxelCollision) discardPending() {
	if vc.pending == nil {
		return
	}
	vc.pending.count.Wait()
	if vc.pending.contacts != nil {
		vc.pending.contacts.Wait()
	}
	vc.pending = nil
}

func (vc *VoxelCollision) logf(format string, args ...any) {
	if time.Since(vc.lastLog) < time.Second {
		return
	}
	vc.lastLog = time.Now()
	log.Printf(format, args...)
}

// Release frees the GPU buffers. Pipelines stay cached in the System.
func (vc *VoxelCollision) Release() {
	vc.discardPending()
	for _, b := range []*Buffer{
		vc.chunkLayers, vc.chunkIndex, vc.fragmentBits, vc.fragmentBuf,
		vc.contactBuf, vc.countBuf, vc.gridBuf, vc.particleBuf, vc.paramsBuf,
	} {
		if b != nil {
			b.Release()
		}
	}
}
