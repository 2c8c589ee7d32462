package compute

import (
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// GPU-side limits. The WGSL constants in narrowPhaseShader must agree.
const (
	MaxGPUChunks     = 64
	ChunkLayerTexels = occupancy.ChunkSize * occupancy.ChunkSize
	ChunkIndexProbes = 4
	MaxGPUContacts   = 4096
	MaxFragmentWords = 65536
	MaxGPUFragments  = 1024
	MaxGPUParticles  = 262144

	HashGridDims     = 64
	HashGridCapacity = 4
	HashGridCellSize = 1.0

	workgroupSize = 64
)

// Contact types written by the shader.
const (
	ContactTerrain  uint32 = 0
	ContactFragment uint32 = 1
)

// GpuContact is one contact as written by the shader. 48 bytes.
type GpuContact struct {
	Position      [3]float32
	Penetration   float32
	Normal        [3]float32
	FragmentIndex uint32
	ContactType   uint32
	OtherFragment uint32
	VoxelIndex    uint32 // local cell index inside the fragment
	OtherVoxel    uint32 // local cell index inside OtherFragment
}

// GpuFragmentData places one fragment for a round. 64 bytes.
type GpuFragmentData struct {
	Position        [3]float32
	_               float32
	Rotation        [4]float32 // x, y, z, w
	Size            [3]uint32
	FragmentIndex   uint32
	OccupancyOffset uint32 // in u32 words
	OccupancySize   uint32 // in u32 words
	ParticleOffset  uint32 // first hash-grid particle id
	_               uint32
}

// GpuChunkEntry is one chunk index slot. Layer is emptyLayer when unused.
type GpuChunkEntry struct {
	X, Y, Z int32
	Layer   int32
}

// GpuParticle is one hash-grid entry: a solid fragment cell center. 16 bytes.
type GpuParticle struct {
	Position [3]float32
	Fragment uint32
}

// GpuParams is the uniform shared by every pass of a round. 48 bytes.
type GpuParams struct {
	GridOrigin    [3]float32
	CellSize      float32
	FragmentCount uint32
	IndexSize     uint32
	MaxContacts   uint32
	GridDims      uint32
	GridCapacity  uint32
	GridSlots     uint32
	Diameter      float32 // particle diameter for fragment-fragment overlap
	_             uint32
}

// NewFragmentData describes a fragment at a pose.
func NewFragmentData(index uint32, frag *occupancy.FragmentOccupancy, pos rl.Vector3, rot rl.Quaternion, offset, particleOffset uint32) GpuFragmentData {
	return GpuFragmentData{
		Position:        [3]float32{pos.X, pos.Y, pos.Z},
		Rotation:        [4]float32{rot.X, rot.Y, rot.Z, rot.W},
		Size:            [3]uint32{uint32(frag.SizeX), uint32(frag.SizeY), uint32(frag.SizeZ)},
		FragmentIndex:   index,
		OccupancyOffset: offset,
		OccupancySize:   uint32(len(frag.Words())),
		ParticleOffset:  particleOffset,
	}
}

// CellCount is the number of local cells, which is also the dispatch width.
func (f GpuFragmentData) CellCount() uint32 {
	return f.Size[0] * f.Size[1] * f.Size[2]
}

// LocalCell converts a fragment-local cell index back to coordinates.
func (f GpuFragmentData) LocalCell(i uint32) (int32, int32, int32) {
	sx, sy := f.Size[0], f.Size[1]
	return int32(i % sx), int32((i / sx) % sy), int32(i / (sx * sy))
}

// ToContact converts a shader contact into the CPU form. source is the
// particle center, recomputed on the CPU so both paths feed identical
// values to the force law.
func (c GpuContact) ToContact(source rl.Vector3, other int) occupancy.Contact {
	pos := rl.Vector3{X: c.Position[0], Y: c.Position[1], Z: c.Position[2]}
	return occupancy.Contact{
		Position:    pos,
		Normal:      rl.Vector3{X: c.Normal[0], Y: c.Normal[1], Z: c.Normal[2]},
		Penetration: c.Penetration,
		Source:      source,
		Cell:        occupancy.CellOf(pos),
		Other:       other,
	}
}

func workgroups(n uint32) uint32 {
	return (n + workgroupSize - 1) / workgroupSize
}
