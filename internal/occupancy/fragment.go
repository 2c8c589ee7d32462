package occupancy

import rl "github.com/gen2brain/raylib-go/raylib"

// FragmentOccupancy is the bit set of a detached voxel cluster in its own
// non-negative local space. Bit index is x + y*sx + z*sx*sy.
type FragmentOccupancy struct {
	SizeX, SizeY, SizeZ int32
	bits                []uint32
}

// NewFragment returns an empty fragment of the given dimensions.
func NewFragment(sx, sy, sz int32) *FragmentOccupancy {
	if sx < 0 {
		sx = 0
	}
	if sy < 0 {
		sy = 0
	}
	if sz < 0 {
		sz = 0
	}
	n := int(sx) * int(sy) * int(sz)
	return &FragmentOccupancy{
		SizeX: sx,
		SizeY: sy,
		SizeZ: sz,
		bits:  make([]uint32, (n+31)/32),
	}
}

// NewSolidFragment returns a fragment with every cell set.
func NewSolidFragment(sx, sy, sz int32) *FragmentOccupancy {
	f := NewFragment(sx, sy, sz)
	for z := int32(0); z < sz; z++ {
		for y := int32(0); y < sy; y++ {
			for x := int32(0); x < sx; x++ {
				f.Set(x, y, z, true)
			}
		}
	}
	return f
}

// FragmentFromRegion samples solid once per local cell.
func FragmentFromRegion(sx, sy, sz int32, solid func(x, y, z int32) bool) *FragmentOccupancy {
	f := NewFragment(sx, sy, sz)
	for z := int32(0); z < sz; z++ {
		for y := int32(0); y < sy; y++ {
			for x := int32(0); x < sx; x++ {
				if solid(x, y, z) {
					f.Set(x, y, z, true)
				}
			}
		}
	}
	return f
}

func (f *FragmentOccupancy) index(x, y, z int32) (int, bool) {
	if x < 0 || y < 0 || z < 0 || x >= f.SizeX || y >= f.SizeY || z >= f.SizeZ {
		return 0, false
	}
	return int(x) + int(y)*int(f.SizeX) + int(z)*int(f.SizeX)*int(f.SizeY), true
}

// Get reports whether a local cell is solid. Out of range reads false.
func (f *FragmentOccupancy) Get(x, y, z int32) bool {
	idx, ok := f.index(x, y, z)
	if !ok {
		return false
	}
	return f.bits[idx>>5]&(1<<(idx&31)) != 0
}

// Set writes one local cell. Out of range writes are ignored.
func (f *FragmentOccupancy) Set(x, y, z int32, solid bool) {
	idx, ok := f.index(x, y, z)
	if !ok {
		return
	}
	if solid {
		f.bits[idx>>5] |= 1 << (idx & 31)
	} else {
		f.bits[idx>>5] &^= 1 << (idx & 31)
	}
}

// ForEachOccupied calls fn for every solid cell in index order.
func (f *FragmentOccupancy) ForEachOccupied(fn func(x, y, z int32)) {
	for z := int32(0); z < f.SizeZ; z++ {
		for y := int32(0); y < f.SizeY; y++ {
			for x := int32(0); x < f.SizeX; x++ {
				if f.Get(x, y, z) {
					fn(x, y, z)
				}
			}
		}
	}
}

// Count returns the number of solid cells.
func (f *FragmentOccupancy) Count() int {
	return popcount(f.bits)
}

// IsEmpty reports whether no cell is solid.
func (f *FragmentOccupancy) IsEmpty() bool {
	for _, w := range f.bits {
		if w != 0 {
			return false
		}
	}
	return true
}

// Size returns the bounding dimensions as a vector.
func (f *FragmentOccupancy) Size() rl.Vector3 {
	return rl.Vector3{X: float32(f.SizeX), Y: float32(f.SizeY), Z: float32(f.SizeZ)}
}

// HalfExtents returns half the bounding dimensions.
func (f *FragmentOccupancy) HalfExtents() rl.Vector3 {
	return rl.Vector3Scale(f.Size(), 0.5)
}

// Words exposes the raw bit words.
func (f *FragmentOccupancy) Words() []uint32 {
	return f.bits
}

// LocalCenter returns the body-space center of a local cell. The fragment's
// bounding box is centered on the body origin.
func (f *FragmentOccupancy) LocalCenter(x, y, z int32) rl.Vector3 {
	half := f.HalfExtents()
	return rl.Vector3{
		X: float32(x) + 0.5 - half.X,
		Y: float32(y) + 0.5 - half.Y,
		Z: float32(z) + 0.5 - half.Z,
	}
}

// Particles returns the body-space centers of all solid cells.
func (f *FragmentOccupancy) Particles() []rl.Vector3 {
	out := make([]rl.Vector3, 0, f.Count())
	f.ForEachOccupied(func(x, y, z int32) {
		out = append(out, f.LocalCenter(x, y, z))
	})
	return out
}

// FragmentPose places a fragment in the world for one narrow-phase round.
// Version changes whenever the fragment's bits are replaced.
type FragmentPose struct {
	ID       int
	Fragment *FragmentOccupancy
	Version  uint64
	Position rl.Vector3
	Rotation rl.Quaternion
}
