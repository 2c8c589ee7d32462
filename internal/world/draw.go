package world

import (
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/physics"

	"github.com/chewxy/math32"
	rl "github.com/gen2brain/raylib-go/raylib"
)

var unitCube = rl.Vector3{X: 1, Y: 1, Z: 1}

// chunkSurface caches the exposed cells of one chunk at a given version.
type chunkSurface struct {
	version uint64
	cells   []occupancy.Cell
}

// exposed reports whether any face of a solid cell touches air.
func (w *World) exposed(c occupancy.Cell) bool {
	return !w.Occ.GetVoxel(c.X, c.Y+1, c.Z) || !w.Occ.GetVoxel(c.X, c.Y-1, c.Z) ||
		!w.Occ.GetVoxel(c.X+1, c.Y, c.Z) || !w.Occ.GetVoxel(c.X-1, c.Y, c.Z) ||
		!w.Occ.GetVoxel(c.X, c.Y, c.Z+1) || !w.Occ.GetVoxel(c.X, c.Y, c.Z-1)
}

// surfaceOf rebuilds a chunk's surface when its version moved. Neighbouring
// chunks are not invalidated, so a carve on a chunk border can leave a stale
// face for a frame until that chunk changes.
func (w *World) surfaceOf(coord occupancy.ChunkCoord) *chunkSurface {
	version := w.Occ.ChunkVersion(coord)
	s, ok := w.surface[coord]
	if ok && s.version == version {
		return s
	}
	if s == nil {
		s = &chunkSurface{}
		w.surface[coord] = s
	}
	s.version = version
	s.cells = s.cells[:0]

	chunk := w.Occ.Chunk(coord)
	if chunk == nil {
		return s
	}
	base := occupancy.ChunkToWorld(coord)
	for z := int32(0); z < occupancy.ChunkSize; z++ {
		for y := int32(0); y < occupancy.ChunkSize; y++ {
			for x := int32(0); x < occupancy.ChunkSize; x++ {
				if !chunk.Get(x, y, z) {
					continue
				}
				c := occupancy.Cell{X: base.X + x, Y: base.Y + y, Z: base.Z + z}
				if w.exposed(c) {
					s.cells = append(s.cells, c)
				}
			}
		}
	}
	return s
}

func terrainColor(y int32) rl.Color {
	switch {
	case y < -1:
		return rl.NewColor(110, 90, 70, 255)
	case y < 1:
		return rl.NewColor(90, 140, 70, 255)
	default:
		return rl.NewColor(150, 150, 160, 255)
	}
}

// Draw renders terrain and bodies inside the camera frustum. It must be
// called between BeginMode3D and EndMode3D.
func (w *World) Draw(camera rl.Camera3D) (drawnCells int) {
	frustum := ExtractFrustum(camera)

	for _, coord := range w.Occ.Chunks() {
		base := occupancy.ChunkToWorld(coord)
		min := rl.Vector3{X: float32(base.X), Y: float32(base.Y), Z: float32(base.Z)}
		box := occupancy.AABB{Min: min, Max: rl.Vector3Add(min, rl.Vector3Scale(unitCube, occupancy.ChunkSize))}
		if !frustum.ContainsBox(box) {
			continue
		}
		for _, c := range w.surfaceOf(coord).cells {
			rl.DrawCubeV(occupancy.CellCenter(c), unitCube, terrainColor(c.Y))
			drawnCells++
		}
	}

	for _, h := range w.Physics.Handles() {
		b, ok := w.Physics.Body(h)
		if !ok {
			continue
		}
		if !frustum.ContainsBox(b.Bounds()) {
			continue
		}
		switch b.Kind {
		case physics.Kinematic:
			size := rl.Vector3Scale(b.HalfExtents, 2)
			rl.DrawCubeV(b.Position, size, rl.SkyBlue)
			rl.DrawCubeWiresV(b.Position, size, rl.DarkBlue)
		case physics.Dynamic:
			drawnCells += w.drawFragment(h, b)
		}
	}
	return drawnCells
}

func (w *World) drawFragment(h physics.BodyHandle, b *physics.Body) int {
	color, ok := w.colors[h]
	if !ok {
		color = rl.Orange
	}
	if b.Settled {
		color = rl.NewColor(color.R/2, color.G/2, color.B/2, 255)
	}

	axis, angle := axisAngle(b.Rotation)
	rl.PushMatrix()
	rl.Translatef(b.Position.X, b.Position.Y, b.Position.Z)
	rl.Rotatef(angle*rl.Rad2deg, axis.X, axis.Y, axis.Z)
	for _, p := range b.Particles() {
		rl.DrawCubeV(p, unitCube, color)
		rl.DrawCubeWiresV(p, unitCube, rl.Black)
	}
	rl.PopMatrix()
	return len(b.Particles())
}

// axisAngle returns the rotation axis and angle in radians of q.
func axisAngle(q rl.Quaternion) (rl.Vector3, float32) {
	q = rl.QuaternionNormalize(q)
	if q.W < 0 {
		q = rl.Quaternion{X: -q.X, Y: -q.Y, Z: -q.Z, W: -q.W}
	}
	s := math32.Sqrt(math32.Max(1-q.W*q.W, 0))
	if s < 1e-6 {
		return rl.Vector3{Y: 1}, 0
	}
	return rl.Vector3{X: q.X / s, Y: q.Y / s, Z: q.Z / s}, 2 * math32.Acos(math32.Min(q.W, 1))
}

// DrawHit marks a ray hit for debugging.
func DrawHit(hit physics.RaycastHit) {
	rl.DrawSphere(hit.Point, 0.1, rl.Yellow)
	rl.DrawLine3D(hit.Point, rl.Vector3Add(hit.Point, hit.Normal), rl.Yellow)
	if hit.Terrain {
		rl.DrawCubeWiresV(occupancy.CellCenter(hit.Cell), rl.Vector3Scale(unitCube, 1.02), rl.Yellow)
	}
}
