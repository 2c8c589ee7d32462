package world

import (
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// Frustum holds the six view planes used to skip chunks and fragments that
// are off screen.
type Frustum struct {
	planes [6]plane // left, right, bottom, top, near, far
}

// plane is n·p + d = 0 with a unit normal pointing inward.
type plane struct {
	normal rl.Vector3
	d      float32
}

// ExtractFrustum pulls the planes out of the camera's view-projection matrix
// (Gribb/Hartmann).
func ExtractFrustum(camera rl.Camera3D) Frustum {
	view := rl.GetCameraMatrix(camera)
	aspect := float32(rl.GetScreenWidth()) / float32(rl.GetScreenHeight())
	proj := rl.MatrixPerspective(camera.Fovy*rl.Deg2rad, aspect, 0.1, 1000.0)
	m := rl.MatrixMultiply(view, proj)

	// Clip-space rows of the combined matrix
	rowX := [4]float32{m.M0, m.M4, m.M8, m.M12}
	rowY := [4]float32{m.M1, m.M5, m.M9, m.M13}
	rowZ := [4]float32{m.M2, m.M6, m.M10, m.M14}
	rowW := [4]float32{m.M3, m.M7, m.M11, m.M15}

	var f Frustum
	f.planes[0] = planeFrom(rowW, rowX, 1)
	f.planes[1] = planeFrom(rowW, rowX, -1)
	f.planes[2] = planeFrom(rowW, rowY, 1)
	f.planes[3] = planeFrom(rowW, rowY, -1)
	f.planes[4] = planeFrom(rowW, rowZ, 1)
	f.planes[5] = planeFrom(rowW, rowZ, -1)
	return f
}

func planeFrom(w, r [4]float32, sign float32) plane {
	p := plane{
		normal: rl.Vector3{X: w[0] + sign*r[0], Y: w[1] + sign*r[1], Z: w[2] + sign*r[2]},
		d:      w[3] + sign*r[3],
	}
	length := rl.Vector3Length(p.normal)
	if length == 0 {
		return p
	}
	return plane{normal: rl.Vector3Scale(p.normal, 1/length), d: p.d / length}
}

// ContainsSphere reports whether a sphere is at least partly inside.
func (f *Frustum) ContainsSphere(center rl.Vector3, radius float32) bool {
	for _, p := range f.planes {
		if rl.Vector3DotProduct(p.normal, center)+p.d < -radius {
			return false
		}
	}
	return true
}

// ContainsBox tests the box corner furthest along each plane normal.
func (f *Frustum) ContainsBox(box occupancy.AABB) bool {
	for _, p := range f.planes {
		corner := box.Min
		if p.normal.X > 0 {
			corner.X = box.Max.X
		}
		if p.normal.Y > 0 {
			corner.Y = box.Max.Y
		}
		if p.normal.Z > 0 {
			corner.Z = box.Max.Z
		}
		if rl.Vector3DotProduct(p.normal, corner)+p.d < 0 {
			return false
		}
	}
	return true
}
