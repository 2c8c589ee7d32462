package camera

import (
	"math"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// FollowCamera orbits a target point, usually the player body. Yaw and pitch
// are in degrees.
type FollowCamera struct {
	Target    rl.Vector3
	Distance  float32
	Yaw       float32
	Pitch     float32
	LookSpeed float32
	ZoomSpeed float32

	// Height of the look-at point above Target
	EyeHeight float32
}

func New(target rl.Vector3) *FollowCamera {
	return &FollowCamera{
		Target:    target,
		Distance:  12.0,
		Yaw:       -135.0,
		Pitch:     -30.0,
		LookSpeed: 0.2,
		ZoomSpeed: 1.0,
		EyeHeight: 0.8,
	}
}

// Update rotates while the right mouse button is held and zooms with the
// wheel, then follows target.
func (c *FollowCamera) Update(target rl.Vector3) {
	c.Target = target

	if rl.IsMouseButtonDown(rl.MouseRightButton) {
		mouseDelta := rl.GetMouseDelta()
		c.Yaw += mouseDelta.X * c.LookSpeed
		c.Pitch -= mouseDelta.Y * c.LookSpeed
	}

	// Clamp pitch
	if c.Pitch > 89 {
		c.Pitch = 89
	}
	if c.Pitch < -89 {
		c.Pitch = -89
	}

	c.Distance -= rl.GetMouseWheelMove() * c.ZoomSpeed
	if c.Distance < 2 {
		c.Distance = 2
	}
	if c.Distance > 60 {
		c.Distance = 60
	}
}

// MoveInput turns WASD into a horizontal unit direction relative to the view.
func (c *FollowCamera) MoveInput() rl.Vector3 {
	forward, right := c.Directions()

	var moveDir rl.Vector3
	if rl.IsKeyDown(rl.KeyW) {
		moveDir = rl.Vector3Add(moveDir, forward)
	}
	if rl.IsKeyDown(rl.KeyS) {
		moveDir = rl.Vector3Subtract(moveDir, forward)
	}
	if rl.IsKeyDown(rl.KeyA) {
		moveDir = rl.Vector3Subtract(moveDir, right)
	}
	if rl.IsKeyDown(rl.KeyD) {
		moveDir = rl.Vector3Add(moveDir, right)
	}

	// Normalize diagonal movement so you don't go faster diagonally
	if rl.Vector3Length(moveDir) > 0 {
		moveDir = rl.Vector3Normalize(moveDir)
	}
	return moveDir
}

// Directions returns the horizontal forward and right vectors of the view.
func (c *FollowCamera) Directions() (forward, right rl.Vector3) {
	yawRad := float64(c.Yaw) * math.Pi / 180
	forward = rl.Vector3{
		X: float32(math.Cos(yawRad)),
		Z: float32(math.Sin(yawRad)),
	}
	right = rl.Vector3{
		X: float32(-math.Sin(yawRad)),
		Z: float32(math.Cos(yawRad)),
	}
	return
}

// LookDirection is the unit vector from the eye toward the target.
func (c *FollowCamera) LookDirection() rl.Vector3 {
	yawRad := float64(c.Yaw) * math.Pi / 180
	pitchRad := float64(c.Pitch) * math.Pi / 180
	return rl.Vector3{
		X: float32(math.Cos(yawRad) * math.Cos(pitchRad)),
		Y: float32(math.Sin(pitchRad)),
		Z: float32(math.Sin(yawRad) * math.Cos(pitchRad)),
	}
}

func (c *FollowCamera) GetRaylibCamera() rl.Camera3D {
	focus := rl.Vector3Add(c.Target, rl.Vector3{Y: c.EyeHeight})
	eye := rl.Vector3Subtract(focus, rl.Vector3Scale(c.LookDirection(), c.Distance))

	return rl.Camera3D{
		Position:   eye,
		Target:     focus,
		Up:         rl.Vector3{X: 0, Y: 1, Z: 0},
		Fovy:       45,
		Projection: rl.CameraPerspective,
	}
}
