package game

import (
	"fmt"
	"log"

	"github.com/OptimusLime/creature-3d-studio-sub000/internal/physics"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
)

// Theme colors - indigo dark theme
var (
	colorBgDark    = rl.NewColor(10, 10, 15, 255)
	colorBgPanel   = rl.NewColor(18, 18, 24, 230)
	colorBgElement = rl.NewColor(28, 28, 38, 255)
	colorBgHover   = rl.NewColor(38, 38, 52, 255)
	colorAccent    = rl.NewColor(108, 99, 255, 255)

	colorTextPrimary   = rl.NewColor(255, 255, 255, 255)
	colorTextSecondary = rl.NewColor(200, 200, 208, 255)
)

const (
	panelWidth  = 300
	rowHeight   = 22
	labelWidth  = 130
	sliderWidth = 120
)

// initRayguiStyle sets up the dark theme
func initRayguiStyle() {
	gui.SetStyle(gui.DEFAULT, gui.BACKGROUND_COLOR, gui.NewColorPropertyValue(colorBgDark))
	gui.SetStyle(gui.DEFAULT, gui.BASE_COLOR_NORMAL, gui.NewColorPropertyValue(colorBgElement))
	gui.SetStyle(gui.DEFAULT, gui.BASE_COLOR_FOCUSED, gui.NewColorPropertyValue(colorBgHover))
	gui.SetStyle(gui.DEFAULT, gui.BASE_COLOR_PRESSED, gui.NewColorPropertyValue(colorAccent))

	gui.SetStyle(gui.DEFAULT, gui.TEXT_COLOR_NORMAL, gui.NewColorPropertyValue(colorTextSecondary))
	gui.SetStyle(gui.DEFAULT, gui.TEXT_COLOR_FOCUSED, gui.NewColorPropertyValue(colorTextPrimary))
	gui.SetStyle(gui.DEFAULT, gui.TEXT_COLOR_PRESSED, gui.NewColorPropertyValue(colorTextPrimary))

	gui.SetStyle(gui.DEFAULT, gui.BORDER_COLOR_NORMAL, gui.NewColorPropertyValue(rl.NewColor(50, 50, 65, 255)))
	gui.SetStyle(gui.DEFAULT, gui.BORDER_COLOR_FOCUSED, gui.NewColorPropertyValue(colorAccent))

	gui.SetStyle(gui.DEFAULT, gui.TEXT_SIZE, 14)
}

// tunable is one slider row bound to a Config field.
type tunable struct {
	label    string
	min, max float32
	field    func(c *physics.Config) *float32
}

var tunables = []tunable{
	{"Gravity", 0, 30, func(c *physics.Config) *float32 { return &c.Gravity }},
	{"Spring K", 50, 2000, func(c *physics.Config) *float32 { return &c.SpringK }},
	{"Damping K", 0, 50, func(c *physics.Config) *float32 { return &c.DampingK }},
	{"Tangential K", 0, 10, func(c *physics.Config) *float32 { return &c.TangentialK }},
	{"Friction", 0.5, 1, func(c *physics.Config) *float32 { return &c.Friction }},
	{"Angular friction", 0, 1, func(c *physics.Config) *float32 { return &c.AngularFriction }},
	{"Max angular speed", 1, 50, func(c *physics.Config) *float32 { return &c.MaxAngularSpeed }},
	{"Kinematic gravity", 0, 30, func(c *physics.Config) *float32 { return &c.KinematicGravity }},
	{"Snap distance", 0, 1, func(c *physics.Config) *float32 { return &c.SnapDistance }},
	{"Settle velocity", 0, 1, func(c *physics.Config) *float32 { return &c.SettleVelocity }},
}

// drawPanel draws the tuning panel and applies any slider change to the
// physics world.
func (g *Game) drawPanel() {
	x := float32(rl.GetScreenWidth() - panelWidth - 10)
	y := float32(10)
	height := float32(len(tunables)*rowHeight + 4*rowHeight + 16)
	rl.DrawRectangleRec(rl.Rectangle{X: x, Y: y, Width: panelWidth, Height: height}, colorBgPanel)
	rl.DrawRectangleLinesEx(rl.Rectangle{X: x, Y: y, Width: panelWidth, Height: height}, 1, colorAccent)

	cfg := g.World.Physics.Config()
	changed := false
	row := y + 8
	for _, t := range tunables {
		v := t.field(&cfg)
		rl.DrawText(t.label, int32(x+8), int32(row+4), 14, colorTextSecondary)
		bounds := rl.Rectangle{X: x + labelWidth, Y: row, Width: sliderWidth, Height: rowHeight - 4}
		nv := gui.Slider(bounds, "", fmt.Sprintf("%.2f", *v), *v, t.min, t.max)
		if nv != *v {
			*v = nv
			changed = true
		}
		row += rowHeight
	}
	if changed {
		if err := g.World.Physics.SetConfig(cfg); err != nil {
			log.Printf("Physics: config rejected: %v", err)
		}
	}

	row += 4
	g.FallbackToCPU = gui.CheckBox(rl.Rectangle{X: x + 8, Y: row, Width: 14, Height: 14}, "Fall back to CPU on GPU error", g.FallbackToCPU)
	g.World.Physics.FallbackToCPU = g.FallbackToCPU
	row += rowHeight
	g.AutoMerge = gui.CheckBox(rl.Rectangle{X: x + 8, Y: row, Width: 14, Height: 14}, "Merge settled fragments", g.AutoMerge)
	row += rowHeight

	path := "CPU"
	if g.World.Physics.UsingGPU() {
		path = "GPU"
	}
	rl.DrawText(fmt.Sprintf("Narrow phase: %s  Bodies: %d", path, g.World.Physics.BodyCount()), int32(x+8), int32(row), 14, colorTextPrimary)
}
