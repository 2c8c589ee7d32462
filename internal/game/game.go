package game

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/OptimusLime/creature-3d-studio-sub000/internal/camera"
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/occupancy"
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/physics"
	"github.com/OptimusLime/creature-3d-studio-sub000/internal/world"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// Options configure a sandbox run.
type Options struct {
	Config     physics.Config
	ConfigPath string // Ctrl+S target for the tuned config
	Seed       int64
	ForceGPU   bool
	AsyncGPU   bool
}

type Game struct {
	World     *world.World
	Camera    *camera.FollowCamera
	DebugMode bool
	ShowPanel bool
	AutoMerge bool

	FallbackToCPU bool

	opts       Options
	moveSpeed  float32
	jumpSpeed  float32
	lastHit    physics.RaycastHit
	hasHit     bool
	lastAction string

	saveMsg     string
	saveMsgTime float64

	// Debug timing (ms)
	updateMs float64
	drawMs   float64
	steps    int
	cells    int
}

func New(opts Options) *Game {
	return &Game{
		ShowPanel:     true,
		AutoMerge:     true,
		FallbackToCPU: true,
		opts:          opts,
		moveSpeed:     5.0,
		jumpSpeed:     6.0,
	}
}

func (g *Game) Run() {
	rl.SetConfigFlags(rl.FlagWindowHighdpi | rl.FlagWindowResizable)
	rl.InitWindow(1280, 720, "Voxel Physics Sandbox")
	defer rl.CloseWindow()

	rl.SetTargetFPS(120)

	// World after the OpenGL context so GPU init sees the final surface setup
	g.World = world.New(g.opts.Config, g.opts.Seed)
	g.World.InitCompute(g.opts.ForceGPU, g.opts.AsyncGPU)
	defer g.World.Unload()

	start, _, _ := g.World.Physics.Transform(g.World.Player)
	g.Camera = camera.New(start)
	initRayguiStyle()

	for !rl.WindowShouldClose() {
		g.Update()
		g.Draw()
	}
}

func (g *Game) Update() {
	updateStart := time.Now()
	deltaTime := rl.GetFrameTime()

	// Player input
	move := rl.Vector3Scale(g.Camera.MoveInput(), g.moveSpeed)
	g.World.Physics.SetBodyInput(g.World.Player, move)
	if rl.IsKeyPressed(rl.KeySpace) {
		g.World.Physics.Jump(g.World.Player, g.jumpSpeed)
	}

	g.steps = g.World.Update(deltaTime)
	if g.AutoMerge {
		if n := g.World.MergeSettled(); n > 0 {
			g.lastAction = fmt.Sprintf("merged %d fragments", n)
		}
	}

	pos, _, _ := g.World.Physics.Transform(g.World.Player)
	g.Camera.Update(pos)

	// Aim from the eye along the view
	cam := g.Camera.GetRaylibCamera()
	g.lastHit, g.hasHit = g.World.Physics.Raycast(cam.Position, g.Camera.LookDirection(), 100)

	g.handleActions(pos)

	// Toggle debug mode
	if rl.IsKeyPressed(rl.KeyF1) {
		g.DebugMode = !g.DebugMode
	}
	if rl.IsKeyPressed(rl.KeyTab) {
		g.ShowPanel = !g.ShowPanel
	}

	g.updateMs = float64(time.Since(updateStart).Microseconds()) / 1000.0
}

func (g *Game) handleActions(playerPos rl.Vector3) {
	look := g.Camera.LookDirection()

	// Drop a fragment above the aimed point
	if rl.IsKeyPressed(rl.KeyF) {
		spawn := rl.Vector3Add(playerPos, rl.Vector3Add(rl.Vector3Scale(look, 4), rl.Vector3{Y: 3}))
		if g.hasHit {
			spawn = rl.Vector3Add(g.lastHit.Point, rl.Vector3{Y: 6})
		}
		h := g.World.SpawnFragment(spawn, rl.Vector3{})
		g.lastAction = fmt.Sprintf("spawned %v", h)
	}

	// Throw a fragment along the view
	if rl.IsMouseButtonPressed(rl.MouseLeftButton) {
		spawn := rl.Vector3Add(playerPos, rl.Vector3Add(rl.Vector3Scale(look, 2), rl.Vector3{Y: 1.5}))
		h := g.World.SpawnFragment(spawn, rl.Vector3Scale(look, 15))
		g.lastAction = fmt.Sprintf("threw %v", h)
	}

	// Knock a chunk of terrain loose
	if rl.IsKeyPressed(rl.KeyC) && g.hasHit && g.lastHit.Terrain {
		h, err := g.World.Carve(g.lastHit.Cell, 1, rl.Vector3Add(rl.Vector3Scale(look, 2), rl.Vector3{Y: 3}))
		if err != nil {
			log.Printf("Carve: %v", err)
		} else {
			g.lastAction = fmt.Sprintf("carved %v at %v", h, g.lastHit.Cell)
		}
	}

	if rl.IsKeyPressed(rl.KeyM) {
		g.lastAction = fmt.Sprintf("merged %d fragments", g.World.MergeSettled())
	}
	// Save tuned physics config (Ctrl+S / Cmd+S)
	if (rl.IsKeyDown(rl.KeyLeftControl) || rl.IsKeyDown(rl.KeyLeftSuper)) && rl.IsKeyPressed(rl.KeyS) {
		if err := physics.SaveConfig(g.opts.ConfigPath, g.World.Physics.Config()); err != nil {
			g.saveMsg = fmt.Sprintf("Save failed: %v", err)
		} else {
			g.saveMsg = "Config saved to " + g.opts.ConfigPath
		}
		g.saveMsgTime = rl.GetTime()
	}

	if rl.IsKeyPressed(rl.KeyR) {
		g.World.Reset()
		g.lastAction = "reset"
	}
}

func (g *Game) Draw() {
	camera := g.Camera.GetRaylibCamera()

	rl.BeginDrawing()
	rl.ClearBackground(rl.NewColor(20, 20, 30, 255))

	drawStart := time.Now()
	rl.BeginMode3D(camera)
	g.cells = g.World.Draw(camera)
	if g.hasHit {
		world.DrawHit(g.lastHit)
	}
	rl.EndMode3D()
	g.drawMs = float64(time.Since(drawStart).Microseconds()) / 1000.0

	g.DrawUI()
	rl.EndDrawing()
}

func (g *Game) DrawUI() {
	rl.DrawText("WASD move, Space jump, RMB look, wheel zoom", 10, 10, 20, rl.LightGray)
	rl.DrawText("F spawn, LMB throw, C carve, M merge, R reset, Ctrl+S save, Tab panel, F1 debug", 10, 35, 20, rl.LightGray)
	rl.DrawFPS(10, 60)

	if g.lastAction != "" {
		rl.DrawText(g.lastAction, 10, 85, 16, rl.Yellow)
	}

	if g.saveMsg != "" && rl.GetTime()-g.saveMsgTime < 2.0 {
		color := rl.Green
		if strings.HasPrefix(g.saveMsg, "Save failed") {
			color = rl.Red
		}
		rl.DrawText(g.saveMsg, int32(rl.GetScreenWidth()/2)-100, 47, 16, color)
	}

	if g.DebugMode {
		p := g.World.Physics
		pos, _, _ := p.Transform(g.World.Player)
		ground := "airborne"
		if p.IsGrounded(g.World.Player) {
			ground = "grounded"
		}
		rl.DrawText(fmt.Sprintf("Player: (%.2f, %.2f, %.2f) %s", pos.X, pos.Y, pos.Z, ground), 10, 110, 16, rl.Green)
		rl.DrawText(fmt.Sprintf("Update:  %.2f ms (%d steps)", g.updateMs, g.steps), 10, 130, 16, rl.Green)
		rl.DrawText(fmt.Sprintf("Draw:    %.2f ms (%d cells)", g.drawMs, g.cells), 10, 150, 16, rl.Green)
		rl.DrawText(fmt.Sprintf("Total:   %.2f ms", g.updateMs+g.drawMs), 10, 170, 16, rl.Lime)
		rl.DrawText(fmt.Sprintf("Terrain: %d chunks, %d cells, version %d", p.Occupancy().ChunkCount(), p.Occupancy().TotalOccupied(), p.Occupancy().Version()), 10, 190, 16, rl.Green)
		rl.DrawText(fmt.Sprintf("Max penetration: %.3f", p.MaxPenetration()), 10, 210, 16, rl.Green)
		if g.hasHit {
			target := "terrain"
			if !g.lastHit.Terrain {
				target = g.lastHit.Body.String()
			}
			rl.DrawText(fmt.Sprintf("Aim: %s at %.1f, cell %v", target, g.lastHit.Distance, cellString(g.lastHit.Cell)), 10, 230, 16, rl.Green)
		}
	}

	if g.ShowPanel {
		g.drawPanel()
	}
}

func cellString(c occupancy.Cell) string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}
