package main

import (
	"fmt"
	"image/color"
	"log"
	"os"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"wavebounce/level"
	"wavebounce/sandbox"
	"wavebounce/sim"
)

const (
	cameraSpeed  = 100.0 // world units per second at zoom 1
	wheelZoom    = 1.1
	particleSize = 2
	normalLength = 8.0
)

var (
	backgroundColor = color.RGBA{8, 10, 18, 255}
	obstacleColor   = color.RGBA{220, 220, 230, 255}
	normalColor     = color.RGBA{90, 160, 90, 255}
	anchorColor     = color.RGBA{255, 200, 60, 255}
)

// Game implements ebiten.Game around a sandbox
type Game struct {
	box      *sandbox.Sandbox
	cam      *Camera
	savePath string
	paused   bool
	fitted   bool
	status   string
}

// NewGame creates the desktop host
func NewGame(box *sandbox.Sandbox, width, height int, savePath string) *Game {
	return &Game{
		box:      box,
		cam:      NewCamera(float64(width), float64(height)),
		savePath: savePath,
	}
}

// Update handles input and advances the simulation one fixed step
func (g *Game) Update() error {
	dt := 1.0 / float64(ebiten.TPS())

	if inpututil.IsKeyJustPressed(ebiten.KeyQ) {
		return ebiten.Termination
	}
	g.updateCamera(dt)

	mx, my := ebiten.CursorPosition()
	wx, wy := g.cam.ScreenToWorld(float64(mx), float64(my))
	cursor := sim.V(wx, wy)

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		if n, err := g.box.Spawn(cursor); err != nil {
			g.status = err.Error()
		} else {
			g.status = fmt.Sprintf("wave of %d at (%.0f, %.0f)", n, wx, wy)
		}
	}
	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonRight) {
		if _, created, err := g.box.Click(cursor); err != nil {
			g.status = err.Error()
		} else if created {
			g.status = "segment added"
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyX) {
		if err := g.box.Erase(cursor, sandbox.DefaultEraseRadius/g.cam.Zoom); err != nil {
			g.status = err.Error()
		} else {
			g.status = "segment erased"
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyC) {
		g.box.Clear()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		g.box.CancelSegment()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.paused = !g.paused
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		g.save()
	}

	if !g.paused {
		g.box.Step(dt)
	}
	return nil
}

func (g *Game) updateCamera(dt float64) {
	if !g.fitted || inpututil.IsKeyJustPressed(ebiten.KeyF) {
		g.cam.Fit(g.box.Size())
		g.fitted = true
	}

	step := cameraSpeed * dt / g.cam.Zoom
	if ebiten.IsKeyPressed(ebiten.KeyA) || ebiten.IsKeyPressed(ebiten.KeyArrowLeft) {
		g.cam.X -= step
	}
	if ebiten.IsKeyPressed(ebiten.KeyD) || ebiten.IsKeyPressed(ebiten.KeyArrowRight) {
		g.cam.X += step
	}
	if ebiten.IsKeyPressed(ebiten.KeyW) || ebiten.IsKeyPressed(ebiten.KeyArrowUp) {
		g.cam.Y -= step
	}
	if ebiten.IsKeyPressed(ebiten.KeyS) || ebiten.IsKeyPressed(ebiten.KeyArrowDown) {
		g.cam.Y += step
	}

	if _, wy := ebiten.Wheel(); wy != 0 {
		mx, my := ebiten.CursorPosition()
		factor := wheelZoom
		if wy < 0 {
			factor = 1 / wheelZoom
		}
		g.cam.ZoomAt(float64(mx), float64(my), factor)
	}
}

// save writes the current layout to the -save path
func (g *Game) save() {
	if g.savePath == "" {
		g.status = "no -save path"
		return
	}
	doc, err := level.Marshal(g.box.Capture(g.box.LevelName()))
	if err == nil {
		err = os.WriteFile(g.savePath, doc, 0o644)
	}
	if err != nil {
		log.Printf("save level: %v", err)
		g.status = err.Error()
		return
	}
	g.status = "saved " + g.savePath
}

// Draw renders obstacles, particles and the HUD
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(backgroundColor)

	for _, o := range g.box.Obstacles() {
		ax, ay := g.cam.WorldToScreen(o.A.X, o.A.Y)
		bx, by := g.cam.WorldToScreen(o.B.X, o.B.Y)
		vector.StrokeLine(screen, float32(ax), float32(ay), float32(bx), float32(by), 2, obstacleColor, true)

		mid := o.A.Add(o.B).Scale(0.5)
		tip := mid.Add(o.Normal.Scale(normalLength / g.cam.Zoom))
		mx, my := g.cam.WorldToScreen(mid.X, mid.Y)
		tx, ty := g.cam.WorldToScreen(tip.X, tip.Y)
		vector.StrokeLine(screen, float32(mx), float32(my), float32(tx), float32(ty), 1, normalColor, true)
	}

	for _, p := range g.box.Particles() {
		sx, sy := g.cam.WorldToScreen(p.Pos.X, p.Pos.Y)
		if sx < 0 || sy < 0 || sx >= g.cam.Width || sy >= g.cam.Height {
			continue
		}
		clr := color.NRGBA{120, 200, 255, uint8(p.Fade*255 + 0.5)}
		vector.DrawFilledRect(screen, float32(sx), float32(sy), particleSize, particleSize, clr, false)
	}

	if a, ok := g.box.Anchor(); ok {
		sx, sy := g.cam.WorldToScreen(a.X, a.Y)
		vector.DrawFilledCircle(screen, float32(sx), float32(sy), 4, anchorColor, true)
	}

	tot := g.box.Totals()
	hud := fmt.Sprintf("TPS %.0f  FPS %.0f  particles %d  waves %d  bounces %d\n%s",
		ebiten.ActualTPS(), ebiten.ActualFPS(), g.box.Live(), tot.Waves, tot.Bounces, g.status)
	if g.paused {
		hud += "\n[paused]"
	}
	ebitenutil.DebugPrint(screen, hud)
}

// Layout tracks the window size so the camera maps the whole screen
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	g.cam.Width = float64(outsideWidth)
	g.cam.Height = float64(outsideHeight)
	return outsideWidth, outsideHeight
}
