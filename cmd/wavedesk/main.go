// Command wavedesk runs a wave simulation in a desktop window.
//
// Left click spawns a wave, right click twice adds a segment, X erases the
// nearest segment, C clears particles, P saves the layout, Space pauses,
// WASD/arrows pan, the wheel zooms, F refits and Q quits.
package main

import (
	"flag"
	"log"

	"github.com/hajimehoshi/ebiten/v2"

	"wavebounce/level"
	"wavebounce/sandbox"
)

func main() {
	opts := sandbox.DefaultOptions()

	levelPath := flag.String("level", "", "Level file (.json or .js; default board if empty)")
	savePath := flag.String("save", "", "File the P key writes the current layout to")
	width := flag.Int("width", 1280, "Window width")
	height := flag.Int("height", 960, "Window height")
	tps := flag.Int("tps", 60, "Simulation ticks per second")
	flag.IntVar(&opts.World.Workers, "workers", opts.World.Workers, "Simulation goroutines")
	flag.Float64Var(&opts.World.LifeLoss, "life-loss", opts.World.LifeLoss, "Fraction of remaining life lost per bounce")
	flag.Float64Var(&opts.World.SpeedLoss, "speed-loss", opts.World.SpeedLoss, "Fraction of speed lost per bounce")
	flag.IntVar(&opts.World.MaxParticles, "max-particles", opts.World.MaxParticles, "Particle cap (0 = unlimited)")
	flag.IntVar(&opts.Wave.Count, "wave-count", opts.Wave.Count, "Particles per wave")
	flag.Float64Var(&opts.Wave.Speed, "wave-speed", opts.Wave.Speed, "Particle speed (units/s)")
	flag.Float64Var(&opts.Wave.Life, "wave-life", opts.Wave.Life, "Particle lifetime (s)")
	flag.Parse()

	if *levelPath != "" {
		lvl, err := level.Load(*levelPath)
		if err != nil {
			log.Fatalf("load level: %v", err)
		}
		opts.Level = lvl
	}
	box, err := sandbox.New(opts)
	if err != nil {
		log.Fatalf("invalid settings: %v", err)
	}

	ebiten.SetWindowSize(*width, *height)
	ebiten.SetWindowTitle("wavebounce")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(*tps)

	if err := ebiten.RunGame(NewGame(box, *width, *height, *savePath)); err != nil && err != ebiten.Termination {
		log.Fatal(err)
	}
}
