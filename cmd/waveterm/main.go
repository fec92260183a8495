// Command waveterm runs a wave simulation in the terminal.
//
// Left click spawns a wave, right click twice adds a segment, x erases the
// segment under the last click, c clears particles, arrows pan, f refits,
// space pauses and q or Esc quits.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"

	"wavebounce/level"
	"wavebounce/sandbox"
	"wavebounce/sim"
)

const tickRate = 30

var (
	obstacleStyle = tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true)
	anchorStyle   = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	statusStyle   = tcell.StyleDefault.Foreground(tcell.ColorGray)
)

// Term is the terminal host
type Term struct {
	screen  tcell.Screen
	box     *sandbox.Sandbox
	clicker *Clicker
	view    viewport
	grid    []cell
	buttons tcell.ButtonMask
	cursor  sim.Vec2
	paused  bool
	status  string
}

// NewTerm initializes the screen
func NewTerm(box *sandbox.Sandbox, clicker *Clicker) (*Term, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	screen.EnableMouse()
	t := &Term{screen: screen, box: box, clicker: clicker}
	t.fit()
	return t, nil
}

func (t *Term) fit() {
	cols, rows := t.screen.Size()
	w, h := t.box.Size()
	t.view = fitViewport(w, h, cols, rows-1) // last row is the status line
}

func (t *Term) handleInput(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyLeft:
			t.view.pan(-4, 0)
		case tcell.KeyRight:
			t.view.pan(4, 0)
		case tcell.KeyUp:
			t.view.pan(0, -2)
		case tcell.KeyDown:
			t.view.pan(0, 2)
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q':
				return false
			case 'c':
				t.box.Clear()
			case 'x':
				if err := t.box.Erase(t.cursor, 2*t.view.Scale); err != nil {
					t.status = err.Error()
				} else {
					t.status = "segment erased"
				}
			case 'f':
				t.fit()
			case ' ':
				t.paused = !t.paused
			}
		}

	case *tcell.EventMouse:
		x, y := ev.Position()
		pressed := ev.Buttons() &^ t.buttons
		t.buttons = ev.Buttons()
		t.cursor = t.view.toWorld(x, y)

		if pressed&tcell.ButtonPrimary != 0 {
			if n, err := t.box.Spawn(t.cursor); err != nil {
				t.status = err.Error()
			} else {
				t.status = fmt.Sprintf("wave of %d", n)
			}
		}
		if pressed&tcell.ButtonSecondary != 0 {
			if _, created, err := t.box.Click(t.cursor); err != nil {
				t.status = err.Error()
			} else if created {
				t.status = "segment added"
			}
		}

	case *tcell.EventResize:
		t.screen.Sync()
		t.fit()
	}
	return true
}

func (t *Term) draw() {
	t.screen.Clear()

	t.grid = rasterize(t.box.Particles(), t.view, t.grid)
	for i, c := range t.grid {
		if c.count == 0 {
			continue
		}
		shade := int32(60 + 195*c.fade)
		style := tcell.StyleDefault.Foreground(tcell.NewRGBColor(shade/2, shade, shade))
		t.screen.SetContent(i%t.view.Cols, i/t.view.Cols, c.glyph(), nil, style)
	}

	for _, o := range t.box.Obstacles() {
		for _, p := range segmentCells(t.view, o.A, o.B) {
			t.screen.SetContent(p[0], p[1], '█', nil, obstacleStyle)
		}
	}
	if a, ok := t.box.Anchor(); ok {
		if cx, cy, in := t.view.toCell(a); in {
			t.screen.SetContent(cx, cy, '+', nil, anchorStyle)
		}
	}

	tot := t.box.Totals()
	line := fmt.Sprintf(" particles %d  waves %d  bounces %d  %s", t.box.Live(), tot.Waves, tot.Bounces, t.status)
	if t.paused {
		line += "  [paused]"
	}
	for i, r := range line {
		t.screen.SetContent(i, t.view.Rows, r, nil, statusStyle)
	}
	t.screen.Show()
}

func (t *Term) run() {
	ticker := time.NewTicker(time.Second / tickRate)
	defer ticker.Stop()

	eventChan := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := t.screen.PollEvent()
			if ev == nil {
				return
			}
			eventChan <- ev
		}
	}()

	for {
		select {
		case ev := <-eventChan:
			if !t.handleInput(ev) {
				return
			}
		case now := <-ticker.C:
			if !t.paused {
				r := t.box.Step(1.0 / tickRate)
				t.clicker.Bounce(now, r.Bounces)
			}
			t.draw()
		}
	}
}

func (t *Term) cleanup() {
	t.clicker.Close()
	t.screen.Fini()
}

func main() {
	opts := sandbox.DefaultOptions()
	opts.Wave.Count = 2000

	levelPath := flag.String("level", "", "Level file (.json or .js; default board if empty)")
	audio := flag.Bool("audio", true, "Play a click on bounces")
	flag.IntVar(&opts.World.Workers, "workers", opts.World.Workers, "Simulation goroutines")
	flag.Float64Var(&opts.World.LifeLoss, "life-loss", opts.World.LifeLoss, "Fraction of remaining life lost per bounce")
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

	clicker := &Clicker{}
	if *audio {
		if clicker, err = NewClicker(); err != nil {
			// Non-fatal, runs silent
			log.Printf("audio initialization failed: %v", err)
		}
	}

	term, err := NewTerm(box, clicker)
	if err != nil {
		fmt.Fprintf(os.Stderr, "terminal: %v\n", err)
		os.Exit(1)
	}
	defer term.cleanup()
	term.run()
}
