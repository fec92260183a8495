package sim

import (
	"errors"
	"fmt"
	"log"
	"math"
	"runtime"
	"sort"
	"sync"
)

// ErrWorldFull is returned when a wave would exceed Config.MaxParticles
var ErrWorldFull = errors.New("particle limit reached")

const (
	DefaultLifeLoss     = 0.5 // fraction of remaining life lost per bounce
	DefaultSpeedLoss    = 0.0
	DefaultMaxParticles = 200000

	// minChunk is the smallest slice worth handing to a worker goroutine
	minChunk = 2048
)

// Config tunes a World
type Config struct {
	Workers      int // goroutines per tick; <= 1 runs inline
	LifeLoss     float64
	SpeedLoss    float64
	MaxParticles int // 0 means unlimited
	Logger       *log.Logger
}

// DefaultConfig returns the stock world settings
func DefaultConfig() Config {
	return Config{
		Workers:      runtime.NumCPU(),
		LifeLoss:     DefaultLifeLoss,
		SpeedLoss:    DefaultSpeedLoss,
		MaxParticles: DefaultMaxParticles,
	}
}

// Validate checks the bounce loss fractions
func (c Config) Validate() error {
	if !(c.LifeLoss >= 0 && c.LifeLoss <= 1) {
		return fmt.Errorf("life loss %g outside [0,1]", c.LifeLoss)
	}
	if !(c.SpeedLoss >= 0 && c.SpeedLoss < 1) {
		return fmt.Errorf("speed loss %g outside [0,1)", c.SpeedLoss)
	}
	if c.MaxParticles < 0 {
		return fmt.Errorf("max particles %d is negative", c.MaxParticles)
	}
	return nil
}

// TickReport summarises one Tick
type TickReport struct {
	Tick       uint64
	Live       int
	Bounces    int
	Expired    int
	Degenerate int
}

func (r *TickReport) add(st Step) {
	if st.Bounced {
		r.Bounces++
	}
	if st.Expired {
		r.Expired++
	}
	r.Degenerate += st.Degenerate
}

// ParticleView is the per-particle snapshot handed to renderers
type ParticleView struct {
	ID   Handle
	Pos  Vec2
	Fade float64
}

// World owns the live particles and drives them against an obstacle set
type World struct {
	cfg       Config
	obstacles *ObstacleSet
	particles []Particle // ordered by ID
	nextID    Handle
	tick      uint64
	logger    *log.Logger
	reports   []TickReport
}

// NewWorld creates a world predicting against obstacles. A nil set starts empty.
func NewWorld(cfg Config, obstacles *ObstacleSet) *World {
	if obstacles == nil {
		obstacles = NewObstacleSet()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &World{
		cfg:       cfg,
		obstacles: obstacles,
		logger:    logger,
	}
}

// Obstacles returns the set the world predicts against. Mutate it only
// between ticks.
func (w *World) Obstacles() *ObstacleSet {
	return w.obstacles
}

// Config returns the world settings
func (w *World) Config() Config {
	return w.cfg
}

// Len returns the number of live particles
func (w *World) Len() int {
	return len(w.particles)
}

// TickCount returns how many ticks have run
func (w *World) TickCount() uint64 {
	return w.tick
}

// SpawnWave adds count particles radiating from origin
func (w *World) SpawnWave(origin Vec2, count int, speed, life float64) (int, error) {
	if w.cfg.MaxParticles > 0 && count > 0 && len(w.particles)+count > w.cfg.MaxParticles {
		return 0, fmt.Errorf("%w: %d live + %d requested > %d", ErrWorldFull, len(w.particles), count, w.cfg.MaxParticles)
	}
	wave, err := SpawnWave(origin, count, speed, life)
	if err != nil {
		return 0, err
	}
	version := w.obstacles.Version()
	for i := range wave {
		w.nextID++
		wave[i].ID = w.nextID
		wave[i].SeenVersion = version
	}
	w.particles = append(w.particles, wave...)
	return len(wave), nil
}

// Spawn adds a wave described by cfg
func (w *World) Spawn(origin Vec2, cfg WaveConfig) (int, error) {
	return w.SpawnWave(origin, cfg.Count, cfg.Speed, cfg.Life)
}

// Particle returns a copy of the particle with handle h
func (w *World) Particle(h Handle) (Particle, bool) {
	i := sort.Search(len(w.particles), func(i int) bool {
		return w.particles[i].ID >= h
	})
	if i < len(w.particles) && w.particles[i].ID == h {
		return w.particles[i], true
	}
	return Particle{}, false
}

// Clear removes every particle
func (w *World) Clear() {
	w.particles = w.particles[:0]
}

// Tick advances every live particle by dt seconds and removes the expired
func (w *World) Tick(dt float64) TickReport {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return TickReport{Tick: w.tick, Live: len(w.particles)}
	}
	w.tick++

	frame := &Frame{
		DT:        dt,
		Obstacles: w.obstacles.Obstacles(),
		Version:   w.obstacles.Version(),
		LifeLoss:  w.cfg.LifeLoss,
		SpeedLoss: w.cfg.SpeedLoss,
	}

	report := w.step(frame)
	report.Tick = w.tick

	// Barrier passed: safe to compact the shared slice
	if report.Expired > 0 {
		w.compact()
	}
	report.Live = len(w.particles)

	if report.Degenerate > 0 {
		w.logger.Printf("sim: tick %d skipped %d collinear trajectory/obstacle overlaps", w.tick, report.Degenerate)
	}
	return report
}

// step runs the integrator over all particles, fanning out to workers
func (w *World) step(frame *Frame) TickReport {
	n := len(w.particles)
	workers := w.cfg.Workers
	if maxWorkers := n / minChunk; workers > maxWorkers {
		workers = maxWorkers
	}
	if workers <= 1 {
		var r TickReport
		for i := range w.particles {
			r.add(w.particles[i].Update(frame))
		}
		return r
	}

	if cap(w.reports) < workers {
		w.reports = make([]TickReport, workers)
	}
	reports := w.reports[:workers]
	chunk := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * chunk
		if start >= n {
			reports[i] = TickReport{}
			continue
		}
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(idx int, part []Particle) {
			defer wg.Done()
			var r TickReport
			for j := range part {
				r.add(part[j].Update(frame))
			}
			reports[idx] = r
		}(i, w.particles[start:end])
	}
	wg.Wait()

	var total TickReport
	for _, r := range reports {
		total.Bounces += r.Bounces
		total.Expired += r.Expired
		total.Degenerate += r.Degenerate
	}
	return total
}

// compact drops dead particles in place, preserving order
func (w *World) compact() {
	live := w.particles[:0]
	for _, p := range w.particles {
		if p.Alive {
			live = append(live, p)
		}
	}
	// Clear the tail so the backing array keeps no stale values
	for i := len(live); i < len(w.particles); i++ {
		w.particles[i] = Particle{}
	}
	w.particles = live
}

// Snapshot appends a view of every live particle to buf
func (w *World) Snapshot(buf []ParticleView) []ParticleView {
	buf = buf[:0]
	for i := range w.particles {
		p := &w.particles[i]
		buf = append(buf, ParticleView{ID: p.ID, Pos: p.Pos, Fade: p.Fade()})
	}
	return buf
}

// Each calls fn for every live particle in handle order
func (w *World) Each(fn func(p *Particle)) {
	for i := range w.particles {
		fn(&w.particles[i])
	}
}
