// Package sandbox drives a single local simulation for the desktop and
// terminal hosts: spawning, click-pair segment editing and erasing.
package sandbox

import (
	"errors"

	"wavebounce/level"
	"wavebounce/sim"
)

// DefaultEraseRadius is the pick distance for Erase
const DefaultEraseRadius = 12.0

// ErrNothingToErase is returned when no segment is near the erase point
var ErrNothingToErase = errors.New("no obstacle near point")

// Options configures a Sandbox
type Options struct {
	World sim.Config
	Wave  sim.WaveConfig
	Level *level.Level // nil = level.Default()
}

// DefaultOptions returns the stock sandbox settings
func DefaultOptions() Options {
	return Options{
		World: sim.DefaultConfig(),
		Wave:  sim.DefaultWaveConfig(),
	}
}

// Totals are lifetime counters
type Totals struct {
	Waves   int
	Bounces int
	Expired int
}

// Sandbox is a single-threaded simulation session
type Sandbox struct {
	world  *sim.World
	wave   sim.WaveConfig
	name   string
	width  float64
	height float64

	anchor   sim.Vec2
	anchored bool
	totals   Totals
	views    []sim.ParticleView
	lastTick sim.TickReport
}

// New creates a sandbox with opts.Level loaded
func New(opts Options) (*Sandbox, error) {
	if err := opts.World.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Wave.Validate(); err != nil {
		return nil, err
	}
	lvl := opts.Level
	if lvl == nil {
		lvl = level.Default()
	}
	set := sim.NewObstacleSet()
	if err := lvl.Apply(set); err != nil {
		return nil, err
	}
	return &Sandbox{
		world:  sim.NewWorld(opts.World, set),
		wave:   opts.Wave,
		name:   lvl.Name,
		width:  lvl.Width,
		height: lvl.Height,
	}, nil
}

// Size returns the level's world dimensions
func (s *Sandbox) Size() (float64, float64) {
	return s.width, s.height
}

// LevelName returns the loaded level's name
func (s *Sandbox) LevelName() string {
	return s.name
}

// Spawn emits a wave at p
func (s *Sandbox) Spawn(p sim.Vec2) (int, error) {
	n, err := s.world.Spawn(p, s.wave)
	if err != nil {
		return 0, err
	}
	s.totals.Waves++
	return n, nil
}

// Click records a segment endpoint. The first click anchors; the second
// adds the segment from the anchor to p and reports created=true.
func (s *Sandbox) Click(p sim.Vec2) (id sim.ObstacleID, created bool, err error) {
	if !s.anchored {
		s.anchor, s.anchored = p, true
		return 0, false, nil
	}
	s.anchored = false
	o, err := level.FromPoints(s.anchor, p).Obstacle()
	if err != nil {
		return 0, false, err
	}
	id, err = s.world.Obstacles().Add(o)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// Anchor returns the pending segment start, if any
func (s *Sandbox) Anchor() (sim.Vec2, bool) {
	return s.anchor, s.anchored
}

// CancelSegment drops a pending anchor
func (s *Sandbox) CancelSegment() {
	s.anchored = false
}

// Erase removes the segment nearest to p within radius
func (s *Sandbox) Erase(p sim.Vec2, radius float64) error {
	if radius <= 0 {
		radius = DefaultEraseRadius
	}
	set := s.world.Obstacles()
	o, ok := set.Nearest(p, radius)
	if !ok {
		return ErrNothingToErase
	}
	set.Remove(o.ID)
	return nil
}

// Clear removes every particle
func (s *Sandbox) Clear() {
	s.world.Clear()
}

// Step advances the simulation by dt seconds
func (s *Sandbox) Step(dt float64) sim.TickReport {
	r := s.world.Tick(dt)
	s.totals.Bounces += r.Bounces
	s.totals.Expired += r.Expired
	s.lastTick = r
	return r
}

// LastTick returns the most recent tick report
func (s *Sandbox) LastTick() sim.TickReport {
	return s.lastTick
}

// Particles returns a view of every live particle. The slice is reused by
// the next call.
func (s *Sandbox) Particles() []sim.ParticleView {
	s.views = s.world.Snapshot(s.views)
	return s.views
}

// Obstacles returns the current segments
func (s *Sandbox) Obstacles() []sim.Obstacle {
	return s.world.Obstacles().Obstacles()
}

// Live returns the number of live particles
func (s *Sandbox) Live() int {
	return s.world.Len()
}

// Totals returns lifetime counters
func (s *Sandbox) Totals() Totals {
	return s.totals
}

// Capture snapshots the current layout as a level
func (s *Sandbox) Capture(name string) *level.Level {
	return level.Capture(name, s.width, s.height, s.world.Obstacles())
}
