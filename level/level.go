// Package level builds obstacle layouts for a sim.World from JSON documents,
// JavaScript scripts, or the stock builders.
package level

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"wavebounce/sim"
)

// ErrUnknownFormat is returned by Load for unsupported file extensions
var ErrUnknownFormat = errors.New("unknown level format")

const (
	DefaultSize     = 800.0 // board edge length
	DefaultBoxSize  = 200.0 // centered square obstacle
	DefaultName     = "default"
	maxSegments     = 4096
	maxLevelNameLen = 64
)

// Segment is the serialized form of an obstacle. A zero normal means
// "left perpendicular of B-A".
type Segment struct {
	AX float64 `json:"ax" msgpack:"ax"`
	AY float64 `json:"ay" msgpack:"ay"`
	BX float64 `json:"bx" msgpack:"bx"`
	BY float64 `json:"by" msgpack:"by"`
	NX float64 `json:"nx,omitempty" msgpack:"nx,omitempty"`
	NY float64 `json:"ny,omitempty" msgpack:"ny,omitempty"`
}

// FromObstacle converts a live obstacle back to its serialized form
func FromObstacle(o sim.Obstacle) Segment {
	return Segment{AX: o.A.X, AY: o.A.Y, BX: o.B.X, BY: o.B.Y, NX: o.Normal.X, NY: o.Normal.Y}
}

// Obstacle validates the segment and builds the sim obstacle
func (s Segment) Obstacle() (sim.Obstacle, error) {
	a, b := sim.V(s.AX, s.AY), sim.V(s.BX, s.BY)
	n := sim.V(s.NX, s.NY)
	if n.IsZero() {
		return sim.NewSegment(a, b)
	}
	return sim.NewObstacle(a, b, n)
}

// Level is an obstacle layout. It never carries particle state.
type Level struct {
	Name     string    `json:"name"`
	Width    float64   `json:"width"`
	Height   float64   `json:"height"`
	Segments []Segment `json:"segments"`
}

// Validate checks dimensions and every segment
func (l *Level) Validate() error {
	if len(l.Name) > maxLevelNameLen {
		return fmt.Errorf("level name longer than %d bytes", maxLevelNameLen)
	}
	if !(l.Width >= 0) || !(l.Height >= 0) || math.IsInf(l.Width, 0) || math.IsInf(l.Height, 0) {
		return fmt.Errorf("invalid level size %gx%g", l.Width, l.Height)
	}
	if len(l.Segments) > maxSegments {
		return fmt.Errorf("too many segments: %d > %d", len(l.Segments), maxSegments)
	}
	_, err := l.Obstacles()
	return err
}

// Obstacles converts every segment, failing on the first invalid one
func (l *Level) Obstacles() ([]sim.Obstacle, error) {
	out := make([]sim.Obstacle, 0, len(l.Segments))
	for i, s := range l.Segments {
		o, err := s.Obstacle()
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		out = append(out, o)
	}
	return out, nil
}

// Apply replaces the contents of set with this level's obstacles
func (l *Level) Apply(set *sim.ObstacleSet) error {
	obs, err := l.Obstacles()
	if err != nil {
		return err
	}
	return set.Replace(obs)
}

// Add appends a segment built by FromPoints
func (l *Level) Add(a, b sim.Vec2) {
	l.Segments = append(l.Segments, FromPoints(a, b))
}

// Center returns the middle of the board
func (l *Level) Center() sim.Vec2 {
	return sim.V(l.Width/2, l.Height/2)
}

// Capture builds a level from the current contents of set
func Capture(name string, width, height float64, set *sim.ObstacleSet) *Level {
	l := &Level{Name: name, Width: width, Height: height}
	for _, o := range set.Obstacles() {
		l.Segments = append(l.Segments, FromObstacle(o))
	}
	return l
}

// Parse decodes and validates a JSON level
func Parse(data []byte) (*Level, error) {
	var l Level
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decode level: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// Marshal encodes a level as indented JSON
func Marshal(l *Level) ([]byte, error) {
	return json.MarshalIndent(l, "", "  ")
}

// Load reads a level from a .json document or a .js script
func Load(path string) (*Level, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return Parse(data)
	case ".js":
		return RunScript(string(data))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// FromPoints returns a segment whose normal is the left perpendicular of b-a
func FromPoints(a, b sim.Vec2) Segment {
	n := b.Sub(a).Perp().Normalize()
	return Segment{AX: a.X, AY: a.Y, BX: b.X, BY: b.Y, NX: n.X, NY: n.Y}
}

// Box returns the four sides of a w×h rectangle centered on (cx, cy),
// with normals pointing away from it
func Box(cx, cy, w, h float64) []Segment {
	x0, y0 := cx-w/2, cy-h/2
	x1, y1 := cx+w/2, cy+h/2
	return []Segment{
		{AX: x0, AY: y0, BX: x1, BY: y0, NX: 0, NY: -1},
		{AX: x1, AY: y0, BX: x1, BY: y1, NX: 1, NY: 0},
		{AX: x1, AY: y1, BX: x0, BY: y1, NX: 0, NY: 1},
		{AX: x0, AY: y1, BX: x0, BY: y0, NX: -1, NY: 0},
	}
}

// Bounds returns the walls of a w×h board anchored at the origin, with
// normals pointing inward
func Bounds(w, h float64) []Segment {
	return []Segment{
		{AX: 0, AY: 0, BX: w, BY: 0, NX: 0, NY: 1},
		{AX: w, AY: 0, BX: w, BY: h, NX: -1, NY: 0},
		{AX: w, AY: h, BX: 0, BY: h, NX: 0, NY: -1},
		{AX: 0, AY: h, BX: 0, BY: 0, NX: 1, NY: 0},
	}
}

// Default is the stock 800×800 board with a 200×200 square in the middle
func Default() *Level {
	l := &Level{Name: DefaultName, Width: DefaultSize, Height: DefaultSize}
	l.Segments = append(l.Segments, Bounds(DefaultSize, DefaultSize)...)
	l.Segments = append(l.Segments, Box(DefaultSize/2, DefaultSize/2, DefaultBoxSize, DefaultBoxSize)...)
	return l
}
