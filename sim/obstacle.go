package sim

import (
	"errors"
	"fmt"
	"math"
)

// normalTolerance is how far a stored normal's length may drift from 1
const normalTolerance = 1e-6

// ErrInvalidObstacle is returned for zero-length segments or unusable normals
var ErrInvalidObstacle = errors.New("invalid obstacle")

// ObstacleID identifies an obstacle within its set
type ObstacleID uint32

// Obstacle is a static line segment that particles reflect off
type Obstacle struct {
	ID     ObstacleID
	A, B   Vec2
	Normal Vec2 // unit length
}

// NewObstacle validates a segment and normalizes its reflection normal
func NewObstacle(a, b, normal Vec2) (Obstacle, error) {
	if !a.IsFinite() || !b.IsFinite() || !normal.IsFinite() {
		return Obstacle{}, fmt.Errorf("%w: non-finite coordinates", ErrInvalidObstacle)
	}
	if a == b {
		return Obstacle{}, fmt.Errorf("%w: zero-length segment at (%g,%g)", ErrInvalidObstacle, a.X, a.Y)
	}
	n := normal.Normalize()
	if n.IsZero() {
		return Obstacle{}, fmt.Errorf("%w: zero normal", ErrInvalidObstacle)
	}
	return Obstacle{A: a, B: b, Normal: n}, nil
}

// validate checks an obstacle before it may enter a set
func (o Obstacle) validate() error {
	if !o.A.IsFinite() || !o.B.IsFinite() || !o.Normal.IsFinite() {
		return fmt.Errorf("%w: non-finite coordinates", ErrInvalidObstacle)
	}
	if o.A == o.B {
		return fmt.Errorf("%w: zero-length segment at (%g,%g)", ErrInvalidObstacle, o.A.X, o.A.Y)
	}
	if math.Abs(o.Normal.Len()-1) > normalTolerance {
		return fmt.Errorf("%w: normal (%g,%g) is not unit length", ErrInvalidObstacle, o.Normal.X, o.Normal.Y)
	}
	return nil
}

// NewSegment builds an obstacle whose normal is the left perpendicular of b-a
func NewSegment(a, b Vec2) (Obstacle, error) {
	return NewObstacle(a, b, b.Sub(a).Perp())
}

// Length returns the segment length
func (o Obstacle) Length() float64 {
	return o.A.Dist(o.B)
}

// DistanceTo returns the distance from p to the closest point on the segment
func (o Obstacle) DistanceTo(p Vec2) float64 {
	e := o.B.Sub(o.A)
	t := p.Sub(o.A).Dot(e) / e.LenSq()
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return o.A.Add(e.Scale(t)).Dist(p)
}

// ObstacleSet is the collection of obstacles a world predicts against.
// It is not safe for concurrent mutation; change it only between ticks.
type ObstacleSet struct {
	items   []Obstacle
	nextID  ObstacleID
	version uint64

	index        obstacleIndex
	indexVersion uint64
	indexBuf     []int
}

// NewObstacleSet creates an empty set
func NewObstacleSet() *ObstacleSet {
	return &ObstacleSet{}
}

// Version changes on every structural mutation
func (s *ObstacleSet) Version() uint64 {
	return s.version
}

// Len returns the number of obstacles
func (s *ObstacleSet) Len() int {
	return len(s.items)
}

// Obstacles returns the backing slice, valid until the next mutation.
// Callers must not modify it.
func (s *ObstacleSet) Obstacles() []Obstacle {
	return s.items
}

// Add inserts an obstacle and returns its assigned ID
func (s *ObstacleSet) Add(o Obstacle) (ObstacleID, error) {
	if err := o.validate(); err != nil {
		return 0, err
	}
	s.nextID++
	o.ID = s.nextID
	s.items = append(s.items, o)
	s.version++
	return o.ID, nil
}

// validateAll checks every obstacle, naming the first bad one
func validateAll(obstacles []Obstacle) error {
	for i, o := range obstacles {
		if err := o.validate(); err != nil {
			return fmt.Errorf("obstacle %d: %w", i, err)
		}
	}
	return nil
}

// AddAll inserts several obstacles under a single version bump.
// Nothing is added if any of them is invalid.
func (s *ObstacleSet) AddAll(obstacles []Obstacle) error {
	if len(obstacles) == 0 {
		return nil
	}
	if err := validateAll(obstacles); err != nil {
		return err
	}
	for _, o := range obstacles {
		s.nextID++
		o.ID = s.nextID
		s.items = append(s.items, o)
	}
	s.version++
	return nil
}

// Remove deletes the obstacle with the given ID, keeping iteration order
func (s *ObstacleSet) Remove(id ObstacleID) bool {
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			s.version++
			return true
		}
	}
	return false
}

// Replace swaps the whole contents of the set. The set is left
// untouched if any of the new obstacles is invalid.
func (s *ObstacleSet) Replace(obstacles []Obstacle) error {
	if err := validateAll(obstacles); err != nil {
		return err
	}
	items := make([]Obstacle, 0, len(obstacles))
	for _, o := range obstacles {
		s.nextID++
		o.ID = s.nextID
		items = append(items, o)
	}
	s.items = items
	s.version++
	return nil
}

// Clear removes every obstacle
func (s *ObstacleSet) Clear() {
	s.items = nil
	s.version++
}

// Get returns the obstacle with the given ID
func (s *ObstacleSet) Get(id ObstacleID) (Obstacle, bool) {
	for _, o := range s.items {
		if o.ID == id {
			return o, true
		}
	}
	return Obstacle{}, false
}

// Nearest returns the obstacle closest to p within radius
func (s *ObstacleSet) Nearest(p Vec2, radius float64) (Obstacle, bool) {
	if len(s.items) == 0 || !p.IsFinite() || !(radius >= 0) {
		return Obstacle{}, false
	}
	if s.indexVersion != s.version || s.index.cells == nil {
		s.index.Rebuild(s.items)
		s.indexVersion = s.version
	}
	s.indexBuf = s.index.QueryBuf(p, radius, s.indexBuf[:0])

	// Cells overlap, so an index may appear more than once
	best := -1
	bestDist := 0.0
	for _, idx := range s.indexBuf {
		d := s.items[idx].DistanceTo(p)
		if !(d <= radius) {
			continue
		}
		if best < 0 || d < bestDist || (d == bestDist && idx < best) {
			best = idx
			bestDist = d
		}
	}
	if best < 0 {
		return Obstacle{}, false
	}
	return s.items[best], true
}
