package sim

import "math"

const (
	// rayEpsilon excludes hits at the ray origin, so a particle that was just
	// snapped onto a segment does not collide with it again
	rayEpsilon = 1e-7
	// parallelEpsilon is the |sin| below which ray and segment are parallel
	parallelEpsilon = 1e-12
	// segmentSlack widens u in [0,1] so endpoints shared by two segments
	// cannot leak a ray through the gap
	segmentSlack = 1e-9
)

// Collision is a predicted impact along a particle's current trajectory
type Collision struct {
	Point    Vec2
	Normal   Vec2
	Distance float64
	Obstacle ObstacleID
}

// hitKind classifies a ray-vs-segment test
type hitKind int

const (
	hitNone hitKind = iota
	hitPoint
	hitCollinear
)

// intersectRay tests the ray origin+t*dir (t > 0) against segment a-b.
// For hitPoint it returns the ray parameter t.
func intersectRay(origin, dir, a, b Vec2) (float64, hitKind) {
	e := b.Sub(a)
	qp := a.Sub(origin)
	denom := dir.Cross(e)
	scale := dir.Len() * e.Len()

	if math.Abs(denom) <= parallelEpsilon*scale {
		// Parallel. Collinear only if a lies on the ray's line.
		if math.Abs(qp.Cross(dir)) > parallelEpsilon*scale*math.Max(1, qp.Len()) {
			return 0, hitNone
		}
		ta := qp.Dot(dir)
		tb := b.Sub(origin).Dot(dir)
		if math.Max(ta, tb) > rayEpsilon {
			return 0, hitCollinear
		}
		return 0, hitNone
	}

	t := qp.Cross(e) / denom
	u := qp.Cross(dir) / denom
	if t <= rayEpsilon || u < -segmentSlack || u > 1+segmentSlack {
		return 0, hitNone
	}
	return t, hitPoint
}

// Predict returns the earliest collision along p's trajectory, if any.
// It only reads its arguments and may be called concurrently.
func Predict(p Particle, obstacles []Obstacle) (Collision, bool) {
	c, ok, _ := predict(p, obstacles)
	return c, ok
}

// predict also reports how many collinear overlaps were skipped
func predict(p Particle, obstacles []Obstacle) (Collision, bool, int) {
	var best Collision
	found := false
	degenerate := 0
	dirLen := p.Dir.Len()
	if dirLen == 0 || p.Speed <= 0 {
		return best, false, 0
	}

	for _, o := range obstacles {
		t, kind := intersectRay(p.Pos, p.Dir, o.A, o.B)
		switch kind {
		case hitCollinear:
			degenerate++
			continue
		case hitNone:
			continue
		}
		dist := t * dirLen
		// Same speed for every candidate, so the nearest is also the soonest.
		// Strict comparison keeps the first obstacle on ties.
		if !found || dist < best.Distance {
			best = Collision{
				Point:    p.Pos.Add(p.Dir.Scale(t)),
				Normal:   o.Normal,
				Distance: dist,
				Obstacle: o.ID,
			}
			found = true
		}
	}
	return best, found, degenerate
}
