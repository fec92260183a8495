package sim

// Handle is a stable particle identifier, unique within a World
type Handle uint64

// Particle is a point mover that predicts and resolves its own collisions
type Particle struct {
	ID          Handle
	Pos         Vec2
	Dir         Vec2 // unit length; changed only by reflection
	Speed       float64
	Life        float64 // seconds remaining
	InitialLife float64

	// TimeToCollision is 0 when nothing is pending, otherwise the seconds
	// until the particle reaches CollisionPoint on its current trajectory
	TimeToCollision float64
	ReboundNormal   Vec2
	CollisionPoint  Vec2
	NeedsPrediction bool
	SeenVersion     uint64 // obstacle-set version the prediction was made against

	Bounces int
	Alive   bool
}

// Frame carries the per-tick inputs shared by every particle
type Frame struct {
	DT        float64
	Obstacles []Obstacle
	Version   uint64
	LifeLoss  float64 // fraction of remaining life lost per bounce
	SpeedLoss float64 // fraction of speed lost per bounce
}

// Step reports what happened to one particle during Update
type Step struct {
	Bounced    bool
	Expired    bool
	Degenerate int
}

// Fade returns remaining life as a fraction of the initial life in [0, 1]
func (p *Particle) Fade() float64 {
	if p.InitialLife <= 0 {
		return 0
	}
	f := p.Life / p.InitialLife
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// HasPending reports whether a collision is scheduled
func (p *Particle) HasPending() bool {
	return p.TimeToCollision > 0
}

// invalidate drops any scheduled collision so the next Update re-predicts
func (p *Particle) invalidate() {
	p.TimeToCollision = 0
	p.ReboundNormal = Vec2{}
	p.NeedsPrediction = true
}

// Update advances the particle by f.DT: predict, advance, resolve, move, decay
func (p *Particle) Update(f *Frame) Step {
	var st Step
	if !p.Alive {
		return st
	}

	if p.SeenVersion != f.Version {
		p.invalidate()
		p.SeenVersion = f.Version
	}
	if p.NeedsPrediction {
		c, hit, degenerate := predict(*p, f.Obstacles)
		st.Degenerate = degenerate
		if hit {
			p.TimeToCollision = c.Distance / p.Speed
			p.ReboundNormal = c.Normal
			p.CollisionPoint = c.Point
		}
		p.NeedsPrediction = false
	}

	moveTime := f.DT
	if p.TimeToCollision > 0 {
		p.TimeToCollision -= f.DT
		// Reaching exactly zero counts as arrival, otherwise the pending
		// collision would read as "none" and the particle would tunnel
		if p.TimeToCollision <= 0 {
			moveTime = p.clampAfterBounce(p.bounce(f), f.Obstacles)
			st.Bounced = true
		}
	}

	p.Pos = p.Pos.Add(p.Dir.Scale(p.Speed * moveTime))

	p.Life -= f.DT
	if p.Life < 0 {
		p.Alive = false
		st.Expired = true
	}
	return st
}

// bounce resolves a collision reached this tick and returns the time left
// to travel after the impact
func (p *Particle) bounce(f *Frame) float64 {
	overshoot := -p.TimeToCollision

	p.Pos = p.CollisionPoint
	p.Dir = p.Dir.Reflect(p.ReboundNormal)

	if f.LifeLoss > 0 {
		p.Life -= p.Life * f.LifeLoss
	}
	if f.SpeedLoss > 0 {
		p.Speed *= 1 - f.SpeedLoss
	}

	p.TimeToCollision = 0
	p.ReboundNormal = Vec2{}
	p.NeedsPrediction = true
	p.Bounces++
	return overshoot
}

// clampAfterBounce limits the post-impact travel so a second wall reached
// within the same tick is not crossed. The particle stops halfway to it and
// the next prediction, made from there, still sees the wall ahead.
func (p *Particle) clampAfterBounce(moveTime float64, obstacles []Obstacle) float64 {
	if moveTime <= 0 || p.Speed <= 0 {
		return moveTime
	}
	c, hit, _ := predict(*p, obstacles)
	if !hit {
		return moveTime
	}
	if t := c.Distance / p.Speed; t <= moveTime {
		if c.Distance/2 <= rayEpsilon {
			return 0
		}
		return t / 2
	}
	return moveTime
}
