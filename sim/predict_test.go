package sim

import "testing"

// wallAt50 is the vertical segment from the reference scenario
func wallAt50(t *testing.T) Obstacle {
	return mustObstacle(t, V(50, -10), V(50, 10), V(-1, 0))
}

func mover(pos, dir Vec2, speed float64) Particle {
	return Particle{Pos: pos, Dir: dir, Speed: speed, Life: 10, InitialLife: 10, NeedsPrediction: true, Alive: true}
}

func TestPredictScenario(t *testing.T) {
	s := mustSet(t, wallAt50(t))
	c, ok := Predict(mover(V(0, 0), V(1, 0), 100), s.Obstacles())
	if !ok {
		t.Fatal("expected a collision")
	}
	if !vecApprox(c.Point, V(50, 0)) {
		t.Errorf("point = %v, want (50,0)", c.Point)
	}
	if !approx(c.Distance, 50) {
		t.Errorf("distance = %f, want 50", c.Distance)
	}
	if !vecApprox(c.Normal, V(-1, 0)) {
		t.Errorf("normal = %v, want (-1,0)", c.Normal)
	}
}

func TestPredictMiss(t *testing.T) {
	obs := []Obstacle{wallAt50(t)}
	tests := []struct {
		name string
		p    Particle
	}{
		{"moving away", mover(V(0, 0), V(-1, 0), 100)},
		{"passes above", mover(V(0, 20), V(1, 0), 100)},
		{"parallel", mover(V(40, -20), V(0, 1), 100)},
		{"zero speed", mover(V(0, 0), V(1, 0), 0)},
	}
	for _, tt := range tests {
		if c, ok := Predict(tt.p, obs); ok {
			t.Errorf("%s: unexpected collision %+v", tt.name, c)
		}
	}
}

func TestPredictNoRangeLimit(t *testing.T) {
	far := mustObstacle(t, V(1e7, -1), V(1e7, 1), V(-1, 0))
	c, ok := Predict(mover(V(0, 0), V(1, 0), 100), []Obstacle{far})
	if !ok || !approx(c.Distance, 1e7) {
		t.Errorf("expected distant hit at 1e7, got %v %v", c.Distance, ok)
	}
}

func TestPredictEarliest(t *testing.T) {
	farther := mustObstacle(t, V(80, -10), V(80, 10), V(-1, 0))
	nearer := wallAt50(t)
	s := mustSet(t, farther, nearer)
	c, ok := Predict(mover(V(0, 0), V(1, 0), 100), s.Obstacles())
	if !ok {
		t.Fatal("expected collision")
	}
	if c.Obstacle != s.Obstacles()[1].ID {
		t.Errorf("selected obstacle %d, want the nearer one", c.Obstacle)
	}
	if !approx(c.Distance, 50) {
		t.Errorf("distance = %f, want 50", c.Distance)
	}
}

func TestPredictTieKeepsFirst(t *testing.T) {
	a := mustObstacle(t, V(50, -10), V(50, 0), V(-1, 0))
	b := mustObstacle(t, V(50, 0), V(50, 10), V(-1, 0))
	s := mustSet(t, a, b)
	c, ok := Predict(mover(V(0, 0), V(1, 0), 100), s.Obstacles())
	if !ok {
		t.Fatal("expected collision at shared endpoint")
	}
	if c.Obstacle != s.Obstacles()[0].ID {
		t.Errorf("tie went to %d, want first obstacle", c.Obstacle)
	}
}

func TestPredictCollinearIsDegenerate(t *testing.T) {
	along := mustObstacle(t, V(10, 0), V(30, 0), V(0, 1))
	c, ok, degenerate := predict(mover(V(0, 0), V(1, 0), 100), []Obstacle{along, wallAt50(t)})
	if degenerate != 1 {
		t.Errorf("degenerate = %d, want 1", degenerate)
	}
	if !ok || !approx(c.Distance, 50) {
		t.Errorf("collinear segment should be skipped, got %v %v", c.Distance, ok)
	}

	behind := mustObstacle(t, V(-30, 0), V(-10, 0), V(0, 1))
	if _, _, d := predict(mover(V(0, 0), V(1, 0), 100), []Obstacle{behind}); d != 0 {
		t.Errorf("collinear segment behind the ray counted as degenerate")
	}
}

func TestPredictIgnoresOrigin(t *testing.T) {
	// A particle resting on the wall and heading away must not re-hit it
	_, ok := Predict(mover(V(50, 0), V(-1, 0), 100), []Obstacle{wallAt50(t)})
	if ok {
		t.Error("particle on the segment should not collide with it again")
	}
}
