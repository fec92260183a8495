package main

import (
	"math"
	"testing"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCameraRoundTrip(t *testing.T) {
	c := NewCamera(1024, 768)
	c.X, c.Y, c.Zoom = 120, -40, 2.5

	sx, sy := c.WorldToScreen(300, 200)
	wx, wy := c.ScreenToWorld(sx, sy)
	if !near(wx, 300) || !near(wy, 200) {
		t.Errorf("round trip = (%g,%g), want (300,200)", wx, wy)
	}

	// The camera position maps to the screen center
	cx, cy := c.WorldToScreen(c.X, c.Y)
	if !near(cx, 512) || !near(cy, 384) {
		t.Errorf("center = (%g,%g)", cx, cy)
	}
}

func TestCameraFit(t *testing.T) {
	c := NewCamera(1000, 500)
	c.Fit(800, 800)
	if c.X != 400 || c.Y != 400 {
		t.Errorf("center = (%g,%g)", c.X, c.Y)
	}
	if !near(c.Zoom, 0.95*500.0/800.0) {
		t.Errorf("zoom = %g", c.Zoom)
	}
	_, top := c.WorldToScreen(0, 0)
	_, bottom := c.WorldToScreen(0, 800)
	if top < 0 || bottom > 500 {
		t.Errorf("world does not fit vertically: %g..%g", top, bottom)
	}
}

func TestCameraZoomAtKeepsPoint(t *testing.T) {
	c := NewCamera(800, 600)
	c.Fit(800, 800)
	wx, wy := c.ScreenToWorld(100, 50)
	c.ZoomAt(100, 50, 1.5)
	gx, gy := c.ScreenToWorld(100, 50)
	if !near(wx, gx) || !near(wy, gy) {
		t.Errorf("point under cursor moved from (%g,%g) to (%g,%g)", wx, wy, gx, gy)
	}
}

func TestCameraZoomClamped(t *testing.T) {
	c := NewCamera(800, 600)
	c.ZoomAt(0, 0, 1e6)
	if c.Zoom != maxZoom {
		t.Errorf("zoom = %g, want %g", c.Zoom, maxZoom)
	}
	c.ZoomAt(0, 0, 1e-9)
	if c.Zoom != minZoom {
		t.Errorf("zoom = %g, want %g", c.Zoom, minZoom)
	}
}
