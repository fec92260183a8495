package main

import (
	"math"

	"wavebounce/sim"
)

// densityRamp maps particle counts per cell to glyphs, sparse to dense
var densityRamp = []rune(" .:-=+*#%@")

// cell accumulates the particles that fall into one terminal cell
type cell struct {
	count int
	fade  float64 // brightest particle
}

// viewport maps world coordinates onto a cols×rows terminal grid. Terminal
// cells are about twice as tall as they are wide, so a row spans twice the
// world height of a column.
type viewport struct {
	X, Y  float64 // world coordinate of the top-left cell
	Scale float64 // world units per column
	Cols  int
	Rows  int
}

// fitViewport centers a w×h world region in a cols×rows grid
func fitViewport(w, h float64, cols, rows int) viewport {
	v := viewport{Cols: cols, Rows: rows, Scale: 1}
	if cols > 0 && rows > 0 && w > 0 && h > 0 {
		v.Scale = math.Max(w/float64(cols), h/(2*float64(rows)))
	}
	v.X = w/2 - v.Scale*float64(cols)/2
	v.Y = h/2 - 2*v.Scale*float64(rows)/2
	return v
}

// toCell returns the grid cell containing world point p
func (v viewport) toCell(p sim.Vec2) (int, int, bool) {
	cx := int(math.Floor((p.X - v.X) / v.Scale))
	cy := int(math.Floor((p.Y - v.Y) / (2 * v.Scale)))
	ok := cx >= 0 && cy >= 0 && cx < v.Cols && cy < v.Rows
	return cx, cy, ok
}

// toWorld returns the world point at the center of cell (cx, cy)
func (v viewport) toWorld(cx, cy int) sim.Vec2 {
	return sim.V(
		v.X+(float64(cx)+0.5)*v.Scale,
		v.Y+(float64(cy)+0.5)*2*v.Scale,
	)
}

// pan shifts the viewport by whole cells
func (v *viewport) pan(dc, dr int) {
	v.X += float64(dc) * v.Scale
	v.Y += float64(dr) * 2 * v.Scale
}

// rasterize bins particles into grid, reusing its storage
func rasterize(views []sim.ParticleView, v viewport, grid []cell) []cell {
	n := v.Cols * v.Rows
	if cap(grid) < n {
		grid = make([]cell, n)
	}
	grid = grid[:n]
	for i := range grid {
		grid[i] = cell{}
	}
	for _, p := range views {
		cx, cy, ok := v.toCell(p.Pos)
		if !ok {
			continue
		}
		c := &grid[cy*v.Cols+cx]
		c.count++
		if p.Fade > c.fade {
			c.fade = p.Fade
		}
	}
	return grid
}

// glyph picks a density character for a cell
func (c cell) glyph() rune {
	if c.count == 0 {
		return densityRamp[0]
	}
	// Logarithmic ramp: 1 particle is the lightest mark, 256+ the densest
	i := 1 + int(math.Log2(float64(c.count)))
	if i >= len(densityRamp) {
		i = len(densityRamp) - 1
	}
	return densityRamp[i]
}

// segmentCells returns the grid cells a world segment passes through
func segmentCells(v viewport, a, b sim.Vec2) [][2]int {
	ax, ay := (a.X-v.X)/v.Scale, (a.Y-v.Y)/(2*v.Scale)
	bx, by := (b.X-v.X)/v.Scale, (b.Y-v.Y)/(2*v.Scale)
	steps := int(math.Ceil(math.Max(math.Abs(bx-ax), math.Abs(by-ay))))
	if steps < 1 {
		steps = 1
	}

	var out [][2]int
	lastX, lastY := math.MinInt, math.MinInt
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		cx := int(math.Floor(ax + (bx-ax)*t))
		cy := int(math.Floor(ay + (by-ay)*t))
		if cx == lastX && cy == lastY {
			continue
		}
		lastX, lastY = cx, cy
		if cx >= 0 && cy >= 0 && cx < v.Cols && cy < v.Rows {
			out = append(out, [2]int{cx, cy})
		}
	}
	return out
}
