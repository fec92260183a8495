package sim

import "math"

const (
	IndexCellSize = 64.0 // edge length of a broad-phase cell in world units
	maxCellSpan   = 256  // boxes wider than this many cells skip the grid
)

type cellKey struct {
	X, Y int64
}

// obstacleIndex is a sparse uniform grid over obstacle bounding boxes, used
// for editor picking. Cells hold indices into the owning set's slice.
type obstacleIndex struct {
	cells map[cellKey][]int
	wide  []int // checked by every query
	n     int
}

func cellCoord(v float64) int64 {
	return int64(math.Floor(v / IndexCellSize))
}

// Clear resets all cells (keeps allocated capacity)
func (g *obstacleIndex) Clear() {
	g.wide = g.wide[:0]
	g.n = 0
	if g.cells == nil {
		g.cells = make(map[cellKey][]int)
		return
	}
	for k, v := range g.cells {
		g.cells[k] = v[:0]
	}
}

// Rebuild indexes every obstacle in items
func (g *obstacleIndex) Rebuild(items []Obstacle) {
	g.Clear()
	g.n = len(items)
	for i, o := range items {
		g.InsertBox(math.Min(o.A.X, o.B.X), math.Min(o.A.Y, o.B.Y),
			math.Max(o.A.X, o.B.X), math.Max(o.A.Y, o.B.Y), i)
	}
}

// InsertBox adds idx to all cells overlapping the box
func (g *obstacleIndex) InsertBox(minX, minY, maxX, maxY float64, idx int) {
	minCX, maxCX := cellCoord(minX), cellCoord(maxX)
	minCY, maxCY := cellCoord(minY), cellCoord(maxY)
	if maxCX-minCX > maxCellSpan || maxCY-minCY > maxCellSpan {
		g.wide = append(g.wide, idx)
		return
	}
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			k := cellKey{cx, cy}
			g.cells[k] = append(g.cells[k], idx)
		}
	}
}

// QueryBuf appends candidate indices near p to buf, avoiding per-call allocation
func (g *obstacleIndex) QueryBuf(p Vec2, radius float64, buf []int) []int {
	minCX, maxCX := cellCoord(p.X-radius), cellCoord(p.X+radius)
	minCY, maxCY := cellCoord(p.Y-radius), cellCoord(p.Y+radius)
	if maxCX-minCX > maxCellSpan || maxCY-minCY > maxCellSpan {
		for i := 0; i < g.n; i++ {
			buf = append(buf, i)
		}
		return buf
	}
	buf = append(buf, g.wide...)
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			buf = append(buf, g.cells[cellKey{cx, cy}]...)
		}
	}
	return buf
}
