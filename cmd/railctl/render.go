package main

import (
	"math"

	"railnav/internal/geom"
	"railnav/internal/grid"
	"railnav/internal/track"
)

// canvas is a fixed rune raster; row 0 is the top line of the screen.
type canvas [][]rune

func newCanvas(w, h int) canvas {
	c := make(canvas, h)
	for y := range c {
		c[y] = make([]rune, w)
		for x := range c[y] {
			c[y][x] = ' '
		}
	}
	return c
}

func (c canvas) set(x, y int, r rune) {
	if y < 0 || y >= len(c) || x < 0 || x >= len(c[y]) {
		return
	}
	c[y][x] = r
}

func (c canvas) lines() []string {
	out := make([]string, len(c))
	for i, row := range c {
		out[i] = string(row)
	}
	return out
}

// gridCanvas draws cells as '+' two columns and two rows apart, with '-' and '|' for
// open edges. North is up.
func gridCanvas(m *grid.Map) canvas {
	if m.Width == 0 || m.Height == 0 {
		return newCanvas(0, 0)
	}
	c := newCanvas(2*m.Width-1, 2*m.Height-1)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			at := grid.C(x, y)
			col, row := 2*x, 2*(m.Height-1-y)
			c.set(col, row, '+')
			if m.HasEdge(at, grid.East) {
				c.set(col+1, row, '-')
			}
			if m.HasEdge(at, grid.North) {
				c.set(col, row-1, '|')
			}
		}
	}
	return c
}

// gridCell projects a world position onto gridCanvas coordinates, rounding to the
// nearest half cell so a rider between two nodes lands on the edge glyph.
func gridCell(m *grid.Map, p geom.Vec3) (col, row int) {
	fx := (p.X - m.Origin.X) / m.CellSize
	fz := (p.Z - m.Origin.Z) / m.CellSize
	col = int(math.Round(2 * fx))
	row = 2*(m.Height-1) - int(math.Round(2*fz))
	return col, row
}

func facingGlyph(d grid.Dir) rune {
	switch d {
	case grid.North:
		return '^'
	case grid.East:
		return '>'
	case grid.South:
		return 'v'
	default:
		return '<'
	}
}

// yawGlyph picks the arrow closest to a yaw in degrees (0 = +Z, 90 = +X).
func yawGlyph(yaw float64) rune {
	q := int(math.Round(yaw/90)) % 4
	if q < 0 {
		q += 4
	}
	return facingGlyph(grid.Dir(q))
}

// projection maps the X/Z plane of a track into a w×h canvas, +Z up.
type projection struct {
	minX, minZ float64
	scale      float64
	h          int
}

func newProjection(t *track.Track, w, h int) projection {
	minX, minZ := math.Inf(1), math.Inf(1)
	maxX, maxZ := math.Inf(-1), math.Inf(-1)
	visit := func(p geom.Vec3) {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minZ, maxZ = math.Min(minZ, p.Z), math.Max(maxZ, p.Z)
	}
	for _, n := range t.Main {
		visit(n.Pos)
	}
	for _, b := range t.Branches {
		for _, n := range b.Nodes {
			visit(n.Pos)
		}
	}
	spanX, spanZ := math.Max(maxX-minX, 1e-9), math.Max(maxZ-minZ, 1e-9)
	scale := math.Min(float64(w-1)/spanX, float64(h-1)/spanZ)
	if scale <= 0 || math.IsInf(scale, 0) || math.IsNaN(scale) {
		scale = 1
	}
	return projection{minX: minX, minZ: minZ, scale: scale, h: h}
}

func (p projection) at(v geom.Vec3) (col, row int) {
	col = int(math.Round((v.X - p.minX) * p.scale))
	row = p.h - 1 - int(math.Round((v.Z-p.minZ)*p.scale))
	return col, row
}

// trackCanvas rasterizes main ('#'), branches ('.') and nodes ('o').
func trackCanvas(t *track.Track, w, h int) (canvas, projection) {
	c := newCanvas(w, h)
	p := newProjection(t, w, h)

	drawPath := func(pts []geom.Vec3, r rune) {
		for i := 0; i+1 < len(pts); i++ {
			a, b := pts[i], pts[i+1]
			steps := int(math.Ceil(a.Dist(b)*p.scale)) + 1
			for s := 0; s <= steps; s++ {
				col, row := p.at(a.Lerp(b, float64(s)/float64(steps)))
				c.set(col, row, r)
			}
		}
	}
	for i := range t.Branches {
		drawPath(t.BranchPath(i).Nodes, '.')
	}
	drawPath(t.MainPath().Nodes, '#')
	for _, n := range t.Main {
		col, row := p.at(n.Pos)
		c.set(col, row, 'o')
	}
	for _, j := range t.Junctions() {
		col, row := p.at(t.Main[j.Node].Pos)
		c.set(col, row, '*')
	}
	return c, p
}
