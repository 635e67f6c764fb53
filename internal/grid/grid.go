// Package grid is the node-graph rail map: a fixed-size grid where each cell declares
// which of its four cardinal edges are open. An edge is traversable only when both
// endpoint cells agree it is open.
package grid

import (
	"errors"
	"fmt"

	"railnav/internal/geom"
)

var (
	ErrDimensions = errors.New("grid: width and height must be positive")
	ErrCellCount  = errors.New("grid: cell count does not match width*height")
	ErrCellSize   = errors.New("grid: cell size must be positive")
	ErrAsymmetric = errors.New("grid: asymmetric edges")
)

// Cell holds the four independently authored open flags.
type Cell struct {
	N bool `json:"n" yaml:"n"`
	E bool `json:"e" yaml:"e"`
	S bool `json:"s" yaml:"s"`
	W bool `json:"w" yaml:"w"`
}

func (c Cell) Open(d Dir) bool {
	switch d {
	case North:
		return c.N
	case East:
		return c.E
	case South:
		return c.S
	case West:
		return c.W
	default:
		return false
	}
}

func (c *Cell) Set(d Dir, open bool) {
	switch d {
	case North:
		c.N = open
	case East:
		c.E = open
	case South:
		c.S = open
	case West:
		c.W = open
	}
}

// Map is a row-major grid (index = x + y*Width) placed in world space at Origin.
type Map struct {
	Width    int
	Height   int
	CellSize float64
	Origin   geom.Vec3
	Cells    []Cell
}

// New returns a map with every interior edge open and border flags closed.
func New(width, height int, cellSize float64) *Map {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	m := &Map{Width: width, Height: height, CellSize: cellSize, Cells: make([]Cell, width*height)}
	for i := range m.Cells {
		m.Cells[i] = Cell{N: true, E: true, S: true, W: true}
	}
	m.NormalizeBorders()
	return m
}

// Validate reports structural inconsistencies. The query methods never fail; they treat
// an inconsistent map as having no edges.
func (m *Map) Validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return ErrDimensions
	}
	if len(m.Cells) != m.Width*m.Height {
		return fmt.Errorf("%w: have %d, want %d", ErrCellCount, len(m.Cells), m.Width*m.Height)
	}
	if m.CellSize <= 0 {
		return ErrCellSize
	}
	return nil
}

func (m *Map) consistent() bool {
	return m != nil && m.Width > 0 && m.Height > 0 && len(m.Cells) == m.Width*m.Height
}

func (m *Map) InBounds(c Coord) bool {
	return m != nil && c.X >= 0 && c.Y >= 0 && c.X < m.Width && c.Y < m.Height
}

func (m *Map) Index(c Coord) int { return c.X + c.Y*m.Width }

func (m *Map) Cell(c Coord) (Cell, bool) {
	if !m.consistent() || !m.InBounds(c) {
		return Cell{}, false
	}
	return m.Cells[m.Index(c)], true
}

// HasEdge reports whether a traversable edge leaves c toward d.
func (m *Map) HasEdge(c Coord, d Dir) bool {
	if !m.consistent() {
		return false
	}
	nb := c.Step(d)
	if !m.InBounds(c) || !m.InBounds(nb) {
		return false
	}
	return m.Cells[m.Index(c)].Open(d) && m.Cells[m.Index(nb)].Open(d.Opposite())
}

// Neighbors lists the directions with a traversable edge, in N,E,S,W order.
func (m *Map) Neighbors(c Coord) []Dir {
	var out []Dir
	for _, d := range AllDirs {
		if m.HasEdge(c, d) {
			out = append(out, d)
		}
	}
	return out
}

// WorldPos maps a grid coordinate to Origin + (x*CellSize, 0, y*CellSize).
func (m *Map) WorldPos(c Coord) geom.Vec3 {
	return m.Origin.Add(geom.V(float64(c.X)*m.CellSize, 0, float64(c.Y)*m.CellSize))
}

func (m *Map) onBorder(c Coord, d Dir) bool {
	return m.InBounds(c) && !m.InBounds(c.Step(d))
}

// NormalizeBorders forces every outward-facing border flag false and returns how many
// flags it changed.
func (m *Map) NormalizeBorders() int {
	if !m.consistent() {
		return 0
	}
	changed := 0
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			c := C(x, y)
			cell := &m.Cells[m.Index(c)]
			for _, d := range AllDirs {
				if m.onBorder(c, d) && cell.Open(d) {
					cell.Set(d, false)
					changed++
				}
			}
		}
	}
	return changed
}

// SetEdge writes both sides of the edge between c and its neighbour toward d. Edges
// that would leave the grid are always written closed.
func (m *Map) SetEdge(c Coord, d Dir, open bool) {
	if !m.consistent() || !m.InBounds(c) {
		return
	}
	nb := c.Step(d)
	if !m.InBounds(nb) {
		m.Cells[m.Index(c)].Set(d, false)
		return
	}
	m.Cells[m.Index(c)].Set(d, open)
	m.Cells[m.Index(nb)].Set(d.Opposite(), open)
}

// Asymmetry is an adjacent pair whose two flags disagree. From is always the west or
// south cell of the pair and Dir is East or North.
type Asymmetry struct {
	From     Coord `json:"from"`
	Dir      Dir   `json:"dir"`
	FromOpen bool  `json:"from_open"`
	ToOpen   bool  `json:"to_open"`
}

func (a Asymmetry) String() string {
	return fmt.Sprintf("%s->%s %s=%t back=%t", a.From, a.From.Step(a.Dir), a.Dir, a.FromOpen, a.ToOpen)
}

func (m *Map) Asymmetries() []Asymmetry {
	if !m.consistent() {
		return nil
	}
	var out []Asymmetry
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			c := C(x, y)
			for _, d := range [2]Dir{East, North} {
				nb := c.Step(d)
				if !m.InBounds(nb) {
					continue
				}
				a := m.Cells[m.Index(c)].Open(d)
				b := m.Cells[m.Index(nb)].Open(d.Opposite())
				if a != b {
					out = append(out, Asymmetry{From: c, Dir: d, FromOpen: a, ToOpen: b})
				}
			}
		}
	}
	return out
}

// SymmetryPolicy decides what loading does with one-sided edges.
type SymmetryPolicy string

const (
	// SymmetryKeep leaves authored flags alone; the runtime reports such edges as absent.
	SymmetryKeep SymmetryPolicy = "keep"
	// SymmetryClose closes both sides, which is exactly what the runtime would observe.
	SymmetryClose SymmetryPolicy = "close"
	// SymmetryReject fails the load.
	SymmetryReject SymmetryPolicy = "reject"
)

func ParseSymmetryPolicy(s string) (SymmetryPolicy, error) {
	switch SymmetryPolicy(s) {
	case "":
		return SymmetryClose, nil
	case SymmetryKeep, SymmetryClose, SymmetryReject:
		return SymmetryPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown symmetry policy %q", s)
	}
}

// Symmetrize applies policy and returns the asymmetries it found.
func (m *Map) Symmetrize(policy SymmetryPolicy) ([]Asymmetry, error) {
	asym := m.Asymmetries()
	if len(asym) == 0 {
		return nil, nil
	}
	switch policy {
	case SymmetryReject:
		return asym, fmt.Errorf("%w: %d pair(s), first %s", ErrAsymmetric, len(asym), asym[0])
	case SymmetryClose:
		for _, a := range asym {
			m.SetEdge(a.From, a.Dir, false)
		}
	}
	return asym, nil
}

// Clone returns a deep copy.
func (m *Map) Clone() *Map {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Cells = append([]Cell(nil), m.Cells...)
	return &cp
}
