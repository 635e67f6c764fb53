package grid

import (
	"errors"
	"testing"

	"railnav/internal/geom"
)

func openMap(w, h int) *Map {
	m := &Map{Width: w, Height: h, CellSize: 1, Cells: make([]Cell, w*h)}
	for i := range m.Cells {
		m.Cells[i] = Cell{N: true, E: true, S: true, W: true}
	}
	return m
}

func TestNormalizeBorders_ClosesOutwardFlags(t *testing.T) {
	m := openMap(3, 3)
	changed := m.NormalizeBorders()
	// 3 cells per side, 4 sides.
	if changed != 12 {
		t.Fatalf("changed=%d want 12", changed)
	}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			c := C(x, y)
			cell, _ := m.Cell(c)
			for _, d := range AllDirs {
				if !m.InBounds(c.Step(d)) && cell.Open(d) {
					t.Fatalf("border flag %s open at %s", d, c)
				}
			}
		}
	}
	if again := m.NormalizeBorders(); again != 0 {
		t.Fatalf("second pass changed %d flags", again)
	}
}

func TestHasEdge_OneSidedNorthIsClosed(t *testing.T) {
	m := openMap(3, 3)
	m.NormalizeBorders()
	c := m.Cells[m.Index(C(1, 1))]
	c.N = false
	m.Cells[m.Index(C(1, 1))] = c
	if cell, _ := m.Cell(C(1, 2)); !cell.S {
		t.Fatalf("precondition: (1,2).S should stay open")
	}

	if m.HasEdge(C(1, 1), North) {
		t.Fatalf("HasEdge((1,1),N) must be false when closed on one side")
	}
	if m.HasEdge(C(1, 2), South) {
		t.Fatalf("HasEdge((1,2),S) must be false for the same asymmetric pair")
	}
	if !m.HasEdge(C(1, 1), East) {
		t.Fatalf("unrelated edge should stay open")
	}
}

func TestHasEdge_OutOfBoundsAndInconsistent(t *testing.T) {
	m := openMap(2, 2)
	if m.HasEdge(C(1, 1), North) {
		t.Fatalf("edge leaving grid reported open")
	}
	if m.HasEdge(C(-1, 0), East) {
		t.Fatalf("out-of-bounds origin reported open")
	}
	m.Cells = m.Cells[:3]
	if m.HasEdge(C(0, 0), East) {
		t.Fatalf("inconsistent map should report no edges")
	}
	if n := m.NormalizeBorders(); n != 0 {
		t.Fatalf("inconsistent map should not be normalized, changed=%d", n)
	}
	if err := m.Validate(); !errors.Is(err, ErrCellCount) {
		t.Fatalf("Validate=%v", err)
	}
}

func TestWorldPos(t *testing.T) {
	m := openMap(4, 4)
	m.CellSize = 2.5
	m.Origin = geom.V(10, 1, -5)
	p := m.WorldPos(C(2, 3))
	if p != geom.V(15, 1, 2.5) {
		t.Fatalf("WorldPos=%+v", p)
	}
}

func TestSetEdgeMirrors(t *testing.T) {
	m := New(3, 1, 1)
	m.SetEdge(C(0, 0), East, false)
	a, _ := m.Cell(C(0, 0))
	b, _ := m.Cell(C(1, 0))
	if a.E || b.W {
		t.Fatalf("mirrored close failed: %+v %+v", a, b)
	}
	m.SetEdge(C(2, 0), East, true)
	if c, _ := m.Cell(C(2, 0)); c.E {
		t.Fatalf("edge leaving grid must stay closed")
	}
}

func TestSymmetrize(t *testing.T) {
	m := New(2, 2, 1)
	c := m.Cells[m.Index(C(0, 0))]
	c.E = false
	m.Cells[m.Index(C(0, 0))] = c

	asym := m.Asymmetries()
	if len(asym) != 1 || asym[0].From != C(0, 0) || asym[0].Dir != East {
		t.Fatalf("asymmetries=%v", asym)
	}

	rej := m.Clone()
	if _, err := rej.Symmetrize(SymmetryReject); !errors.Is(err, ErrAsymmetric) {
		t.Fatalf("reject err=%v", err)
	}

	keep := m.Clone()
	if _, err := keep.Symmetrize(SymmetryKeep); err != nil {
		t.Fatalf("keep err=%v", err)
	}
	if cell, _ := keep.Cell(C(1, 0)); !cell.W {
		t.Fatalf("keep should not touch flags")
	}

	if _, err := m.Symmetrize(SymmetryClose); err != nil {
		t.Fatalf("close err=%v", err)
	}
	if cell, _ := m.Cell(C(1, 0)); cell.W {
		t.Fatalf("close should close the back flag")
	}
	if len(m.Asymmetries()) != 0 {
		t.Fatalf("still asymmetric after close")
	}
}

func TestDirRotation(t *testing.T) {
	if North.Left() != West || North.Right() != East || North.Opposite() != South {
		t.Fatalf("rotation table broken")
	}
	if West.Right() != North || South.Left() != East {
		t.Fatalf("rotation wraparound broken")
	}
	if d, err := ParseDir("up"); err != nil || d != North {
		t.Fatalf("ParseDir(up)=%v,%v", d, err)
	}
}
