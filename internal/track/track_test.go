package track

import (
	"errors"
	"math"
	"testing"

	"railnav/internal/geom"
)

func line(n int) []Node {
	out := make([]Node, n)
	for i := range out {
		out[i] = Node{Pos: geom.V(0, 0, float64(i)*10)}
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("t", line(1), nil); !errors.Is(err, ErrShortMain) {
		t.Fatalf("short main err=%v", err)
	}
	if _, err := New("t", line(3), []Branch{{ID: "b", Attach: 1}}); !errors.Is(err, ErrEmptyBranch) {
		t.Fatalf("empty branch err=%v", err)
	}
	if _, err := New("t", line(3), []Branch{{ID: "b", Attach: 7, Nodes: line(1)}}); !errors.Is(err, ErrBadAttach) {
		t.Fatalf("attach err=%v", err)
	}
	bad := &MainRef{Index: 2, Offset: 3}
	if _, err := New("t", line(3), []Branch{{ID: "b", Attach: 0, Nodes: line(1), Rejoin: bad}}); !errors.Is(err, ErrBadRejoin) {
		t.Fatalf("offset on last node err=%v", err)
	}
}

func TestJunctionsAndPaths(t *testing.T) {
	main := line(4)
	loop := Branch{
		ID:     "loop",
		Attach: 1,
		Nodes:  []Node{{Pos: geom.V(-10, 0, 15)}},
		Rejoin: &MainRef{Index: 2},
	}
	spur := Branch{ID: "spur", Attach: 1, Nodes: []Node{{Pos: geom.V(10, 0, 10)}}}
	tr, err := New("t", main, []Branch{loop, spur})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	j, ok := tr.Junction(1)
	if !ok || len(j.Forward) != 2 || len(j.Reconnect) != 0 {
		t.Fatalf("junction 1=%+v ok=%v", j, ok)
	}
	j2, ok := tr.Junction(2)
	if !ok || len(j2.Reconnect) != 1 || j2.Reconnect[0] != 0 {
		t.Fatalf("junction 2=%+v ok=%v", j2, ok)
	}
	if _, ok := tr.Junction(0); ok {
		t.Fatalf("node 0 is not a junction")
	}

	fwd := tr.BranchPath(0)
	if len(fwd.Nodes) != 3 || fwd.Nodes[0] != main[1].Pos || fwd.Nodes[2] != main[2].Pos {
		t.Fatalf("forward path=%+v", fwd.Nodes)
	}
	if fwd.Exit == nil || fwd.Exit.Index != 2 || fwd.Entry.Index != 1 {
		t.Fatalf("forward ends entry=%+v exit=%+v", fwd.Entry, fwd.Exit)
	}

	rev := tr.ReversePath(0)
	if rev.Nodes[0] != main[2].Pos || rev.Nodes[len(rev.Nodes)-1] != main[1].Pos || !rev.Reversed {
		t.Fatalf("reverse path=%+v", rev.Nodes)
	}

	sp := tr.BranchPath(1)
	if sp.Exit != nil || len(sp.Nodes) != 2 {
		t.Fatalf("spur should be a dead end: %+v", sp)
	}
}

func TestRejoinOffsetAtSegmentEndFoldsToNode(t *testing.T) {
	tr, err := New("t", line(3), []Branch{{
		ID: "b", Attach: 0, Nodes: []Node{{Pos: geom.V(5, 0, 5)}},
		Rejoin: &MainRef{Index: 0, Offset: 10},
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r := tr.Branches[0].Rejoin; r.Index != 1 || !r.AtNode() {
		t.Fatalf("rejoin=%+v want node 1", r)
	}
	if j, ok := tr.Junction(1); !ok || len(j.Reconnect) != 1 {
		t.Fatalf("folded rejoin should make node 1 a reconnect junction")
	}
}

func TestResolveRejoin(t *testing.T) {
	main := line(3)
	r, ok := ResolveRejoin(main, geom.V(0.01, 0, 10.02), DefaultRejoinTolerance)
	if !ok || r.Index != 1 || !r.AtNode() {
		t.Fatalf("node match=%+v ok=%v", r, ok)
	}
	r, ok = ResolveRejoin(main, geom.V(0.03, 0, 14), DefaultRejoinTolerance)
	if !ok || r.Index != 1 || math.Abs(r.Offset-4) > 1e-9 {
		t.Fatalf("segment match=%+v ok=%v", r, ok)
	}
	if _, ok := ResolveRejoin(main, geom.V(1, 0, 14), DefaultRejoinTolerance); ok {
		t.Fatalf("far point should not match")
	}
}

func TestPathGeometry(t *testing.T) {
	p := Path{Nodes: []geom.Vec3{geom.V(0, 0, 0), geom.V(0, 0, 0), geom.V(3, 0, 4)}}
	if p.SegmentLength(0) != geom.MinSegmentLength {
		t.Fatalf("coincident nodes must clamp to epsilon")
	}
	if p.SegmentLength(1) != 5 {
		t.Fatalf("len=%v", p.SegmentLength(1))
	}
	if got := p.PointAt(1, 2.5); math.Abs(got.X-1.5) > 1e-9 || math.Abs(got.Z-2) > 1e-9 {
		t.Fatalf("PointAt=%+v", got)
	}
}

func TestBranchPathFoldsEndsOntoMain(t *testing.T) {
	main := line(3)
	// Far end written on main node 1, as legacy documents do.
	back := Branch{ID: "back", Attach: 0, Nodes: []Node{{Pos: geom.V(-5, 0, 5)}, {Pos: geom.V(0, 0, 10)}}}
	ref, ok := ResolveRejoin(main, back.Nodes[1].Pos, DefaultRejoinTolerance)
	if !ok {
		t.Fatalf("far end should resolve onto main")
	}
	back.Rejoin = &ref
	// First node written on the attach node.
	side := Branch{ID: "side", Attach: 1, Nodes: []Node{{Pos: geom.V(0, 0, 10)}, {Pos: geom.V(6, 0, 16)}}}

	tr, err := New("t", main, []Branch{back, side})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	fwd := tr.BranchPath(0)
	if len(fwd.Nodes) != 3 || fwd.Nodes[2] != main[1].Pos {
		t.Fatalf("far end should be the rejoin point, got %+v", fwd.Nodes)
	}
	rev := tr.ReversePath(0)
	if len(rev.Nodes) != 3 || rev.SegmentDir(0) == (geom.Vec3{}) {
		t.Fatalf("reverse path starts with a stub: %+v", rev.Nodes)
	}
	if rev.Entry == nil || rev.Entry.Index != 1 || rev.Exit.Index != 0 {
		t.Fatalf("reverse ends entry=%+v exit=%+v", rev.Entry, rev.Exit)
	}

	sp := tr.BranchPath(1)
	if len(sp.Nodes) != 2 || sp.SegmentDir(0) == (geom.Vec3{}) {
		t.Fatalf("node on the attach point should fold away: %+v", sp.Nodes)
	}
	for i, p := range []Path{fwd, rev, sp} {
		for s := 0; s < p.Segments(); s++ {
			if p.Nodes[s].Dist(p.Nodes[s+1]) <= DefaultRejoinTolerance {
				t.Fatalf("path %d segment %d is a stub: %+v", i, s, p.Nodes)
			}
		}
	}
}

func TestBranchPathSnapsNearRejoinOntoSegment(t *testing.T) {
	main := []Node{{Pos: geom.V(10, 0, 30)}, {Pos: geom.V(10, 0, 45)}}
	end := geom.V(10.02, 0, 42)
	ref, ok := ResolveRejoin(main, end, DefaultRejoinTolerance)
	if !ok || ref.AtNode() {
		t.Fatalf("ref=%+v ok=%v", ref, ok)
	}
	tr, err := New("t", main, []Branch{{
		ID: "bypass", Attach: 0,
		Nodes:  []Node{{Pos: geom.V(16, 0, 36)}, {Pos: end}},
		Rejoin: &ref,
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p := tr.BranchPath(0)
	if len(p.Nodes) != 3 || p.Nodes[2].Dist(geom.V(10, 0, 42)) > 1e-9 {
		t.Fatalf("bypass path=%+v", p.Nodes)
	}

	// A wider tolerance folds nodes further off.
	wide, err := New("t", main, []Branch{{
		ID: "bypass", Attach: 0,
		Nodes:  []Node{{Pos: geom.V(16, 0, 36)}, {Pos: geom.V(10.3, 0, 42)}},
		Rejoin: &MainRef{Index: 0, Offset: 12},
	}}, WithJoinTolerance(0.5))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n := len(wide.BranchPath(0).Nodes); n != 3 {
		t.Fatalf("wide tolerance path has %d nodes", n)
	}
}

func TestNew_RejectsFlatBranch(t *testing.T) {
	_, err := New("t", line(3), []Branch{{ID: "dot", Attach: 1, Nodes: []Node{{Pos: geom.V(0, 0, 10.01)}}}})
	if !errors.Is(err, ErrFlatBranch) {
		t.Fatalf("err=%v want ErrFlatBranch", err)
	}
}
