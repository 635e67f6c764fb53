package follower

import (
	"testing"

	"railnav/internal/geom"
	"railnav/internal/input"
	"railnav/internal/track"
)

func TestResolve_NotAJunction(t *testing.T) {
	tr := mustTrack(t, nodes(geom.V(0, 0, 0), geom.V(0, 0, 10), geom.V(0, 0, 20)))
	if _, ok := Resolve(tr, 1, geom.V(0, 0, 1), input.None); ok {
		t.Fatalf("plain main node resolved")
	}
}

func TestResolve_StraightestWithoutKey(t *testing.T) {
	// Main continues straight; the branch veers right.
	straightMain := mustTrack(t,
		nodes(geom.V(0, 0, 0), geom.V(0, 0, 10), geom.V(0, 0, 20)),
		track.Branch{ID: "r", Attach: 1, Nodes: nodes(geom.V(3, 0, 20))},
	)
	ch, ok := Resolve(straightMain, 1, geom.V(0, 0, 1), input.None)
	if !ok || ch.Kind != ChoiceMain || ch.Dir != 1 {
		t.Fatalf("want main forward, got %+v ok=%v", ch, ok)
	}
	ch, _ = Resolve(straightMain, 1, geom.V(0, 0, 1), input.Right)
	if ch.Kind != ChoiceBranch || ch.Branch != 0 || ch.Sign != 1 {
		t.Fatalf("right held should take the branch: %+v", ch)
	}
	ch, _ = Resolve(straightMain, 1, geom.V(0, 0, 1), input.Left)
	if ch.Kind != ChoiceMain || ch.Dir != 1 {
		t.Fatalf("no left candidate, want straight: %+v", ch)
	}

	// Main bends right; the branch is the straight line.
	bentMain := mustTrack(t,
		nodes(geom.V(0, 0, 0), geom.V(0, 0, 10), geom.V(10, 0, 15)),
		track.Branch{ID: "s", Attach: 1, Nodes: nodes(geom.V(0, 0, 20))},
	)
	ch, _ = Resolve(bentMain, 1, geom.V(0, 0, 1), input.None)
	if ch.Kind != ChoiceBranch || ch.Angle != 0 {
		t.Fatalf("straight branch should win: %+v", ch)
	}
	ch, _ = Resolve(bentMain, 1, geom.V(0, 0, 1), input.Right)
	if ch.Kind != ChoiceMain || ch.Dir != 1 {
		t.Fatalf("right held should follow the bent main: %+v", ch)
	}
}

func TestResolve_LeftAndRightBranches(t *testing.T) {
	tr := mustTrack(t,
		nodes(geom.V(0, 0, 0), geom.V(0, 0, 10), geom.V(0, 0, 20)),
		track.Branch{ID: "west", Attach: 1, Nodes: nodes(geom.V(-10, 0, 12))},
		track.Branch{ID: "east-wide", Attach: 1, Nodes: nodes(geom.V(10, 0, 10))},
		track.Branch{ID: "east", Attach: 1, Nodes: nodes(geom.V(10, 0, 15))},
	)
	ch, _ := Resolve(tr, 1, geom.V(0, 0, 1), input.Left)
	if ch.Kind != ChoiceBranch || ch.Branch != 0 || ch.Sign != -1 {
		t.Fatalf("left: %+v", ch)
	}
	ch, _ = Resolve(tr, 1, geom.V(0, 0, 1), input.Right)
	if ch.Branch != 2 || ch.Sign != 1 {
		t.Fatalf("right should take the smallest right deviation: %+v", ch)
	}
	ch, _ = Resolve(tr, 1, geom.V(0, 0, 1), input.Left|input.Right)
	if ch.Branch != 0 {
		t.Fatalf("left wins when both are held: %+v", ch)
	}
}

func TestFollower_BranchLoopMergesBackOntoMain(t *testing.T) {
	main := nodes(geom.V(0, 0, 0), geom.V(0, 0, 10), geom.V(0, 0, 20), geom.V(0, 0, 30))
	tr := mustTrack(t, main, track.Branch{
		ID:     "loop",
		Attach: 1,
		Nodes:  nodes(geom.V(-5, 0, 15)),
		Rejoin: &track.MainRef{Index: 2},
	})
	cfg := Config{Speed: 100, CornerAngle: 120}

	f := New(tr, cfg, 0, 1)
	ev := driveUntil(t, f, held(input.Move|input.Left), 0.01, EventJunctionResolved)
	if f.OnMain() || f.Path().Branch != 0 || ev.Sign != -1 {
		t.Fatalf("left at node 1 should enter the loop: ev=%+v", ev)
	}
	ev = driveUntil(t, f, held(input.Move), 0.01, EventMerged)
	if !f.OnMain() || f.Dir() != 1 || ev.Node != 2 {
		t.Fatalf("merge should continue forward from node 2: ev=%+v dir=%d", ev, f.Dir())
	}
	if f.Segment() != 2 || f.Position() != main[2].Pos {
		t.Fatalf("merged at seg=%d pos=%+v", f.Segment(), f.Position())
	}

	// Travelling backwards, node 2 offers the loop as a reconnect on the right.
	g := New(tr, cfg, 3, -1)
	driveUntil(t, g, held(input.Move|input.Right), 0.01, EventJunctionResolved)
	if g.OnMain() || !g.Path().Reversed {
		t.Fatalf("should be on the reversed loop: %+v", g.Path())
	}
	ev = driveUntil(t, g, held(input.Move), 0.01, EventMerged)
	if ev.Node != 1 || g.Dir() != -1 || g.Position() != main[1].Pos {
		t.Fatalf("reverse merge: ev=%+v dir=%d pos=%+v", ev, g.Dir(), g.Position())
	}
}

func TestFollower_DeadEndBranchStops(t *testing.T) {
	tr := mustTrack(t,
		nodes(geom.V(0, 0, 0), geom.V(0, 0, 10), geom.V(0, 0, 20)),
		track.Branch{ID: "spur", Attach: 1, Nodes: nodes(geom.V(4, 0, 13), geom.V(8, 0, 16))},
	)
	f := New(tr, Config{Speed: 10, CornerAngle: 30}, 0, 1)
	driveUntil(t, f, held(input.Move|input.Right), 0.1, EventJunctionResolved)
	ev := driveUntil(t, f, held(input.Move), 0.1, EventStopped)
	if ev.OnMain || ev.Node != 2 || f.Position() != geom.V(8, 0, 16) {
		t.Fatalf("spur end: ev=%+v pos=%+v", ev, f.Position())
	}
}

func TestResolve_ReconnectEndingOnMainNode(t *testing.T) {
	// The far end of "back" is written on main node 1; main bends slightly right there.
	main := nodes(geom.V(0, 0, 0), geom.V(0, 0, 10), geom.V(3, 0, 20))
	back := track.Branch{ID: "back", Attach: 0, Nodes: nodes(geom.V(-5, 0, 5), geom.V(0, 0, 10))}
	ref, ok := track.ResolveRejoin(main, back.Nodes[1].Pos, track.DefaultRejoinTolerance)
	if !ok || ref.Index != 1 {
		t.Fatalf("rejoin=%+v ok=%v", ref, ok)
	}
	back.Rejoin = &ref
	tr := mustTrack(t, main, back)

	for _, c := range Candidates(tr, 1) {
		if c.Out == (geom.Vec3{}) {
			t.Fatalf("candidate without direction: %+v", c)
		}
	}
	ch, ok := Resolve(tr, 1, geom.V(0, 0, 1), input.None)
	if !ok || ch.Kind != ChoiceMain || ch.Dir != 1 {
		t.Fatalf("want main forward, got %+v", ch)
	}
	if ch.Angle < 16 || ch.Angle > 17.5 {
		t.Fatalf("main forward angle=%v", ch.Angle)
	}
	ch, _ = Resolve(tr, 1, geom.V(0, 0, 1), input.Left)
	if ch.Kind != ChoiceReconnect || ch.Branch != 0 {
		t.Fatalf("left should take the reconnect back: %+v", ch)
	}
}

func TestResolve_BranchStartingOnAttachNode(t *testing.T) {
	tr := mustTrack(t,
		nodes(geom.V(0, 0, 0), geom.V(0, 0, 10), geom.V(0, 0, 20)),
		track.Branch{ID: "side", Attach: 1, Nodes: nodes(geom.V(0, 0, 10), geom.V(6, 0, 16))},
	)
	ch, _ := Resolve(tr, 1, geom.V(0, 0, 1), input.None)
	if ch.Kind != ChoiceMain {
		t.Fatalf("no key: %+v", ch)
	}
	ch, _ = Resolve(tr, 1, geom.V(0, 0, 1), input.Right)
	if ch.Kind != ChoiceBranch || ch.Sign != 1 {
		t.Fatalf("right should take the side branch: %+v", ch)
	}

	f := New(tr, Config{Speed: 10, CornerAngle: 30}, 0, 1)
	driveUntil(t, f, held(input.Move|input.Right), 0.1, EventJunctionResolved)
	for i := 0; i < 100; i++ {
		evs := f.Tick(held(input.Move), 0.1)
		if _, ok := find(evs, EventCornerEntered); ok {
			t.Fatalf("corner on a straight branch at %+v", f.Position())
		}
		if ev, ok := find(evs, EventStopped); ok {
			if ev.Node != 1 || f.Position().Dist(geom.V(6, 0, 16)) > 1e-9 {
				t.Fatalf("stop ev=%+v pos=%+v", ev, f.Position())
			}
			return
		}
	}
	t.Fatalf("never reached the branch end")
}

func TestFollower_LegacyBypassHasOnlyItsRealCorner(t *testing.T) {
	main := nodes(geom.V(0, 0, 20), geom.V(10, 0, 30), geom.V(10, 0, 45))
	end := geom.V(10.02, 0, 42)
	ref, ok := track.ResolveRejoin(main, end, track.DefaultRejoinTolerance)
	if !ok {
		t.Fatalf("bypass end should resolve")
	}
	tr := mustTrack(t, main, track.Branch{
		ID: "bypass", Attach: 1,
		Nodes:  nodes(geom.V(16, 0, 36), end),
		Rejoin: &ref,
	})
	f := New(tr, DefaultConfig(), 0, 1)

	ev := driveUntil(t, f, held(input.Move), 0.1, EventCornerEntered)
	if ev.OnMain || ev.Node != 1 || ev.Sign != -1 {
		t.Fatalf("expected the left corner at bypass node 1: %+v", ev)
	}
	if _, ok := find(f.Tick(press(input.Left), 0.1), EventCornerConfirmed); !ok {
		t.Fatalf("left should confirm the corner")
	}
	for i := 0; i < 200; i++ {
		evs := f.Tick(held(input.Move), 0.1)
		if ev, ok := find(evs, EventCornerEntered); ok {
			t.Fatalf("second corner at node %d pos=%+v", ev.Node, f.Position())
		}
		if _, ok := find(evs, EventMerged); ok {
			if !f.OnMain() || f.Dir() != 1 || f.Position().Dist(geom.V(10, 0, 42)) > 1e-9 {
				t.Fatalf("merge: on_main=%v dir=%d pos=%+v", f.OnMain(), f.Dir(), f.Position())
			}
			return
		}
	}
	t.Fatalf("never merged back onto main")
}
