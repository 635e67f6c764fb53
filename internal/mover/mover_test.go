package mover

import (
	"math"
	"testing"

	"railnav/internal/geom"
	"railnav/internal/grid"
	"railnav/internal/input"
)

var (
	hold  = input.Frame{Held: input.Move}
	empty = input.Frame{}
)

func press(c input.Command) input.Frame { return input.Frame{Pressed: c} }

func holdPress(c input.Command) input.Frame {
	return input.Frame{Held: input.Move, Pressed: c}
}

func hasEvent(events []Event, kind EventKind) bool {
	for _, e := range events {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

func TestMover_SpeedStaysWithinBoundsAndStopsAtDeadEnd(t *testing.T) {
	m := grid.New(5, 1, 1)
	cfg := Config{MinSpeed: 2, MaxSpeed: 4, Acceleration: 10, TurnWindow: 0.3, RotateSpeed: 360, Mode: ModeAuto}
	mv := New(m, cfg, grid.C(0, 0), grid.East)

	ev := mv.Tick(hold, 0.05)
	if !hasEvent(ev, EventStarted) || mv.State() != Transiting {
		t.Fatalf("should start transiting: state=%s events=%v", mv.State(), ev)
	}
	if mv.Speed() < cfg.MinSpeed {
		t.Fatalf("speed %.3f below min immediately after start", mv.Speed())
	}

	deadEnd := false
	for i := 0; i < 400 && !deadEnd; i++ {
		ev = mv.Tick(empty, 0.05)
		deadEnd = hasEvent(ev, EventDeadEnd)
		if mv.State() == Transiting && (mv.Speed() < cfg.MinSpeed || mv.Speed() > cfg.MaxSpeed) {
			t.Fatalf("tick %d: speed %.3f outside [%v,%v]", i, mv.Speed(), cfg.MinSpeed, cfg.MaxSpeed)
		}
	}
	if !deadEnd {
		t.Fatalf("never reached the dead end")
	}
	if mv.State() != Idle || mv.Speed() != 0 {
		t.Fatalf("after dead end: state=%s speed=%v", mv.State(), mv.Speed())
	}
	if mv.Current() != grid.C(4, 0) || mv.Position() != m.WorldPos(grid.C(4, 0)) {
		t.Fatalf("should rest exactly on (4,0): current=%s pos=%+v", mv.Current(), mv.Position())
	}
}

func TestMover_MomentumCarriesAcrossNodes(t *testing.T) {
	m := grid.New(6, 1, 1)
	cfg := Config{MinSpeed: 1, MaxSpeed: 100, Acceleration: 4, TurnWindow: 0.3, Mode: ModeAuto}
	mv := New(m, cfg, grid.C(0, 0), grid.East)

	mv.Tick(hold, 0.125)
	var before float64
	for i := 0; i < 100; i++ {
		before = mv.Speed()
		ev := mv.Tick(empty, 0.125)
		if hasEvent(ev, EventNodeReached) && !hasEvent(ev, EventDeadEnd) {
			if mv.Speed() < before {
				t.Fatalf("speed reset at node: before=%v after=%v", before, mv.Speed())
			}
			if mv.Speed() <= cfg.MinSpeed {
				t.Fatalf("speed should have accumulated beyond min, got %v", mv.Speed())
			}
			return
		}
	}
	t.Fatalf("never reached a node")
}

func TestMover_HoldModeReleaseHaltsMidSegment(t *testing.T) {
	m := grid.New(3, 1, 10)
	cfg := Config{MinSpeed: 1, MaxSpeed: 1, Acceleration: 0, TurnWindow: 0.3, Mode: ModeHold}
	mv := New(m, cfg, grid.C(0, 0), grid.East)

	for i := 0; i < 3; i++ {
		mv.Tick(hold, 0.5)
	}
	reached := mv.Position()
	if math.Abs(reached.X-1.5) > 1e-9 {
		t.Fatalf("expected x=1.5 after 3 ticks, got %+v", reached)
	}

	ev := mv.Tick(empty, 0.5)
	if !hasEvent(ev, EventHalted) {
		t.Fatalf("release should halt: %v", ev)
	}
	if mv.State() != Idle || mv.Speed() != 0 {
		t.Fatalf("state=%s speed=%v", mv.State(), mv.Speed())
	}
	if mv.Position() != reached || mv.Current() != grid.C(0, 0) {
		t.Fatalf("must halt at interpolated position %+v, got %+v current=%s", reached, mv.Position(), mv.Current())
	}
	mv.Tick(empty, 0.5)
	if mv.Position() != reached {
		t.Fatalf("halted mover drifted")
	}

	mv.Tick(hold, 0.5)
	if mv.State() != Transiting || mv.Position().X <= reached.X {
		t.Fatalf("holding move again should resume the segment: state=%s pos=%+v", mv.State(), mv.Position())
	}
	if mv.Speed() != cfg.MinSpeed {
		t.Fatalf("resume speed=%v want min", mv.Speed())
	}
}

func TestMover_TurnAtNodeRequiresEdge(t *testing.T) {
	m := grid.New(3, 3, 1)
	mv := New(m, DefaultConfig(), grid.C(0, 0), grid.North)

	ev := mv.Tick(press(input.Left), 0.1)
	if !hasEvent(ev, EventTurnDropped) || mv.Facing() != grid.North {
		t.Fatalf("left into border must be dropped: facing=%s ev=%v", mv.Facing(), ev)
	}
	ev = mv.Tick(press(input.Right), 0.1)
	if !hasEvent(ev, EventTurned) || mv.Facing() != grid.East {
		t.Fatalf("right should turn east: facing=%s ev=%v", mv.Facing(), ev)
	}
	mv.Tick(press(input.Reverse), 0.1)
	if mv.Facing() != grid.East {
		t.Fatalf("reverse into border must be dropped, facing=%s", mv.Facing())
	}
}

func TestMover_MoveIntoDeadEndDoesNothing(t *testing.T) {
	m := grid.New(2, 2, 1)
	mv := New(m, DefaultConfig(), grid.C(0, 0), grid.West)
	mv.Tick(hold, 0.1)
	if mv.State() != Idle || mv.Speed() != 0 || !mv.AtNode() {
		t.Fatalf("dead-end start should leave mover idle: state=%s speed=%v", mv.State(), mv.Speed())
	}
}

func TestMover_TurnWindowQueuesOnlyNearEnd(t *testing.T) {
	m := grid.New(3, 3, 1)
	cfg := Config{MinSpeed: 1, MaxSpeed: 1, TurnWindow: 0.3, Mode: ModeAuto}
	mv := New(m, cfg, grid.C(0, 1), grid.East)

	mv.Tick(hold, 0.125)
	ev := mv.Tick(press(input.Left), 0.125)
	if !hasEvent(ev, EventTurnDropped) {
		t.Fatalf("early turn should be dropped: progress=%v ev=%v", mv.Progress(), ev)
	}
	for mv.Progress() < 0.7 {
		mv.Tick(empty, 0.125)
	}
	ev = mv.Tick(press(input.Left), 0.125)
	if !hasEvent(ev, EventTurnQueued) {
		t.Fatalf("late turn should be queued: ev=%v", ev)
	}
	for i := 0; i < 10 && mv.Current() == grid.C(0, 1); i++ {
		mv.Tick(empty, 0.125)
	}
	if mv.Current() != grid.C(1, 1) || mv.Facing() != grid.North {
		t.Fatalf("queued left should apply at (1,1): current=%s facing=%s", mv.Current(), mv.Facing())
	}
	if mv.State() != Transiting || mv.Target() != grid.C(1, 2) {
		t.Fatalf("should continue north: state=%s target=%s", mv.State(), mv.Target())
	}
}

func TestMover_QueuedTurnWithoutEdgeIsDropped(t *testing.T) {
	m := grid.New(3, 1, 1)
	cfg := Config{MinSpeed: 1, MaxSpeed: 1, TurnWindow: 1, Mode: ModeAuto}
	mv := New(m, cfg, grid.C(0, 0), grid.East)
	mv.Tick(holdPress(input.None), 0.25)
	mv.Tick(press(input.Left), 0.25)
	for i := 0; i < 3; i++ {
		mv.Tick(empty, 0.25)
	}
	if mv.Current() != grid.C(1, 0) || mv.Facing() != grid.East {
		t.Fatalf("left at (1,0) has no edge and must be ignored: current=%s facing=%s", mv.Current(), mv.Facing())
	}
}

func TestMover_VisualYawRotatesAtFixedRate(t *testing.T) {
	m := grid.New(3, 3, 1)
	cfg := DefaultConfig()
	cfg.RotateSpeed = 90
	mv := New(m, cfg, grid.C(1, 1), grid.North)
	mv.Tick(press(input.Right), 0.5)
	if mv.Facing() != grid.East {
		t.Fatalf("logical facing should switch immediately")
	}
	if math.Abs(mv.Yaw()-45) > 1e-9 {
		t.Fatalf("yaw=%v want 45", mv.Yaw())
	}
	mv.Tick(empty, 0.5)
	if math.Abs(mv.Yaw()-geom.NormalizeDegrees(grid.East.Yaw())) > 1e-9 {
		t.Fatalf("yaw=%v want 90", mv.Yaw())
	}
}

func TestMover_SnapshotRestore(t *testing.T) {
	m := grid.New(4, 1, 1)
	mv := New(m, DefaultConfig(), grid.C(0, 0), grid.East)
	mv.Tick(hold, 0.1)
	snap := mv.Snapshot()

	other := New(m, DefaultConfig(), grid.C(3, 0), grid.West)
	other.Restore(snap)
	if other.Position() != mv.Position() || other.Speed() != mv.Speed() || other.State() != mv.State() {
		t.Fatalf("restore mismatch: %+v vs %+v", other.Snapshot(), snap)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := DefaultConfig()
	bad.MaxSpeed = bad.MinSpeed / 2
	if err := bad.Validate(); err == nil {
		t.Fatalf("max<min accepted")
	}
	bad = DefaultConfig()
	bad.Mode = "coast"
	if err := bad.Validate(); err == nil {
		t.Fatalf("unknown mode accepted")
	}
}
