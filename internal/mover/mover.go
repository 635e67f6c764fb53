// Package mover walks a grid.Map node to node with acceleration-governed interpolation.
package mover

import (
	"math"

	"railnav/internal/geom"
	"railnav/internal/grid"
	"railnav/internal/input"
)

type State uint8

const (
	Idle State = iota
	Transiting
)

func (s State) String() string {
	if s == Transiting {
		return "TRANSITING"
	}
	return "IDLE"
}

type EventKind string

const (
	EventStarted     EventKind = "STARTED"
	EventNodeReached EventKind = "NODE_REACHED"
	EventTurned      EventKind = "TURNED"
	EventTurnQueued  EventKind = "TURN_QUEUED"
	EventTurnDropped EventKind = "TURN_DROPPED"
	EventDeadEnd     EventKind = "DEAD_END"
	EventHalted      EventKind = "HALTED"
)

type Event struct {
	Kind EventKind  `json:"kind"`
	Node grid.Coord `json:"node"`
	Dir  grid.Dir   `json:"dir"`
}

// Mover is not safe for concurrent use; the owning world goroutine ticks it.
type Mover struct {
	grid *grid.Map
	cfg  Config

	state    State
	current  grid.Coord
	target   grid.Coord
	facing   grid.Dir
	progress float64
	speed    float64
	pending  input.Command
	yaw      float64
}

func New(m *grid.Map, cfg Config, start grid.Coord, facing grid.Dir) *Mover {
	return &Mover{
		grid:    m,
		cfg:     cfg,
		current: start,
		target:  start,
		facing:  facing,
		yaw:     facing.Yaw(),
	}
}

func (mv *Mover) State() State        { return mv.state }
func (mv *Mover) Current() grid.Coord { return mv.current }
func (mv *Mover) Target() grid.Coord  { return mv.target }
func (mv *Mover) Facing() grid.Dir    { return mv.facing }
func (mv *Mover) Progress() float64   { return mv.progress }
func (mv *Mover) Speed() float64      { return mv.speed }
func (mv *Mover) Yaw() float64        { return mv.yaw }

// AtNode is true when the mover rests exactly on its current node.
func (mv *Mover) AtNode() bool { return mv.state == Idle && mv.progress == 0 }

// Position is the world-space position; exactly the node position whenever AtNode.
func (mv *Mover) Position() geom.Vec3 {
	from := mv.grid.WorldPos(mv.current)
	if mv.progress == 0 {
		return from
	}
	return from.Lerp(mv.grid.WorldPos(mv.target), mv.progress)
}

func (mv *Mover) Tick(f input.Frame, dt float64) []Event {
	var events []Event
	turn := turnCommand(f.Pressed)

	if mv.AtNode() {
		if turn != input.None {
			events = append(events, mv.turnNow(turn))
		}
		if f.Holding(input.Move) && mv.grid.HasEdge(mv.current, mv.facing) {
			mv.target = mv.current.Step(mv.facing)
			mv.start()
			events = append(events, Event{Kind: EventStarted, Node: mv.current, Dir: mv.facing})
		}
	} else {
		if turn != input.None {
			if mv.progress >= 1-mv.cfg.TurnWindow {
				mv.pending = turn
				events = append(events, Event{Kind: EventTurnQueued, Node: mv.target, Dir: rotate(mv.facing, turn)})
			} else {
				events = append(events, Event{Kind: EventTurnDropped, Node: mv.current, Dir: rotate(mv.facing, turn)})
			}
		}
		// Halted mid-segment (hold mode); resume the same segment.
		if mv.state == Idle && f.Holding(input.Move) {
			mv.start()
			events = append(events, Event{Kind: EventStarted, Node: mv.current, Dir: mv.facing})
		}
	}

	if mv.state == Transiting {
		if mv.cfg.Mode == ModeHold && !f.Holding(input.Move) {
			mv.state = Idle
			mv.speed = 0
			events = append(events, Event{Kind: EventHalted, Node: mv.current, Dir: mv.facing})
		} else {
			mv.speed = clamp(mv.speed+mv.cfg.Acceleration*dt, mv.cfg.MinSpeed, mv.cfg.MaxSpeed)
			seg := geom.ClampSegment(mv.grid.WorldPos(mv.current).Dist(mv.grid.WorldPos(mv.target)))
			mv.progress += mv.speed * dt / seg
			if mv.progress >= 1 {
				events = append(events, mv.arrive()...)
			}
		}
	}

	mv.yaw = geom.MoveTowardsAngle(mv.yaw, mv.facing.Yaw(), mv.cfg.RotateSpeed*dt)
	return events
}

func (mv *Mover) start() {
	mv.state = Transiting
	mv.speed = math.Max(mv.speed, mv.cfg.MinSpeed)
}

func (mv *Mover) turnNow(turn input.Command) Event {
	d := rotate(mv.facing, turn)
	if !mv.grid.HasEdge(mv.current, d) {
		return Event{Kind: EventTurnDropped, Node: mv.current, Dir: d}
	}
	mv.facing = d
	return Event{Kind: EventTurned, Node: mv.current, Dir: d}
}

// arrive commits the target node, applies a queued turn and either continues with the
// accumulated speed or stops at a dead end.
func (mv *Mover) arrive() []Event {
	mv.current = mv.target
	mv.progress = 0
	events := []Event{{Kind: EventNodeReached, Node: mv.current, Dir: mv.facing}}

	if mv.pending != input.None {
		events = append(events, mv.turnNow(mv.pending))
		mv.pending = input.None
	}

	if mv.grid.HasEdge(mv.current, mv.facing) {
		mv.target = mv.current.Step(mv.facing)
		return events
	}
	mv.state = Idle
	mv.speed = 0
	mv.target = mv.current
	return append(events, Event{Kind: EventDeadEnd, Node: mv.current, Dir: mv.facing})
}

// turnCommand picks one turn from the pressed set: Reverse, then Left, then Right.
func turnCommand(pressed input.Command) input.Command {
	switch {
	case pressed.Has(input.Reverse):
		return input.Reverse
	case pressed.Has(input.Left):
		return input.Left
	case pressed.Has(input.Right):
		return input.Right
	default:
		return input.None
	}
}

func rotate(d grid.Dir, turn input.Command) grid.Dir {
	switch turn {
	case input.Left:
		return d.Left()
	case input.Right:
		return d.Right()
	case input.Reverse:
		return d.Opposite()
	default:
		return d
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Snapshot is the persisted mover state.
type Snapshot struct {
	State    State         `json:"state"`
	Current  grid.Coord    `json:"current"`
	Target   grid.Coord    `json:"target"`
	Facing   grid.Dir      `json:"facing"`
	Progress float64       `json:"progress"`
	Speed    float64       `json:"speed"`
	Pending  input.Command `json:"pending,omitempty"`
	Yaw      float64       `json:"yaw"`
}

func (mv *Mover) Snapshot() Snapshot {
	return Snapshot{
		State:    mv.state,
		Current:  mv.current,
		Target:   mv.target,
		Facing:   mv.facing,
		Progress: mv.progress,
		Speed:    mv.speed,
		Pending:  mv.pending,
		Yaw:      mv.yaw,
	}
}

func (mv *Mover) Restore(s Snapshot) {
	mv.state = s.State
	mv.current = s.Current
	mv.target = s.Target
	mv.facing = s.Facing
	mv.progress = s.Progress
	mv.speed = s.Speed
	mv.pending = s.Pending
	mv.yaw = s.Yaw
}
