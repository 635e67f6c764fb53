// Package follower walks a track.Track segment by segment, stopping at sharp corners
// until the rider confirms the turn and picking a way out at junctions.
package follower

import (
	"railnav/internal/geom"
	"railnav/internal/input"
	"railnav/internal/track"
)

type EventKind string

const (
	EventFlipped          EventKind = "FLIPPED"
	EventJunctionResolved EventKind = "JUNCTION_RESOLVED"
	EventCornerEntered    EventKind = "CORNER_ENTERED"
	EventCornerConfirmed  EventKind = "CORNER_CONFIRMED"
	EventCornerCleared    EventKind = "CORNER_CLEARED"
	EventMerged           EventKind = "MERGED"
	EventStopped          EventKind = "STOPPED"
)

type Event struct {
	Kind   EventKind `json:"kind"`
	Node   int       `json:"node"`
	OnMain bool      `json:"on_main"`
	Branch int       `json:"branch"`
	Sign   int       `json:"sign,omitempty"`
}

// Corner is a pending turn at path node Node. Sign is the turn side (-1 left, +1 right,
// 0 reversal) the rider must confirm.
type Corner struct {
	Node int `json:"node"`
	Sign int `json:"sign"`
}

// Follower is owned by a single goroutine.
type Follower struct {
	track *track.Track
	cfg   Config

	path   track.Path
	seg    int
	dir    int
	dist   float64
	moving bool
	corner *Corner
	yaw    float64
}

// New places a follower on main node start, facing forward when dir >= 0 and backward
// otherwise.
func New(t *track.Track, cfg Config, start int, dir int) *Follower {
	f := &Follower{track: t, cfg: cfg, path: t.MainPath(), dir: 1}
	if dir < 0 {
		f.dir = -1
	}
	f.placeAtNode(start)
	f.yaw = geom.Yaw(f.travelDir())
	return f
}

// placeAtNode puts the follower on node i of the active path, on the segment it is about
// to travel along.
func (f *Follower) placeAtNode(i int) {
	last := f.path.Segments()
	if i < 0 {
		i = 0
	}
	if i > last {
		i = last
	}
	switch {
	case f.dir > 0 && i < last, f.dir < 0 && i == 0:
		f.seg, f.dist = i, 0
	default:
		f.seg = i - 1
		f.dist = f.path.SegmentLength(f.seg)
	}
}

func (f *Follower) Path() track.Path  { return f.path }
func (f *Follower) Segment() int      { return f.seg }
func (f *Follower) Dir() int          { return f.dir }
func (f *Follower) Distance() float64 { return f.dist }
func (f *Follower) Moving() bool      { return f.moving }
func (f *Follower) Corner() *Corner   { return f.corner }
func (f *Follower) AtCorner() bool    { return f.corner != nil }
func (f *Follower) OnMain() bool      { return f.path.OnMain }
func (f *Follower) Yaw() float64      { return f.yaw }

func (f *Follower) Track() *track.Track { return f.track }

// Speed is the configured constant speed; it does not drop to zero when stopped.
func (f *Follower) Speed() float64 { return f.cfg.Speed }

func (f *Follower) Position() geom.Vec3 {
	return f.path.PointAt(f.seg, clamp(f.dist, 0, f.path.SegmentLength(f.seg)))
}

// travelDir is the unit direction of motion along the current segment.
func (f *Follower) travelDir() geom.Vec3 {
	return f.path.SegmentDir(f.seg).Scale(float64(f.dir))
}

func (f *Follower) event(kind EventKind, node int) Event {
	return Event{Kind: kind, Node: node, OnMain: f.path.OnMain, Branch: f.path.Branch}
}

func (f *Follower) Tick(in input.Frame, dt float64) []Event {
	var events []Event

	if f.corner != nil {
		events = append(events, f.tickCorner(in)...)
	} else {
		if in.Down(input.Reverse) {
			f.dir = -f.dir
			events = append(events, f.event(EventFlipped, f.nodeAhead()))
		}
		if in.Holding(input.Move) {
			parked := f.atTerminal()
			f.moving = true
			f.dist += f.cfg.Speed * dt * float64(f.dir)
			evs := f.advance(in.Held | in.Pressed)
			if parked && len(evs) == 1 && evs[0].Kind == EventStopped {
				evs = nil
			}
			events = append(events, evs...)
		} else {
			f.moving = false
		}
	}

	f.yaw = geom.MoveTowardsAngle(f.yaw, geom.Yaw(f.travelDir()), f.cfg.RotateSpeed*dt)
	return events
}

// atTerminal reports whether the follower already sits on the last node of its path in
// the direction of travel.
func (f *Follower) atTerminal() bool {
	if f.dir > 0 {
		return !f.path.HasSegment(f.seg+1) && f.dist >= f.path.SegmentLength(f.seg)
	}
	return f.seg == 0 && f.dist <= 0
}

func (f *Follower) nodeAhead() int {
	if f.dir > 0 {
		return f.seg + 1
	}
	return f.seg
}

// tickCorner handles confirmation; the waiting segment is entered at the corner node.
func (f *Follower) tickCorner(in input.Frame) []Event {
	c := *f.corner
	kind := EventCornerConfirmed
	switch {
	case c.Sign == 0:
		kind = EventCornerCleared
	case c.Sign < 0 && in.Down(input.Left):
	case c.Sign > 0 && in.Down(input.Right):
	default:
		return nil
	}
	f.corner = nil
	f.placeAtNode(c.Node)
	ev := f.event(kind, c.Node)
	ev.Sign = c.Sign
	return []Event{ev}
}

// advance consumes the distance accumulated this tick. Every boundary crossing is
// resolved in order: junction (main only), corner, continue, terminal. Junctions,
// corners, merges and stops end the tick.
func (f *Follower) advance(keys input.Command) []Event {
	for i := 0; i <= f.path.Segments()+1; i++ {
		l := f.path.SegmentLength(f.seg)
		var node int
		var over float64
		switch {
		case f.dir > 0 && f.dist >= l:
			node, over = f.seg+1, f.dist-l
		case f.dir < 0 && f.dist < 0:
			node, over = f.seg, -f.dist
		default:
			return nil
		}
		incoming := f.travelDir()

		if f.path.OnMain {
			if ch, ok := Resolve(f.track, node, incoming, keys); ok {
				f.apply(node, ch)
				ev := f.event(EventJunctionResolved, node)
				ev.Sign = ch.Sign
				return []Event{ev}
			}
		}

		next := f.seg + f.dir
		if f.path.HasSegment(next) {
			out := f.path.SegmentDir(next).Scale(float64(f.dir))
			if geom.Angle(incoming, out) > f.cfg.CornerAngle {
				f.snapTo(node)
				f.corner = &Corner{Node: node, Sign: geom.TurnSign(incoming, out)}
				f.moving = false
				ev := f.event(EventCornerEntered, node)
				ev.Sign = f.corner.Sign
				return []Event{ev}
			}
			f.seg = next
			if f.dir > 0 {
				f.dist = over
			} else {
				f.dist = f.path.SegmentLength(next) - over
			}
			continue
		}

		if ev, ok := f.merge(node, incoming); ok {
			return []Event{ev}
		}
		f.snapTo(node)
		f.moving = false
		return []Event{f.event(EventStopped, node)}
	}
	f.dist = clamp(f.dist, 0, f.path.SegmentLength(f.seg))
	return nil
}

// snapTo sets the distance so the follower sits exactly on node, which must be an end
// of the current segment.
func (f *Follower) snapTo(node int) {
	if node == f.seg {
		f.dist = 0
		return
	}
	f.dist = f.path.SegmentLength(f.seg)
}

func (f *Follower) apply(node int, ch Choice) {
	switch ch.Kind {
	case ChoiceMain:
		f.path = f.track.MainPath()
		f.dir = ch.Dir
		f.placeAtNode(node)
	case ChoiceBranch:
		f.path = f.track.BranchPath(ch.Branch)
		f.dir, f.seg, f.dist = 1, 0, 0
	case ChoiceReconnect:
		f.path = f.track.ReversePath(ch.Branch)
		f.dir, f.seg, f.dist = 1, 0, 0
	}
}

// merge moves a follower at the linked end of a branch back onto main, heading whichever
// main direction is best aligned with its travel.
func (f *Follower) merge(node int, incoming geom.Vec3) (Event, bool) {
	if f.path.OnMain {
		return Event{}, false
	}
	ref := f.path.Exit
	if node == 0 {
		ref = f.path.Entry
	}
	if ref == nil {
		return Event{}, false
	}

	main := f.track.MainPath()
	dir := 1
	if fwd, back, ok := mainDirs(main, *ref); ok {
		if geom.Angle(incoming, back) < geom.Angle(incoming, fwd) {
			dir = -1
		}
	} else if !main.HasSegment(ref.Index) {
		dir = -1
	}

	f.path = main
	f.dir = dir
	if ref.AtNode() {
		f.placeAtNode(ref.Index)
	} else {
		f.seg, f.dist = ref.Index, ref.Offset
	}
	return f.event(EventMerged, ref.Index), true
}

// mainDirs returns the forward and backward unit directions at ref; ok is false when
// ref is an end node and only one direction exists.
func mainDirs(main track.Path, ref track.MainRef) (geom.Vec3, geom.Vec3, bool) {
	if !ref.AtNode() {
		d := main.SegmentDir(ref.Index)
		return d, d.Scale(-1), true
	}
	if !main.HasSegment(ref.Index) || !main.HasSegment(ref.Index-1) {
		return geom.Vec3{}, geom.Vec3{}, false
	}
	return main.SegmentDir(ref.Index), main.SegmentDir(ref.Index - 1).Scale(-1), true
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

// Snapshot is the persisted follower state; the active path is stored by identity.
type Snapshot struct {
	Branch   int     `json:"branch"`
	Reversed bool    `json:"reversed,omitempty"`
	Segment  int     `json:"segment"`
	Dir      int     `json:"dir"`
	Distance float64 `json:"distance"`
	Moving   bool    `json:"moving"`
	Corner   *Corner `json:"corner,omitempty"`
	Yaw      float64 `json:"yaw"`
}

func (f *Follower) Snapshot() Snapshot {
	s := Snapshot{
		Branch:   f.path.Branch,
		Reversed: f.path.Reversed,
		Segment:  f.seg,
		Dir:      f.dir,
		Distance: f.dist,
		Moving:   f.moving,
		Yaw:      f.yaw,
	}
	if f.path.OnMain {
		s.Branch = -1
	}
	if f.corner != nil {
		c := *f.corner
		s.Corner = &c
	}
	return s
}

// Restore reports false when the snapshot names a branch the track does not have.
func (f *Follower) Restore(s Snapshot) bool {
	p, ok := f.track.PathFor(s.Branch, s.Reversed)
	if !ok {
		return false
	}
	f.path = p
	f.seg = s.Segment
	f.dir = s.Dir
	f.dist = s.Distance
	f.moving = s.Moving
	f.corner = nil
	if s.Corner != nil {
		c := *s.Corner
		f.corner = &c
	}
	f.yaw = s.Yaw
	return true
}
