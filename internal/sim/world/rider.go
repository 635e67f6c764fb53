package world

import (
	"railnav/internal/counter"
	"railnav/internal/follower"
	"railnav/internal/input"
	"railnav/internal/mover"
	"railnav/internal/protocol"
)

// Rider is one connected (or detached) participant driving exactly one vehicle.
type Rider struct {
	ID          string
	Name        string
	Vehicle     string
	ResumeToken string

	sampler  *input.Sampler
	held     input.Command
	mover    *mover.Mover
	follower *follower.Follower

	// Event kinds produced by the latest tick, echoed in STATE.
	lastEvents []string
}

func newRider(id, name, vehicle string, w *World) *Rider {
	r := &Rider{ID: id, Name: name, Vehicle: vehicle, sampler: &input.Sampler{}}
	switch vehicle {
	case protocol.VehicleGrid:
		g := w.maps.Grid
		r.mover = mover.New(g.Map, w.cfg.Mover, g.Spawn, g.Facing)
	default:
		t := w.maps.Track
		r.follower = follower.New(t.Track, w.cfg.Follower, t.SpawnAt, t.SpawnDir)
	}
	return r
}

func (r *Rider) tick(dt float64, ctr *counter.Counter) {
	f := r.sampler.Sample()
	r.held = f.Held
	r.lastEvents = r.lastEvents[:0]
	if r.mover != nil {
		for _, ev := range r.mover.Tick(f, dt) {
			r.lastEvents = append(r.lastEvents, string(ev.Kind))
			if name, ok := moverCounters[ev.Kind]; ok {
				ctr.Inc(name)
			}
		}
		return
	}
	for _, ev := range r.follower.Tick(f, dt) {
		r.lastEvents = append(r.lastEvents, string(ev.Kind))
		if name, ok := followerCounters[ev.Kind]; ok {
			ctr.Inc(name)
		}
	}
}

var moverCounters = map[mover.EventKind]string{
	mover.EventNodeReached: counter.Nodes,
	mover.EventTurned:      counter.Turns,
	mover.EventDeadEnd:     counter.Walls,
	mover.EventHalted:      counter.Stops,
}

var followerCounters = map[follower.EventKind]string{
	follower.EventJunctionResolved: counter.Junctions,
	follower.EventCornerConfirmed:  counter.Corners,
	follower.EventMerged:           counter.Merges,
	follower.EventStopped:          counter.Stops,
}

func (r *Rider) state() protocol.RiderState {
	if r.mover != nil {
		m := r.mover
		cell := [2]int{m.Current().X, m.Current().Y}
		return protocol.RiderState{
			Vehicle: r.Vehicle,
			Pos:     m.Position().Array(),
			Yaw:     m.Yaw(),
			Speed:   m.Speed(),
			State:   m.State().String(),
			Cell:    &cell,
			Facing:  m.Facing().String(),
		}
	}

	f := r.follower
	s := protocol.RiderState{
		Vehicle: r.Vehicle,
		Pos:     f.Position().Array(),
		Yaw:     f.Yaw(),
		State:   "STOPPED",
		OnMain:  f.OnMain(),
		Segment: f.Segment(),
	}
	switch {
	case f.AtCorner():
		s.State = "CORNER"
		c := f.Corner()
		s.Corner = &protocol.CornerState{Node: c.Node, Sign: c.Sign}
	case f.Moving():
		s.State = "MOVING"
		s.Speed = f.Speed()
	}
	if p := f.Path(); !p.OnMain {
		s.Branch = f.Track().Branches[p.Branch].ID
	}
	return s
}
