package main

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"railnav/internal/counter"
	"railnav/internal/follower"
	"railnav/internal/input"
	"railnav/internal/logging"
	"railnav/internal/mover"
	"railnav/internal/protocol"
	"railnav/internal/sim/catalogs"
	"railnav/internal/sim/tuning"
)

var playOpts struct {
	mapsDir string
	vehicle string
	mapID   string
	logFile string
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Drive a rider on a local map in the terminal",
	Long: `Arrows or WASD steer; space also moves and r reverses. q or Esc quits.
Terminals report key repeats rather than releases, so a key counts as held
until input.hold_timeout_ms passes without a repeat.`,
	RunE: runPlay,
}

func init() {
	f := playCmd.Flags()
	f.StringVar(&playOpts.mapsDir, "maps", "", "map directory (default: <configs>/maps)")
	f.StringVar(&playOpts.vehicle, "vehicle", protocol.VehicleGrid, "grid|track")
	f.StringVar(&playOpts.mapID, "map", "", "map id (default: first loaded of that kind)")
	f.StringVar(&playOpts.logFile, "log_file", "", "write navigation events to this rotated log file")
}

// vehicle is the part of a mover or follower the terminal loop needs.
type vehicle interface {
	step(f input.Frame, dt float64) []navEvent
	draw(width, height int) []string
	status() string
}

type navEvent struct {
	Kind   string
	Detail string
}

type gridVehicle struct {
	m  *catalogs.GridMap
	mv *mover.Mover
}

func (g *gridVehicle) step(f input.Frame, dt float64) []navEvent {
	var out []navEvent
	for _, ev := range g.mv.Tick(f, dt) {
		out = append(out, navEvent{Kind: string(ev.Kind), Detail: ev.Node.String()})
	}
	return out
}

func (g *gridVehicle) draw(_, _ int) []string {
	c := gridCanvas(g.m.Map)
	col, row := gridCell(g.m.Map, g.mv.Position())
	c.set(col, row, facingGlyph(g.mv.Facing()))
	return c.lines()
}

func (g *gridVehicle) status() string {
	return fmt.Sprintf("%s cell=%s facing=%s speed=%.2f", g.mv.State(), g.mv.Current(), g.mv.Facing(), g.mv.Speed())
}

type trackVehicle struct {
	m *catalogs.TrackMap
	f *follower.Follower
}

func (t *trackVehicle) step(f input.Frame, dt float64) []navEvent {
	var out []navEvent
	for _, ev := range t.f.Tick(f, dt) {
		out = append(out, navEvent{Kind: string(ev.Kind), Detail: fmt.Sprintf("node=%d", ev.Node)})
	}
	return out
}

func (t *trackVehicle) draw(width, height int) []string {
	c, p := trackCanvas(t.m.Track, width, height)
	col, row := p.at(t.f.Position())
	c.set(col, row, yawGlyph(t.f.Yaw()))
	return c.lines()
}

func (t *trackVehicle) status() string {
	where := "main"
	if !t.f.OnMain() {
		where = t.m.Track.Branches[t.f.Path().Branch].ID
	}
	state := "STOPPED"
	switch {
	case t.f.AtCorner():
		state = fmt.Sprintf("CORNER node=%d sign=%d", t.f.Corner().Node, t.f.Corner().Sign)
	case t.f.Moving():
		state = "MOVING"
	}
	return fmt.Sprintf("%s on=%s seg=%d yaw=%.0f", state, where, t.f.Segment(), t.f.Yaw())
}

func newVehicle(cats *catalogs.Catalogs, tune tuning.Tuning, kind, id string) (vehicle, error) {
	switch kind {
	case protocol.VehicleGrid:
		if m := pickGrid(cats, id); m != nil {
			return &gridVehicle{m: m, mv: mover.New(m.Map, tune.Mover, m.Spawn, m.Facing)}, nil
		}
	case protocol.VehicleTrack:
		if m := pickTrack(cats, id); m != nil {
			return &trackVehicle{m: m, f: follower.New(m.Track, tune.Follower, m.SpawnAt, m.SpawnDir)}, nil
		}
	default:
		return nil, fmt.Errorf("unknown vehicle %q", kind)
	}
	return nil, fmt.Errorf("no %s map %q", kind, id)
}

func runPlay(_ *cobra.Command, _ []string) error {
	cats, tune, err := loadMaps(playOpts.mapsDir)
	if err != nil {
		return fmt.Errorf("load maps: %w", err)
	}
	v, err := newVehicle(cats, tune, playOpts.vehicle, playOpts.mapID)
	if err != nil {
		return err
	}

	// The screen belongs to tcell; logs go to the file only.
	logger, err := logging.New(logging.Options{Level: "debug", Format: "json", File: playOpts.logFile, Quiet: true})
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	s := &session{
		screen: screen,
		v:      v,
		keys:   input.DefaultKeymap(),
		ctr:    counter.New(),
		log:    logger.Named("play"),
	}
	s.latch = input.NewHoldLatch(&s.sampler, time.Duration(tune.Input.HoldTimeoutMs)*time.Millisecond)
	return s.run(tune.TickRateHz)
}

type session struct {
	screen tcell.Screen
	v      vehicle
	keys   *input.Keymap
	ctr    *counter.Counter
	log    *zap.SugaredLogger

	sampler input.Sampler
	latch   *input.HoldLatch
	held    input.Command
	recent  []string
	tick    uint64
}

func (s *session) run(hz int) error {
	events := make(chan tcell.Event, 64)
	quit := make(chan struct{})
	go func() {
		for {
			ev := s.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-quit:
				return
			}
		}
	}()
	defer close(quit)

	dt := 1 / float64(hz)
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	s.render()
	for {
		select {
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || (ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
					return nil
				}
				if c, ok := s.keys.LookupEvent(ev); ok {
					s.latch.Hit(c, time.Now())
				}
			case *tcell.EventResize:
				s.screen.Sync()
			}
		case now := <-ticker.C:
			s.latch.Expire(now)
			f := s.sampler.Sample()
			s.held = f.Held
			for _, e := range s.v.step(f, dt) {
				s.ctr.Inc(e.Kind)
				s.recent = append(s.recent, e.Kind+" "+e.Detail)
				s.log.Debugw("nav event", "tick", s.tick, "event", e.Kind, "at", e.Detail, "held", f.Held.String())
			}
			if n := len(s.recent); n > 5 {
				s.recent = s.recent[n-5:]
			}
			s.tick++
			s.render()
		}
	}
}

func (s *session) render() {
	s.screen.Clear()
	w, h := s.screen.Size()
	mapStyle := tcell.StyleDefault.Foreground(tcell.ColorGreen)
	riderStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)

	lines := s.v.draw(w, h-3)
	for y, line := range lines {
		x := 0
		for _, r := range line {
			st := mapStyle
			switch r {
			case '^', '>', 'v', '<':
				st = riderStyle
			}
			s.screen.SetContent(x, y, r, nil, st)
			x++
		}
	}
	putLine(s.screen, h-3, fmt.Sprintf("tick=%d held=%s %s", s.tick, s.held, s.v.status()))
	putLine(s.screen, h-2, fmt.Sprintf("events: %v", s.recent))
	putLine(s.screen, h-1, fmt.Sprintf("counters: %v  (q to quit)", s.ctr.Snapshot()))
	s.screen.Show()
}

func putLine(screen tcell.Screen, y int, text string) {
	for x, r := range []rune(text) {
		screen.SetContent(x, y, r, nil, tcell.StyleDefault)
	}
}
