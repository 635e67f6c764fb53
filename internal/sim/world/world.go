package world

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"railnav/internal/counter"
	"railnav/internal/follower"
	"railnav/internal/input"
	"railnav/internal/logging"
	"railnav/internal/mover"
	"railnav/internal/persistence/snapshot"
	"railnav/internal/protocol"
	"railnav/internal/sim/catalogs"
)

var ErrNoMap = errors.New("world: no map hosted")

type WorldConfig struct {
	ID                 string
	TickRateHz         int
	SnapshotEveryTicks int
	MaxRiders          int
	Mover              mover.Config
	Follower           follower.Config
}

// Maps is what a world hosts; at least one of Grid and Track must be set.
type Maps struct {
	Grid  *catalogs.GridMap
	Track *catalogs.TrackMap
}

type JoinRequest struct {
	Name    string
	Vehicle string
	Out     chan []byte
	Resp    chan JoinResponse
}

type AttachRequest struct {
	ResumeToken string
	Out         chan []byte
	Resp        chan JoinResponse
}

// JoinResponse carries either a Welcome or an Error.
type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	Error   *protocol.ErrorMsg
}

// LeaveRequest detaches the connection that owns Out. A request from a connection that
// has since been replaced by a resume is ignored.
type LeaveRequest struct {
	RiderID string
	Out     chan []byte
}

type InputEnvelope struct {
	RiderID string
	Held    input.Command
}

type RecordedJoin struct {
	RiderID string `json:"rider_id"`
	Name    string `json:"name"`
	Vehicle string `json:"vehicle"`
}

type RecordedInput struct {
	RiderID string   `json:"rider_id"`
	Held    []string `json:"held"`
}

type TickLogEntry struct {
	Tick   uint64          `json:"tick"`
	Joins  []RecordedJoin  `json:"joins,omitempty"`
	Leaves []string        `json:"leaves,omitempty"`
	Inputs []RecordedInput `json:"inputs,omitempty"`
	Digest string          `json:"digest"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type clientState struct {
	Out chan []byte
}

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg     WorldConfig
	maps    Maps
	counter *counter.Counter
	log     *zap.SugaredLogger

	tick atomic.Uint64

	riders  map[string]*Rider
	order   []*Rider
	clients map[string]*clientState

	inbox  chan InputEnvelope
	join   chan JoinRequest
	attach chan AttachRequest
	leave  chan LeaveRequest
	admin  chan snapshotRequest
	stop   chan struct{}

	nextRider uint64

	// Optional logger (may be nil). Implemented in internal/persistence/log.
	tickLogger TickLogger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	metrics atomic.Value
}

func New(cfg WorldConfig, maps Maps, ctr *counter.Counter, logger *zap.SugaredLogger) (*World, error) {
	if maps.Grid == nil && maps.Track == nil {
		return nil, ErrNoMap
	}
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("world: tick rate must be > 0")
	}
	if cfg.ID == "" {
		cfg.ID = "world_1"
	}
	if cfg.MaxRiders <= 0 {
		cfg.MaxRiders = 64
	}
	if ctr == nil {
		ctr = counter.New()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	w := &World{
		cfg:     cfg,
		maps:    maps,
		counter: ctr,
		log:     logger.With("world", cfg.ID),
		riders:  map[string]*Rider{},
		clients: map[string]*clientState{},
		inbox:   make(chan InputEnvelope, 1024),
		join:    make(chan JoinRequest, 64),
		attach:  make(chan AttachRequest, 64),
		leave:   make(chan LeaveRequest, 64),
		admin:   make(chan snapshotRequest, 8),
		stop:    make(chan struct{}),
	}
	w.publishMetrics(0)
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Inbox() chan<- InputEnvelope  { return w.inbox }
func (w *World) Join() chan<- JoinRequest     { return w.join }
func (w *World) Attach() chan<- AttachRequest { return w.attach }
func (w *World) Leave() chan<- LeaveRequest   { return w.leave }

func (w *World) ID() string                { return w.cfg.ID }
func (w *World) CurrentTick() uint64       { return w.tick.Load() }
func (w *World) Counter() *counter.Counter { return w.counter }

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingInputs []InputEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string
	var pendingAdmin []snapshotRequest

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case req := <-w.attach:
			if r := w.handleAttach(req); r != nil {
				pendingLeaves = dropID(pendingLeaves, r.ID)
			}
		case req := <-w.leave:
			if cl := w.clients[req.RiderID]; cl == nil || (req.Out != nil && cl.Out != req.Out) {
				continue
			}
			pendingLeaves = append(pendingLeaves, req.RiderID)
		case env := <-w.inbox:
			pendingInputs = append(pendingInputs, env)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case <-ticker.C:
			start := time.Now()
			w.step(pendingJoins, pendingLeaves, pendingInputs)
			w.answerSnapshotRequests(pendingAdmin)
			w.recordStepTime(time.Since(start))
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingInputs = pendingInputs[:0]
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

func (w *World) mapRef(vehicle string) protocol.MapRef {
	switch vehicle {
	case protocol.VehicleGrid:
		return protocol.MapRef{Kind: vehicle, ID: w.maps.Grid.ID, Digest: w.maps.Grid.Digest}
	default:
		return protocol.MapRef{Kind: vehicle, ID: w.maps.Track.ID, Digest: w.maps.Track.Digest}
	}
}

func (w *World) welcome(r *Rider) protocol.WelcomeMsg {
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		RiderID:         r.ID,
		ResumeToken:     r.ResumeToken,
		Vehicle:         r.Vehicle,
		WorldParams: protocol.WorldParams{
			WorldID:    w.cfg.ID,
			TickRateHz: w.cfg.TickRateHz,
			Tick:       w.tick.Load(),
		},
		Map: w.mapRef(r.Vehicle),
	}
}

func joinError(code, msg string) JoinResponse {
	e := protocol.NewError(code, msg)
	return JoinResponse{Error: &e}
}

// resolveVehicle defaults an empty vehicle to whatever the world hosts, grid first.
func (w *World) resolveVehicle(v string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		if w.maps.Grid != nil {
			return protocol.VehicleGrid, true
		}
		return protocol.VehicleTrack, true
	case protocol.VehicleGrid:
		return protocol.VehicleGrid, w.maps.Grid != nil
	case protocol.VehicleTrack:
		return protocol.VehicleTrack, w.maps.Track != nil
	}
	return v, false
}

func (w *World) joinRider(name, vehicle string, out chan []byte) (*Rider, JoinResponse) {
	if len(w.riders) >= w.cfg.MaxRiders {
		return nil, joinError(protocol.ErrWorldBusy, "world is full")
	}
	kind, ok := w.resolveVehicle(vehicle)
	if !ok {
		return nil, joinError(protocol.ErrBadVehicle, fmt.Sprintf("vehicle %q is not hosted here", vehicle))
	}
	if name == "" {
		name = "rider"
	}

	w.nextRider++
	r := newRider(fmt.Sprintf("R%d", w.nextRider), name, kind, w)
	r.ResumeToken = uuid.NewString()
	w.riders[r.ID] = r
	w.order = append(w.order, r)
	if out != nil {
		w.clients[r.ID] = &clientState{Out: out}
	}
	w.log.Infow("rider joined", "rider", r.ID, "name", name, "vehicle", kind)
	return r, JoinResponse{Welcome: w.welcome(r)}
}

func (w *World) handleAttach(req AttachRequest) *Rider {
	token := strings.TrimSpace(req.ResumeToken)
	if token == "" || req.Out == nil {
		if req.Resp != nil {
			req.Resp <- joinError(protocol.ErrBadResume, "resume token required")
		}
		return nil
	}

	var r *Rider
	for _, rr := range w.order {
		if rr.ResumeToken == token {
			r = rr
			break
		}
	}
	if r == nil {
		if req.Resp != nil {
			req.Resp <- joinError(protocol.ErrBadResume, "unknown resume token")
		}
		return nil
	}

	// Attaching a client does not affect simulation determinism.
	w.clients[r.ID] = &clientState{Out: req.Out}
	r.ResumeToken = uuid.NewString()
	w.log.Infow("rider attached", "rider", r.ID)

	if req.Resp != nil {
		req.Resp <- JoinResponse{Welcome: w.welcome(r)}
	}
	return r
}

// dropID removes every occurrence of id, keeping order.
func dropID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func (w *World) step(joins []JoinRequest, leaves []string, inputs []InputEnvelope) string {
	nowTick := w.tick.Load()

	// Apply leaves and joins deterministically at tick boundary.
	recordedLeaves := make([]string, 0, len(leaves))
	for _, id := range leaves {
		r, ok := w.riders[id]
		if !ok {
			continue
		}
		delete(w.clients, id)
		// A detached rider keeps its place but lets go of every key.
		r.sampler.Set(input.None)
		recordedLeaves = append(recordedLeaves, id)
		w.log.Infow("rider left", "rider", id)
	}
	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		r, resp := w.joinRider(req.Name, req.Vehicle, req.Out)
		if req.Resp != nil {
			req.Resp <- resp
		}
		if r != nil {
			recordedJoins = append(recordedJoins, RecordedJoin{RiderID: r.ID, Name: r.Name, Vehicle: r.Vehicle})
		}
	}

	// Inputs in server receive order; the last one for a rider wins the tick.
	recordedInputs := make([]RecordedInput, 0, len(inputs))
	for _, env := range inputs {
		r := w.riders[env.RiderID]
		if r == nil {
			continue
		}
		r.sampler.Set(env.Held)
		recordedInputs = append(recordedInputs, RecordedInput{RiderID: env.RiderID, Held: env.Held.Names()})
	}

	dt := 1 / float64(w.cfg.TickRateHz)
	for _, r := range w.order {
		r.tick(dt, w.counter)
	}

	for _, r := range w.order {
		cl := w.clients[r.ID]
		if cl == nil {
			continue
		}
		b, err := json.Marshal(w.stateMsg(r, nowTick))
		if err != nil {
			continue
		}
		sendLatest(cl.Out, b)
	}

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Joins: recordedJoins, Leaves: recordedLeaves, Inputs: recordedInputs, Digest: digest}); err != nil {
			w.log.Warnw("tick log write failed", "tick", nowTick, "err", err)
		}
	}

	if w.snapshotSink != nil && w.cfg.SnapshotEveryTicks > 0 && nowTick != 0 && nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
		if err := w.offerSnapshot(nowTick); err != nil {
			w.log.Warnw("snapshot dropped", "tick", nowTick, "err", err)
		}
	}

	w.tick.Add(1)
	w.publishMetrics(nowTick)
	return digest
}

// StepOnce advances the world by a single tick using the same ordering semantics as the server.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, inputs []InputEnvelope) (tick uint64, digest string) {
	tick = w.tick.Load()
	digest = w.step(joins, leaves, inputs)
	return tick, digest
}

func (w *World) stateMsg(r *Rider, tick uint64) protocol.StateMsg {
	return protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		RiderID:         r.ID,
		Self:            r.state(),
		Events:          r.lastEvents,
		Counters:        w.counter.Snapshot(),
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

// riderNum orders ids like R2 before R10.
func riderNum(id string) uint64 {
	n, _ := strconv.ParseUint(strings.TrimPrefix(id, "R"), 10, 64)
	return n
}

func sortRiders(rs []*Rider) {
	sort.Slice(rs, func(i, j int) bool { return riderNum(rs[i].ID) < riderNum(rs[j].ID) })
}
