package world

import "time"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Riders  int `json:"riders"`
	Clients int `json:"clients"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	Counters map[string]int64 `json:"counters,omitempty"`
	Summary  []RiderSummary   `json:"summary,omitempty"`
}

type QueueDepths struct {
	Inbox  int `json:"inbox"`
	Join   int `json:"join"`
	Leave  int `json:"leave"`
	Attach int `json:"attach"`
}

// RiderSummary is the admin view of one rider.
type RiderSummary struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Vehicle   string     `json:"vehicle"`
	Connected bool       `json:"connected"`
	State     string     `json:"state"`
	Pos       [3]float64 `json:"pos"`
	Yaw       float64    `json:"yaw"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	m, ok := w.metrics.Load().(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) publishMetrics(tick uint64) {
	var stepMS float64
	if prev, ok := w.metrics.Load().(WorldMetrics); ok {
		stepMS = prev.StepMS
	}
	summary := make([]RiderSummary, 0, len(w.order))
	for _, r := range w.order {
		st := r.state()
		_, connected := w.clients[r.ID]
		summary = append(summary, RiderSummary{
			ID:        r.ID,
			Name:      r.Name,
			Vehicle:   r.Vehicle,
			Connected: connected,
			State:     st.State,
			Pos:       st.Pos,
			Yaw:       st.Yaw,
		})
	}
	w.metrics.Store(WorldMetrics{
		Tick:    tick,
		Riders:  len(w.order),
		Clients: len(w.clients),
		QueueDepths: QueueDepths{
			Inbox:  len(w.inbox),
			Join:   len(w.join),
			Leave:  len(w.leave),
			Attach: len(w.attach),
		},
		StepMS:   stepMS,
		Counters: w.counter.Snapshot(),
		Summary:  summary,
	})
}

func (w *World) recordStepTime(d time.Duration) {
	m := w.Metrics()
	m.StepMS = float64(d.Microseconds()) / 1000
	w.metrics.Store(m)
}
