package world

import (
	"fmt"

	"railnav/internal/input"
)

// ApplyRecorded re-executes one tick log entry and returns the resulting digest. The
// entry must be for the world's current tick, and recorded joins must receive the same
// rider ids they did originally.
func (w *World) ApplyRecorded(e TickLogEntry) (string, error) {
	if cur := w.tick.Load(); e.Tick != cur {
		return "", fmt.Errorf("replay: entry tick %d, world at %d", e.Tick, cur)
	}
	joins := make([]JoinRequest, 0, len(e.Joins))
	for _, j := range e.Joins {
		joins = append(joins, JoinRequest{Name: j.Name, Vehicle: j.Vehicle})
	}
	inputs := make([]InputEnvelope, 0, len(e.Inputs))
	for _, in := range e.Inputs {
		held, err := input.ParseCommands(in.Held)
		if err != nil {
			return "", fmt.Errorf("replay tick %d: rider %s: %w", e.Tick, in.RiderID, err)
		}
		inputs = append(inputs, InputEnvelope{RiderID: in.RiderID, Held: held})
	}

	want := w.nextRider
	_, digest := w.StepOnce(joins, e.Leaves, inputs)
	for i, j := range e.Joins {
		if id := fmt.Sprintf("R%d", want+uint64(i)+1); id != j.RiderID {
			return digest, fmt.Errorf("replay tick %d: join %q got %s, recorded %s", e.Tick, j.Name, id, j.RiderID)
		}
	}
	return digest, nil
}
