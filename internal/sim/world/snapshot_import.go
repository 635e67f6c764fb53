package world

import (
	"fmt"

	"railnav/internal/input"
	"railnav/internal/persistence/snapshot"
	"railnav/internal/protocol"
)

// ImportSnapshot replaces the current in-memory world state with the snapshot.
// It sets the world's tick to snapshotTick+1 (the next tick to simulate).
//
// This must be called only when the world is stopped or from the world loop goroutine.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}
	if s.TickRate != w.cfg.TickRateHz {
		return fmt.Errorf("snapshot tick_rate_hz mismatch: cfg=%d snap=%d", w.cfg.TickRateHz, s.TickRate)
	}
	have := map[string]string{}
	for _, m := range w.mapRefs() {
		have[m.Kind] = m.Digest
	}
	for _, m := range s.Maps {
		if d, ok := have[m.Kind]; !ok || d != m.Digest {
			return fmt.Errorf("snapshot %s map %s (%s) does not match the hosted map", m.Kind, m.ID, m.Digest)
		}
	}
	if s.SnapshotEveryTicks > 0 {
		w.cfg.SnapshotEveryTicks = s.SnapshotEveryTicks
	}

	riders := map[string]*Rider{}
	order := make([]*Rider, 0, len(s.Riders))
	for _, rs := range s.Riders {
		if _, dup := riders[rs.ID]; dup {
			return fmt.Errorf("snapshot rider %s duplicated", rs.ID)
		}
		if _, ok := w.resolveVehicle(rs.Vehicle); !ok {
			return fmt.Errorf("snapshot rider %s: vehicle %q not hosted", rs.ID, rs.Vehicle)
		}
		held, err := input.ParseCommands(rs.Held)
		if err != nil {
			return fmt.Errorf("snapshot rider %s: %w", rs.ID, err)
		}

		r := newRider(rs.ID, rs.Name, rs.Vehicle, w)
		r.ResumeToken = rs.ResumeToken
		switch rs.Vehicle {
		case protocol.VehicleGrid:
			if rs.Mover == nil {
				return fmt.Errorf("snapshot rider %s: missing mover state", rs.ID)
			}
			r.mover.Restore(*rs.Mover)
		default:
			if rs.Follower == nil {
				return fmt.Errorf("snapshot rider %s: missing follower state", rs.ID)
			}
			if !r.follower.Restore(*rs.Follower) {
				return fmt.Errorf("snapshot rider %s: follower path not on track", rs.ID)
			}
		}
		// Keys were already down before the snapshot; don't replay them as presses.
		r.sampler.Set(held)
		r.sampler.Sample()
		r.held = held

		riders[r.ID] = r
		order = append(order, r)
	}
	sortRiders(order)

	w.riders = riders
	w.order = order
	w.clients = map[string]*clientState{}
	w.nextRider = s.NextRider
	w.counter.Restore(s.Counters)
	w.tick.Store(s.Header.Tick + 1)
	w.publishMetrics(s.Header.Tick)
	w.log.Infow("snapshot imported", "tick", s.Header.Tick, "riders", len(order))
	return nil
}
