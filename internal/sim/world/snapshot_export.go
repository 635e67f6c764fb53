package world

import (
	"railnav/internal/persistence/snapshot"
	"railnav/internal/protocol"
)

// ExportSnapshot must be called from the world loop goroutine (or while it is stopped).
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	riders := make([]snapshot.RiderV1, 0, len(w.order))
	for _, r := range w.order {
		rs := snapshot.RiderV1{
			ID:          r.ID,
			Name:        r.Name,
			Vehicle:     r.Vehicle,
			ResumeToken: r.ResumeToken,
			Held:        r.held.Names(),
		}
		if r.mover != nil {
			ms := r.mover.Snapshot()
			rs.Mover = &ms
		} else {
			fs := r.follower.Snapshot()
			rs.Follower = &fs
		}
		riders = append(riders, rs)
	}

	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		TickRate:           w.cfg.TickRateHz,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		Maps:               w.mapRefs(),
		Riders:             riders,
		Counters:           w.counter.Snapshot(),
		NextRider:          w.nextRider,
	}
}

func (w *World) mapRefs() []snapshot.MapRefV1 {
	var out []snapshot.MapRefV1
	if w.maps.Grid != nil {
		out = append(out, snapshot.MapRefV1{Kind: protocol.VehicleGrid, ID: w.maps.Grid.ID, Digest: w.maps.Grid.Digest})
	}
	if w.maps.Track != nil {
		out = append(out, snapshot.MapRefV1{Kind: protocol.VehicleTrack, ID: w.maps.Track.ID, Digest: w.maps.Track.Digest})
	}
	return out
}
