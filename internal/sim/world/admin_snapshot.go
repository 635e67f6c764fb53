package world

import (
	"context"
	"errors"
)

var (
	ErrNoSnapshotSink = errors.New("world: no snapshot sink")
	ErrSnapshotBusy   = errors.New("world: snapshot writer is behind")
	ErrNotRunning     = errors.New("world: loop not running")
)

// snapshotRequest is an on-demand snapshot asked for from outside the loop. All requests
// that arrive within one tick share a single export.
type snapshotRequest struct {
	done chan snapshotResult
}

type snapshotResult struct {
	tick uint64
	err  error
}

// RequestSnapshot asks the running loop to hand the last completed tick to the snapshot
// sink and returns that tick.
func (w *World) RequestSnapshot(ctx context.Context) (uint64, error) {
	if w == nil || w.admin == nil {
		return 0, ErrNotRunning
	}
	done := make(chan snapshotResult, 1)
	select {
	case w.admin <- snapshotRequest{done: done}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case res := <-done:
		return res.tick, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// answerSnapshotRequests runs right after step.
func (w *World) answerSnapshotRequests(reqs []snapshotRequest) {
	if len(reqs) == 0 {
		return
	}
	var last uint64
	if cur := w.tick.Load(); cur > 0 {
		last = cur - 1
	}
	res := snapshotResult{tick: last, err: w.offerSnapshot(last)}
	if res.err != nil {
		w.log.Warnw("requested snapshot not taken", "tick", last, "err", res.err)
	}
	for _, r := range reqs {
		select {
		case r.done <- res:
		default:
		}
	}
}

// offerSnapshot exports tick and passes it to the sink without blocking the loop.
func (w *World) offerSnapshot(tick uint64) error {
	if w.snapshotSink == nil {
		return ErrNoSnapshotSink
	}
	select {
	case w.snapshotSink <- w.ExportSnapshot(tick):
		return nil
	default:
		return ErrSnapshotBusy
	}
}
