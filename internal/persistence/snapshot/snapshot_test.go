package snapshot

import (
	"errors"
	"testing"

	"railnav/internal/follower"
	"railnav/internal/grid"
	"railnav/internal/input"
	"railnav/internal/mover"
)

func sample(tick uint64) SnapshotV1 {
	return SnapshotV1{
		Header:   Header{Version: Version, WorldID: "yard", Tick: tick},
		TickRate: 20,
		Maps:     []MapRefV1{{Kind: "grid", ID: "yard", Digest: "abc"}},
		Riders: []RiderV1{
			{
				ID: "R1", Name: "alice", Vehicle: "grid", Held: []string{"MOVE"},
				Mover: &mover.Snapshot{State: mover.Transiting, Current: grid.C(1, 2), Target: grid.C(2, 2), Facing: grid.East, Progress: 0.25, Speed: 3, Pending: input.Left, Yaw: 90},
			},
			{
				ID: "R2", Name: "bob", Vehicle: "track",
				Follower: &follower.Snapshot{Branch: 1, Reversed: true, Segment: 2, Dir: -1, Distance: 1.5, Moving: true, Corner: &follower.Corner{Node: 3, Sign: -1}, Yaw: 180},
			},
		},
		Counters:  map[string]int64{"walls": 2},
		NextRider: 2,
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, 600)
	if err := WriteSnapshot(path, sample(600)); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header.Tick != 600 || len(got.Maps) != 1 || got.Maps[0].ID != "yard" || len(got.Riders) != 2 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	m := got.Riders[0].Mover
	if m == nil || m.Target != grid.C(2, 2) || m.Pending != input.Left || m.Progress != 0.25 {
		t.Fatalf("mover: %+v", m)
	}
	f := got.Riders[1].Follower
	if f == nil || f.Corner == nil || f.Corner.Sign != -1 || !f.Reversed || f.Dir != -1 {
		t.Fatalf("follower: %+v", f)
	}
	if got.Counters["walls"] != 2 || got.NextRider != 2 {
		t.Fatalf("counters=%v next=%d", got.Counters, got.NextRider)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h.Tick != 600 || h.WorldID != "yard" {
		t.Fatalf("header: %+v", h)
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := Latest(dir); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("empty dir: err=%v", err)
	}
	for _, tick := range []uint64{600, 1800, 1200} {
		if err := WriteSnapshot(Path(dir, tick), sample(tick)); err != nil {
			t.Fatalf("write %d: %v", tick, err)
		}
	}
	path, tick, err := Latest(dir)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if tick != 1800 || path != Path(dir, 1800) {
		t.Fatalf("latest=%s tick=%d", path, tick)
	}
}

func TestReadRejectsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	snap := sample(5)
	snap.Header.Version = 9
	path := Path(dir, 5)
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}
