package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/zstd"

	"railnav/internal/follower"
	"railnav/internal/mover"
)

const Version = 1

var ErrNoSnapshot = errors.New("snapshot: none found")

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRate           int `json:"tick_rate_hz"`
	SnapshotEveryTicks int `json:"snapshot_every_ticks,omitempty"`

	// Hosted maps; a snapshot only restores onto maps with the same digests.
	Maps []MapRefV1 `json:"maps"`

	Riders    []RiderV1        `json:"riders"`
	Counters  map[string]int64 `json:"counters,omitempty"`
	NextRider uint64           `json:"next_rider"`
}

type MapRefV1 struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Digest string `json:"digest"`
}

// RiderV1 carries exactly one of Mover or Follower, matching Vehicle.
type RiderV1 struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Vehicle     string             `json:"vehicle"`
	ResumeToken string             `json:"resume_token,omitempty"`
	Held        []string           `json:"held,omitempty"`
	Mover       *mover.Snapshot    `json:"mover,omitempty"`
	Follower    *follower.Snapshot `json:"follower,omitempty"`
}

// Path is the canonical location of the snapshot for tick under worldDir.
func Path(worldDir string, tick uint64) string {
	return filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", tick))
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is for tools that only need the tick; gob repeats it.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot: unsupported version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

// Latest returns the path and tick of the highest-tick snapshot under worldDir.
func Latest(worldDir string) (string, uint64, error) {
	dir := filepath.Join(worldDir, "snapshots")
	matches, err := doublestar.Glob(os.DirFS(dir), "*.snap.zst")
	if err != nil {
		return "", 0, err
	}
	var (
		best     string
		bestTick uint64
		found    bool
	)
	for _, m := range matches {
		tick, err := strconv.ParseUint(strings.TrimSuffix(m, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if !found || tick > bestTick {
			best, bestTick, found = m, tick, true
		}
	}
	if !found {
		return "", 0, ErrNoSnapshot
	}
	return filepath.Join(dir, best), bestTick, nil
}
