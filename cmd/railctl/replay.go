package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"railnav/internal/counter"
	persistlog "railnav/internal/persistence/log"
	"railnav/internal/persistence/snapshot"
	"railnav/internal/protocol"
	"railnav/internal/sim/catalogs"
	"railnav/internal/sim/tuning"
	"railnav/internal/sim/world"
)

var replayOpts struct {
	dataDir  string
	worldID  string
	mapsDir  string
	gridID   string
	trackID  string
	snapshot string
	fromTick uint64
	toTick   uint64
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-run a world's tick log and verify every recorded state digest",
	Long: `Rebuilds the world from its maps (and optionally a snapshot), re-applies the
recorded joins, leaves and inputs tick by tick, and compares each resulting state
digest with the one written by the server.`,
	RunE: runReplay,
}

func init() {
	f := replayCmd.Flags()
	f.StringVar(&replayOpts.dataDir, "data", "./data", "runtime data directory")
	f.StringVar(&replayOpts.worldID, "world", "world_1", "world id")
	f.StringVar(&replayOpts.mapsDir, "maps", "", "map directory (default: <configs>/maps)")
	f.StringVar(&replayOpts.gridID, "grid", "", `grid map id (default: first loaded; "none" to disable)`)
	f.StringVar(&replayOpts.trackID, "track", "", `track map id (default: first loaded; "none" to disable)`)
	f.StringVar(&replayOpts.snapshot, "snapshot", "", `snapshot to start from ("latest" for the newest one)`)
	f.Uint64Var(&replayOpts.fromTick, "from-tick", 0, "first tick to verify (default: start tick)")
	f.Uint64Var(&replayOpts.toTick, "to-tick", 0, "last tick to replay (0 = end of log)")
}

func runReplay(cmd *cobra.Command, _ []string) error {
	o := replayOpts
	worldDir := filepath.Join(o.dataDir, "worlds", o.worldID)

	cats, tune, err := loadMaps(o.mapsDir)
	if err != nil {
		return fmt.Errorf("load maps: %w", err)
	}

	var snap *snapshot.SnapshotV1
	switch o.snapshot {
	case "":
	case "latest":
		p, _, err := snapshot.Latest(worldDir)
		if err != nil {
			return err
		}
		o.snapshot = p
		fallthrough
	default:
		s, err := snapshot.ReadSnapshot(o.snapshot)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		snap = &s
	}

	w, err := buildReplayWorld(cats, tune, o.worldID, o.gridID, o.trackID, snap)
	if err != nil {
		return err
	}

	files, err := persistlog.Files(worldDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no tick logs under %s", filepath.Join(worldDir, "events"))
	}

	start := w.CurrentTick()
	checked, err := replayFiles(w, files, o.fromTick, o.toTick)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "replay ok: checked=%d ticks start=%d end=%d\n", checked, start, w.CurrentTick())
	return nil
}

// buildReplayWorld hosts the maps named by the snapshot when there is one, otherwise
// the maps selected by id.
func buildReplayWorld(cats *catalogs.Catalogs, tune tuning.Tuning, worldID, gridID, trackID string, snap *snapshot.SnapshotV1) (*world.World, error) {
	cfg := world.WorldConfig{
		ID:                 worldID,
		TickRateHz:         tune.TickRateHz,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
		MaxRiders:          tune.MaxRiders,
		Mover:              tune.Mover,
		Follower:           tune.Follower,
	}
	var maps world.Maps
	if snap != nil {
		cfg.TickRateHz = snap.TickRate
		cfg.SnapshotEveryTicks = snap.SnapshotEveryTicks
		for _, ref := range snap.Maps {
			switch ref.Kind {
			case protocol.VehicleGrid:
				maps.Grid = cats.Grids[ref.ID]
			case protocol.VehicleTrack:
				maps.Track = cats.Tracks[ref.ID]
			}
		}
	} else {
		maps = world.Maps{Grid: pickGrid(cats, gridID), Track: pickTrack(cats, trackID)}
	}

	w, err := world.New(cfg, maps, counter.New(), nil)
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	if snap != nil {
		if err := w.ImportSnapshot(*snap); err != nil {
			return nil, fmt.Errorf("import snapshot: %w", err)
		}
	}
	return w, nil
}

func pickGrid(cats *catalogs.Catalogs, id string) *catalogs.GridMap {
	switch id {
	case "none":
		return nil
	case "":
		if ids := cats.GridIDs(); len(ids) > 0 {
			return cats.Grids[ids[0]]
		}
		return nil
	default:
		return cats.Grids[id]
	}
}

func pickTrack(cats *catalogs.Catalogs, id string) *catalogs.TrackMap {
	switch id {
	case "none":
		return nil
	case "":
		if ids := cats.TrackIDs(); len(ids) > 0 {
			return cats.Tracks[ids[0]]
		}
		return nil
	default:
		return cats.Tracks[id]
	}
}

var errStopReplay = errors.New("stop")

// replayFiles applies every entry at or after the world's current tick. Digests are
// compared from verifyFrom on (0 means from the first applied tick).
func replayFiles(w *world.World, files []string, verifyFrom, toTick uint64) (uint64, error) {
	var checked uint64
	for _, path := range files {
		err := persistlog.ReadTicks(path, func(e world.TickLogEntry) error {
			if e.Tick < w.CurrentTick() {
				return nil
			}
			if toTick != 0 && e.Tick > toTick {
				return errStopReplay
			}
			got, err := w.ApplyRecorded(e)
			if err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			if e.Tick < verifyFrom {
				return nil
			}
			checked++
			if got != e.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", e.Tick, got, e.Digest)
			}
			return nil
		})
		if errors.Is(err, errStopReplay) {
			break
		}
		if err != nil {
			return checked, err
		}
	}
	return checked, nil
}
