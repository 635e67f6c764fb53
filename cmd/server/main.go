package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"railnav/internal/counter"
	"railnav/internal/logging"
	persistlog "railnav/internal/persistence/log"
	"railnav/internal/persistence/snapshot"
	"railnav/internal/sim/catalogs"
	"railnav/internal/sim/tuning"
	"railnav/internal/sim/world"
)

func main() {
	var (
		addr       = flag.String("addr", envString("RN_ADDR", ":8080"), "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		mapsDir    = flag.String("maps", "", "map directory (default: <configs>/maps)")
		gridID     = flag.String("grid", "", `grid map id to host (default: first loaded; "none" to disable)`)
		trackID    = flag.String("track", "", `track map id to host (default: first loaded; "none" to disable)`)
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read model")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")

		logLevel  = flag.String("log_level", envString("RN_LOG_LEVEL", "info"), "debug|info|warn|error")
		logFormat = flag.String("log_format", envString("RN_LOG_FORMAT", "console"), "console|json")
		logFile   = flag.String("log_file", envString("RN_LOG_FILE", ""), "also write logs to this rotated file")
	)
	flag.Parse()

	logger, err := logging.New(logging.Options{
		Level:      *logLevel,
		Format:     *logFormat,
		File:       *logFile,
		MaxSizeMB:  envInt("RN_LOG_MAX_SIZE_MB", 10),
		MaxBackups: envInt("RN_LOG_MAX_BACKUPS", 3),
		MaxAgeDays: envInt("RN_LOG_MAX_AGE_DAYS", 7),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger = logger.Named("server")
	defer logging.Sync(logger)

	if err := run(serverConfig{
		Addr:       *addr,
		WorldID:    *worldID,
		ConfigDir:  *configDir,
		MapsDir:    *mapsDir,
		GridID:     *gridID,
		TrackID:    *trackID,
		DataDir:    *dataDir,
		TuningPath: *tuningPath,
		DisableDB:  *disableDB,
		Snapshot:   *snapPath,
		LoadLatest: *loadLatest,
	}, logger); err != nil {
		logger.Errorw("server exited", "err", err)
		logging.Sync(logger)
		os.Exit(1)
	}
}

type serverConfig struct {
	Addr       string
	WorldID    string
	ConfigDir  string
	MapsDir    string
	GridID     string
	TrackID    string
	DataDir    string
	TuningPath string
	DisableDB  bool
	Snapshot   string
	LoadLatest bool
}

func run(cfg serverConfig, logger *zap.SugaredLogger) error {
	worldDir := filepath.Join(cfg.DataDir, "worlds", cfg.WorldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		return err
	}

	snapshotToLoad := strings.TrimSpace(cfg.Snapshot)
	if snapshotToLoad == "" && cfg.LoadLatest {
		if p, _, err := snapshot.Latest(worldDir); err == nil {
			snapshotToLoad = p
		}
	}

	tp := strings.TrimSpace(cfg.TuningPath)
	if tp == "" {
		tp = filepath.Join(cfg.ConfigDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("load tuning: %w", err)
		}
		logger.Warnw("tuning not found; using defaults", "path", tp)
		tune = tuning.Defaults()
	}

	md := strings.TrimSpace(cfg.MapsDir)
	if md == "" {
		md = filepath.Join(cfg.ConfigDir, "maps")
	}
	cats, err := catalogs.LoadDir(md, catalogs.Options{Symmetry: tune.SymmetryPolicy(), RejoinTolerance: tune.Track.RejoinTolerance})
	if err != nil {
		return fmt.Errorf("load maps: %w", err)
	}
	maps, err := selectMaps(cats, cfg.GridID, cfg.TrackID)
	if err != nil {
		return err
	}
	if g := maps.Grid; g != nil {
		logger.Infow("hosting grid", "id", g.ID, "digest", g.Digest, "normalized_borders", g.Normalized, "asymmetric_edges", len(g.Asymmetric))
	}
	if t := maps.Track; t != nil {
		logger.Infow("hosting track", "id", t.ID, "digest", t.Digest, "junctions", len(t.Track.Junctions()))
	}

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, cfg.DisableDB)
	if err != nil {
		return fmt.Errorf("open index backend: %w", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertMaps(cats, tune); err != nil {
			logger.Warnw("index backend: upsert maps", "err", err)
		}
	}

	w, err := world.New(world.WorldConfig{
		ID:                 cfg.WorldID,
		TickRateHz:         tune.TickRateHz,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
		MaxRiders:          tune.MaxRiders,
		Mover:              tune.Mover,
		Follower:           tune.Follower,
	}, maps, counter.New(), logger.Named("world"))
	if err != nil {
		return fmt.Errorf("world: %w", err)
	}

	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != cfg.WorldID {
			return fmt.Errorf("snapshot world id mismatch: flag=%s snap=%s", cfg.WorldID, snap.Header.WorldID)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			return fmt.Errorf("import snapshot: %w", err)
		}
		logger.Infow("resumed from snapshot", "snapshot", filepath.Base(snapshotToLoad), "tick", w.CurrentTick())
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(worldDir)
	defer tickLog.Close()
	w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := snapshot.Path(worldDir, snap.Header.Tick)
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Warnw("snapshot write", "tick", snap.Header.Tick, "err", err)
					continue
				}
				logger.Debugw("snapshot written", "path", path)
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
			}
		}
	}()

	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorw("world stopped", "err", err)
		}
	}()

	mux := newMux(w, idx, muxOptions{
		Admin: envBool("RN_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		Pprof: envBool("RN_ENABLE_PPROF_HTTP", false),
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Infow("listening", "addr", cfg.Addr, "world", cfg.WorldID)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// selectMaps picks the hosted maps by id. An empty id selects the first loaded map of
// that kind; "none" disables it.
func selectMaps(cats *catalogs.Catalogs, gridID, trackID string) (world.Maps, error) {
	var m world.Maps
	switch id := strings.TrimSpace(gridID); id {
	case "none":
	case "":
		if ids := cats.GridIDs(); len(ids) > 0 {
			m.Grid = cats.Grids[ids[0]]
		}
	default:
		g, ok := cats.Grids[id]
		if !ok {
			return m, fmt.Errorf("grid map %q not found (have %v)", id, cats.GridIDs())
		}
		m.Grid = g
	}
	switch id := strings.TrimSpace(trackID); id {
	case "none":
	case "":
		if ids := cats.TrackIDs(); len(ids) > 0 {
			m.Track = cats.Tracks[ids[0]]
		}
	default:
		t, ok := cats.Tracks[id]
		if !ok {
			return m, fmt.Errorf("track map %q not found (have %v)", id, cats.TrackIDs())
		}
		m.Track = t
	}
	if m.Grid == nil && m.Track == nil {
		return m, world.ErrNoMap
	}
	return m, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
