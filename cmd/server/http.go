package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"go.uber.org/zap"

	"railnav/internal/sim/world"
	"railnav/internal/transport/ws"
)

type muxOptions struct {
	Admin bool
	Pprof bool
}

func newMux(w *world.World, idx runtimeIndex, opts muxOptions, logger *zap.SugaredLogger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, w, idx)
	})

	if opts.Admin {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID string             `json:"world_id"`
				Tick    uint64             `json:"tick"`
				Metrics world.WorldMetrics `json:"metrics"`
			}{
				WorldID: w.ID(),
				Tick:    w.CurrentTick(),
				Metrics: w.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			tick, err := w.RequestSnapshot(ctx)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
		})
	} else {
		logger.Infow("admin endpoints disabled (RN_ENABLE_ADMIN_HTTP=false)")
	}
	if opts.Pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger.Named("ws")).Handler())
	return mux
}

// writeMetrics emits the minimal Prometheus text exposition format.
func writeMetrics(rw http.ResponseWriter, w *world.World, idx runtimeIndex) {
	m := w.Metrics()
	id := w.ID()

	fmt.Fprintf(rw, "# HELP railnav_world_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE railnav_world_tick gauge\n")
	fmt.Fprintf(rw, "railnav_world_tick{world=%q} %d\n", id, w.CurrentTick())

	fmt.Fprintf(rw, "# HELP railnav_world_riders Riders in the world, connected or not.\n")
	fmt.Fprintf(rw, "# TYPE railnav_world_riders gauge\n")
	fmt.Fprintf(rw, "railnav_world_riders{world=%q} %d\n", id, m.Riders)

	fmt.Fprintf(rw, "# HELP railnav_world_clients Current number of connected clients.\n")
	fmt.Fprintf(rw, "# TYPE railnav_world_clients gauge\n")
	fmt.Fprintf(rw, "railnav_world_clients{world=%q} %d\n", id, m.Clients)

	fmt.Fprintf(rw, "# HELP railnav_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE railnav_world_queue_depth gauge\n")
	fmt.Fprintf(rw, "railnav_world_queue_depth{world=%q,queue=%q} %d\n", id, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(rw, "railnav_world_queue_depth{world=%q,queue=%q} %d\n", id, "join", m.QueueDepths.Join)
	fmt.Fprintf(rw, "railnav_world_queue_depth{world=%q,queue=%q} %d\n", id, "leave", m.QueueDepths.Leave)
	fmt.Fprintf(rw, "railnav_world_queue_depth{world=%q,queue=%q} %d\n", id, "attach", m.QueueDepths.Attach)

	fmt.Fprintf(rw, "# HELP railnav_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE railnav_world_step_ms gauge\n")
	fmt.Fprintf(rw, "railnav_world_step_ms{world=%q} %.3f\n", id, m.StepMS)

	ctr := w.Counter()
	fmt.Fprintf(rw, "# HELP railnav_nav_events_total Navigation events counted across riders.\n")
	fmt.Fprintf(rw, "# TYPE railnav_nav_events_total counter\n")
	snap := ctr.Snapshot()
	for _, name := range ctr.Names() {
		fmt.Fprintf(rw, "railnav_nav_events_total{world=%q,event=%q} %d\n", id, name, snap[name])
	}

	if idx == nil {
		return
	}
	st := idx.Stats()
	fmt.Fprintf(rw, "# HELP railnav_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(rw, "# TYPE railnav_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "railnav_index_queue_depth{world=%q} %d\n", id, st.QueueDepth)
	fmt.Fprintf(rw, "# HELP railnav_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE railnav_index_dropped_total counter\n")
	fmt.Fprintf(rw, "railnav_index_dropped_total{world=%q,kind=%q} %d\n", id, "tick", st.DropTickTotal)
	fmt.Fprintf(rw, "railnav_index_dropped_total{world=%q,kind=%q} %d\n", id, "snapshot", st.DropSnapshotTotal)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
