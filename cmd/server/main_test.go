package main

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"railnav/internal/counter"
	"railnav/internal/logging"
	"railnav/internal/sim/catalogs"
	"railnav/internal/sim/tuning"
	"railnav/internal/sim/world"
)

func loadRepoMaps(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.LoadDir("../../configs/maps", catalogs.DefaultOptions())
	if err != nil {
		t.Fatalf("load maps: %v", err)
	}
	return cats
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:1234": true,
		"[::1]:80":       true,
		"::1":            true,
		"10.0.0.3:9000":  false,
		"example.com:80": false,
		"":               false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}

func TestSelectMaps(t *testing.T) {
	cats := loadRepoMaps(t)

	m, err := selectMaps(cats, "", "")
	if err != nil {
		t.Fatalf("default select: %v", err)
	}
	if m.Grid == nil || m.Grid.ID != "yard" || m.Track == nil || m.Track.ID != "junction" {
		t.Fatalf("unexpected default selection: %+v", m)
	}

	m, err = selectMaps(cats, "none", "junction")
	if err != nil {
		t.Fatalf("track only: %v", err)
	}
	if m.Grid != nil || m.Track == nil {
		t.Fatalf("expected track only, got %+v", m)
	}

	if _, err := selectMaps(cats, "nope", ""); err == nil {
		t.Fatalf("expected unknown grid id error")
	}
	if _, err := selectMaps(cats, "none", "none"); !errors.Is(err, world.ErrNoMap) {
		t.Fatalf("expected ErrNoMap, got %v", err)
	}
}

func newTestMux(t *testing.T, opts muxOptions) (*httptest.Server, *world.World) {
	t.Helper()
	maps, err := selectMaps(loadRepoMaps(t), "", "")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	tune := tuning.Defaults()
	w, err := world.New(world.WorldConfig{
		ID:         "w_test",
		TickRateHz: tune.TickRateHz,
		MaxRiders:  4,
		Mover:      tune.Mover,
		Follower:   tune.Follower,
	}, maps, counter.New(), logging.Nop())
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	srv := httptest.NewServer(newMux(w, nil, opts, logging.Nop()))
	t.Cleanup(srv.Close)
	return srv, w
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestHealthzAndMetrics(t *testing.T) {
	srv, w := newTestMux(t, muxOptions{})
	w.StepOnce(nil, nil, nil)
	w.Counter().Inc(counter.Turns)

	code, body := get(t, srv.URL+"/healthz")
	if code != http.StatusOK || body != "ok" {
		t.Fatalf("healthz: %d %q", code, body)
	}

	code, body = get(t, srv.URL+"/metrics")
	if code != http.StatusOK {
		t.Fatalf("metrics status: %d", code)
	}
	for _, want := range []string{
		`railnav_world_tick{world="w_test"} 1`,
		`railnav_world_riders{world="w_test"} 0`,
		`railnav_nav_events_total{world="w_test",event="turns"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "railnav_index_") {
		t.Fatalf("index metrics without an index backend:\n%s", body)
	}
}

func TestAdminRoutesDisabledByDefault(t *testing.T) {
	srv, _ := newTestMux(t, muxOptions{})
	code, _ := get(t, srv.URL+"/admin/v1/state")
	if code != http.StatusNotFound {
		t.Fatalf("expected 404 with admin disabled, got %d", code)
	}
}

func TestAdminState(t *testing.T) {
	srv, _ := newTestMux(t, muxOptions{Admin: true})
	code, body := get(t, srv.URL+"/admin/v1/state")
	if code != http.StatusOK {
		t.Fatalf("admin state: %d %s", code, body)
	}
	if !strings.Contains(body, `"world_id":"w_test"`) {
		t.Fatalf("unexpected body: %s", body)
	}

	resp, err := http.Get(srv.URL + "/admin/v1/snapshot")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}
