package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"railnav/internal/grid"
	"railnav/internal/mover"
)

func TestLoad_RepoConfig(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.TickRateHz != 20 || tu.Mover.Mode != mover.ModeAuto {
		t.Fatalf("unexpected tuning: %+v", tu)
	}
	if tu.SymmetryPolicy() != grid.SymmetryClose {
		t.Fatalf("policy=%s", tu.SymmetryPolicy())
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("tick_rate_hz: 50\nmover:\n  mode: hold\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.TickRateHz != 50 || tu.Mover.Mode != mover.ModeHold {
		t.Fatalf("overrides lost: %+v", tu)
	}
	if tu.Mover.MaxSpeed != mover.DefaultConfig().MaxSpeed || tu.Follower.Speed == 0 {
		t.Fatalf("defaults lost: %+v", tu)
	}
	if got := tu.TickSeconds(); got != 0.02 {
		t.Fatalf("tick seconds=%v", got)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("grid:\n  symmetry_policy: mirror\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("unknown symmetry policy accepted")
	}
}
