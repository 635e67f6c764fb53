package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"railnav/internal/follower"
	"railnav/internal/grid"
	"railnav/internal/mover"
	"railnav/internal/track"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	MaxRiders          int `yaml:"max_riders"`

	Mover    mover.Config    `yaml:"mover"`
	Follower follower.Config `yaml:"follower"`
	Grid     GridTuning      `yaml:"grid"`
	Track    TrackTuning     `yaml:"track"`
	Input    InputTuning     `yaml:"input"`
}

type GridTuning struct {
	// keep|close|reject, applied when a map is loaded.
	SymmetryPolicy string `yaml:"symmetry_policy"`
}

type TrackTuning struct {
	RejoinTolerance float64 `yaml:"rejoin_tolerance"`
}

type InputTuning struct {
	// Terminals report presses but not releases; a key counts as held until this long
	// after its last repeat.
	HoldTimeoutMs int `yaml:"hold_timeout_ms"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         20,
		SnapshotEveryTicks: 600,
		MaxRiders:          64,
		Mover:              mover.DefaultConfig(),
		Follower:           follower.DefaultConfig(),
		Grid:               GridTuning{SymmetryPolicy: string(grid.SymmetryClose)},
		Track:              TrackTuning{RejoinTolerance: track.DefaultRejoinTolerance},
		Input:              InputTuning{HoldTimeoutMs: 150},
	}
}

// Load overlays the YAML file at path on Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz must be in (0,1000]")
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	if t.MaxRiders <= 0 {
		return fmt.Errorf("max_riders must be > 0")
	}
	if err := t.Mover.Validate(); err != nil {
		return err
	}
	if err := t.Follower.Validate(); err != nil {
		return err
	}
	if _, err := grid.ParseSymmetryPolicy(t.Grid.SymmetryPolicy); err != nil {
		return err
	}
	if t.Track.RejoinTolerance < 0 {
		return fmt.Errorf("track.rejoin_tolerance must be >= 0")
	}
	if t.Input.HoldTimeoutMs < 0 {
		return fmt.Errorf("input.hold_timeout_ms must be >= 0")
	}
	return nil
}

// TickSeconds is the fixed simulation step.
func (t Tuning) TickSeconds() float64 {
	return 1 / float64(t.TickRateHz)
}

func (t Tuning) SymmetryPolicy() grid.SymmetryPolicy {
	p, _ := grid.ParseSymmetryPolicy(t.Grid.SymmetryPolicy)
	return p
}
