package mover

import "fmt"

// Mode selects the momentum contract.
type Mode string

const (
	// ModeAuto keeps transiting from node to node until a dead end once started.
	ModeAuto Mode = "auto"
	// ModeHold only moves while Move is held and drops all speed when it is released.
	ModeHold Mode = "hold"
)

type Config struct {
	MinSpeed     float64 `yaml:"min_speed" json:"min_speed"`
	MaxSpeed     float64 `yaml:"max_speed" json:"max_speed"`
	Acceleration float64 `yaml:"acceleration" json:"acceleration"`
	// TurnWindow is the trailing fraction of a segment during which a turn request is
	// queued for the next node. Requests earlier in the segment are dropped.
	TurnWindow  float64 `yaml:"turn_window" json:"turn_window"`
	RotateSpeed float64 `yaml:"rotate_speed" json:"rotate_speed"`
	Mode        Mode    `yaml:"mode" json:"mode"`
}

func DefaultConfig() Config {
	return Config{
		MinSpeed:     2,
		MaxSpeed:     8,
		Acceleration: 6,
		TurnWindow:   0.3,
		RotateSpeed:  540,
		Mode:         ModeAuto,
	}
}

func (c Config) Validate() error {
	if c.MinSpeed <= 0 {
		return fmt.Errorf("mover: min_speed must be > 0")
	}
	if c.MaxSpeed < c.MinSpeed {
		return fmt.Errorf("mover: max_speed %.3f < min_speed %.3f", c.MaxSpeed, c.MinSpeed)
	}
	if c.Acceleration < 0 {
		return fmt.Errorf("mover: acceleration must be >= 0")
	}
	if c.TurnWindow < 0 || c.TurnWindow > 1 {
		return fmt.Errorf("mover: turn_window must be within [0,1]")
	}
	if c.RotateSpeed < 0 {
		return fmt.Errorf("mover: rotate_speed must be >= 0")
	}
	switch c.Mode {
	case ModeAuto, ModeHold:
	default:
		return fmt.Errorf("mover: unknown mode %q", c.Mode)
	}
	return nil
}
