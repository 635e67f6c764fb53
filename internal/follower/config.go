package follower

import "fmt"

type Config struct {
	Speed       float64 `yaml:"speed" json:"speed"`
	CornerAngle float64 `yaml:"corner_angle" json:"corner_angle"`
	RotateSpeed float64 `yaml:"rotate_speed" json:"rotate_speed"`
}

func DefaultConfig() Config {
	return Config{
		Speed:       6,
		CornerAngle: 35,
		RotateSpeed: 540,
	}
}

func (c Config) Validate() error {
	if c.Speed <= 0 {
		return fmt.Errorf("follower: speed must be > 0")
	}
	if c.CornerAngle < 0 || c.CornerAngle >= 180 {
		return fmt.Errorf("follower: corner_angle must be in [0,180)")
	}
	if c.RotateSpeed < 0 {
		return fmt.Errorf("follower: rotate_speed must be >= 0")
	}
	return nil
}
