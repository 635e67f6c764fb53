package grid

import (
	"fmt"
	"strings"

	"railnav/internal/geom"
)

// Dir is a cardinal direction on the grid. North is +y in grid space and +Z in world space.
type Dir uint8

const (
	North Dir = iota
	East
	South
	West
)

var AllDirs = [4]Dir{North, East, South, West}

func (d Dir) Opposite() Dir { return (d + 2) % 4 }

// Left rotates 90° counter-clockwise seen from above (North -> West).
func (d Dir) Left() Dir { return (d + 3) % 4 }

// Right rotates 90° clockwise seen from above (North -> East).
func (d Dir) Right() Dir { return (d + 1) % 4 }

func (d Dir) Delta() (dx, dy int) {
	switch d {
	case North:
		return 0, 1
	case East:
		return 1, 0
	case South:
		return 0, -1
	case West:
		return -1, 0
	default:
		return 0, 0
	}
}

// Vec is the world-space unit vector for d.
func (d Dir) Vec() geom.Vec3 {
	dx, dy := d.Delta()
	return geom.V(float64(dx), 0, float64(dy))
}

func (d Dir) Yaw() float64 { return float64(d%4) * 90 }

func (d Dir) String() string {
	switch d {
	case North:
		return "N"
	case East:
		return "E"
	case South:
		return "S"
	case West:
		return "W"
	default:
		return fmt.Sprintf("Dir(%d)", uint8(d))
	}
}

func ParseDir(s string) (Dir, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "N", "NORTH", "UP":
		return North, nil
	case "E", "EAST", "RIGHT":
		return East, nil
	case "S", "SOUTH", "DOWN":
		return South, nil
	case "W", "WEST", "LEFT":
		return West, nil
	default:
		return North, fmt.Errorf("bad direction %q", s)
	}
}

// Coord addresses a grid node.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func C(x, y int) Coord { return Coord{X: x, Y: y} }

func (c Coord) Step(d Dir) Coord {
	dx, dy := d.Delta()
	return Coord{X: c.X + dx, Y: c.Y + dy}
}

func (c Coord) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }
