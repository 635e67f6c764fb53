package geom

import "math"

// MinSegmentLength clamps degenerate (zero-length) segments so progress math never divides by zero.
const MinSegmentLength = 1e-4

const signEpsilon = 1e-9

// Vec3 is a world-space vector. +Y is up; grid north maps to +Z and east to +X.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func V(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func (a Vec3) Add(b Vec3) Vec3 {
	return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z}
}

func (a Vec3) Sub(b Vec3) Vec3 {
	return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z}
}

func (a Vec3) Scale(s float64) Vec3 {
	return Vec3{a.X * s, a.Y * s, a.Z * s}
}

func (a Vec3) Dot(b Vec3) float64 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

func (a Vec3) LenSq() float64 {
	return a.Dot(a)
}

func (a Vec3) Len() float64 {
	return math.Sqrt(a.LenSq())
}

func (a Vec3) Dist(b Vec3) float64 {
	return b.Sub(a).Len()
}

func (a Vec3) IsZero() bool {
	return a.X == 0 && a.Y == 0 && a.Z == 0
}

func (a Vec3) Array() [3]float64 {
	return [3]float64{a.X, a.Y, a.Z}
}

func FromArray(v [3]float64) Vec3 {
	return Vec3{v[0], v[1], v[2]}
}

func (a Vec3) Lerp(b Vec3, t float64) Vec3 {
	return Vec3{a.X + (b.X-a.X)*t, a.Y + (b.Y-a.Y)*t, a.Z + (b.Z-a.Z)*t}
}

// Normalize returns the unit vector; the zero vector stays zero.
func (a Vec3) Normalize() Vec3 {
	l := a.Len()
	if l == 0 {
		return Vec3{}
	}
	inv := 1.0 / l
	return Vec3{a.X * inv, a.Y * inv, a.Z * inv}
}

// Angle returns the unsigned angle between a and b in degrees, in [0,180].
func Angle(a, b Vec3) float64 {
	la, lb := a.Len(), b.Len()
	if la == 0 || lb == 0 {
		return 0
	}
	c := a.Dot(b) / (la * lb)
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return math.Acos(c) * 180 / math.Pi
}

// CrossY is the vertical component of a×b in the left-handed frame (X east, Y up, Z north).
// Negative means b turns left from a, positive right.
func CrossY(a, b Vec3) float64 {
	return a.Z*b.X - a.X*b.Z
}

// TurnSign classifies b relative to a: -1 left, +1 right, 0 colinear.
func TurnSign(a, b Vec3) int {
	c := CrossY(a.Normalize(), b.Normalize())
	switch {
	case c < -signEpsilon:
		return -1
	case c > signEpsilon:
		return 1
	default:
		return 0
	}
}

// Yaw returns the heading of v in degrees [0,360): +Z is 0, +X is 90.
func Yaw(v Vec3) float64 {
	if v.X == 0 && v.Z == 0 {
		return 0
	}
	return NormalizeDegrees(math.Atan2(v.X, v.Z) * 180 / math.Pi)
}

func NormalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// DeltaAngle is the shortest signed difference target-cur in degrees, in (-180,180].
func DeltaAngle(cur, target float64) float64 {
	d := math.Mod(target-cur, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}

// MoveTowardsAngle rotates cur toward target by at most maxDelta degrees along the shortest arc.
func MoveTowardsAngle(cur, target, maxDelta float64) float64 {
	d := DeltaAngle(cur, target)
	if math.Abs(d) <= maxDelta {
		return NormalizeDegrees(target)
	}
	if d > 0 {
		return NormalizeDegrees(cur + maxDelta)
	}
	return NormalizeDegrees(cur - maxDelta)
}

// ClampSegment returns length clamped to MinSegmentLength.
func ClampSegment(length float64) float64 {
	if length < MinSegmentLength {
		return MinSegmentLength
	}
	return length
}

// ClosestOnSegment projects p onto segment ab and returns the parameter distance from a and the point.
func ClosestOnSegment(a, b, p Vec3) (float64, Vec3) {
	ab := b.Sub(a)
	l2 := ab.LenSq()
	if l2 == 0 {
		return 0, a
	}
	t := p.Sub(a).Dot(ab) / l2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return t * math.Sqrt(l2), a.Lerp(b, t)
}
