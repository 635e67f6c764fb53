package track

import "railnav/internal/geom"

// Path is a traversable node sequence: the main sequence or a branch synthesized from
// the junction outward. Entry and Exit say where each end meets main (branches only).
type Path struct {
	Nodes    []geom.Vec3
	OnMain   bool
	Branch   int
	Reversed bool
	Entry    *MainRef
	Exit     *MainRef
}

func (p Path) Segments() int {
	if len(p.Nodes) < 2 {
		return 0
	}
	return len(p.Nodes) - 1
}

func (p Path) HasSegment(i int) bool { return i >= 0 && i < p.Segments() }

// SegmentLength is never below geom.MinSegmentLength.
func (p Path) SegmentLength(i int) float64 {
	if !p.HasSegment(i) {
		return geom.MinSegmentLength
	}
	return geom.ClampSegment(p.Nodes[i].Dist(p.Nodes[i+1]))
}

// SegmentDir is the unit direction from node i to node i+1.
func (p Path) SegmentDir(i int) geom.Vec3 {
	if !p.HasSegment(i) {
		return geom.Vec3{}
	}
	return p.Nodes[i+1].Sub(p.Nodes[i]).Normalize()
}

// PointAt is the position dist units along segment seg.
func (p Path) PointAt(seg int, dist float64) geom.Vec3 {
	if len(p.Nodes) == 0 {
		return geom.Vec3{}
	}
	if seg < 0 {
		return p.Nodes[0]
	}
	if seg >= p.Segments() {
		return p.Nodes[len(p.Nodes)-1]
	}
	return p.Nodes[seg].Add(p.SegmentDir(seg).Scale(dist))
}
