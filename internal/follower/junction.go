package follower

import (
	"math"

	"railnav/internal/geom"
	"railnav/internal/input"
	"railnav/internal/track"
)

type ChoiceKind string

const (
	ChoiceMain      ChoiceKind = "main"
	ChoiceBranch    ChoiceKind = "branch"
	ChoiceReconnect ChoiceKind = "reconnect"
)

// Choice is one way out of a junction. Dir is the travel direction on main (+1/-1) and
// is only meaningful for ChoiceMain.
type Choice struct {
	Kind   ChoiceKind `json:"kind"`
	Branch int        `json:"branch"`
	Dir    int        `json:"dir,omitempty"`
	Out    geom.Vec3  `json:"out"`
	Angle  float64    `json:"angle"`
	Sign   int        `json:"sign"`
}

// Candidates lists every way out of main node i in a fixed order: main forward, main
// backward, forward branches, reconnecting branches. It is nil when i is not a junction.
// A way out with no direction (a degenerate segment) is never offered.
func Candidates(t *track.Track, i int) []Choice {
	j, ok := t.Junction(i)
	if !ok {
		return nil
	}
	main := t.MainPath()
	var out []Choice
	if main.HasSegment(i) {
		out = append(out, Choice{Kind: ChoiceMain, Branch: -1, Dir: 1, Out: main.SegmentDir(i)})
	}
	if main.HasSegment(i - 1) {
		out = append(out, Choice{Kind: ChoiceMain, Branch: -1, Dir: -1, Out: main.SegmentDir(i - 1).Scale(-1)})
	}
	for _, b := range j.Forward {
		out = append(out, Choice{Kind: ChoiceBranch, Branch: b, Out: t.BranchPath(b).SegmentDir(0)})
	}
	for _, b := range j.Reconnect {
		out = append(out, Choice{Kind: ChoiceReconnect, Branch: b, Out: t.ReversePath(b).SegmentDir(0)})
	}
	kept := out[:0]
	for _, c := range out {
		if c.Out != (geom.Vec3{}) {
			kept = append(kept, c)
		}
	}
	return kept
}

// Resolve picks the way out of main node i for a rider arriving along incoming. With
// no turn key held the smallest deviation wins; a held Left or Right selects the
// smallest deviation among candidates on that side, if any. Ties keep the earlier
// candidate, so main wins over a branch at equal angle.
func Resolve(t *track.Track, i int, incoming geom.Vec3, keys input.Command) (Choice, bool) {
	cands := Candidates(t, i)
	if len(cands) == 0 {
		return Choice{}, false
	}

	straight, left, right := -1, -1, -1
	bestS, bestL, bestR := math.Inf(1), math.Inf(1), math.Inf(1)
	for k := range cands {
		c := &cands[k]
		c.Angle = geom.Angle(incoming, c.Out)
		c.Sign = geom.TurnSign(incoming, c.Out)
		if c.Angle < bestS {
			straight, bestS = k, c.Angle
		}
		if c.Sign < 0 && c.Angle < bestL {
			left, bestL = k, c.Angle
		}
		if c.Sign > 0 && c.Angle < bestR {
			right, bestR = k, c.Angle
		}
	}

	switch {
	case keys.Has(input.Left) && left >= 0:
		return cands[left], true
	case keys.Has(input.Right) && right >= 0:
		return cands[right], true
	}
	return cands[straight], true
}
