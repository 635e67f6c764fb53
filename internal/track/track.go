// Package track models a main waypoint sequence with branch sequences attached at main
// nodes. Branch reconnects are explicit links to a point on main; geometric matching is
// only done once, by loaders, through ResolveRejoin.
package track

import (
	"errors"
	"fmt"
	"math"

	"railnav/internal/geom"
)

var (
	ErrShortMain   = errors.New("track: main sequence needs at least 2 nodes")
	ErrEmptyBranch = errors.New("track: branch needs at least 1 node")
	ErrBadAttach   = errors.New("track: branch attach index out of range")
	ErrBadRejoin   = errors.New("track: branch rejoin reference out of range")
	ErrFlatBranch  = errors.New("track: branch has no length once folded onto main")
)

// DefaultRejoinTolerance is the coincidence tolerance for legacy reconnect discovery.
const DefaultRejoinTolerance = 0.05

type Node struct {
	ID  string    `json:"id,omitempty"`
	Pos geom.Vec3 `json:"pos"`
}

// MainRef is a point on the main sequence: node Index when Offset is 0, otherwise
// Offset units along segment Index.
type MainRef struct {
	Index  int     `json:"index"`
	Offset float64 `json:"offset,omitempty"`
}

func (r MainRef) AtNode() bool { return r.Offset == 0 }

// Branch is a node sequence leaving main node Attach. Nodes[0] is the first node strictly
// outward from the junction. Rejoin, when set, is where the far end meets main again.
type Branch struct {
	ID     string   `json:"id"`
	Attach int      `json:"attach"`
	Nodes  []Node   `json:"nodes"`
	Rejoin *MainRef `json:"rejoin,omitempty"`
}

// Junction lists the branches touching a main node: Forward ones start there and
// Reconnect ones end there.
type Junction struct {
	Node      int   `json:"node"`
	Forward   []int `json:"forward,omitempty"`
	Reconnect []int `json:"reconnect,omitempty"`
}

type Track struct {
	ID       string
	Main     []Node
	Branches []Branch

	main      Path
	forward   []Path
	reverse   []Path
	junctions map[int]*Junction
	joinTol   float64
}

type Option func(*Track)

// WithJoinTolerance sets how close a branch node must be to its attach or rejoin point
// to be treated as that point. Loaders pass the tolerance they resolved rejoins with.
func WithJoinTolerance(tol float64) Option {
	return func(t *Track) {
		if tol >= 0 {
			t.joinTol = tol
		}
	}
}

func New(id string, main []Node, branches []Branch, opts ...Option) (*Track, error) {
	if len(main) < 2 {
		return nil, ErrShortMain
	}
	t := &Track{
		ID:        id,
		Main:      main,
		Branches:  branches,
		junctions: make(map[int]*Junction),
		joinTol:   DefaultRejoinTolerance,
	}
	for _, o := range opts {
		o(t)
	}
	t.main = Path{Nodes: positions(main), OnMain: true, Branch: -1}

	for i := range branches {
		b := &branches[i]
		if len(b.Nodes) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyBranch, b.ID)
		}
		if b.Attach < 0 || b.Attach >= len(main) {
			return nil, fmt.Errorf("%w: %s attach=%d", ErrBadAttach, b.ID, b.Attach)
		}
		if b.Rejoin != nil {
			r, err := t.normalizeRef(*b.Rejoin)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrBadRejoin, b.ID, err)
			}
			b.Rejoin = &r
		}
		t.junction(b.Attach).Forward = append(t.junction(b.Attach).Forward, i)
		if b.Rejoin != nil && b.Rejoin.AtNode() {
			j := t.junction(b.Rejoin.Index)
			j.Reconnect = append(j.Reconnect, i)
		}
	}

	t.forward = make([]Path, len(branches))
	t.reverse = make([]Path, len(branches))
	for i := range branches {
		p, err := t.buildBranchPath(i)
		if err != nil {
			return nil, err
		}
		t.forward[i] = p
		t.reverse[i] = reversed(p)
	}
	return t, nil
}

// buildBranchPath lays out attach node, branch nodes and rejoin point. A node within the
// join tolerance of the point before it is dropped, and a last node that sits on the
// rejoin point becomes the rejoin point, so no path carries a zero-length stub.
func (t *Track) buildBranchPath(b int) (Path, error) {
	br := t.Branches[b]
	nodes := make([]geom.Vec3, 0, len(br.Nodes)+2)
	nodes = append(nodes, t.Main[br.Attach].Pos)
	for _, n := range br.Nodes {
		if n.Pos.Dist(nodes[len(nodes)-1]) <= t.joinTol {
			continue
		}
		nodes = append(nodes, n.Pos)
	}
	if br.Rejoin != nil {
		end := t.PointAt(*br.Rejoin)
		if last := len(nodes) - 1; last > 0 && nodes[last].Dist(end) <= t.joinTol {
			nodes[last] = end
		} else {
			nodes = append(nodes, end)
		}
	}
	if len(nodes) < 2 || (len(nodes) == 2 && nodes[0].Dist(nodes[1]) <= t.joinTol) {
		return Path{}, fmt.Errorf("%w: %s", ErrFlatBranch, br.ID)
	}
	return Path{
		Nodes:  nodes,
		Branch: b,
		Entry:  &MainRef{Index: br.Attach},
		Exit:   br.Rejoin,
	}, nil
}

func reversed(p Path) Path {
	nodes := make([]geom.Vec3, len(p.Nodes))
	for i, n := range p.Nodes {
		nodes[len(nodes)-1-i] = n
	}
	return Path{
		Nodes:    nodes,
		Branch:   p.Branch,
		Reversed: true,
		Entry:    p.Exit,
		Exit:     p.Entry,
	}
}

func (t *Track) junction(i int) *Junction {
	j := t.junctions[i]
	if j == nil {
		j = &Junction{Node: i}
		t.junctions[i] = j
	}
	return j
}

// normalizeRef validates r and folds an offset at a segment end onto the node.
func (t *Track) normalizeRef(r MainRef) (MainRef, error) {
	if r.Index < 0 || r.Index >= len(t.Main) {
		return r, fmt.Errorf("index %d", r.Index)
	}
	if r.Offset == 0 {
		return r, nil
	}
	if r.Offset < 0 || r.Index >= len(t.Main)-1 {
		return r, fmt.Errorf("offset %.4f on segment %d", r.Offset, r.Index)
	}
	l := t.main.SegmentLength(r.Index)
	switch {
	case r.Offset > l+geom.MinSegmentLength:
		return r, fmt.Errorf("offset %.4f beyond segment length %.4f", r.Offset, l)
	case r.Offset >= l-geom.MinSegmentLength:
		return MainRef{Index: r.Index + 1}, nil
	}
	return r, nil
}

// Junction returns the branches touching main node i; ok is false when none do.
func (t *Track) Junction(i int) (*Junction, bool) {
	j, ok := t.junctions[i]
	return j, ok
}

func (t *Track) Junctions() map[int]*Junction { return t.junctions }

func (t *Track) MainPath() Path { return t.main }

// PointAt resolves a main reference to a world position.
func (t *Track) PointAt(r MainRef) geom.Vec3 {
	return t.main.PointAt(r.Index, r.Offset)
}

// BranchPath is junction node, branch nodes and, if the branch reconnects, the rejoin point.
func (t *Track) BranchPath(b int) Path { return t.forward[b] }

// ReversePath walks a branch backwards: rejoin point (or far end), branch nodes in
// reverse, then the attach node.
func (t *Track) ReversePath(b int) Path { return t.reverse[b] }

// PathFor rebuilds a path from its identity (used when restoring followers).
func (t *Track) PathFor(branch int, reversed bool) (Path, bool) {
	if branch < 0 {
		return t.main, true
	}
	if branch >= len(t.Branches) {
		return Path{}, false
	}
	if reversed {
		return t.ReversePath(branch), true
	}
	return t.BranchPath(branch), true
}

// ResolveRejoin finds where a branch far end meets main: the nearest main node within
// tol, otherwise the nearest point on a main segment within tol.
func ResolveRejoin(main []Node, end geom.Vec3, tol float64) (MainRef, bool) {
	best, bestD := -1, math.Inf(1)
	for i, n := range main {
		if d := n.Pos.Dist(end); d <= tol && d < bestD {
			best, bestD = i, d
		}
	}
	if best >= 0 {
		return MainRef{Index: best}, true
	}

	ref, bestD := MainRef{}, math.Inf(1)
	found := false
	for i := 0; i+1 < len(main); i++ {
		off, p := geom.ClosestOnSegment(main[i].Pos, main[i+1].Pos, end)
		if d := p.Dist(end); d <= tol && d < bestD {
			ref, bestD, found = MainRef{Index: i, Offset: off}, d, true
		}
	}
	return ref, found
}

func positions(nodes []Node) []geom.Vec3 {
	out := make([]geom.Vec3, len(nodes))
	for i, n := range nodes {
		out[i] = n.Pos
	}
	return out
}
