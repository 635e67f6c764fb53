package catalogs

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"railnav/internal/geom"
	"railnav/internal/grid"
	"railnav/internal/track"
)

type gridDoc struct {
	Kind           string      `yaml:"kind"`
	ID             string      `yaml:"id"`
	Width          int         `yaml:"width"`
	Height         int         `yaml:"height"`
	CellSize       float64     `yaml:"cell_size"`
	Origin         []float64   `yaml:"origin"`
	Fill           string      `yaml:"fill"`
	Cells          []grid.Cell `yaml:"cells"`
	Closed         []edgeDoc   `yaml:"closed"`
	SymmetryPolicy string      `yaml:"symmetry_policy"`
	Spawn          *spawnDoc   `yaml:"spawn"`
}

type edgeDoc struct {
	X   int    `yaml:"x"`
	Y   int    `yaml:"y"`
	Dir string `yaml:"dir"`
}

type spawnDoc struct {
	X      int    `yaml:"x"`
	Y      int    `yaml:"y"`
	Facing string `yaml:"facing"`
}

func vec(v []float64) geom.Vec3 {
	if len(v) != 3 {
		return geom.Vec3{}
	}
	return geom.V(v[0], v[1], v[2])
}

func buildGrid(d gridDoc, opts Options) (*GridMap, error) {
	cs := d.CellSize
	if cs == 0 {
		cs = 1
	}

	var m *grid.Map
	switch {
	case len(d.Cells) > 0:
		m = &grid.Map{Width: d.Width, Height: d.Height, CellSize: cs, Cells: d.Cells}
	case d.Fill == "closed":
		m = &grid.Map{Width: d.Width, Height: d.Height, CellSize: cs, Cells: make([]grid.Cell, d.Width*d.Height)}
	default:
		m = grid.New(d.Width, d.Height, cs)
	}
	m.Origin = vec(d.Origin)
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("grid %s: %w", d.ID, err)
	}

	policy := opts.Symmetry
	if d.SymmetryPolicy != "" {
		p, err := grid.ParseSymmetryPolicy(d.SymmetryPolicy)
		if err != nil {
			return nil, fmt.Errorf("grid %s: %w", d.ID, err)
		}
		policy = p
	}
	asym, err := m.Symmetrize(policy)
	if err != nil {
		return nil, fmt.Errorf("grid %s: %w", d.ID, err)
	}
	out := &GridMap{ID: d.ID, Map: m, Asymmetric: asym}
	out.Normalized = m.NormalizeBorders()

	for _, e := range d.Closed {
		dir, err := grid.ParseDir(e.Dir)
		if err != nil {
			return nil, fmt.Errorf("grid %s: closed edge: %w", d.ID, err)
		}
		c := grid.C(e.X, e.Y)
		if !m.InBounds(c) {
			return nil, fmt.Errorf("grid %s: closed edge %s out of bounds", d.ID, c)
		}
		m.SetEdge(c, dir, false)
	}

	out.Facing = grid.North
	if d.Spawn != nil {
		out.Spawn = grid.C(d.Spawn.X, d.Spawn.Y)
		if d.Spawn.Facing != "" {
			f, err := grid.ParseDir(d.Spawn.Facing)
			if err != nil {
				return nil, fmt.Errorf("grid %s: spawn: %w", d.ID, err)
			}
			out.Facing = f
		}
	}
	if !m.InBounds(out.Spawn) {
		return nil, fmt.Errorf("grid %s: spawn %s out of bounds", d.ID, out.Spawn)
	}
	out.Digest = digest(m)
	return out, nil
}

type nodeDoc struct {
	ID  string    `yaml:"id"`
	Pos []float64 `yaml:"pos"`
}

// rejoinDoc is either the scalar "auto" (legacy proximity match) or an explicit
// {index|node_id, offset} reference.
type rejoinDoc struct {
	Auto   bool
	Index  *int
	NodeID string
	Offset float64
}

func (r *rejoinDoc) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		if n.Value != "auto" {
			return fmt.Errorf("rejoin: want \"auto\" or a mapping, got %q", n.Value)
		}
		r.Auto = true
		return nil
	}
	var raw struct {
		Index  *int    `yaml:"index"`
		NodeID string  `yaml:"node_id"`
		Offset float64 `yaml:"offset"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	r.Index, r.NodeID, r.Offset = raw.Index, raw.NodeID, raw.Offset
	return nil
}

type branchDoc struct {
	ID       string     `yaml:"id"`
	Attach   *int       `yaml:"attach"`
	AttachID string     `yaml:"attach_id"`
	Nodes    []nodeDoc  `yaml:"nodes"`
	Rejoin   *rejoinDoc `yaml:"rejoin"`
}

type trackDoc struct {
	Kind     string      `yaml:"kind"`
	ID       string      `yaml:"id"`
	Main     []nodeDoc   `yaml:"main"`
	Branches []branchDoc `yaml:"branches"`
	Spawn    *struct {
		Node int `yaml:"node"`
		Dir  int `yaml:"dir"`
	} `yaml:"spawn"`
}

func toNodes(in []nodeDoc) []track.Node {
	out := make([]track.Node, len(in))
	for i, n := range in {
		out[i] = track.Node{ID: n.ID, Pos: vec(n.Pos)}
	}
	return out
}

func buildTrack(d trackDoc, opts Options) (*TrackMap, error) {
	main := toNodes(d.Main)
	byID := map[string]int{}
	for i, n := range main {
		if n.ID != "" {
			byID[n.ID] = i
		}
	}
	lookup := func(id string) (int, error) {
		i, ok := byID[id]
		if !ok {
			return 0, fmt.Errorf("unknown main node %q", id)
		}
		return i, nil
	}

	branches := make([]track.Branch, 0, len(d.Branches))
	for _, bd := range d.Branches {
		b := track.Branch{ID: bd.ID, Nodes: toNodes(bd.Nodes)}
		switch {
		case bd.AttachID != "":
			i, err := lookup(bd.AttachID)
			if err != nil {
				return nil, fmt.Errorf("track %s: branch %s: %w", d.ID, bd.ID, err)
			}
			b.Attach = i
		case bd.Attach != nil:
			b.Attach = *bd.Attach
		default:
			return nil, fmt.Errorf("track %s: branch %s: attach or attach_id required", d.ID, bd.ID)
		}

		if r := bd.Rejoin; r != nil {
			switch {
			case r.Auto:
				end := b.Nodes[len(b.Nodes)-1].Pos
				if ref, ok := track.ResolveRejoin(main, end, opts.RejoinTolerance); ok {
					b.Rejoin = &ref
				}
			case r.NodeID != "":
				i, err := lookup(r.NodeID)
				if err != nil {
					return nil, fmt.Errorf("track %s: branch %s rejoin: %w", d.ID, bd.ID, err)
				}
				b.Rejoin = &track.MainRef{Index: i, Offset: r.Offset}
			case r.Index != nil:
				b.Rejoin = &track.MainRef{Index: *r.Index, Offset: r.Offset}
			}
		}
		branches = append(branches, b)
	}

	t, err := track.New(d.ID, main, branches, track.WithJoinTolerance(opts.RejoinTolerance))
	if err != nil {
		return nil, fmt.Errorf("track %s: %w", d.ID, err)
	}

	out := &TrackMap{ID: d.ID, Track: t, SpawnDir: 1}
	if d.Spawn != nil {
		out.SpawnAt = d.Spawn.Node
		if d.Spawn.Dir < 0 {
			out.SpawnDir = -1
		}
	}
	if out.SpawnAt >= len(main) {
		return nil, fmt.Errorf("track %s: spawn node %d out of range", d.ID, out.SpawnAt)
	}
	out.Digest = digest(struct {
		ID       string         `json:"id"`
		Main     []track.Node   `json:"main"`
		Branches []track.Branch `json:"branches"`
	}{t.ID, t.Main, t.Branches})
	return out, nil
}
