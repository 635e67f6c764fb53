package catalogs

import (
	"bytes"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
	"lukechampine.com/blake3"

	"railnav/internal/grid"
	"railnav/internal/track"
)

var (
	ErrSchema    = errors.New("catalogs: schema violation")
	ErrKind      = errors.New("catalogs: unknown map kind")
	ErrDuplicate = errors.New("catalogs: duplicate map id")
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	schemaOnce sync.Once
	schemas    map[string]*jsonschema.Schema
	schemaErr  error
)

func compiledSchemas() (map[string]*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		out := map[string]*jsonschema.Schema{}
		for _, kind := range []string{"grid", "track"} {
			name := kind + ".schema.json"
			raw, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				schemaErr = err
				return
			}
			if err := c.AddResource(name, bytes.NewReader(raw)); err != nil {
				schemaErr = fmt.Errorf("%s: %w", name, err)
				return
			}
			s, err := c.Compile(name)
			if err != nil {
				schemaErr = fmt.Errorf("%s: %w", name, err)
				return
			}
			out[kind] = s
		}
		schemas = out
	})
	return schemas, schemaErr
}

// Options controls how authored maps are normalized on load.
type Options struct {
	Symmetry        grid.SymmetryPolicy
	RejoinTolerance float64
}

func DefaultOptions() Options {
	return Options{Symmetry: grid.SymmetryClose, RejoinTolerance: track.DefaultRejoinTolerance}
}

type GridMap struct {
	ID     string
	Source string
	Map    *grid.Map
	Spawn  grid.Coord
	Facing grid.Dir
	// Normalized counts border flags forced closed; Asymmetric lists one-sided pairs seen
	// in the authored data (before the policy was applied).
	Normalized int
	Asymmetric []grid.Asymmetry
	Digest     string
}

type TrackMap struct {
	ID       string
	Source   string
	Track    *track.Track
	SpawnAt  int
	SpawnDir int
	Digest   string
}

type Catalogs struct {
	Grids  map[string]*GridMap
	Tracks map[string]*TrackMap
}

func (c *Catalogs) GridIDs() []string  { return sortedKeys(c.Grids) }
func (c *Catalogs) TrackIDs() []string { return sortedKeys(c.Tracks) }

// Digest covers every loaded map in id order.
func (c *Catalogs) Digest() string {
	h := blake3.New(32, nil)
	for _, id := range c.GridIDs() {
		h.Write([]byte("grid:" + id + ":" + c.Grids[id].Digest + "\n"))
	}
	for _, id := range c.TrackIDs() {
		h.Write([]byte("track:" + id + ":" + c.Tracks[id].Digest + "\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// LoadDir loads every **/*.yaml and **/*.yml map document below dir.
func LoadDir(dir string, opts Options) (*Catalogs, error) {
	var files []string
	for _, pattern := range []string{"**/*.yaml", "**/*.yml"} {
		matches, err := doublestar.Glob(os.DirFS(dir), pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		for _, m := range matches {
			files = append(files, filepath.Join(dir, filepath.FromSlash(m)))
		}
	}
	sort.Strings(files)
	return LoadFiles(files, opts)
}

func LoadFiles(files []string, opts Options) (*Catalogs, error) {
	c := &Catalogs{Grids: map[string]*GridMap{}, Tracks: map[string]*TrackMap{}}
	for _, p := range files {
		doc, err := Load(p, opts)
		if err != nil {
			return nil, err
		}
		switch m := doc.(type) {
		case *GridMap:
			if _, dup := c.Grids[m.ID]; dup {
				return nil, fmt.Errorf("%w: grid %s (%s)", ErrDuplicate, m.ID, filepath.Base(p))
			}
			c.Grids[m.ID] = m
		case *TrackMap:
			if _, dup := c.Tracks[m.ID]; dup {
				return nil, fmt.Errorf("%w: track %s (%s)", ErrDuplicate, m.ID, filepath.Base(p))
			}
			c.Tracks[m.ID] = m
		}
	}
	return c, nil
}

// Load reads one map document and returns a *GridMap or *TrackMap.
func Load(p string, opts Options) (any, error) {
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	m, err := Parse(raw, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
	}
	switch v := m.(type) {
	case *GridMap:
		v.Source = p
	case *TrackMap:
		v.Source = p
	}
	return m, nil
}

// Parse validates raw YAML against the schema for its kind and builds the model.
func Parse(raw []byte, opts Options) (any, error) {
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	// Round-trip through JSON so the validator sees JSON types only.
	js, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	var doc any
	if err := json.Unmarshal(js, &doc); err != nil {
		return nil, err
	}
	obj, _ := doc.(map[string]any)
	kind, _ := obj["kind"].(string)

	all, err := compiledSchemas()
	if err != nil {
		return nil, err
	}
	schema, ok := all[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKind, kind)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	switch kind {
	case "grid":
		var d gridDoc
		if err := yaml.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
		return buildGrid(d, opts)
	default:
		var d trackDoc
		if err := yaml.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
		return buildTrack(d, opts)
	}
}

func digest(v any) string {
	b, _ := json.Marshal(v)
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func sortedKeys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
