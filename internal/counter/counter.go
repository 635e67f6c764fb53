// Package counter is a named tally shared between the world loop and observers
// (HTTP metrics, STATE messages). Navigation packages never import it.
package counter

import (
	"sort"
	"sync"
)

// Well-known counter names fed from walker events.
const (
	Walls     = "walls"
	Nodes     = "nodes"
	Turns     = "turns"
	Junctions = "junctions"
	Corners   = "corners"
	Merges    = "merges"
	Stops     = "stops"
)

type Counter struct {
	mu sync.Mutex
	m  map[string]int64
}

func New() *Counter {
	return &Counter{m: map[string]int64{}}
}

func (c *Counter) Add(name string, n int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[name] += n
	return c.m[name]
}

func (c *Counter) Inc(name string) int64 { return c.Add(name, 1) }

func (c *Counter) Get(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[name]
}

// Snapshot returns a copy safe to hand to other goroutines.
func (c *Counter) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.m))
	for k, v := range c.m {
		out[k] = v
	}
	return out
}

// Restore replaces every value (used when importing a world snapshot).
func (c *Counter) Restore(m map[string]int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[string]int64, len(m))
	for k, v := range m {
		c.m[k] = v
	}
}

func (c *Counter) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.m))
	for k := range c.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
