// Package input turns raw key state into per-tick command frames.
package input

import (
	"fmt"
	"strings"
	"sync"
)

// Command is a bitset of the four logical commands.
type Command uint8

const (
	Move Command = 1 << iota
	Left
	Right
	Reverse

	None Command = 0
	All          = Move | Left | Right | Reverse
)

var commandNames = map[Command]string{
	Move:    "MOVE",
	Left:    "LEFT",
	Right:   "RIGHT",
	Reverse: "REVERSE",
}

func (c Command) Has(bit Command) bool { return c&bit != 0 }

// Names returns the wire names of the set bits in a stable order.
func (c Command) Names() []string {
	out := make([]string, 0, 4)
	for _, bit := range []Command{Move, Left, Right, Reverse} {
		if c.Has(bit) {
			out = append(out, commandNames[bit])
		}
	}
	return out
}

func (c Command) String() string {
	if c == None {
		return "NONE"
	}
	return strings.Join(c.Names(), "|")
}

// ParseCommands parses wire names; unknown names fail the whole set.
func ParseCommands(names []string) (Command, error) {
	var c Command
	for _, n := range names {
		found := false
		for bit, name := range commandNames {
			if strings.EqualFold(strings.TrimSpace(n), name) {
				c |= bit
				found = true
				break
			}
		}
		if !found {
			return None, fmt.Errorf("unknown command %q", n)
		}
	}
	return c, nil
}

// Frame is the input seen by one tick: Held is level-triggered, Pressed is
// edge-triggered (went down since the previous tick).
type Frame struct {
	Held    Command
	Pressed Command
}

func (f Frame) Holding(c Command) bool { return f.Held.Has(c) }
func (f Frame) Down(c Command) bool    { return f.Pressed.Has(c) }

// Sampler accumulates key transitions between ticks. A key tapped and released between
// two samples is still reported as Pressed once.
type Sampler struct {
	mu      sync.Mutex
	held    Command
	pressed Command
}

func (s *Sampler) Press(c Command) {
	s.mu.Lock()
	s.pressed |= c &^ s.held
	s.held |= c
	s.mu.Unlock()
}

func (s *Sampler) Release(c Command) {
	s.mu.Lock()
	s.held &^= c
	s.mu.Unlock()
}

// Set replaces the held set, latching newly-down commands as pressed.
func (s *Sampler) Set(held Command) {
	s.mu.Lock()
	s.pressed |= held &^ s.held
	s.held = held
	s.mu.Unlock()
}

// Sample returns the frame for the current tick and clears the pressed latch.
func (s *Sampler) Sample() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := Frame{Held: s.held, Pressed: s.pressed}
	s.pressed = None
	return f
}

// Script replays a fixed sequence of frames; the last frame repeats once exhausted.
type Script struct {
	frames []Frame
	i      int
}

func NewScript(frames ...Frame) *Script { return &Script{frames: frames} }

func (s *Script) Next() Frame {
	if len(s.frames) == 0 {
		return Frame{}
	}
	if s.i >= len(s.frames) {
		return s.frames[len(s.frames)-1]
	}
	f := s.frames[s.i]
	s.i++
	return f
}
