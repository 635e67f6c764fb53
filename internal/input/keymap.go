package input

import (
	"time"
	"unicode"

	"github.com/gdamore/tcell/v2"
)

// Keymap maps terminal keys to commands.
type Keymap struct {
	Keys  map[tcell.Key]Command
	Runes map[rune]Command
}

// DefaultKeymap binds arrows and WASD; space also moves and r reverses.
func DefaultKeymap() *Keymap {
	return &Keymap{
		Keys: map[tcell.Key]Command{
			tcell.KeyUp:    Move,
			tcell.KeyLeft:  Left,
			tcell.KeyRight: Right,
			tcell.KeyDown:  Reverse,
		},
		Runes: map[rune]Command{
			'w': Move,
			' ': Move,
			'a': Left,
			'd': Right,
			's': Reverse,
			'r': Reverse,
		},
	}
}

func (k *Keymap) Lookup(key tcell.Key, r rune) (Command, bool) {
	if key == tcell.KeyRune {
		c, ok := k.Runes[unicode.ToLower(r)]
		return c, ok
	}
	c, ok := k.Keys[key]
	return c, ok
}

func (k *Keymap) LookupEvent(ev *tcell.EventKey) (Command, bool) {
	return k.Lookup(ev.Key(), ev.Rune())
}

// HoldLatch emulates key-held state on terminals, which only report key-down and
// auto-repeat. A command stays held until no repeat arrives within Timeout.
type HoldLatch struct {
	Timeout time.Duration
	Sampler *Sampler

	seen map[Command]time.Time
}

func NewHoldLatch(s *Sampler, timeout time.Duration) *HoldLatch {
	return &HoldLatch{Timeout: timeout, Sampler: s, seen: make(map[Command]time.Time)}
}

func (h *HoldLatch) Hit(c Command, now time.Time) {
	for _, bit := range []Command{Move, Left, Right, Reverse} {
		if c.Has(bit) {
			h.seen[bit] = now
		}
	}
	h.Sampler.Press(c)
}

// Expire releases commands whose last repeat is older than Timeout.
func (h *HoldLatch) Expire(now time.Time) {
	for bit, at := range h.seen {
		if now.Sub(at) > h.Timeout {
			h.Sampler.Release(bit)
			delete(h.seen, bit)
		}
	}
}
