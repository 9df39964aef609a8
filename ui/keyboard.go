package ui

import (
	"strings"

	"github.com/JeanRibes/keycapture/music"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/atomic"
)

const keyWidth = 4

// Key is one drawn key. The decoder lights it from other goroutines.
type Key struct {
	Pitch   music.Pitch
	active  *atomic.Bool
	changed chan<- struct{}
}

func (k *Key) SetActive(active bool) {
	if k.active.Swap(active) == active {
		return
	}
	select {
	case k.changed <- struct{}{}:
	default:
	}
}

func (k *Key) Active() bool {
	return k.active.Load()
}

// Keyboard is the on-screen keyboard, a contiguous range of pitches.
type Keyboard struct {
	keys    []*Key
	low     music.Pitch
	changed chan struct{}
}

func NewKeyboard(low, high music.Pitch) *Keyboard {
	kb := &Keyboard{low: low, changed: make(chan struct{}, 1)}
	for p := low; p <= high; p++ {
		kb.keys = append(kb.keys, &Key{Pitch: p, active: atomic.NewBool(false), changed: kb.changed})
	}
	return kb
}

func (kb *Keyboard) FindElementByPitch(p music.Pitch) music.Element {
	k := kb.Key(p)
	if k == nil {
		return nil
	}
	return k
}

// Key returns the drawn key of p, nil outside the range.
func (kb *Keyboard) Key(p music.Pitch) *Key {
	i := int(p - kb.low)
	if i < 0 || i >= len(kb.keys) {
		return nil
	}
	return kb.keys[i]
}

// At maps a column of the rendered keyboard to its pitch.
func (kb *Keyboard) At(x int) (music.Pitch, bool) {
	if x < 0 {
		return 0, false
	}
	i := x / keyWidth
	if i >= len(kb.keys) {
		return 0, false
	}
	return kb.keys[i].Pitch, true
}

// Changed fires after any key changed state.
func (kb *Keyboard) Changed() <-chan struct{} {
	return kb.changed
}

func (kb *Keyboard) Low() music.Pitch {
	return kb.low
}

func (kb *Keyboard) High() music.Pitch {
	return kb.keys[len(kb.keys)-1].Pitch
}

var (
	whiteKey  = lipgloss.NewStyle().Width(keyWidth).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("15"))
	blackKey  = lipgloss.NewStyle().Width(keyWidth).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("236"))
	litKey    = lipgloss.NewStyle().Width(keyWidth).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("11")).Bold(true)
	hintStyle = lipgloss.NewStyle().Width(keyWidth).Foreground(lipgloss.Color("244"))
)

// Render draws the keys on three lines: names, octave marks and key hints.
func (kb *Keyboard) Render(hints map[music.Pitch]string) string {
	var names, body, hint strings.Builder
	for _, k := range kb.keys {
		style := whiteKey
		if k.Pitch.Sharp() {
			style = blackKey
		}
		if k.Active() {
			style = litKey
		}
		names.WriteString(style.Render(k.Pitch.Name()))
		mark := ""
		if k.Pitch.Name() == "C" {
			mark = k.Pitch.String()
		}
		body.WriteString(style.Render(mark))
		hint.WriteString(hintStyle.Render(hints[k.Pitch]))
	}
	return names.String() + "\n" + body.String() + "\n" + hint.String()
}
