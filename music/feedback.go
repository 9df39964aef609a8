package music

import (
	"sync"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

// Note is a decoded note message: On with a positive velocity, or a release.
type Note struct {
	Pitch    Pitch
	Velocity uint8
	On       bool
}

const activeSensing = 0xFE

// Decode classifies raw bytes as a note. A NoteOn with velocity 0 is a
// release; anything else, active sensing included, is not a note.
func Decode(msg []byte) (Note, bool) {
	if len(msg) < 3 || msg[0] == activeSensing {
		return Note{}, false
	}
	key, vel := msg[1]&0x7F, msg[2]&0x7F
	switch msg[0] & 0xF0 {
	case 0x90:
		return Note{Pitch: Pitch(key), Velocity: vel, On: vel > 0}, true
	case 0x80:
		return Note{Pitch: Pitch(key), Velocity: vel}, true
	}
	return Note{}, false
}

// Element is one key of the on-screen keyboard.
type Element interface {
	SetActive(active bool)
}

// VisualKeyboard finds the on-screen key of a pitch, nil when not drawn.
type VisualKeyboard interface {
	FindElementByPitch(p Pitch) Element
}

type marked struct {
	pitch   Pitch
	element Element
}

// Decoder lights the on-screen keys of the notes it sees and clears them on release.
type Decoder struct {
	mu       sync.Mutex
	keyboard VisualKeyboard
	marked   []marked
	logger   *charmlog.Logger
}

func NewDecoder(keyboard VisualKeyboard, logger *charmlog.Logger) *Decoder {
	return &Decoder{keyboard: keyboard, logger: logger}
}

// Handle applies one message to the keyboard. A release clears the most
// recently marked key of the same pitch.
func (d *Decoder) Handle(msg []byte) (Note, bool) {
	n, ok := Decode(msg)
	if !ok {
		return n, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if n.On {
		el := d.keyboard.FindElementByPitch(n.Pitch)
		if el == nil {
			d.logger.Debug("no key drawn for pitch", "pitch", n.Pitch)
			return n, true
		}
		el.SetActive(true)
		d.marked = append(d.marked, marked{pitch: n.Pitch, element: el})
		return n, true
	}
	for i := len(d.marked) - 1; i >= 0; i-- {
		if d.marked[i].pitch == n.Pitch {
			d.marked[i].element.SetActive(false)
			d.marked = append(d.marked[:i], d.marked[i+1:]...)
			break
		}
	}
	return n, true
}

// Receive lets the decoder sit behind a device graph tap.
func (d *Decoder) Receive(msg midi.Message) error {
	d.Handle(msg)
	return nil
}

// ReleaseAll clears every key still lit.
func (d *Decoder) ReleaseAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.marked) - 1; i >= 0; i-- {
		d.marked[i].element.SetActive(false)
	}
	d.marked = d.marked[:0]
}

// Marked lists the pitches currently lit, oldest first.
func (d *Decoder) Marked() []Pitch {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Pitch, len(d.marked))
	for i, m := range d.marked {
		out[i] = m.pitch
	}
	return out
}
