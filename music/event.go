package music

import (
	"errors"
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

var ErrMalformedEvent = errors.New("malformed MIDI event")

type Kind uint8

const (
	On Kind = iota + 1
	Off
	ProgramChange
)

func (k Kind) String() string {
	switch k {
	case On:
		return "on"
	case Off:
		return "off"
	case ProgramChange:
		return "program"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// NoteEvent is one timed entry of a Track. Program is only meaningful for ProgramChange.
type NoteEvent struct {
	Pitch    Pitch
	Velocity uint8
	Kind     Kind
	Tick     uint64
	Program  uint8
}

// Message builds the wire message of the event, refusing out of range values
// instead of letting them be masked into another note.
func (ev NoteEvent) Message(channel uint8) (midi.Message, error) {
	if channel > 15 {
		return nil, fmt.Errorf("%w: channel %d", ErrMalformedEvent, channel)
	}
	switch ev.Kind {
	case On, Off:
		if !ev.Pitch.Valid() {
			return nil, fmt.Errorf("%w: pitch %d", ErrMalformedEvent, int(ev.Pitch))
		}
		if ev.Velocity > 127 {
			return nil, fmt.Errorf("%w: velocity %d", ErrMalformedEvent, ev.Velocity)
		}
		if ev.Kind == Off {
			return midi.NoteOff(channel, uint8(ev.Pitch)), nil
		}
		return midi.NoteOn(channel, uint8(ev.Pitch), ev.Velocity), nil
	case ProgramChange:
		if ev.Program > 127 {
			return nil, fmt.Errorf("%w: program %d", ErrMalformedEvent, ev.Program)
		}
		return midi.ProgramChange(channel, ev.Program), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrMalformedEvent, ev.Kind)
	}
}

func (ev NoteEvent) String() string {
	if ev.Kind == ProgramChange {
		return fmt.Sprintf("@%d program %d", ev.Tick, ev.Program)
	}
	return fmt.Sprintf("@%d %s %s vel=%d", ev.Tick, ev.Pitch, ev.Kind, ev.Velocity)
}
