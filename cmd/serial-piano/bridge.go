package main

import (
	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

// Bridge turns 2-byte button frames (status, code) into MIDI. The high bit
// of status set means the button was released.
type Bridge struct {
	keymap     Keymap
	channel    uint8
	velocity   uint8
	pressed    [256]bool
	controller [256]bool
	logger     *charmlog.Logger
}

func NewBridge(keymap Keymap, channel, velocity uint8, logger *charmlog.Logger) *Bridge {
	return &Bridge{keymap: keymap, channel: channel, velocity: velocity, logger: logger}
}

// Handle returns the message of one frame, nil when there is nothing to send.
func (b *Bridge) Handle(status, code byte) midi.Message {
	down := status>>7 == 0
	if b.pressed[code] && down {
		return nil
	}
	b.pressed[code] = down

	note, ok := b.keymap[int(code)]
	if !ok {
		b.logger.Debug("unassigned", "code", code)
		return nil
	}
	if note < 0 {
		if !down {
			return nil
		}
		// controller buttons latch
		b.controller[code] = !b.controller[code]
		value := uint8(0)
		if b.controller[code] {
			value = 64
		}
		b.logger.Debug("controller", "cc", -note, "value", value)
		return midi.ControlChange(b.channel, uint8(-note), value)
	}
	b.logger.Debug("note", "note", midi.Note(note), "on", down)
	if down {
		return midi.NoteOn(b.channel, uint8(note), b.velocity)
	}
	return midi.NoteOff(b.channel, uint8(note))
}
