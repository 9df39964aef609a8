package music

import (
	"fmt"
	"sync"

	"github.com/JeanRibes/keycapture/shared"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

// Sender delivers a message to whatever is making sound.
type Sender interface {
	Send(msg midi.Message) error
}

type SenderFunc func(msg midi.Message) error

func (f SenderFunc) Send(msg midi.Message) error {
	return f(msg)
}

// PatchProvider tells the capture path which instrument is selected and
// whether it changed since the last recorded program change.
type PatchProvider interface {
	CurrentProgramNumber() int
	HasChanged() bool
	ClearChangedFlag()
}

const ccVolume = 7

// Patches is the instrument selection of the live synth.
type Patches struct {
	mu      sync.Mutex
	program int
	volume  int
	changed bool
	channel uint8
	out     Sender
	logger  *charmlog.Logger
}

func NewPatches(out Sender, channel uint8, logger *charmlog.Logger) *Patches {
	return &Patches{out: out, channel: channel, volume: 100, logger: logger}
}

func (p *Patches) CurrentProgramNumber() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.program
}

func (p *Patches) HasChanged() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.changed
}

func (p *Patches) ClearChangedFlag() {
	p.mu.Lock()
	p.changed = false
	p.mu.Unlock()
}

// Select switches the live instrument. The change is recorded with the next note.
func (p *Patches) Select(program int) error {
	if program < 0 || program > 127 {
		return fmt.Errorf("%w: program %d", ErrMalformedEvent, program)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if program != p.program {
		p.changed = true
	}
	p.program = program
	p.logger.Info("instrument", "program", program, "name", shared.ProgramName(program))
	return p.out.Send(midi.ProgramChange(p.channel, uint8(program)))
}

// Step moves the selection by delta, wrapping around the 128 programs.
func (p *Patches) Step(delta int) (int, error) {
	next := ((p.CurrentProgramNumber()+delta)%128 + 128) % 128
	return next, p.Select(next)
}

func (p *Patches) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetVolume sends the channel volume controller.
func (p *Patches) SetVolume(v int) error {
	if v < 0 {
		v = 0
	}
	if v > 127 {
		v = 127
	}
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
	return p.out.Send(midi.ControlChange(p.channel, ccVolume, uint8(v)))
}
