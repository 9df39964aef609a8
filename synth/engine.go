// Package synth is the built-in synthesizer used when no external MIDI
// synth is available: a small polyphonic oscillator bank played through oto.
package synth

import (
	"math"
	"sync"

	"gitlab.com/gomidi/midi/v2"
)

const maxVoices = 32

type Waveform int

const (
	Sine Waveform = iota
	Triangle
	Square
	Saw
)

// waveformFor maps a program family to an oscillator shape.
func waveformFor(program uint8) Waveform {
	return Waveform((program / 8) % 4)
}

type voice struct {
	key      uint8
	freq     float64
	phase    float64
	amp      float64
	level    float64
	released bool
	age      uint64
}

// Engine renders interleaved stereo float32 frames from MIDI messages.
type Engine struct {
	mu         sync.Mutex
	sampleRate float64
	gain       float64
	volume     float64
	waveform   Waveform
	voices     []*voice
	clock      uint64
	attack     float64
	release    float64
}

func NewEngine(sampleRate int, gain float64) *Engine {
	if gain <= 0 {
		gain = 0.3
	}
	sr := float64(sampleRate)
	return &Engine{
		sampleRate: sr,
		gain:       gain,
		volume:     100.0 / 127,
		attack:     1 / (0.005 * sr),
		release:    1 / (0.2 * sr),
	}
}

func keyFreq(key uint8) float64 {
	return 440 * math.Pow(2, (float64(key)-69)/12)
}

// Send applies a channel message; anything but notes, program changes,
// volume and all-notes-off is ignored.
func (e *Engine) Send(msg midi.Message) error {
	var ch, key, vel, program, cc, val uint8
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		e.noteOn(key, vel)
	case msg.GetNoteEnd(&ch, &key):
		e.noteOff(key)
	case msg.GetProgramChange(&ch, &program):
		e.waveform = waveformFor(program)
	case msg.GetControlChange(&ch, &cc, &val):
		switch cc {
		case 7:
			e.volume = float64(val) / 127
		case 120, 123:
			for _, v := range e.voices {
				v.released = true
			}
		}
	}
	return nil
}

func (e *Engine) noteOn(key, vel uint8) {
	e.clock++
	v := &voice{key: key, freq: keyFreq(key), level: float64(vel) / 127, age: e.clock}
	if len(e.voices) < maxVoices {
		e.voices = append(e.voices, v)
		return
	}
	oldest := 0
	for i, o := range e.voices {
		if o.age < e.voices[oldest].age {
			oldest = i
		}
	}
	e.voices[oldest] = v
}

func (e *Engine) noteOff(key uint8) {
	for _, v := range e.voices {
		if v.key == key && !v.released {
			v.released = true
		}
	}
}

func (e *Engine) SetWaveform(w Waveform) {
	e.mu.Lock()
	e.waveform = w
	e.mu.Unlock()
}

// Active counts the voices still sounding, releases included.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.voices)
}

func (e *Engine) osc(phase float64) float64 {
	switch e.waveform {
	case Triangle:
		return 4*math.Abs(phase-math.Floor(phase+0.5)) - 1
	case Square:
		if phase < 0.5 {
			return 0.6
		}
		return -0.6
	case Saw:
		return 0.8 * (2*phase - 1)
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// Process fills dst with interleaved left/right samples.
func (e *Engine) Process(dst []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := 0; i+1 < len(dst); i += 2 {
		var s float64
		for _, v := range e.voices {
			if v.released {
				v.amp -= e.release
				if v.amp < 0 {
					v.amp = 0
				}
			} else if v.amp < 1 {
				v.amp += e.attack
				if v.amp > 1 {
					v.amp = 1
				}
			}
			s += e.osc(v.phase) * v.amp * v.level
			v.phase += v.freq / e.sampleRate
			if v.phase >= 1 {
				v.phase -= 1
			}
		}
		out := float32(math.Tanh(s * e.gain * e.volume))
		dst[i] = out
		dst[i+1] = out
	}
	e.reap()
}

func (e *Engine) reap() {
	n := 0
	for _, v := range e.voices {
		if v.released && v.amp <= 0 {
			continue
		}
		e.voices[n] = v
		n++
	}
	for i := n; i < len(e.voices); i++ {
		e.voices[i] = nil
	}
	e.voices = e.voices[:n]
}
