package music

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/JeanRibes/keycapture/shared"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

var ErrEmptyTrack = errors.New("nothing has been recorded")

// Sequence is one take: a single track with its timing base.
type Sequence struct {
	Resolution int
	BPM        float64
	Track      Track
}

func NewSequence(resolution int, bpm float64) *Sequence {
	if resolution <= 0 {
		resolution = shared.DefaultResolution
	}
	if bpm <= 0 {
		bpm = shared.DefaultBPM
	}
	return &Sequence{Resolution: resolution, BPM: bpm, Track: make(Track, 0, 128)}
}

func (s *Sequence) Ticks() smf.MetricTicks {
	return smf.MetricTicks(s.Resolution)
}

// Duration converts a tick delta into wall time at the sequence tempo.
func (s *Sequence) Duration(ticks uint64) time.Duration {
	return s.Ticks().Duration(s.BPM, uint32(ticks))
}

// Length is the wall time from the first to the last event.
func (s *Sequence) Length() time.Duration {
	if len(s.Track) == 0 {
		return 0
	}
	return s.Duration(s.Track.LastTick() - s.Track[0].Tick)
}

// SMF builds a single track standard MIDI file of the take.
func (s *Sequence) SMF(channel uint8) (*smf.SMF, error) {
	if s.Track.Empty() {
		return nil, ErrEmptyTrack
	}
	f := smf.New()
	f.TimeFormat = s.Ticks()

	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName("keycapture"))
	tr.Add(0, smf.MetaTempo(s.BPM))
	prev := uint64(0)
	for _, ev := range s.Track {
		msg, err := ev.Message(channel)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", ev, err)
		}
		var delta uint64
		if ev.Tick > prev {
			delta = ev.Tick - prev
			prev = ev.Tick
		}
		tr.Add(uint32(delta), msg)
	}
	tr.Close(0)
	if err := f.Add(tr); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Sequence) WriteTo(w io.Writer, channel uint8) (int64, error) {
	f, err := s.SMF(channel)
	if err != nil {
		return 0, err
	}
	return f.WriteTo(w)
}

func (s *Sequence) WriteFile(path string, channel uint8) error {
	f, err := s.SMF(channel)
	if err != nil {
		return err
	}
	return f.WriteFile(path)
}

// ReadSequence loads the first track holding notes of a standard MIDI file.
func ReadSequence(r io.Reader) (*Sequence, error) {
	f, err := smf.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	ticks, ok := f.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, errors.New("only metric time formats are supported")
	}
	seq := NewSequence(int(ticks.Resolution()), shared.DefaultBPM)
	for _, tr := range f.Tracks {
		abs := uint64(0)
		var ch, key, vel, program uint8
		var bpm float64
		for _, ev := range tr {
			abs += uint64(ev.Delta)
			msg := midi.Message(ev.Message)
			switch {
			case ev.Message.GetMetaTempo(&bpm):
				seq.BPM = bpm
			case msg.GetNoteStart(&ch, &key, &vel):
				seq.Track = append(seq.Track, NoteEvent{Kind: On, Pitch: Pitch(key), Velocity: vel, Tick: abs})
			case msg.GetNoteEnd(&ch, &key):
				seq.Track = append(seq.Track, NoteEvent{Kind: Off, Pitch: Pitch(key), Tick: abs})
			case msg.GetProgramChange(&ch, &program):
				seq.Track = append(seq.Track, NoteEvent{Kind: ProgramChange, Program: program, Tick: abs})
			}
		}
		if !seq.Track.Empty() {
			return seq, nil
		}
		seq.Track = seq.Track[:0]
	}
	return nil, ErrEmptyTrack
}

// Scheduler decouples a sender from its callers through a small queue.
func Scheduler(send func(midi.Message) error, onErr func(error)) (queue func(midi.Message) error, stop func()) {
	ch := make(chan midi.Message, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ch {
			if err := send(msg); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}()
	return func(m midi.Message) error {
			ch <- m
			return nil
		}, func() {
			close(ch)
			<-done
		}
}
