package music

import (
	"errors"
	"sync"

	"github.com/JeanRibes/keycapture/shared"

	charmlog "github.com/charmbracelet/log"
)

var (
	ErrNotArmed = errors.New("recording is not armed")
	ErrArmed    = errors.New("recording is still armed")
)

type State int

const (
	Idle State = iota
	FirstArmed
	Armed
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FirstArmed:
		return "first-armed"
	case Armed:
		return "armed"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Narrative receives the human readable timing log of a take.
type Narrative interface {
	AppendTimingNarrative(text string)
	ClearTimingNarrative()
}

type SessionOption func(*Session)

func WithResolution(resolution int) SessionOption {
	return func(s *Session) {
		if resolution > 0 {
			s.resolution = resolution
		}
	}
}

func WithBPM(bpm float64) SessionOption {
	return func(s *Session) {
		if bpm > 0 {
			s.bpm = bpm
		}
	}
}

// Session owns the sequence being recorded. Only the capture path appends,
// and the track is read only once the session is disarmed.
type Session struct {
	mu          sync.RWMutex
	state       State
	seq         *Sequence
	position    uint64
	resolution  int
	bpm         float64
	diagnostics bool
	narrative   Narrative
	logger      *charmlog.Logger
}

func NewSession(logger *charmlog.Logger, narrative Narrative, opts ...SessionOption) *Session {
	s := &Session{
		resolution: shared.DefaultResolution,
		bpm:        shared.DefaultBPM,
		narrative:  narrative,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Arm creates the sequence on first use, or empties the previous take, then
// turns the timing diagnostics on. Arming an armed session does nothing.
func (s *Session) Arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Idle:
		s.seq = NewSequence(s.resolution, s.bpm)
		s.state = FirstArmed
	case Stopped:
		if s.seq == nil {
			s.seq = NewSequence(s.resolution, s.bpm)
		}
		s.seq.Track = make(Track, 0, 128)
		s.state = Armed
	default:
		s.logger.Debug("arm: already armed")
		return
	}
	s.position = 0
	if s.narrative != nil {
		s.narrative.ClearTimingNarrative()
	}
	s.diagnostics = true
	s.logger.Info("recording armed", "state", s.state)
}

// Disarm closes the diagnostics of the take. Disarming a session that is
// not armed does nothing.
func (s *Session) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed() {
		s.logger.Debug("disarm: not armed", "state", s.state)
		return
	}
	s.state = Stopped
	s.note(">>>>>MIDI TIMING COMPLETE")
	s.diagnostics = false
	s.logger.Info("recording disarmed", "events", len(s.seq.Track))
}

// Toggle arms an unarmed session and disarms an armed one.
func (s *Session) Toggle() State {
	if s.Armed() {
		s.Disarm()
	} else {
		s.Arm()
	}
	return s.State()
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) armed() bool {
	return s.state == FirstArmed || s.state == Armed
}

func (s *Session) Armed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.armed()
}

func (s *Session) FreePlay() bool {
	return !s.Armed()
}

func (s *Session) Resolution() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.seq != nil {
		return s.seq.Resolution
	}
	return s.resolution
}

func (s *Session) Append(ev NoteEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed() {
		return ErrNotArmed
	}
	s.seq.Track = append(s.seq.Track, ev)
	s.position = ev.Tick
	return nil
}

// Close appends the Off of a recorded note. Unlike Append it still works
// after disarming, as long as the take has that pitch sounding.
func (s *Session) Close(off NoteEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed() && (s.seq == nil || !s.seq.Track.sounding(off.Pitch)) {
		return ErrNotArmed
	}
	s.seq.Track = append(s.seq.Track, off)
	if s.armed() {
		s.position = off.Tick
	}
	return nil
}

// Load replaces the take with seq, ready to play.
func (s *Session) Load(seq *Sequence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed() {
		return ErrArmed
	}
	if seq == nil || seq.Track.Empty() {
		return ErrEmptyTrack
	}
	s.seq = &Sequence{Resolution: seq.Resolution, BPM: seq.BPM, Track: seq.Track.Clone()}
	s.position = seq.Track.LastTick()
	s.state = Stopped
	s.logger.Info("take loaded", "events", len(seq.Track))
	return nil
}

// Track returns a copy of the recorded events.
func (s *Session) Track() Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.seq == nil {
		return nil
	}
	return s.seq.Track.Clone()
}

// Empty reports whether the current take holds no note yet.
func (s *Session) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq == nil || s.seq.Track.Empty()
}

// Position is the tick of the last appended event.
func (s *Session) Position() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position
}

// Note adds a line to the timing narrative while diagnostics are on.
func (s *Session) Note(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.note(text)
}

func (s *Session) note(text string) {
	if !s.diagnostics || s.narrative == nil {
		return
	}
	s.narrative.AppendTimingNarrative(text)
}

// Finalize shifts the take so it starts at tick 0 and returns a copy ready
// for playback or export.
func (s *Session) Finalize() (*Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed() {
		return nil, ErrArmed
	}
	if s.seq == nil || s.seq.Track.Empty() {
		return nil, ErrEmptyTrack
	}
	if base := s.seq.Track[0].Tick; base != 0 {
		s.logger.Debug("normalizing take", "base", base)
	}
	s.seq.Track = s.seq.Track.Normalize()
	if err := s.seq.Track.Paired(); err != nil {
		s.logger.Warn("unpaired notes in take", "err", err)
	}
	return &Sequence{
		Resolution: s.seq.Resolution,
		BPM:        s.seq.BPM,
		Track:      s.seq.Track.Clone(),
	}, nil
}

// Sequence returns a copy of the current take, nil before the first arm.
func (s *Session) Sequence() *Sequence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.seq == nil {
		return nil
	}
	return &Sequence{Resolution: s.seq.Resolution, BPM: s.seq.BPM, Track: s.seq.Track.Clone()}
}
