package music

import (
	"fmt"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

const (
	DefaultVelocity     = 90
	DefaultFreeVelocity = 100
)

type CaptureOption func(*Capture)

// WithClock overrides the wall clock used to measure rests between notes.
func WithClock(now func() time.Time) CaptureOption {
	return func(c *Capture) {
		c.now = now
	}
}

func WithChannel(channel uint8) CaptureOption {
	return func(c *Capture) {
		c.channel = channel
	}
}

// WithAutoRelease is told which note the clock cutoff released.
func WithAutoRelease(fn func(p Pitch)) CaptureOption {
	return func(c *Capture) {
		c.onAutoRelease = fn
	}
}

// WithVelocity sets the velocity of recorded notes.
func WithVelocity(v uint8) CaptureOption {
	return func(c *Capture) {
		c.velocity = v
	}
}

// Capture turns key presses and releases into audible messages and, while
// the session is armed, into timed events of the take. One timed note is
// held at a time; pressing another key releases it first.
type Capture struct {
	mu       sync.Mutex
	session  *Session
	clock    *DurationClock
	out      Sender
	patches  PatchProvider
	logger   *charmlog.Logger
	now      func() time.Time
	channel  uint8
	velocity uint8

	held      bool
	pitch     Pitch
	startTick uint64
	audible   bool
	free      map[Pitch]bool

	onAutoRelease func(p Pitch)
}

func NewCapture(session *Session, clock *DurationClock, out Sender, patches PatchProvider, logger *charmlog.Logger, opts ...CaptureOption) *Capture {
	c := &Capture{
		session:  session,
		clock:    clock,
		out:      out,
		patches:  patches,
		logger:   logger,
		now:      time.Now,
		velocity: DefaultVelocity,
		free:     map[Pitch]bool{},
	}
	for _, opt := range opts {
		opt(c)
	}
	clock.OnCutoff(c.cutoff)
	return c
}

// Press handles an on-screen key press; it is always heard.
func (c *Capture) Press(p Pitch) error {
	return c.press(p, 0, true)
}

// Release handles an on-screen key release. Releasing a key that is not
// held does nothing.
func (c *Capture) Release(p Pitch) {
	c.release(p, true)
}

// Receive takes notes from a hardware controller. The graph already routes
// them to the synth, so nothing is re-emitted.
func (c *Capture) Receive(msg midi.Message) error {
	n, ok := Decode(msg)
	if !ok {
		return nil
	}
	if n.On {
		return c.press(n.Pitch, n.Velocity, false)
	}
	c.release(n.Pitch, false)
	return nil
}

// Held reports the note currently timed, if any.
func (c *Capture) Held() (Pitch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pitch, c.held
}

// Cancel releases everything held, recording the timed note's Off so the
// take stays paired.
func (c *Capture) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel()
}

// Toggle arms or disarms the session. Everything held is released first,
// and no press can land between the release and the state change.
func (c *Capture) Toggle() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel()
	return c.session.Toggle()
}

func (c *Capture) cancel() {
	if c.held {
		c.releaseHeld()
	}
	for p, audible := range c.free {
		if audible {
			c.send(NoteEvent{Kind: Off, Pitch: p})
		}
		delete(c.free, p)
	}
}

func (c *Capture) press(p Pitch, velocity uint8, audible bool) error {
	if !p.Valid() {
		err := fmt.Errorf("%w: pitch %d", ErrMalformedEvent, int(p))
		c.logger.Warn("dropping key press", "err", err)
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.session.Armed() {
		if velocity == 0 {
			velocity = DefaultFreeVelocity
		}
		if audible {
			c.send(NoteEvent{Kind: On, Pitch: p, Velocity: velocity})
		}
		c.free[p] = audible
		return nil
	}

	if c.held {
		c.logger.Debug("implicit release", "held", c.pitch, "pressed", p)
		c.releaseHeld()
	}
	if velocity == 0 {
		velocity = c.velocity
	}

	var start uint64
	if c.session.Empty() {
		c.session.Note("Start timing")
		c.session.Note(fmt.Sprintf("First note start tick value is: %d", start))
	} else {
		gap := c.now().UnixMilli() - c.clock.LastNoteOff()
		if gap < 0 {
			gap = 0
		}
		c.session.Note(fmt.Sprintf("Time stamp of difference between last note and new note: %d", gap))
		start = uint64(c.clock.Cumulative() + gap)
		c.session.Note(fmt.Sprintf("Start tick value of new note is: %d", start))
	}

	if c.patches != nil && c.patches.HasChanged() {
		pc := NoteEvent{Kind: ProgramChange, Program: uint8(c.patches.CurrentProgramNumber()), Tick: start}
		if _, err := pc.Message(c.channel); err != nil {
			c.logger.Warn("dropping program change", "err", err)
		} else if err := c.session.Append(pc); err != nil {
			c.logger.Warn("program change not recorded", "err", err)
		}
		c.patches.ClearChangedFlag()
	}

	on := NoteEvent{Kind: On, Pitch: p, Velocity: velocity, Tick: start}
	if audible {
		c.send(on)
	}
	if err := c.session.Append(on); err != nil {
		c.logger.Warn("note not recorded", "pitch", p, "err", err)
		// still sounding: the release has to silence it
		c.free[p] = audible
		return err
	}
	c.held = true
	c.pitch = p
	c.startTick = start
	c.audible = audible
	c.clock.Reset()
	c.clock.Start(c.session.Resolution())
	return nil
}

func (c *Capture) release(p Pitch, audible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held && c.pitch == p {
		c.releaseHeld()
		return
	}
	if wasAudible, ok := c.free[p]; ok {
		delete(c.free, p)
		if wasAudible && audible {
			c.send(NoteEvent{Kind: Off, Pitch: p})
		}
		return
	}
	c.logger.Debug("release without press", "pitch", p)
}

// releaseHeld closes the timed note. Callers hold c.mu.
func (c *Capture) releaseHeld() {
	d := c.clock.Stop()
	if c.audible {
		c.send(NoteEvent{Kind: Off, Pitch: c.pitch})
	}
	c.session.Note(fmt.Sprintf("Duration value of note is: %d", d))
	off := c.startTick
	if d > 0 {
		off = c.startTick + uint64(d) - 1
	}
	if err := c.session.Close(NoteEvent{Kind: Off, Pitch: c.pitch, Tick: off}); err != nil {
		c.logger.Warn("release not recorded", "pitch", c.pitch, "err", err)
	}
	c.clock.Reset()
	c.clock.StoreNoteOff(c.now().UnixMilli())
	cumulative := int64(c.startTick) + d
	c.clock.StoreCumulative(cumulative)
	c.session.Note(fmt.Sprintf("The cumulative value of start tick and duration is: %d", cumulative))
	c.held = false
}

func (c *Capture) cutoff(accumulated int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// a newer note restarted the clock since the cutoff fired
	if !c.held || c.clock.Running() {
		return
	}
	c.logger.Debug("auto release", "pitch", c.pitch, "ticks", accumulated)
	c.session.Note("Timer for recording duration has ended")
	p := c.pitch
	c.releaseHeld()
	if c.onAutoRelease != nil {
		c.onAutoRelease(p)
	}
}

func (c *Capture) send(ev NoteEvent) {
	msg, err := ev.Message(c.channel)
	if err != nil {
		c.logger.Warn("dropping message", "err", err)
		return
	}
	if err := c.out.Send(msg); err != nil {
		c.logger.Error("send", "msg", msg, "err", err)
	}
}
