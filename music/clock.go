package music

import (
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"
	"go.uber.org/atomic"
)

// ClockPeriod is the increment period of the duration clock.
const ClockPeriod = 63 * time.Millisecond

// TickSource returns a channel firing every period and a function releasing it.
type TickSource func(period time.Duration) (<-chan time.Time, func())

func realTicks(period time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(period)
	return t.C, t.Stop
}

type ClockOption func(*DurationClock)

func WithPeriod(d time.Duration) ClockOption {
	return func(c *DurationClock) {
		if d > 0 {
			c.period = d
		}
	}
}

func WithTickSource(src TickSource) ClockOption {
	return func(c *DurationClock) {
		c.ticks = src
	}
}

// DurationClock measures how long a key is held, in ticks, by adding
// resolution/16 every period while running. It also keeps the last release
// time and the cumulative tick position used to place the next note.
type DurationClock struct {
	period time.Duration
	ticks  TickSource
	logger *charmlog.Logger

	accumulated *atomic.Int64
	lastNoteOff *atomic.Int64
	cumulative  *atomic.Int64

	mu       sync.Mutex
	running  bool
	quit     chan struct{}
	done     chan struct{}
	onCutoff func(accumulated int64)
}

func NewDurationClock(logger *charmlog.Logger, opts ...ClockOption) *DurationClock {
	c := &DurationClock{
		period:      ClockPeriod,
		ticks:       realTicks,
		logger:      logger,
		accumulated: atomic.NewInt64(0),
		lastNoteOff: atomic.NewInt64(0),
		cumulative:  atomic.NewInt64(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnCutoff registers the function called, on its own goroutine, when the
// clock stops itself after reaching four beats.
func (c *DurationClock) OnCutoff(fn func(accumulated int64)) {
	c.mu.Lock()
	c.onCutoff = fn
	c.mu.Unlock()
}

// Start begins accumulating; the first increment happens immediately.
// Starting a running clock does nothing.
func (c *DurationClock) Start(resolution int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	step := int64(resolution / 16)
	if step < 1 {
		step = 1
	}
	cutoff := int64(resolution * 4)
	if cutoff < step {
		cutoff = step
	}
	ticks, release := c.ticks(c.period)
	c.quit = make(chan struct{})
	c.done = make(chan struct{})
	c.running = true
	go c.run(ticks, release, step, cutoff, c.quit, c.done)
}

func (c *DurationClock) run(ticks <-chan time.Time, release func(), step, cutoff int64, quit, done chan struct{}) {
	defer close(done)
	defer release()
	if c.accumulated.Add(step) >= cutoff {
		c.cut(done)
		return
	}
	for {
		select {
		case <-quit:
			return
		case <-ticks:
			if c.accumulated.Add(step) >= cutoff {
				c.cut(done)
				return
			}
		}
	}
}

func (c *DurationClock) cut(done chan struct{}) {
	c.mu.Lock()
	ours := c.running && c.done == done
	if ours {
		c.running = false
	}
	fn := c.onCutoff
	c.mu.Unlock()
	if !ours {
		return
	}
	v := c.accumulated.Load()
	c.logger.Debug("duration cutoff", "ticks", v)
	if fn != nil {
		go fn(v)
	}
}

// Stop halts the clock and returns the accumulated ticks. No increment
// happens once Stop has returned.
func (c *DurationClock) Stop() int64 {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return c.accumulated.Load()
	}
	c.running = false
	quit, done := c.quit, c.done
	c.mu.Unlock()
	close(quit)
	<-done
	return c.accumulated.Load()
}

func (c *DurationClock) Reset() {
	c.accumulated.Store(0)
}

func (c *DurationClock) Value() int64 {
	return c.accumulated.Load()
}

func (c *DurationClock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// StoreNoteOff keeps the wall time of the last release, in milliseconds.
func (c *DurationClock) StoreNoteOff(ms int64) {
	c.lastNoteOff.Store(ms)
}

func (c *DurationClock) LastNoteOff() int64 {
	return c.lastNoteOff.Load()
}

// StoreCumulative keeps the tick at which the last recorded note ended.
func (c *DurationClock) StoreCumulative(tick int64) {
	c.cumulative.Store(tick)
}

func (c *DurationClock) Cumulative() int64 {
	return c.cumulative.Load()
}
