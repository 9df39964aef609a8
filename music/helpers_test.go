package music

import (
	"io"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

func quietLogger() *charmlog.Logger {
	return charmlog.New(io.Discard)
}

type recorder struct {
	mu   sync.Mutex
	msgs []midi.Message
}

func (r *recorder) Send(msg midi.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, append(midi.Message(nil), msg...))
	return nil
}

func (r *recorder) Sent() []midi.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]midi.Message(nil), r.msgs...)
}

// manualTicks hands out an unbuffered channel so that each send in a test
// is one clock period.
func manualTicks() (TickSource, chan time.Time) {
	ch := make(chan time.Time)
	return func(time.Duration) (<-chan time.Time, func()) {
		return ch, func() {}
	}, ch
}

func tick(ch chan time.Time, n int) {
	for i := 0; i < n; i++ {
		ch <- time.Time{}
	}
}

// fakeNow is a settable wall clock.
type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeNow() *fakeNow {
	return &fakeNow{t: time.UnixMilli(1_000_000)}
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

type key struct {
	mu     sync.Mutex
	pitch  Pitch
	active bool
	flips  int
}

func (k *key) SetActive(active bool) {
	k.mu.Lock()
	k.active = active
	k.flips++
	k.mu.Unlock()
}

func (k *key) Active() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.active
}

type keyboard struct {
	keys map[Pitch]*key
}

func newKeyboard(from, to Pitch) *keyboard {
	kb := &keyboard{keys: map[Pitch]*key{}}
	for p := from; p <= to; p++ {
		kb.keys[p] = &key{pitch: p}
	}
	return kb
}

func (kb *keyboard) FindElementByPitch(p Pitch) Element {
	k, ok := kb.keys[p]
	if !ok {
		return nil
	}
	return k
}

func (kb *keyboard) Active() []Pitch {
	var out []Pitch
	for p := Pitch(0); p <= 127; p++ {
		if k, ok := kb.keys[p]; ok && k.Active() {
			out = append(out, p)
		}
	}
	return out
}
