package music

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
)

func TestDecode(t *testing.T) {
	n, ok := Decode(midi.NoteOn(3, 60, 90))
	require.True(t, ok)
	require.Equal(t, Note{Pitch: 60, Velocity: 90, On: true}, n)

	off1, ok := Decode(midi.NoteOff(0, 60))
	require.True(t, ok)
	off2, ok := Decode(midi.NoteOn(0, 60, 0))
	require.True(t, ok)
	require.False(t, off1.On)
	require.Equal(t, off1.Pitch, off2.Pitch)
	require.Equal(t, off1.On, off2.On)

	for _, msg := range [][]byte{{0xFE}, midi.ProgramChange(0, 3), midi.ControlChange(0, 7, 100), nil} {
		_, ok := Decode(msg)
		require.False(t, ok)
	}
}

func TestDecoderMarksKeys(t *testing.T) {
	kb := newKeyboard(48, 72)
	d := NewDecoder(kb, quietLogger())

	d.Handle(midi.NoteOn(0, 60, 90))
	d.Handle(midi.NoteOn(0, 64, 90))
	require.Equal(t, []Pitch{60, 64}, kb.Active())

	d.Handle(midi.NoteOn(0, 60, 0))
	require.Equal(t, []Pitch{64}, kb.Active())
	require.Equal(t, []Pitch{64}, d.Marked())

	// off for a key that was never lit, then a pitch with no key drawn
	d.Handle(midi.NoteOff(0, 50))
	d.Handle(midi.NoteOn(0, 100, 90))
	d.Handle(midi.NoteOff(0, 100))
	require.Equal(t, []Pitch{64}, d.Marked())

	d.Handle([]byte{0xFE})
	require.Equal(t, []Pitch{64}, kb.Active())

	d.ReleaseAll()
	require.Empty(t, kb.Active())
	require.Empty(t, d.Marked())
}

func TestDecoderUnmarksMostRecent(t *testing.T) {
	kb := newKeyboard(60, 60)
	d := NewDecoder(kb, quietLogger())

	d.Handle(midi.NoteOn(0, 60, 90))
	d.Handle(midi.NoteOn(0, 60, 90))
	require.Len(t, d.Marked(), 2)
	d.Handle(midi.NoteOff(0, 60))
	require.Len(t, d.Marked(), 1)
	require.Equal(t, 3, kb.keys[60].flips)
}

func TestAnnotate(t *testing.T) {
	tr := Track{
		{Kind: ProgramChange, Program: 1, Tick: 0},
		{Kind: On, Pitch: 60, Velocity: 90, Tick: 0},
		{Kind: Off, Pitch: 60, Tick: 59},
		{Kind: On, Pitch: 200, Velocity: 90, Tick: 60},
	}
	got := Annotate(tr, 0)
	require.Equal(t, []Annotation{
		{Tick: 0, Msg: midi.NoteOn(0, 60, 90)},
		{Tick: 59, Msg: midi.NoteOff(0, 60)},
	}, got)
}

func TestPlayerFollowsTake(t *testing.T) {
	kb := newKeyboard(48, 72)
	d := NewDecoder(kb, quietLogger())
	out := &recorder{}
	var waited []time.Duration
	var lit [][]Pitch
	p := NewPlayer(out, d, WithSleep(func(ctx context.Context, dur time.Duration) error {
		waited = append(waited, dur)
		lit = append(lit, kb.Active())
		return nil
	}))

	seq := NewSequence(480, 120)
	seq.Track = Track{
		{Kind: ProgramChange, Program: 2, Tick: 0},
		{Kind: On, Pitch: 60, Velocity: 90, Tick: 0},
		{Kind: Off, Pitch: 60, Tick: 480},
		{Kind: On, Pitch: 62, Velocity: 90, Tick: 960},
		{Kind: Off, Pitch: 62, Tick: 1440},
	}
	ctx := charmlog.WithContext(context.Background(), quietLogger())
	require.NoError(t, p.Play(ctx, seq))

	require.Equal(t, []midi.Message{
		midi.ProgramChange(0, 2),
		midi.NoteOn(0, 60, 90), midi.NoteOff(0, 60),
		midi.NoteOn(0, 62, 90), midi.NoteOff(0, 62),
	}, out.Sent())
	require.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond}, waited)
	require.Equal(t, [][]Pitch{{60}, nil, {62}}, lit)
	require.Empty(t, kb.Active())
}

// callLog records SetActive calls across keys in the order they happen.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

type loggedKey struct {
	pitch Pitch
	log   *callLog
}

func (k loggedKey) SetActive(on bool) {
	k.log.mu.Lock()
	defer k.log.mu.Unlock()
	state := "unmark"
	if on {
		state = "mark"
	}
	k.log.calls = append(k.log.calls, fmt.Sprintf("%s %d", state, int(k.pitch)))
}

type loggedKeyboard struct {
	log *callLog
}

func (kb loggedKeyboard) FindElementByPitch(p Pitch) Element {
	return loggedKey{pitch: p, log: kb.log}
}

func TestPlayerMarksEachNoteOnce(t *testing.T) {
	log := &callLog{}
	d := NewDecoder(loggedKeyboard{log: log}, quietLogger())
	p := NewPlayer(&recorder{}, d, WithSleep(func(context.Context, time.Duration) error { return nil }))

	seq := NewSequence(480, 120)
	seq.Track = Track{
		{Kind: On, Pitch: 60, Velocity: 90, Tick: 0},
		{Kind: Off, Pitch: 60, Tick: 200},
		{Kind: On, Pitch: 64, Velocity: 90, Tick: 400},
		{Kind: Off, Pitch: 64, Tick: 600},
		{Kind: On, Pitch: 67, Velocity: 90, Tick: 800},
		{Kind: Off, Pitch: 67, Tick: 1000},
	}
	require.NoError(t, p.Play(context.Background(), seq))

	require.Equal(t, []string{
		"mark 60", "unmark 60",
		"mark 64", "unmark 64",
		"mark 67", "unmark 67",
	}, log.calls)
}

func TestPlayerCancel(t *testing.T) {
	kb := newKeyboard(48, 72)
	d := NewDecoder(kb, quietLogger())
	out := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPlayer(out, d, WithSleep(func(ctx context.Context, dur time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	seq := NewSequence(480, 120)
	seq.Track = Track{
		{Kind: On, Pitch: 60, Velocity: 90, Tick: 0},
		{Kind: Off, Pitch: 60, Tick: 480},
	}
	require.ErrorIs(t, p.Play(ctx, seq), context.Canceled)

	require.Equal(t, []midi.Message{midi.NoteOn(0, 60, 90), midi.NoteOff(0, 60)}, out.Sent())
	require.Empty(t, kb.Active())
}

func TestPlayerEmptyTake(t *testing.T) {
	p := NewPlayer(&recorder{}, nil)
	require.ErrorIs(t, p.Play(context.Background(), NewSequence(480, 120)), ErrEmptyTrack)
	require.ErrorIs(t, p.Play(context.Background(), nil), ErrEmptyTrack)
}
