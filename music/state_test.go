package music

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	s := NewSession(quietLogger(), nil)
	require.Equal(t, Idle, s.State())
	require.True(t, s.FreePlay())
	require.Nil(t, s.Sequence())

	s.Arm()
	require.Equal(t, FirstArmed, s.State())
	require.True(t, s.Armed())
	s.Arm()
	require.Equal(t, FirstArmed, s.State())

	s.Disarm()
	require.Equal(t, Stopped, s.State())
	s.Disarm()
	require.Equal(t, Stopped, s.State())

	require.Equal(t, Armed, s.Toggle())
	require.Equal(t, Stopped, s.Toggle())
}

func TestSessionAppendOnlyWhileArmed(t *testing.T) {
	s := NewSession(quietLogger(), nil)
	require.ErrorIs(t, s.Append(NoteEvent{Kind: On, Pitch: 60}), ErrNotArmed)

	s.Arm()
	require.True(t, s.Empty())
	require.NoError(t, s.Append(NoteEvent{Kind: ProgramChange, Program: 3}))
	require.True(t, s.Empty())
	require.NoError(t, s.Append(NoteEvent{Kind: On, Pitch: 60, Velocity: 90, Tick: 10}))
	require.False(t, s.Empty())
	require.Equal(t, uint64(10), s.Position())
	s.Disarm()

	require.ErrorIs(t, s.Append(NoteEvent{Kind: Off, Pitch: 60, Tick: 20}), ErrNotArmed)
	require.Len(t, s.Track(), 2)
}

func TestSessionRearmClearsTake(t *testing.T) {
	s := NewSession(quietLogger(), nil)
	s.Arm()
	require.NoError(t, s.Append(NoteEvent{Kind: On, Pitch: 60}))
	require.NoError(t, s.Append(NoteEvent{Kind: Off, Pitch: 60, Tick: 5}))
	s.Disarm()
	seq, err := s.Finalize()
	require.NoError(t, err)

	s.Arm()
	require.Equal(t, Armed, s.State())
	require.Empty(t, s.Track())
	require.Zero(t, s.Position())
	// earlier copies are not affected
	require.Len(t, seq.Track, 2)
}

func TestSessionFinalize(t *testing.T) {
	s := NewSession(quietLogger(), nil, WithResolution(960), WithBPM(90))

	_, err := s.Finalize()
	require.ErrorIs(t, err, ErrEmptyTrack)

	s.Arm()
	require.NoError(t, s.Append(NoteEvent{Kind: On, Pitch: 60, Tick: 100}))
	require.NoError(t, s.Append(NoteEvent{Kind: Off, Pitch: 60, Tick: 150}))
	_, err = s.Finalize()
	require.ErrorIs(t, err, ErrArmed)
	s.Disarm()

	seq, err := s.Finalize()
	require.NoError(t, err)
	require.Equal(t, 960, seq.Resolution)
	require.Equal(t, float64(90), seq.BPM)
	require.Equal(t, Track{
		{Kind: On, Pitch: 60, Tick: 0},
		{Kind: Off, Pitch: 60, Tick: 50},
	}, seq.Track)

	again, err := s.Finalize()
	require.NoError(t, err)
	require.Equal(t, seq.Track, again.Track)
}

func TestSessionDisarmedEmptyTake(t *testing.T) {
	s := NewSession(quietLogger(), nil)
	s.Arm()
	s.Disarm()
	require.True(t, s.Empty())
	_, err := s.Finalize()
	require.ErrorIs(t, err, ErrEmptyTrack)
}

func TestSessionLoad(t *testing.T) {
	s := NewSession(quietLogger(), nil)
	seq := NewSequence(960, 100)
	seq.Track = Track{
		{Kind: On, Pitch: 60, Velocity: 80, Tick: 0},
		{Kind: Off, Pitch: 60, Tick: 480},
	}
	require.ErrorIs(t, s.Load(NewSequence(480, 120)), ErrEmptyTrack)
	require.NoError(t, s.Load(seq))
	require.Equal(t, Stopped, s.State())
	require.Equal(t, uint64(480), s.Position())

	got, err := s.Finalize()
	require.NoError(t, err)
	require.Equal(t, 960, got.Resolution)
	require.Equal(t, seq.Track, got.Track)

	s.Arm()
	require.ErrorIs(t, s.Load(seq), ErrArmed)
}
