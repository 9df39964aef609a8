package music

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockCountsPeriods(t *testing.T) {
	src, ch := manualTicks()
	c := NewDurationClock(quietLogger(), WithTickSource(src))

	c.Start(480)
	require.True(t, c.Running())
	// the first period is credited on Start
	tick(ch, 7)
	require.Equal(t, int64(8*30), c.Stop())
	require.False(t, c.Running())

	require.Equal(t, int64(240), c.Value())
	c.Reset()
	require.Zero(t, c.Value())
}

func TestClockStartIsIdempotent(t *testing.T) {
	src, ch := manualTicks()
	c := NewDurationClock(quietLogger(), WithTickSource(src))

	c.Start(480)
	c.Start(480)
	tick(ch, 1)
	require.Equal(t, int64(60), c.Stop())
	require.Equal(t, int64(60), c.Stop())
}

func TestClockSmallResolution(t *testing.T) {
	src, ch := manualTicks()
	c := NewDurationClock(quietLogger(), WithTickSource(src))

	c.Start(8)
	tick(ch, 2)
	require.Equal(t, int64(3), c.Stop())
}

func TestClockCutoff(t *testing.T) {
	src, ch := manualTicks()
	c := NewDurationClock(quietLogger(), WithTickSource(src))
	fired := make(chan int64, 1)
	c.OnCutoff(func(v int64) { fired <- v })

	// resolution 32: +2 per period, cut at 128
	c.Start(32)
	tick(ch, 63)
	select {
	case v := <-fired:
		require.Equal(t, int64(128), v)
	case <-time.After(time.Second):
		t.Fatal("cutoff not reported")
	}
	require.Eventually(t, func() bool { return !c.Running() }, time.Second, time.Millisecond)
	require.Equal(t, int64(128), c.Stop())
}

func TestClockRealTicker(t *testing.T) {
	c := NewDurationClock(quietLogger(), WithPeriod(2*time.Millisecond))
	c.Start(480)
	time.Sleep(20 * time.Millisecond)
	v := c.Stop()
	require.GreaterOrEqual(t, v, int64(30))
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, v, c.Value())
}

func TestClockState(t *testing.T) {
	c := NewDurationClock(quietLogger())
	c.StoreNoteOff(1234)
	c.StoreCumulative(96)
	require.Equal(t, int64(1234), c.LastNoteOff())
	require.Equal(t, int64(96), c.Cumulative())
}
