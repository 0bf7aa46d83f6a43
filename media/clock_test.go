package media

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_PlayPauseSeek(t *testing.T) {
	c := NewClock(time.Second)
	ctx := context.Background()

	assert.Equal(t, time.Duration(0), c.Position())
	require.NoError(t, c.Play(ctx))
	time.Sleep(40 * time.Millisecond)
	require.NoError(t, c.Pause())

	paused := c.Position()
	assert.GreaterOrEqual(t, paused, 40*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, paused, c.Position())

	require.NoError(t, c.Seek(-time.Second))
	assert.Equal(t, time.Duration(0), c.Position())
	require.NoError(t, c.Seek(5*time.Second))
	assert.Equal(t, time.Second, c.Position())
}

func TestClock_EndedFiresAtDuration(t *testing.T) {
	c := NewClock(60 * time.Millisecond)
	start := time.Now()
	require.NoError(t, c.Play(context.Background()))

	select {
	case <-c.Ended():
	case <-time.After(time.Second):
		t.Fatal("clock never ended")
	}
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.False(t, c.Playing())
	assert.Equal(t, 60*time.Millisecond, c.Position())
}

func TestClock_SeekReschedulesEnd(t *testing.T) {
	c := NewClock(time.Second)
	require.NoError(t, c.Play(context.Background()))
	require.NoError(t, c.Seek(950*time.Millisecond))

	select {
	case <-c.Ended():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("seek near the end did not bring ended forward")
	}
}

func TestClock_PauseCancelsEnd(t *testing.T) {
	c := NewClock(50 * time.Millisecond)
	require.NoError(t, c.Play(context.Background()))
	require.NoError(t, c.Pause())

	select {
	case <-c.Ended():
		t.Fatal("paused clock must not end")
	case <-time.After(120 * time.Millisecond):
	}
}

func TestClock_UnknownDurationNeverEnds(t *testing.T) {
	c := NewClock(0)
	require.NoError(t, c.Play(context.Background()))
	time.Sleep(20 * time.Millisecond)
	assert.Greater(t, c.Position(), time.Duration(0))

	select {
	case <-c.Ended():
		t.Fatal("clock without duration must not end")
	default:
	}
}

func TestClock_PlayRejectsCancelledContext(t *testing.T) {
	c := NewClock(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.Play(ctx))
	assert.False(t, c.Playing())
}
