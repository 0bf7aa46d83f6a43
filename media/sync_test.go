package media

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualPlayer is a secondary whose position only changes when told to
type manualPlayer struct {
	pos     time.Duration
	playing bool
	seeks   int
	seekErr error
}

func (p *manualPlayer) Play(ctx context.Context) error { p.playing = true; return nil }
func (p *manualPlayer) Pause() error                   { p.playing = false; return nil }
func (p *manualPlayer) Position() time.Duration        { return p.pos }

func (p *manualPlayer) Seek(pos time.Duration) error {
	if p.seekErr != nil {
		return p.seekErr
	}
	p.seeks++
	p.pos = pos
	return nil
}

func TestSyncController_StateMachine(t *testing.T) {
	secondary := &manualPlayer{}
	c := NewSyncController(secondary, 0)
	ctx := context.Background()

	assert.Equal(t, SyncIdle, c.State())
	assert.Equal(t, DefaultDriftThreshold, c.Threshold())

	out, err := c.Handle(ctx, PrimaryEvent{Type: EventPlay})
	require.NoError(t, err)
	assert.Equal(t, SyncPlaying, out.State)
	assert.True(t, secondary.playing)

	out, err = c.Handle(ctx, PrimaryEvent{Type: EventPause, Position: 100 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, SyncPaused, out.State)
	assert.False(t, secondary.playing)

	out, err = c.Handle(ctx, PrimaryEvent{Type: EventPlay, Position: 100 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, SyncPlaying, out.State)

	out, err = c.Handle(ctx, PrimaryEvent{Type: EventEnded, Position: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, SyncEnded, out.State)
	assert.False(t, secondary.playing)
}

func TestSyncController_PlayCorrectsOnlyBeyondThreshold(t *testing.T) {
	tests := []struct {
		name      string
		secondary time.Duration
		primary   time.Duration
		corrected bool
	}{
		{"in sync", 1 * time.Second, 1 * time.Second, false},
		{"within threshold", 1100 * time.Millisecond, 1 * time.Second, false},
		{"exactly threshold", 1200 * time.Millisecond, 1 * time.Second, false},
		{"ahead beyond threshold", 2 * time.Second, 1 * time.Second, true},
		{"behind beyond threshold", 0, 1 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secondary := &manualPlayer{pos: tt.secondary}
			c := NewSyncController(secondary, 200*time.Millisecond)

			out, err := c.Handle(context.Background(), PrimaryEvent{Type: EventPlay, Position: tt.primary})
			require.NoError(t, err)
			assert.Equal(t, tt.corrected, out.Corrected)
			if tt.corrected {
				assert.Equal(t, tt.primary, secondary.pos)
			} else {
				assert.Equal(t, tt.secondary, secondary.pos)
			}
		})
	}
}

func TestSyncController_SeekAlwaysResyncs(t *testing.T) {
	secondary := &manualPlayer{pos: 3 * time.Second}
	c := NewSyncController(secondary, 200*time.Millisecond)

	out, err := c.Handle(context.Background(), PrimaryEvent{Type: EventSeek, Position: 3050 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, out.Corrected)
	assert.Equal(t, 3050*time.Millisecond, secondary.pos)
	assert.Equal(t, SyncIdle, out.State)
}

func TestSyncController_DriftBoundAfterEveryEvent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	threshold := 200 * time.Millisecond
	secondary := &manualPlayer{}
	c := NewSyncController(secondary, threshold)
	ctx := context.Background()

	types := []EventType{EventPlay, EventPause, EventSeek, EventEnded}
	primary := time.Duration(0)

	for i := 0; i < 500; i++ {
		// primary moves and the secondary drifts on its own between events
		primary += time.Duration(rng.Int63n(int64(2 * time.Second)))
		secondary.pos += time.Duration(rng.Int63n(int64(time.Second))) - 500*time.Millisecond
		if secondary.pos < 0 {
			secondary.pos = 0
		}

		ev := PrimaryEvent{Type: types[rng.Intn(len(types))], Position: primary}
		out, err := c.Handle(ctx, ev)
		require.NoError(t, err)

		drift := absDuration(secondary.pos - primary)
		require.LessOrEqual(t, drift, threshold, "event %d (%s)", i, ev.Type)
		assert.Equal(t, drift, out.Drift)
	}
}

func TestSyncController_WithClockSecondary(t *testing.T) {
	secondary := NewClock(10 * time.Second)
	c := NewSyncController(secondary, 200*time.Millisecond)
	ctx := context.Background()

	_, err := c.Handle(ctx, PrimaryEvent{Type: EventSeek, Position: 4 * time.Second})
	require.NoError(t, err)
	_, err = c.Handle(ctx, PrimaryEvent{Type: EventPlay, Position: 4 * time.Second})
	require.NoError(t, err)
	assert.True(t, secondary.Playing())

	time.Sleep(50 * time.Millisecond)
	out, err := c.Handle(ctx, PrimaryEvent{Type: EventPause, Position: 4050 * time.Millisecond})
	require.NoError(t, err)
	assert.False(t, secondary.Playing())
	assert.LessOrEqual(t, out.Drift, 200*time.Millisecond)
}

func TestSyncController_Errors(t *testing.T) {
	secondary := &manualPlayer{pos: 5 * time.Second, seekErr: errors.New("not seekable")}
	c := NewSyncController(secondary, 200*time.Millisecond)

	_, err := c.Handle(context.Background(), PrimaryEvent{Type: EventPlay})
	assert.Error(t, err)
	assert.Equal(t, SyncIdle, c.State())

	_, err = c.Handle(context.Background(), PrimaryEvent{Type: "rewind"})
	assert.Error(t, err)
}
