package media

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultDriftThreshold is the largest tolerated divergence between primary and secondary
const DefaultDriftThreshold = 200 * time.Millisecond

// SyncState is the lockstep state seen by the controller
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncPlaying
	SyncPaused
	SyncEnded
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncPlaying:
		return "playing"
	case SyncPaused:
		return "paused"
	case SyncEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// EventType is a playback event emitted by the primary renderer
type EventType string

const (
	EventPlay  EventType = "play"
	EventPause EventType = "pause"
	EventSeek  EventType = "seek"
	EventEnded EventType = "ended"
)

// PrimaryEvent carries the primary position at the time of the event
type PrimaryEvent struct {
	Type     EventType
	Position time.Duration
}

// SyncOutcome describes what the controller did for one event
type SyncOutcome struct {
	State     SyncState
	Corrected bool
	Drift     time.Duration
}

// SyncController keeps a secondary player locked to a primary's position during
// interactive preview. The secondary is never used as a timing source.
type SyncController struct {
	secondary Player
	threshold time.Duration

	mu    sync.Mutex
	state SyncState
}

// NewSyncController creates a controller in the Idle state
func NewSyncController(secondary Player, threshold time.Duration) *SyncController {
	if threshold <= 0 {
		threshold = DefaultDriftThreshold
	}
	return &SyncController{
		secondary: secondary,
		threshold: threshold,
		state:     SyncIdle,
	}
}

// State returns the current sync state
func (c *SyncController) State() SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Threshold returns the drift threshold
func (c *SyncController) Threshold() time.Duration {
	return c.threshold
}

// Handle applies one primary event to the secondary. Events are processed one at a
// time, so the secondary is within the threshold of the primary when Handle returns.
func (c *SyncController) Handle(ctx context.Context, ev PrimaryEvent) (SyncOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		corrected bool
		err       error
	)

	switch ev.Type {
	case EventPlay:
		if corrected, err = c.resyncLocked(ev.Position, false); err != nil {
			return c.outcomeLocked(corrected, ev.Position), err
		}
		if err = c.secondary.Play(ctx); err != nil {
			return c.outcomeLocked(corrected, ev.Position), fmt.Errorf("failed to play secondary: %w", err)
		}
		c.state = SyncPlaying

	case EventPause, EventEnded:
		if err = c.secondary.Pause(); err != nil {
			return c.outcomeLocked(false, ev.Position), fmt.Errorf("failed to pause secondary: %w", err)
		}
		if corrected, err = c.resyncLocked(ev.Position, false); err != nil {
			return c.outcomeLocked(corrected, ev.Position), err
		}
		if ev.Type == EventEnded {
			c.state = SyncEnded
		} else {
			c.state = SyncPaused
		}

	case EventSeek:
		if corrected, err = c.resyncLocked(ev.Position, true); err != nil {
			return c.outcomeLocked(corrected, ev.Position), err
		}

	default:
		return c.outcomeLocked(false, ev.Position), fmt.Errorf("unknown playback event %q", ev.Type)
	}

	return c.outcomeLocked(corrected, ev.Position), nil
}

// resyncLocked moves the secondary to the primary position when drift exceeds the
// threshold, or unconditionally when force is set.
func (c *SyncController) resyncLocked(primary time.Duration, force bool) (bool, error) {
	if !force && absDuration(c.secondary.Position()-primary) <= c.threshold {
		return false, nil
	}
	if err := c.secondary.Seek(primary); err != nil {
		return false, fmt.Errorf("failed to seek secondary: %w", err)
	}
	return true, nil
}

func (c *SyncController) outcomeLocked(corrected bool, primary time.Duration) SyncOutcome {
	return SyncOutcome{
		State:     c.state,
		Corrected: corrected,
		Drift:     absDuration(c.secondary.Position() - primary),
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
