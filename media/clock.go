package media

import (
	"context"
	"sync"
	"time"
)

// Clock is a software playback clock. It tracks a playback position that advances in
// real time while playing and closes Ended when the position reaches the duration.
// A zero duration means unknown: the position is never capped and Ended never fires.
type Clock struct {
	mu        sync.Mutex
	duration  time.Duration
	base      time.Duration
	startedAt time.Time
	playing   bool
	timer     *time.Timer
	gen       uint64
	ended     chan struct{}
	endOnce   sync.Once
}

// NewClock creates a paused clock at position zero
func NewClock(duration time.Duration) *Clock {
	return &Clock{
		duration: duration,
		ended:    make(chan struct{}),
	}
}

// SetDuration updates the clock duration, typically once metadata is known
func (c *Clock) SetDuration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.duration = d
	if c.playing {
		c.scheduleLocked()
	}
}

// Duration returns the clock duration
func (c *Clock) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// Play starts advancing the position
func (c *Clock) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		return nil
	}
	if c.duration > 0 && c.base >= c.duration {
		c.base = 0
	}
	c.playing = true
	c.startedAt = time.Now()
	c.scheduleLocked()
	return nil
}

// Pause freezes the position
func (c *Clock) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return nil
	}
	c.base = c.positionLocked()
	c.playing = false
	c.stopTimerLocked()
	return nil
}

// Playing reports whether the clock is advancing
func (c *Clock) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Position returns the current playback position
func (c *Clock) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

// Seek moves the playback position, clamped to [0, duration]
func (c *Clock) Seek(pos time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pos < 0 {
		pos = 0
	}
	if c.duration > 0 && pos > c.duration {
		pos = c.duration
	}
	c.base = pos
	if c.playing {
		c.startedAt = time.Now()
		c.scheduleLocked()
	}
	return nil
}

// Ended is closed the first time playback reaches the end
func (c *Clock) Ended() <-chan struct{} {
	return c.ended
}

func (c *Clock) positionLocked() time.Duration {
	pos := c.base
	if c.playing {
		pos += time.Since(c.startedAt)
	}
	if c.duration > 0 && pos > c.duration {
		pos = c.duration
	}
	return pos
}

func (c *Clock) scheduleLocked() {
	c.stopTimerLocked()
	if c.duration <= 0 {
		return
	}
	remaining := c.duration - c.positionLocked()
	if remaining < 0 {
		remaining = 0
	}
	gen := c.gen
	c.timer = time.AfterFunc(remaining, func() { c.reachEnd(gen) })
}

func (c *Clock) stopTimerLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Clock) reachEnd(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.playing {
		c.mu.Unlock()
		return
	}
	c.base = c.duration
	c.playing = false
	c.timer = nil
	c.mu.Unlock()

	c.endOnce.Do(func() { close(c.ended) })
}
