package media

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultLoadTimeout bounds how long a source may stay Loading
const DefaultLoadTimeout = 20 * time.Second

// Readiness is the load state of a MediaSource
type Readiness int

const (
	Loading Readiness = iota
	Ready
	Failed
)

func (r Readiness) String() string {
	switch r {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MediaSource wraps one playable input and its readiness state machine
type MediaSource struct {
	Kind   Kind
	Origin Origin

	renderer Renderer
	cancel   context.CancelFunc
	done     chan struct{}

	mu        sync.Mutex
	readiness Readiness
	duration  time.Duration
	failure   error
	released  bool
}

// Attach creates a renderer for origin and begins loading it
func Attach(ctx context.Context, platform Platform, kind Kind, origin Origin) (*MediaSource, error) {
	renderer, err := platform.NewRenderer(kind, origin)
	if err != nil {
		return nil, newError(CodeLoad, fmt.Sprintf("failed to create %s renderer", kind), err)
	}

	loadCtx, cancel := context.WithCancel(ctx)
	s := &MediaSource{
		Kind:      kind,
		Origin:    origin,
		renderer:  renderer,
		cancel:    cancel,
		done:      make(chan struct{}),
		readiness: Loading,
	}

	go s.load(loadCtx)

	return s, nil
}

func (s *MediaSource) load(ctx context.Context) {
	duration, err := s.renderer.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readiness != Loading {
		// already failed by deadline or release
		return
	}
	if err != nil {
		s.failLocked(newError(CodeLoad, fmt.Sprintf("failed to load %s source", s.Kind), err))
		return
	}
	s.duration = duration
	s.readiness = Ready
	close(s.done)
}

func (s *MediaSource) failLocked(err error) {
	s.readiness = Failed
	s.failure = err
	close(s.done)
}

// AwaitReady suspends until the source leaves Loading or the deadline elapses.
// A non-positive deadline uses DefaultLoadTimeout. Cancellation of ctx is reported
// as a load failure wrapping the context error.
func (s *MediaSource) AwaitReady(ctx context.Context, deadline time.Duration) error {
	if deadline <= 0 {
		deadline = DefaultLoadTimeout
	}
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case <-s.done:
	case <-timer.C:
		s.mu.Lock()
		if s.readiness == Loading {
			s.failLocked(newError(CodeLoadTimeout,
				fmt.Sprintf("%s source not ready after %s", s.Kind, deadline), nil))
			s.cancel()
		}
		s.mu.Unlock()
	case <-ctx.Done():
		return newError(CodeLoad, fmt.Sprintf("%s source load cancelled", s.Kind), ctx.Err())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readiness == Failed {
		return s.failure
	}
	return nil
}

// Readiness returns the current load state
func (s *MediaSource) Readiness() Readiness {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readiness
}

// Duration returns the source duration, zero until Ready
func (s *MediaSource) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Err returns the failure reason once Failed
func (s *MediaSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Renderer exposes the underlying renderer
func (s *MediaSource) Renderer() Renderer {
	return s.renderer
}

// Release cancels any pending load and closes the renderer, releasing its temporary
// reference. Safe to call more than once.
func (s *MediaSource) Release() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	if s.readiness == Loading {
		s.failLocked(newError(CodeLoad, fmt.Sprintf("%s source released while loading", s.Kind), nil))
	}
	s.mu.Unlock()

	s.cancel()
	return s.renderer.Close()
}
