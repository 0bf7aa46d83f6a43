package media

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voiceover/tracing"
)

// DefaultMimeType is the container produced by exports
const DefaultMimeType = "video/webm"

// Session orchestrates exports for one studio session. At most one export runs at a
// time; a concurrent Export fails fast with ErrBusy.
type Session struct {
	ID string

	platform        Platform
	logger          *zap.Logger
	metrics         *Metrics
	loadTimeout     time.Duration
	finalizeGrace   time.Duration
	finalizeTimeout time.Duration
	mimeType        string

	active atomic.Bool

	mu  sync.Mutex
	job *CaptureJob
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithLoadTimeout overrides the source load deadline
func WithLoadTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.loadTimeout = d
		}
	}
}

// WithFinalizeGrace overrides the grace period after natural end
func WithFinalizeGrace(d time.Duration) Option {
	return func(s *Session) {
		if d >= 0 {
			s.finalizeGrace = d
		}
	}
}

// WithFinalizeTimeout overrides how long a stopped recorder may take to flush
func WithFinalizeTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.finalizeTimeout = d
		}
	}
}

// WithMimeType overrides the output container
func WithMimeType(mimeType string) Option {
	return func(s *Session) {
		if mimeType != "" {
			s.mimeType = mimeType
		}
	}
}

// NewSession creates an idle session
func NewSession(id string, platform Platform, opts ...Option) *Session {
	s := &Session{
		ID:              id,
		platform:        platform,
		logger:          zap.NewNop(),
		loadTimeout:     DefaultLoadTimeout,
		finalizeGrace:   DefaultFinalizeGrace,
		finalizeTimeout: DefaultFinalizeTimeout,
		mimeType:        DefaultMimeType,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session_id", id))
	return s
}

// Active reports whether an export is in flight
func (s *Session) Active() bool {
	return s.active.Load()
}

// Cancel explicitly stops the recording in flight, if any. The export still finalizes
// what was recorded so far.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	job := s.job
	s.mu.Unlock()
	if job == nil {
		return false
	}
	job.Cancel()
	return true
}

// exportRun holds the resources owned by one export
type exportRun struct {
	video    *MediaSource
	audio    *MediaSource
	stream   *Stream
	recorder Recorder
	logger   *zap.Logger
}

func (r *exportRun) cleanup() {
	if r.recorder != nil {
		if err := r.recorder.Close(); err != nil {
			r.logger.Warn("failed to release recorder", zap.Error(err))
		}
	}
	if r.stream != nil {
		r.stream.Stop()
	}
	for _, src := range []*MediaSource{r.video, r.audio} {
		if src == nil {
			continue
		}
		if err := src.Renderer().Pause(); err != nil {
			r.logger.Debug("failed to pause renderer", zap.String("kind", src.Kind.String()), zap.Error(err))
		}
		if err := src.Release(); err != nil {
			r.logger.Warn("failed to release source", zap.String("kind", src.Kind.String()), zap.Error(err))
		}
	}
}

// Export combines the video of video with the audio of audio into one recording.
// Every resource the export creates is released before it returns.
func (s *Session) Export(ctx context.Context, video, audio Origin) (result *RecordingResult, err error) {
	if !s.active.CompareAndSwap(false, true) {
		s.metrics.exportRejected()
		return nil, newError(CodeBusy, ErrBusy.Message, nil)
	}
	defer s.active.Store(false)

	started := time.Now()
	s.metrics.exportStarted()

	ctx, span := tracing.StartSpan(ctx, "media.export", tracing.SessionIDKey.String(s.ID))
	defer span.End()

	run := &exportRun{logger: s.logger}
	defer func() {
		run.cleanup()
		s.setJob(nil)

		outcome := "success"
		var size int64
		if err != nil {
			outcome = string(CodeOf(err))
			tracing.RecordError(ctx, err)
			s.logger.Warn("export failed", zap.String("code", outcome), zap.Error(err))
		} else {
			size = result.SizeBytes
			span.SetAttributes(tracing.SizeKey.Int64(size), tracing.TriggerKey.String(result.Trigger.String()))
			s.logger.Info("export finished",
				zap.Int64("size_bytes", size),
				zap.String("trigger", result.Trigger.String()),
				zap.Duration("elapsed", time.Since(started)))
		}
		s.metrics.exportFinished(outcome, time.Since(started).Seconds(), size)
	}()

	// 1. gate both sources
	if run.video, err = Attach(ctx, s.platform, KindVideo, video); err != nil {
		return nil, err
	}
	if run.audio, err = Attach(ctx, s.platform, KindAudio, audio); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return run.video.AwaitReady(gctx, s.loadTimeout) })
	g.Go(func() error { return run.audio.AwaitReady(gctx, s.loadTimeout) })
	if err = g.Wait(); err != nil {
		return nil, err
	}
	s.logger.Debug("sources ready",
		zap.Duration("video_duration", run.video.Duration()),
		zap.Duration("audio_duration", run.audio.Duration()))

	// 2. capture and combine
	if run.stream, err = Capture(run.video, run.audio); err != nil {
		return nil, err
	}

	recorder, err := s.platform.NewRecorder(run.stream, s.mimeType)
	if err != nil {
		if errors.Is(err, ErrCapability) {
			return nil, err
		}
		return nil, newError(CodeCapability, "cannot record "+s.mimeType, err)
	}
	run.recorder = recorder
	job := NewCaptureJob(recorder)
	s.setJob(job)
	span.SetAttributes(tracing.JobIDKey.String(job.ID))

	// 3. recorder first, then playback, so no leading frames are lost
	if err = job.Start(); err != nil {
		return nil, err
	}
	s.metrics.recorderStarted()

	for _, src := range []*MediaSource{run.video, run.audio} {
		if playErr := src.Renderer().Play(ctx); playErr != nil {
			_ = recorder.Stop()
			return nil, newError(CodeRecord, "failed to start "+src.Kind.String()+" playback", playErr)
		}
	}

	// 4. wait for a stop trigger and finalize
	policy := StopPolicy{
		NaturalEnd:      run.video.Renderer().Ended(),
		Grace:           s.finalizeGrace,
		FinalizeTimeout: s.finalizeTimeout,
	}
	if d := run.video.Duration(); d > 0 {
		policy.Timeout = d + s.finalizeGrace
	}

	return job.Wait(ctx, policy)
}

func (s *Session) setJob(job *CaptureJob) {
	s.mu.Lock()
	s.job = job
	s.mu.Unlock()
}
