package media

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultFinalizeGrace is the extra time allowed after natural end before forcing stop
const DefaultFinalizeGrace = 400 * time.Millisecond

// DefaultFinalizeTimeout bounds how long a stopped recorder may take to flush
const DefaultFinalizeTimeout = 5 * time.Second

// JobState is the state of a CaptureJob
type JobState int

const (
	JobIdle JobState = iota
	JobRecording
	JobStopping
	JobFinalized
	JobFailed
)

func (s JobState) String() string {
	switch s {
	case JobIdle:
		return "idle"
	case JobRecording:
		return "recording"
	case JobStopping:
		return "stopping"
	case JobFinalized:
		return "finalized"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StopTrigger records which condition ended a recording
type StopTrigger int

const (
	TriggerNone StopTrigger = iota
	TriggerNaturalEnd
	TriggerTimeout
	TriggerExplicit
)

func (t StopTrigger) String() string {
	switch t {
	case TriggerNaturalEnd:
		return "natural_end"
	case TriggerTimeout:
		return "timeout"
	case TriggerExplicit:
		return "explicit"
	default:
		return "none"
	}
}

// StopPolicy configures when a recording stops. The first trigger to fire wins.
type StopPolicy struct {
	// NaturalEnd is closed when the primary playback reaches its end.
	NaturalEnd <-chan struct{}
	// Grace delays the stop after NaturalEnd so trailing audio is not truncated.
	Grace time.Duration
	// Timeout is a ceiling measured from Start. Zero disables it.
	Timeout time.Duration
	// FinalizeTimeout bounds the wait for the recorder to flush after stop.
	FinalizeTimeout time.Duration
}

// RecordingResult is a finalized recording
type RecordingResult struct {
	Payload   []byte
	MimeType  string
	SizeBytes int64
	Trigger   StopTrigger
	Duration  time.Duration
}

// CaptureJob is one recording attempt over a combined stream
type CaptureJob struct {
	ID string

	recorder Recorder
	cancel   chan struct{}
	once     sync.Once

	mu        sync.Mutex
	state     JobState
	trigger   StopTrigger
	chunks    [][]byte
	startedAt time.Time
	failure   error
}

// NewCaptureJob creates an idle job around recorder
func NewCaptureJob(recorder Recorder) *CaptureJob {
	return &CaptureJob{
		ID:       uuid.New().String(),
		recorder: recorder,
		cancel:   make(chan struct{}),
		state:    JobIdle,
	}
}

// State returns the job state
func (j *CaptureJob) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Trigger returns the stop trigger that fired, if any
func (j *CaptureJob) Trigger() StopTrigger {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.trigger
}

// Start moves the job from Idle to Recording
func (j *CaptureJob) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != JobIdle {
		return newError(CodeRecord, fmt.Sprintf("cannot start job in state %s", j.state), nil)
	}
	if err := j.recorder.Start(); err != nil {
		j.state = JobFailed
		j.failure = newError(CodeRecord, "recorder failed to start", err)
		return j.failure
	}
	j.state = JobRecording
	j.startedAt = time.Now()
	return nil
}

// Cancel requests an explicit stop. The recording still finalizes.
func (j *CaptureJob) Cancel() {
	j.once.Do(func() { close(j.cancel) })
}

// Wait collects chunks until a stop trigger fires and the recorder has flushed, then
// finalizes the payload. It must be called once, after Start.
func (j *CaptureJob) Wait(ctx context.Context, policy StopPolicy) (*RecordingResult, error) {
	j.mu.Lock()
	if j.state != JobRecording {
		state := j.state
		j.mu.Unlock()
		return nil, newError(CodeRecord, fmt.Sprintf("cannot wait on job in state %s", state), nil)
	}
	startedAt := j.startedAt
	j.mu.Unlock()

	finalizeTimeout := policy.FinalizeTimeout
	if finalizeTimeout <= 0 {
		finalizeTimeout = DefaultFinalizeTimeout
	}

	var timeoutC <-chan time.Time
	if policy.Timeout > 0 {
		remaining := policy.Timeout - time.Since(startedAt)
		if remaining < 0 {
			remaining = 0
		}
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		timeoutC = timer.C
	}

	var (
		data       = j.recorder.Data()
		errs       = j.recorder.Err()
		naturalEnd = policy.NaturalEnd
		cancel     = (<-chan struct{})(j.cancel)
		ctxDone    = ctx.Done()
		graceC     <-chan time.Time
		finalizeC  <-chan time.Time
		endSeen    bool
	)

	requestStop := func(trigger StopTrigger) error {
		j.mu.Lock()
		if j.state != JobRecording {
			j.mu.Unlock()
			return nil
		}
		j.state = JobStopping
		j.trigger = trigger
		j.mu.Unlock()

		timer := time.NewTimer(finalizeTimeout)
		finalizeC = timer.C
		if err := j.recorder.Stop(); err != nil {
			timer.Stop()
			return newError(CodeRecord, "recorder failed to stop", err)
		}
		return nil
	}

	for {
		var stopErr error

		select {
		case chunk, ok := <-data:
			if !ok {
				return j.finalize()
			}
			j.append(chunk)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err == nil {
				continue
			}
			_ = j.recorder.Stop()
			return nil, j.fail(newError(CodeRecord, "recorder reported an error", err))

		case <-naturalEnd:
			naturalEnd = nil
			endSeen = true
			if policy.Grace > 0 {
				timer := time.NewTimer(policy.Grace)
				defer timer.Stop()
				graceC = timer.C
			} else {
				stopErr = requestStop(TriggerNaturalEnd)
			}

		case <-graceC:
			graceC = nil
			stopErr = requestStop(TriggerNaturalEnd)

		case <-timeoutC:
			timeoutC = nil
			trigger := TriggerTimeout
			if endSeen {
				// natural end already fired; the ceiling only cut its grace short
				trigger = TriggerNaturalEnd
			}
			stopErr = requestStop(trigger)

		case <-cancel:
			cancel = nil
			stopErr = requestStop(TriggerExplicit)

		case <-ctxDone:
			ctxDone = nil
			stopErr = requestStop(TriggerExplicit)

		case <-finalizeC:
			return nil, j.fail(newError(CodeRecord,
				fmt.Sprintf("recorder did not finalize within %s", finalizeTimeout), nil))
		}

		if stopErr != nil {
			return nil, j.fail(stopErr)
		}
	}
}

func (j *CaptureJob) append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != JobRecording && j.state != JobStopping {
		return
	}
	j.chunks = append(j.chunks, chunk)
}

func (j *CaptureJob) fail(err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = JobFailed
	j.failure = err
	return err
}

func (j *CaptureJob) finalize() (*RecordingResult, error) {
	j.mu.Lock()
	if j.trigger == TriggerNone {
		// the recorder finished on its own when its inputs ran out
		j.trigger = TriggerNaturalEnd
	}
	payload := bytes.Join(j.chunks, nil)
	trigger := j.trigger
	elapsed := time.Since(j.startedAt)
	j.mu.Unlock()

	if len(payload) == 0 {
		return nil, j.fail(newError(CodeEmptyOutput, "finalized recording is empty", nil))
	}

	j.mu.Lock()
	j.state = JobFinalized
	j.mu.Unlock()

	return &RecordingResult{
		Payload:   payload,
		MimeType:  j.recorder.MimeType(),
		SizeBytes: int64(len(payload)),
		Trigger:   trigger,
		Duration:  elapsed,
	}, nil
}
