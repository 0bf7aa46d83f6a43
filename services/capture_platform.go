package services

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"voiceover/media"
	"voiceover/utils"
)

const (
	recordChunkSize    = 32 * 1024
	recorderKillAfter  = 10 * time.Second
	recorderReapWithin = 5 * time.Second
)

// CapturePlatform renders media with a software playback clock over probed files and
// records live webm with an ffmpeg process
type CapturePlatform struct {
	tempDir string
	logger  *zap.Logger
	probe   func(ctx context.Context, path string) (*utils.ProbeResult, error)
	check   func() error
}

// NewCapturePlatform creates a platform that materializes inline media under tempDir
func NewCapturePlatform(tempDir string, logger *zap.Logger) *CapturePlatform {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapturePlatform{
		tempDir: tempDir,
		logger:  logger.Named("platform"),
		probe:   utils.ProbeMedia,
		check:   utils.CheckFFmpeg,
	}
}

// NewRenderer creates a renderer for origin. Inline data is written to a temp file that
// lives until the renderer is closed.
func (p *CapturePlatform) NewRenderer(kind media.Kind, origin media.Origin) (media.Renderer, error) {
	r := &fileRenderer{
		Clock:    media.NewClock(0),
		kind:     kind,
		platform: p,
	}

	switch origin.Type {
	case media.OriginInline:
		if len(origin.Data) == 0 {
			return nil, errors.New("inline origin has no data")
		}
		path, err := utils.WriteTempFile(p.tempDir, "inline-"+kind.String(), origin.MimeType, origin.Data)
		if err != nil {
			return nil, err
		}
		r.path = path
		r.temporary = true
	case media.OriginFile:
		if !utils.FileExists(origin.Path) {
			return nil, fmt.Errorf("media file not found: %s", origin.Path)
		}
		r.path = origin.Path
	default:
		return nil, fmt.Errorf("unknown origin type %d", origin.Type)
	}

	return r, nil
}

// NewRecorder creates an ffmpeg recorder over the tracks of stream
func (p *CapturePlatform) NewRecorder(stream *media.Stream, mimeType string) (media.Recorder, error) {
	if mimeType != media.DefaultMimeType {
		return nil, fmt.Errorf("%w: container %q", media.ErrCapability, mimeType)
	}
	if err := p.check(); err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrCapability, err)
	}

	var (
		inputs  []string
		inputOf = make(map[string]int)
		maps    []utils.StreamMap
	)
	for _, track := range stream.Tracks() {
		idx, ok := inputOf[track.Input]
		if !ok {
			idx = len(inputs)
			inputOf[track.Input] = idx
			inputs = append(inputs, track.Input)
		}
		maps = append(maps, utils.StreamMap{Input: idx, Index: track.Index, Video: track.Kind == media.KindVideo})
	}
	if len(maps) == 0 {
		return nil, errors.New("stream has no tracks to record")
	}

	return &ffmpegRecorder{
		args:     utils.WebmRecordArgs(inputs, maps),
		mimeType: mimeType,
		data:     make(chan []byte, 256),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		logger:   p.logger.With(zap.String("stream_id", stream.ID)),
	}, nil
}

// fileRenderer plays a probed file on a software clock
type fileRenderer struct {
	*media.Clock

	kind      media.Kind
	path      string
	temporary bool
	platform  *CapturePlatform

	mu     sync.Mutex
	probe  *utils.ProbeResult
	closed bool
}

func (r *fileRenderer) Load(ctx context.Context) (time.Duration, error) {
	probe, err := r.platform.probe(ctx, r.path)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	r.probe = probe
	r.mu.Unlock()

	duration := probe.Duration()
	r.SetDuration(duration)
	return duration, nil
}

// CaptureStream exposes the probed streams as live tracks. Video renderers also expose
// their own audio, as a playing video element would.
func (r *fileRenderer) CaptureStream() (*media.Stream, error) {
	if err := r.platform.check(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	probe := r.probe
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, errors.New("renderer is closed")
	}
	if probe == nil {
		return nil, errors.New("renderer has not loaded")
	}

	var tracks []*media.Track
	for _, s := range probe.Streams {
		switch {
		case s.CodecType == "video" && r.kind == media.KindVideo:
			tracks = append(tracks, media.NewTrack(media.KindVideo, r.path, s.Index, nil))
		case s.CodecType == "audio":
			tracks = append(tracks, media.NewTrack(media.KindAudio, r.path, s.Index, nil))
		}
	}
	return media.NewStream(tracks...), nil
}

func (r *fileRenderer) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	_ = r.Pause()
	if r.temporary {
		if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove temp media: %w", err)
		}
	}
	return nil
}

// ffmpegRecorder streams a webm container from an ffmpeg child process
type ffmpegRecorder struct {
	args     []string
	mimeType string
	data     chan []byte
	errs     chan error
	done     chan struct{} // closed by Close
	exited   chan struct{} // closed once the process is reaped
	logger   *zap.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stderr    bytes.Buffer
	stopping  bool
	stopOnce  sync.Once
	closeOnce sync.Once
}

func (r *ffmpegRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd != nil {
		return errors.New("recorder already started")
	}

	cmd := exec.Command(utils.FFmpegBinary, r.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = &r.stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	r.cmd = cmd
	r.stdin = stdin
	r.logger.Debug("recorder started", zap.Int("pid", cmd.Process.Pid))

	go r.pump(stdout)
	return nil
}

// pump forwards stdout as chunks. Data is closed only after a clean exit; a failed
// process reports on errs instead. Once the recorder is closed chunks are discarded
// so the process can always be reaped.
func (r *ffmpegRecorder) pump(stdout io.Reader) {
	defer close(r.exited)

	reader := bufio.NewReaderSize(stdout, recordChunkSize)
	buf := make([]byte, recordChunkSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case r.data <- chunk:
			case <-r.done:
			}
		}
		if err != nil {
			break
		}
	}

	waitErr := r.cmd.Wait()

	r.mu.Lock()
	stopping := r.stopping
	stderr := r.stderr.String()
	r.mu.Unlock()

	if waitErr != nil && !stopping {
		r.logger.Warn("ffmpeg exited with error", zap.Error(waitErr), zap.String("stderr", stderr))
		r.errs <- fmt.Errorf("ffmpeg exited: %w", waitErr)
		return
	}
	r.logger.Debug("recorder finished")
	close(r.data)
}

// Stop asks ffmpeg to finish the container by sending q on stdin. A process that
// ignores the request is killed after recorderKillAfter.
func (r *ffmpegRecorder) Stop() error {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil {
		return errors.New("recorder not started")
	}

	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopping = true
		r.mu.Unlock()

		if _, err := io.WriteString(r.stdin, "q\n"); err != nil && !errors.Is(err, os.ErrClosed) {
			r.logger.Debug("failed to send quit to ffmpeg", zap.Error(err))
		}
		_ = r.stdin.Close()

		// killing an exited process is a no-op error
		time.AfterFunc(recorderKillAfter, func() { _ = cmd.Process.Kill() })
	})
	return nil
}

// Close kills ffmpeg if it is still running and waits until it has been reaped
func (r *ffmpegRecorder) Close() error {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil {
		return nil
	}

	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.stopping = true
		r.mu.Unlock()

		close(r.done)
		_ = r.stdin.Close()
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			r.logger.Debug("failed to kill ffmpeg", zap.Error(err))
		}
	})

	select {
	case <-r.exited:
		return nil
	case <-time.After(recorderReapWithin):
		return fmt.Errorf("ffmpeg pid %d not reaped within %s", cmd.Process.Pid, recorderReapWithin)
	}
}

func (r *ffmpegRecorder) Data() <-chan []byte { return r.data }
func (r *ffmpegRecorder) Err() <-chan error   { return r.errs }
func (r *ffmpegRecorder) MimeType() string    { return r.mimeType }
