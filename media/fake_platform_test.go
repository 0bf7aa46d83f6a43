package media

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type rendererSpec struct {
	duration   time.Duration
	loadDelay  time.Duration
	loadErr    error
	captureErr error
	trackKinds []Kind
	playErr    error
	neverEnds  bool
}

type recorderSpec struct {
	chunkEvery time.Duration
	chunkSize  int
	startErr   error
	failAfter  time.Duration
	noFinalize bool
	newErr     error
}

type fakePlatform struct {
	video    rendererSpec
	audio    rendererSpec
	recorder recorderSpec

	mu        sync.Mutex
	events    []string
	renderers []*fakeRenderer
	recorders []*fakeRecorder
	streams   []*Stream
}

func newFakePlatform(duration time.Duration) *fakePlatform {
	return &fakePlatform{
		video: rendererSpec{duration: duration, trackKinds: []Kind{KindVideo}},
		audio: rendererSpec{duration: duration, trackKinds: []Kind{KindAudio}},
		recorder: recorderSpec{
			chunkEvery: 20 * time.Millisecond,
			chunkSize:  128,
		},
	}
}

func (p *fakePlatform) record(event string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *fakePlatform) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *fakePlatform) Renderers() []*fakeRenderer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*fakeRenderer(nil), p.renderers...)
}

func (p *fakePlatform) Recorders() []*fakeRecorder {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*fakeRecorder(nil), p.recorders...)
}

func (p *fakePlatform) NewRenderer(kind Kind, origin Origin) (Renderer, error) {
	spec := p.video
	if kind == KindAudio {
		spec = p.audio
	}
	r := &fakeRenderer{
		Clock:    NewClock(0),
		kind:     kind,
		spec:     spec,
		platform: p,
		never:    make(chan struct{}),
	}
	p.mu.Lock()
	p.renderers = append(p.renderers, r)
	p.mu.Unlock()
	return r, nil
}

func (p *fakePlatform) NewRecorder(stream *Stream, mimeType string) (Recorder, error) {
	if p.recorder.newErr != nil {
		return nil, p.recorder.newErr
	}
	r := &fakeRecorder{
		spec:     p.recorder,
		platform: p,
		mimeType: mimeType,
		data:     make(chan []byte),
		errs:     make(chan error, 1),
		stop:     make(chan struct{}),
		released: make(chan struct{}),
	}
	p.mu.Lock()
	p.recorders = append(p.recorders, r)
	p.streams = append(p.streams, stream)
	p.mu.Unlock()
	return r, nil
}

type fakeRenderer struct {
	*Clock
	kind     Kind
	spec     rendererSpec
	platform *fakePlatform
	never    chan struct{}

	closed atomic.Bool
	mu     sync.Mutex
	tracks []*Track
}

func (r *fakeRenderer) Load(ctx context.Context) (time.Duration, error) {
	if r.spec.loadDelay > 0 {
		select {
		case <-time.After(r.spec.loadDelay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if r.spec.loadErr != nil {
		return 0, r.spec.loadErr
	}
	r.SetDuration(r.spec.duration)
	return r.spec.duration, nil
}

func (r *fakeRenderer) Play(ctx context.Context) error {
	r.platform.record("play:" + r.kind.String())
	if r.spec.playErr != nil {
		return r.spec.playErr
	}
	return r.Clock.Play(ctx)
}

func (r *fakeRenderer) Ended() <-chan struct{} {
	if r.spec.neverEnds {
		return r.never
	}
	return r.Clock.Ended()
}

func (r *fakeRenderer) CaptureStream() (*Stream, error) {
	if r.spec.captureErr != nil {
		return nil, r.spec.captureErr
	}
	var tracks []*Track
	for i, k := range r.spec.trackKinds {
		tracks = append(tracks, NewTrack(k, "fake-"+r.kind.String(), i, nil))
	}
	r.mu.Lock()
	r.tracks = append(r.tracks, tracks...)
	r.mu.Unlock()
	return NewStream(tracks...), nil
}

func (r *fakeRenderer) Tracks() []*Track {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Track(nil), r.tracks...)
}

func (r *fakeRenderer) Close() error {
	r.closed.Store(true)
	return nil
}

type fakeRecorder struct {
	spec     recorderSpec
	platform *fakePlatform
	mimeType string

	data     chan []byte
	errs     chan error
	stop     chan struct{}
	released chan struct{}

	starts      atomic.Int32
	stops       atomic.Int32
	closes      atomic.Int32
	stopOnce    sync.Once
	releaseOnce sync.Once
}

func (r *fakeRecorder) Start() error {
	r.starts.Add(1)
	r.platform.record("record")
	if r.spec.startErr != nil {
		return r.spec.startErr
	}
	go r.run()
	return nil
}

func (r *fakeRecorder) run() {
	ticker := time.NewTicker(r.spec.chunkEvery)
	defer ticker.Stop()

	var failC <-chan time.Time
	if r.spec.failAfter > 0 {
		failC = time.After(r.spec.failAfter)
	}

	for {
		select {
		case <-ticker.C:
			select {
			case r.data <- make([]byte, r.spec.chunkSize):
			case <-r.stop:
				r.finish()
				return
			case <-r.released:
				return
			}
		case <-r.released:
			return
		case <-failC:
			r.errs <- fmt.Errorf("encoder crashed")
			return
		case <-r.stop:
			r.finish()
			return
		}
	}
}

func (r *fakeRecorder) finish() {
	if r.spec.noFinalize {
		return
	}
	// trailing chunk delivered after stop
	select {
	case r.data <- make([]byte, r.spec.chunkSize):
	case <-r.released:
		return
	case <-time.After(time.Second):
	}
	close(r.data)
}

func (r *fakeRecorder) Stop() error {
	r.stops.Add(1)
	r.stopOnce.Do(func() { close(r.stop) })
	return nil
}

func (r *fakeRecorder) Close() error {
	r.closes.Add(1)
	r.releaseOnce.Do(func() { close(r.released) })
	return nil
}

func (r *fakeRecorder) Data() <-chan []byte { return r.data }
func (r *fakeRecorder) Err() <-chan error   { return r.errs }
func (r *fakeRecorder) MimeType() string    { return r.mimeType }
