package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind is the media kind of a source or track
type Kind int

const (
	KindVideo Kind = iota
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// OriginType tells where the bytes of a source come from
type OriginType int

const (
	OriginFile OriginType = iota
	OriginInline
)

// Origin describes one playable input before it is attached
type Origin struct {
	Type     OriginType
	Path     string // OriginFile
	Data     []byte // OriginInline
	MimeType string
}

// FileOrigin returns an origin backed by a file on disk
func FileOrigin(path, mimeType string) Origin {
	return Origin{Type: OriginFile, Path: path, MimeType: mimeType}
}

// InlineOrigin returns an origin backed by an in-memory payload
func InlineOrigin(data []byte, mimeType string) Origin {
	return Origin{Type: OriginInline, Data: data, MimeType: mimeType}
}

// ParseDataURI decodes a data: URI (base64 or percent-encoded) into an inline origin
func ParseDataURI(uri string) (Origin, error) {
	if !strings.HasPrefix(uri, "data:") {
		return Origin{}, fmt.Errorf("not a data URI")
	}
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return Origin{}, fmt.Errorf("malformed data URI: missing comma")
	}

	meta := uri[len("data:"):comma]
	payload := uri[comma+1:]

	isBase64 := false
	if strings.HasSuffix(meta, ";base64") {
		isBase64 = true
		meta = strings.TrimSuffix(meta, ";base64")
	}
	mimeType := meta
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	if mimeType == "" {
		mimeType = "text/plain"
	}

	var data []byte
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return Origin{}, fmt.Errorf("failed to decode data URI payload: %w", err)
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return Origin{}, fmt.Errorf("failed to unescape data URI payload: %w", err)
		}
		data = []byte(unescaped)
	}

	return InlineOrigin(data, mimeType), nil
}

// Track is one live output track of a renderer
type Track struct {
	ID    string
	Kind  Kind
	Input string // platform reference of the rendering input
	Index int    // stream index within the input

	mu     sync.Mutex
	ended  bool
	onStop func()
}

// NewTrack creates a live track. onStop, if set, runs once when the track stops.
func NewTrack(kind Kind, input string, index int, onStop func()) *Track {
	return &Track{
		ID:     uuid.New().String(),
		Kind:   kind,
		Input:  input,
		Index:  index,
		onStop: onStop,
	}
}

// Stop ends the track. Safe to call more than once.
func (t *Track) Stop() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	fn := t.onStop
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Ended reports whether Stop was called
func (t *Track) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}

// Stream groups live tracks
type Stream struct {
	ID     string
	tracks []*Track
}

// NewStream creates a stream over the given tracks
func NewStream(tracks ...*Track) *Stream {
	return &Stream{
		ID:     uuid.New().String(),
		tracks: append([]*Track(nil), tracks...),
	}
}

// Tracks returns every track in the stream
func (s *Stream) Tracks() []*Track {
	return append([]*Track(nil), s.tracks...)
}

// VideoTracks returns the video tracks in the stream
func (s *Stream) VideoTracks() []*Track {
	return s.tracksOf(KindVideo)
}

// AudioTracks returns the audio tracks in the stream
func (s *Stream) AudioTracks() []*Track {
	return s.tracksOf(KindAudio)
}

func (s *Stream) tracksOf(kind Kind) []*Track {
	var out []*Track
	for _, t := range s.tracks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// Stop stops every track in the stream
func (s *Stream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

// Player is the playback half of a renderer
type Player interface {
	Play(ctx context.Context) error
	Pause() error
	Position() time.Duration
	Seek(pos time.Duration) error
}

// Renderer decodes and plays one source and can expose its live output
type Renderer interface {
	Player

	// Load blocks until metadata is known and returns the source duration.
	Load(ctx context.Context) (time.Duration, error)
	// Ended is closed when playback reaches the end of the source.
	Ended() <-chan struct{}
	// CaptureStream returns a live stream of the renderer's output.
	CaptureStream() (*Stream, error)
	// Close releases the renderer and any temporary reference it holds.
	Close() error
}

// Recorder records a stream into a container, emitting chunks as they are produced
type Recorder interface {
	Start() error
	// Stop asks the recorder to flush and finish. Data is closed after the last chunk.
	Stop() error
	// Close releases the recorder whether or not it finished. After Close returns no
	// process or goroutine owned by the recorder is left running.
	Close() error
	Data() <-chan []byte
	Err() <-chan error
	MimeType() string
}

// Platform creates renderers and recorders
type Platform interface {
	NewRenderer(kind Kind, origin Origin) (Renderer, error)
	NewRecorder(stream *Stream, mimeType string) (Recorder, error)
}
