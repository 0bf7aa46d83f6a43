package media

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataURI(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		mimeType string
		data     string
		wantErr  bool
	}{
		{"base64 wav", "data:audio/wav;base64,UklGRg==", "audio/wav", "RIFF", false},
		{"parameters", "data:audio/webm;codecs=opus;base64,AQI=", "audio/webm", "\x01\x02", false},
		{"percent encoded", "data:text/plain,hello%20world", "text/plain", "hello world", false},
		{"default mime", "data:,x", "text/plain", "x", false},
		{"not a data uri", "https://example.com/a.wav", "", "", true},
		{"missing comma", "data:audio/wav;base64", "", "", true},
		{"bad base64", "data:audio/wav;base64,@@@", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origin, err := ParseDataURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, OriginInline, origin.Type)
			assert.Equal(t, tt.mimeType, origin.MimeType)
			assert.Equal(t, tt.data, string(origin.Data))
		})
	}
}

func TestStream_TrackSelectionAndStop(t *testing.T) {
	stopped := 0
	v := NewTrack(KindVideo, "in", 0, func() { stopped++ })
	a := NewTrack(KindAudio, "in", 1, nil)
	s := NewStream(v, a)

	assert.Equal(t, []*Track{v}, s.VideoTracks())
	assert.Equal(t, []*Track{a}, s.AudioTracks())
	assert.Len(t, s.Tracks(), 2)

	s.Stop()
	s.Stop()
	assert.True(t, v.Ended())
	assert.True(t, a.Ended())
	assert.Equal(t, 1, stopped)
}

func TestError_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("export: %w", newError(CodeEmptyTrack, "audio source yielded no audio tracks", nil))

	assert.True(t, errors.Is(err, ErrEmptyTrack))
	assert.False(t, errors.Is(err, ErrCapability))
	assert.Equal(t, CodeEmptyTrack, CodeOf(err))
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))

	cause := errors.New("exit status 1")
	wrapped := newError(CodeRecord, "recorder failed", cause)
	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, wrapped.Error(), "RECORD_FAILED")
}
