package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceover/media"
	"voiceover/models"
	"voiceover/services"
)

func dialPreview(t *testing.T, metrics *media.Metrics, query string) *websocket.Conn {
	t.Helper()
	studio := NewStudioHandler(StudioConfig{TempDir: t.TempDir()}, &fakeScripts{}, &fakeSpeech{},
		newFakeExporter(), services.NewTextProcessor(4500), nil)
	preview := NewPreviewHandler(200*time.Millisecond, nil, metrics, nil)
	server := httptest.NewServer(NewRouter(RouterConfig{}, studio, preview, nil))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/sessions/s1/preview" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, ev models.PreviewEvent) models.PreviewState {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ev))
	var state models.PreviewState
	require.NoError(t, conn.ReadJSON(&state))
	return state
}

func TestPreviewKeepsNarrationInLockstep(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := media.NewMetrics(reg)
	conn := dialPreview(t, metrics, "?narration_duration=30")

	state := send(t, conn, models.PreviewEvent{Type: "play", Position: 0})
	assert.Equal(t, "playing", state.State)
	assert.True(t, state.Playing)
	assert.False(t, state.Corrected)

	// seeking always moves the narration
	state = send(t, conn, models.PreviewEvent{Type: "seek", Position: 12})
	assert.True(t, state.Corrected)
	assert.InDelta(t, 12, state.Position, 0.2)

	// a large jump on play is corrected before playback resumes
	state = send(t, conn, models.PreviewEvent{Type: "play", Position: 3})
	assert.True(t, state.Corrected)
	assert.InDelta(t, 3, state.Position, 0.2)

	state = send(t, conn, models.PreviewEvent{Type: "pause", Position: 3.05})
	assert.Equal(t, "paused", state.State)
	assert.False(t, state.Playing)
	assert.LessOrEqual(t, state.Drift, 0.2)

	state = send(t, conn, models.PreviewEvent{Type: "ended", Position: 30})
	assert.Equal(t, "ended", state.State)
	assert.InDelta(t, 30, state.Position, 0.001)

	assert.Equal(t, float64(3), counterValue(t, reg, "voiceover_sync_corrections_total"))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}

func TestPreviewRejectsUnknownEvents(t *testing.T) {
	conn := dialPreview(t, nil, "")

	state := send(t, conn, models.PreviewEvent{Type: "rewind", Position: 1})
	assert.Contains(t, state.Error, "unknown playback event")
	assert.Equal(t, "idle", state.State)

	// the connection survives a rejected event
	state = send(t, conn, models.PreviewEvent{Type: "play", Position: 0})
	assert.Empty(t, state.Error)
	assert.Equal(t, "playing", state.State)
}

func TestPreviewRejectsBadDuration(t *testing.T) {
	studio := NewStudioHandler(StudioConfig{TempDir: t.TempDir()}, &fakeScripts{}, &fakeSpeech{},
		newFakeExporter(), services.NewTextProcessor(4500), nil)
	server := httptest.NewServer(NewRouter(RouterConfig{}, studio, NewPreviewHandler(0, nil, nil, nil), nil))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/sessions/s1/preview?narration_duration=abc"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}
