package handlers

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voiceover/media"
	"voiceover/models"
	"voiceover/utils"
)

// PreviewHandler keeps a narration clock in lockstep with the client's video
// element over a websocket. The client reports primary playback events and gets
// back the narration state after each correction.
type PreviewHandler struct {
	threshold time.Duration
	metrics   *media.Metrics
	logger    *zap.Logger
	upgrader  websocket.Upgrader

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewPreviewHandler creates a preview handler. An empty allowedOrigins accepts any origin.
func NewPreviewHandler(threshold time.Duration, allowedOrigins []string, metrics *media.Metrics, logger *zap.Logger) *PreviewHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}

	return &PreviewHandler{
		threshold: threshold,
		metrics:   metrics,
		logger:    logger.Named("preview"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
		pingInterval: 30 * time.Second,
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
	}
}

// Preview handles GET /api/sessions/:session_id/preview. The optional
// narration_duration query parameter (seconds) bounds the narration clock.
func (h *PreviewHandler) Preview(c *gin.Context) {
	sessionID := c.Param("session_id")

	var narration time.Duration
	if v := c.Query("narration_duration"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || secs < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid narration_duration"})
			return
		}
		narration = utils.FromSeconds(secs)
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("session_id", sessionID))
	logger.Info("preview connected")

	clock := media.NewClock(narration)
	defer clock.Pause()
	controller := media.NewSyncController(clock, h.threshold)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	var writeMu sync.Mutex
	write := func(fn func() error) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		return fn()
	}

	_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	go func() {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := write(func() error { return conn.WriteMessage(websocket.PingMessage, nil) }); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		var ev models.PreviewEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("preview connection closed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))

		state := h.apply(ctx, controller, clock, ev)
		if state.Error != "" {
			logger.Debug("preview event rejected", zap.String("type", ev.Type), zap.String("error", state.Error))
		}

		if err := write(func() error { return conn.WriteJSON(state) }); err != nil {
			logger.Warn("failed to write preview state", zap.Error(err))
			return
		}
	}
}

func (h *PreviewHandler) apply(ctx context.Context, controller *media.SyncController, clock *media.Clock, ev models.PreviewEvent) models.PreviewState {
	outcome, err := controller.Handle(ctx, media.PrimaryEvent{
		Type:     media.EventType(ev.Type),
		Position: utils.FromSeconds(ev.Position),
	})
	if outcome.Corrected {
		h.metrics.SyncCorrected()
	}

	state := models.PreviewState{
		Position:  utils.Seconds(clock.Position()),
		Playing:   clock.Playing(),
		Corrected: outcome.Corrected,
		Drift:     utils.Seconds(outcome.Drift),
		State:     outcome.State.String(),
	}
	if err != nil {
		state.Error = err.Error()
	}
	return state
}
