package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"voiceover/media"
	"voiceover/models"
	"voiceover/repository"
	"voiceover/services"
	"voiceover/utils"
)

// ScriptSuggester drafts voiceover scripts
type ScriptSuggester interface {
	SuggestScript(ctx context.Context, subject string) (string, error)
}

// Synthesizer turns a script into narration
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (*models.AudioPayload, error)
}

// Exporter runs export jobs per studio session
type Exporter interface {
	StartExport(ctx context.Context, req services.ExportRequest) (*models.ExportJob, error)
	Cancel(sessionID string) bool
	Job(ctx context.Context, jobID string) (*models.ExportJob, error)
}

// StudioConfig holds the limits the studio handler enforces
type StudioConfig struct {
	TempDir         string
	MaxTextLength   int
	MaxUploadBytes  int64
	OutputRetention time.Duration
}

// StudioHandler serves the voiceover studio API
type StudioHandler struct {
	cfg       StudioConfig
	scripts   ScriptSuggester
	speech    Synthesizer
	exporter  Exporter
	processor *services.TextProcessor
	logger    *zap.Logger
}

// NewStudioHandler creates a studio handler
func NewStudioHandler(cfg StudioConfig, scripts ScriptSuggester, speech Synthesizer, exporter Exporter, processor *services.TextProcessor, logger *zap.Logger) *StudioHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudioHandler{
		cfg:       cfg,
		scripts:   scripts,
		speech:    speech,
		exporter:  exporter,
		processor: processor,
		logger:    logger.Named("studio"),
	}
}

// Register mounts the studio routes on group
func (h *StudioHandler) Register(group *gin.RouterGroup) {
	group.GET("/voices", h.Voices)
	group.POST("/script/suggest", h.SuggestScript)
	group.POST("/voiceover", h.Voiceover)
	group.POST("/sessions/:session_id/export", h.Export)
	group.POST("/sessions/:session_id/cancel", h.Cancel)
	group.GET("/status/:job_id", h.GetStatus)
	group.GET("/download/:job_id", h.Download)
}

// Health handles GET /health
func (h *StudioHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now(),
	})
}

// Voices handles GET /api/voices
func (h *StudioHandler) Voices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"voices": services.Voices()})
}

// SuggestScript handles POST /api/script/suggest
func (h *StudioHandler) SuggestScript(c *gin.Context) {
	var req models.SuggestScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Subject) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Subject is required"})
		return
	}

	script, err := h.scripts.SuggestScript(c.Request.Context(), req.Subject)
	if err != nil {
		h.upstreamError(c, "script suggestion failed", err)
		return
	}

	c.JSON(http.StatusOK, models.SuggestScriptResponse{
		Script: script,
		Stats:  h.processor.Stats(script),
	})
}

// Voiceover handles POST /api/voiceover
func (h *StudioHandler) Voiceover(c *gin.Context) {
	var req models.VoiceoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if h.cfg.MaxTextLength > 0 && len(req.Text) > h.cfg.MaxTextLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Script too long (max %d chars)", h.cfg.MaxTextLength)})
		return
	}

	payload, err := h.speech.Synthesize(c.Request.Context(), req.Text, req.Voice)
	if err != nil {
		h.upstreamError(c, "speech synthesis failed", err)
		return
	}

	c.JSON(http.StatusOK, models.VoiceoverResponse{
		AudioDataURI:    services.DataURI(payload),
		MimeType:        payload.MimeType,
		SizeBytes:       len(payload.Data),
		DurationSeconds: utils.Seconds(payload.Duration),
	})
}

func (h *StudioHandler) upstreamError(c *gin.Context, msg string, err error) {
	h.logger.Warn(msg, zap.Error(err))
	_ = c.Error(err)
	status := http.StatusBadGateway
	if errors.Is(err, services.ErrNoScriptKey) || errors.Is(err, services.ErrNoSpeechCredentials) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// Export handles POST /api/sessions/:session_id/export. The video arrives as a file;
// the narration as a file or as an audio_data_uri field.
func (h *StudioHandler) Export(c *gin.Context) {
	sessionID := c.Param("session_id")
	if h.cfg.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes)
	}

	videoFile, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Video file is required"})
		return
	}
	audioFile, _ := c.FormFile("audio")
	audioURI := c.PostForm("audio_data_uri")
	if audioFile == nil && audioURI == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Audio file or audio_data_uri is required"})
		return
	}

	jobID := uuid.New().String()
	jobDir, err := utils.CreateJobDir(h.cfg.TempDir, jobID)
	if err != nil {
		h.internalError(c, "failed to create job directory", err)
		return
	}
	discard := func() { _ = utils.CleanupJobFiles(h.cfg.TempDir, jobID) }
	inputDir := filepath.Join(jobDir, "input")

	video, err := h.saveUpload(c, videoFile, inputDir, "video")
	if err != nil {
		discard()
		h.internalError(c, "failed to store video upload", err)
		return
	}

	var audio media.Origin
	if audioFile != nil {
		audio, err = h.saveUpload(c, audioFile, inputDir, "audio")
		if err != nil {
			discard()
			h.internalError(c, "failed to store audio upload", err)
			return
		}
	} else {
		audio, err = media.ParseDataURI(audioURI)
		if err != nil {
			discard()
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid audio_data_uri: " + err.Error()})
			return
		}
	}

	job, err := h.exporter.StartExport(c.Request.Context(), services.ExportRequest{
		JobID:     jobID,
		SessionID: sessionID,
		Video:     video,
		Audio:     audio,
		Cleanup:   func() { _ = os.RemoveAll(inputDir) },
	})
	if err != nil {
		discard()
		status := statusForCode(media.CodeOf(err))
		if status >= http.StatusInternalServerError {
			h.logger.Error("failed to start export", zap.String("session_id", sessionID), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": err.Error(), "error_code": media.CodeOf(err)})
		return
	}

	h.logger.Info("export accepted", zap.String("job_id", job.JobID), zap.String("session_id", sessionID))
	c.JSON(http.StatusAccepted, models.ExportResponse{
		JobID:  job.JobID,
		Status: job.Status,
	})
}

func (h *StudioHandler) saveUpload(c *gin.Context, fh *multipart.FileHeader, dir, name string) (media.Origin, error) {
	mimeType := fh.Header.Get("Content-Type")
	ext := filepath.Ext(fh.Filename)
	if ext == "" {
		ext = utils.ExtensionFor(mimeType)
	}
	path := filepath.Join(dir, name+ext)
	if err := c.SaveUploadedFile(fh, path); err != nil {
		return media.Origin{}, err
	}
	return media.FileOrigin(path, mimeType), nil
}

func (h *StudioHandler) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

// statusForCode maps export error codes to HTTP statuses
func statusForCode(code media.ErrorCode) int {
	switch code {
	case media.CodeBusy:
		return http.StatusConflict
	case media.CodeCapability:
		return http.StatusUnprocessableEntity
	case media.CodeLoad, media.CodeEmptyTrack:
		return http.StatusBadRequest
	case media.CodeLoadTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Cancel handles POST /api/sessions/:session_id/cancel
func (h *StudioHandler) Cancel(c *gin.Context) {
	sessionID := c.Param("session_id")
	if !h.exporter.Cancel(sessionID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No export in progress"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "cancelled": true})
}

func (h *StudioHandler) lookupJob(c *gin.Context) (*models.ExportJob, bool) {
	job, err := h.exporter.Job(c.Request.Context(), c.Param("job_id"))
	if errors.Is(err, repository.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return nil, false
	}
	if err != nil {
		h.internalError(c, "failed to load job", err)
		return nil, false
	}
	return job, true
}

// GetStatus handles GET /api/status/:job_id
func (h *StudioHandler) GetStatus(c *gin.Context) {
	job, ok := h.lookupJob(c)
	if !ok {
		return
	}

	resp := models.StatusResponse{
		JobID:       job.JobID,
		SessionID:   job.SessionID,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		SizeBytes:   job.SizeBytes,
		Trigger:     job.Trigger,
		ErrorCode:   job.ErrorCode,
	}
	if job.Status == models.StatusCompleted && job.OutputPath != "" {
		downloadURL := fmt.Sprintf("/api/download/%s", job.JobID)
		resp.DownloadURL = &downloadURL
	}
	if job.Error != "" {
		errMsg := job.Error
		resp.Error = &errMsg
	}

	c.JSON(http.StatusOK, resp)
}

// Download handles GET /api/download/:job_id
func (h *StudioHandler) Download(c *gin.Context) {
	job, ok := h.lookupJob(c)
	if !ok {
		return
	}
	if job.Status != models.StatusCompleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Job not completed yet"})
		return
	}
	if job.OutputPath == "" || !utils.FileExists(job.OutputPath) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Recording not found"})
		return
	}

	c.Header("Content-Type", job.MimeType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filepath.Base(job.OutputPath)))
	c.File(job.OutputPath)

	if h.cfg.OutputRetention > 0 {
		utils.ScheduleCleanup(h.cfg.TempDir, job.JobID, h.cfg.OutputRetention)
	}
}
