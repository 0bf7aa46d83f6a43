package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voiceover/media"
	"voiceover/models"
	"voiceover/repository"
	"voiceover/utils"
)

// ComposerConfig tunes export sessions
type ComposerConfig struct {
	TempDir         string
	MimeType        string
	LoadTimeout     time.Duration
	FinalizeGrace   time.Duration
	FinalizeTimeout time.Duration
}

// ExportRequest describes one export. JobID is generated when empty; Cleanup, if set,
// runs once the export has finished, whatever its outcome.
type ExportRequest struct {
	JobID     string
	SessionID string
	Video     media.Origin
	Audio     media.Origin
	Cleanup   func()
}

type pendingExport struct {
	jobID  string
	cancel context.CancelFunc
}

// ComposerService combines a video and a narration into one recording per studio
// session and tracks the resulting export jobs
type ComposerService struct {
	platform media.Platform
	jobs     repository.JobRepository
	metrics  *media.Metrics
	cfg      ComposerConfig
	logger   *zap.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*media.Session
	pending  map[string]*pendingExport

	now func() time.Time
}

// NewComposerService creates a composer service
func NewComposerService(platform media.Platform, jobs repository.JobRepository, metrics *media.Metrics, cfg ComposerConfig, logger *zap.Logger) *ComposerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MimeType == "" {
		cfg.MimeType = media.DefaultMimeType
	}
	ctx, stop := context.WithCancel(context.Background())
	return &ComposerService{
		platform: platform,
		jobs:     jobs,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger.Named("composer"),
		baseCtx:  ctx,
		stop:     stop,
		sessions: make(map[string]*media.Session),
		pending:  make(map[string]*pendingExport),
		now:      time.Now,
	}
}

// sessionLocked returns the orchestrator for sessionID, creating it on first use.
// Callers hold cs.mu.
func (cs *ComposerService) sessionLocked(sessionID string) *media.Session {
	if s, ok := cs.sessions[sessionID]; ok {
		return s
	}
	s := media.NewSession(sessionID, cs.platform,
		media.WithLogger(cs.logger),
		media.WithMetrics(cs.metrics),
		media.WithLoadTimeout(cs.cfg.LoadTimeout),
		media.WithFinalizeGrace(cs.cfg.FinalizeGrace),
		media.WithFinalizeTimeout(cs.cfg.FinalizeTimeout),
		media.WithMimeType(cs.cfg.MimeType),
	)
	cs.sessions[sessionID] = s
	return s
}

// StartExport accepts an export and runs it in the background. A session with an
// export in flight rejects the request with media.ErrBusy.
func (cs *ComposerService) StartExport(ctx context.Context, req ExportRequest) (*models.ExportJob, error) {
	if req.SessionID == "" {
		return nil, errors.New("session id is required")
	}
	if req.JobID == "" {
		req.JobID = uuid.New().String()
	}

	cs.mu.Lock()
	if cs.baseCtx.Err() != nil {
		cs.mu.Unlock()
		return nil, errors.New("composer is shutting down")
	}
	if _, busy := cs.pending[req.SessionID]; busy {
		cs.mu.Unlock()
		return nil, media.ErrBusy
	}
	session := cs.sessionLocked(req.SessionID)
	if session.Active() {
		cs.mu.Unlock()
		return nil, media.ErrBusy
	}

	job := &models.ExportJob{
		JobID:       req.JobID,
		SessionID:   req.SessionID,
		Status:      models.StatusQueued,
		CurrentStep: "Queued",
		MimeType:    cs.cfg.MimeType,
	}
	if err := cs.jobs.Create(ctx, job); err != nil {
		cs.mu.Unlock()
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	runCtx, cancel := context.WithCancel(cs.baseCtx)
	cs.pending[req.SessionID] = &pendingExport{jobID: job.JobID, cancel: cancel}
	cs.wg.Add(1)
	cs.mu.Unlock()

	snapshot := *job
	go cs.runExport(runCtx, session, job, req)

	return &snapshot, nil
}

// runExport drives one export to a terminal job status
func (cs *ComposerService) runExport(ctx context.Context, session *media.Session, job *models.ExportJob, req ExportRequest) {
	defer cs.wg.Done()
	defer func() {
		cs.mu.Lock()
		if p, ok := cs.pending[req.SessionID]; ok && p.jobID == job.JobID {
			p.cancel()
			delete(cs.pending, req.SessionID)
		}
		cs.mu.Unlock()
		if req.Cleanup != nil {
			req.Cleanup()
		}
	}()

	logger := cs.logger.With(zap.String("job_id", job.JobID), zap.String("session_id", req.SessionID))

	updateStatus := func(step string, progress int) {
		job.Status = models.StatusProcessing
		job.CurrentStep = step
		job.Progress = progress
		cs.save(job, logger)
		logger.Info(step, zap.Int("progress", progress))
	}

	updateStatus("Recording", 10)
	result, err := session.Export(ctx, req.Video, req.Audio)
	if err != nil {
		cs.markJobFailed(job, err, logger)
		return
	}

	updateStatus("Writing output", 90)
	jobDir, err := utils.CreateJobDir(cs.cfg.TempDir, job.JobID)
	if err != nil {
		cs.markJobFailed(job, err, logger)
		return
	}
	outputPath := filepath.Join(jobDir, "output", utils.ExportFilename(cs.now(), utils.ExtensionFor(result.MimeType)))
	if err := utils.WriteFile(outputPath, result.Payload); err != nil {
		cs.markJobFailed(job, err, logger)
		return
	}

	job.Status = models.StatusCompleted
	job.CurrentStep = "Complete"
	job.Progress = 100
	job.OutputPath = outputPath
	job.MimeType = result.MimeType
	job.SizeBytes = result.SizeBytes
	job.Trigger = result.Trigger.String()
	cs.save(job, logger)

	logger.Info("export completed",
		zap.String("output", outputPath),
		zap.Int64("size_bytes", result.SizeBytes),
		zap.String("trigger", job.Trigger))
}

// markJobFailed removes everything stored for the job, then records the failure
func (cs *ComposerService) markJobFailed(job *models.ExportJob, err error, logger *zap.Logger) {
	logger.Error("export failed", zap.Error(err))
	if rmErr := utils.CleanupJobFiles(cs.cfg.TempDir, job.JobID); rmErr != nil {
		logger.Warn("failed to remove job files", zap.Error(rmErr))
	}
	job.Status = models.StatusFailed
	job.ErrorCode = string(media.CodeOf(err))
	job.Error = err.Error()
	cs.save(job, logger)
}

func (cs *ComposerService) save(job *models.ExportJob, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cs.jobs.Update(ctx, job); err != nil {
		logger.Warn("failed to persist job status", zap.Error(err))
	}
}

// Cancel stops the export in flight for sessionID. A recording in progress is
// finalized with what it captured so far; an export still loading is aborted.
func (cs *ComposerService) Cancel(sessionID string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	p, ok := cs.pending[sessionID]
	if !ok {
		return false
	}
	if s := cs.sessions[sessionID]; s != nil && s.Cancel() {
		return true
	}
	p.cancel()
	return true
}

// Busy reports whether sessionID has an export in flight
func (cs *ComposerService) Busy(sessionID string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	_, ok := cs.pending[sessionID]
	return ok
}

// Job returns the current status of an export job
func (cs *ComposerService) Job(ctx context.Context, jobID string) (*models.ExportJob, error) {
	return cs.jobs.Get(ctx, jobID)
}

// Shutdown stops every export in flight and waits for their jobs to settle
func (cs *ComposerService) Shutdown(ctx context.Context) error {
	cs.mu.Lock()
	cs.stop()
	cs.mu.Unlock()

	done := make(chan struct{})
	go func() {
		cs.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
