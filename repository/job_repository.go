package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"voiceover/models"
)

// ErrJobNotFound is returned when a job ID is unknown
var ErrJobNotFound = errors.New("job not found")

// JobRepository stores export job status
type JobRepository interface {
	Create(ctx context.Context, job *models.ExportJob) error
	Update(ctx context.Context, job *models.ExportJob) error
	Get(ctx context.Context, jobID string) (*models.ExportJob, error)
}

// MemoryJobRepository keeps jobs in process memory
type MemoryJobRepository struct {
	jobs map[string]models.ExportJob
	mu   sync.RWMutex
}

// NewMemoryJobRepository creates an empty in-memory repository
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{
		jobs: make(map[string]models.ExportJob),
	}
}

func (r *MemoryJobRepository) Create(ctx context.Context, job *models.ExportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.JobID]; exists {
		return errors.New("job already exists")
	}
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	r.jobs[job.JobID] = *job
	return nil
}

func (r *MemoryJobRepository) Update(ctx context.Context, job *models.ExportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.JobID]; !exists {
		return ErrJobNotFound
	}
	job.UpdatedAt = time.Now()
	r.jobs[job.JobID] = *job
	return nil
}

// Get returns a copy of the stored job
func (r *MemoryJobRepository) Get(ctx context.Context, jobID string) (*models.ExportJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, exists := r.jobs[jobID]
	if !exists {
		return nil, ErrJobNotFound
	}
	return &job, nil
}
