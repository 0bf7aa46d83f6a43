package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"voiceover/models"
)

// ExportJobRecord is the persisted form of an export job
type ExportJobRecord struct {
	JobID       string `gorm:"primaryKey;size:36"`
	SessionID   string `gorm:"index;size:64"`
	Status      string `gorm:"index;size:16"`
	Progress    int
	CurrentStep string
	OutputPath  string
	MimeType    string `gorm:"size:64"`
	SizeBytes   int64
	Trigger     string `gorm:"size:16"`
	ErrorCode   string `gorm:"size:32"`
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName pins the table name
func (ExportJobRecord) TableName() string {
	return "export_jobs"
}

func toRecord(job *models.ExportJob) *ExportJobRecord {
	return &ExportJobRecord{
		JobID:       job.JobID,
		SessionID:   job.SessionID,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		OutputPath:  job.OutputPath,
		MimeType:    job.MimeType,
		SizeBytes:   job.SizeBytes,
		Trigger:     job.Trigger,
		ErrorCode:   job.ErrorCode,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}
}

func (r *ExportJobRecord) toModel() *models.ExportJob {
	return &models.ExportJob{
		JobID:       r.JobID,
		SessionID:   r.SessionID,
		Status:      r.Status,
		Progress:    r.Progress,
		CurrentStep: r.CurrentStep,
		OutputPath:  r.OutputPath,
		MimeType:    r.MimeType,
		SizeBytes:   r.SizeBytes,
		Trigger:     r.Trigger,
		ErrorCode:   r.ErrorCode,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// PostgresJobRepository stores jobs in PostgreSQL through gorm
type PostgresJobRepository struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn and migrates the export_jobs table
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&ExportJobRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate export_jobs: %w", err)
	}
	return db, nil
}

// NewPostgresJobRepository wraps an open gorm connection
func NewPostgresJobRepository(db *gorm.DB) *PostgresJobRepository {
	return &PostgresJobRepository{db: db}
}

func (r *PostgresJobRepository) Create(ctx context.Context, job *models.ExportJob) error {
	record := toRecord(job)
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	job.CreatedAt = record.CreatedAt
	job.UpdatedAt = record.UpdatedAt
	return nil
}

func (r *PostgresJobRepository) Update(ctx context.Context, job *models.ExportJob) error {
	record := toRecord(job)
	result := r.db.WithContext(ctx).Model(&ExportJobRecord{}).
		Where("job_id = ?", job.JobID).
		Select("*").Omit("created_at").
		Updates(record)
	if result.Error != nil {
		return fmt.Errorf("failed to update job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}
	job.UpdatedAt = record.UpdatedAt
	return nil
}

func (r *PostgresJobRepository) Get(ctx context.Context, jobID string) (*models.ExportJob, error) {
	var record ExportJobRecord
	err := r.db.WithContext(ctx).First(&record, "job_id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return record.toModel(), nil
}
