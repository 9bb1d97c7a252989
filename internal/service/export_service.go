package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/recipehub/recipes-api/internal/models"
	appErrors "github.com/recipehub/recipes-api/pkg/errors"
	"github.com/recipehub/recipes-api/pkg/export"
	"github.com/recipehub/recipes-api/pkg/jobs"
	"github.com/recipehub/recipes-api/pkg/storage"
)

type exportDataSource interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	ListAuditLogs(ctx context.Context, userID string, limit int) ([]models.AuditLog, error)
}

// ExportServiceConfig tunes the export worker pool.
type ExportServiceConfig struct {
	Workers       int
	AuditLogLimit int
	Retention     time.Duration
}

// ExportService produces downloadable account data exports. Requests run on
// a background queue; completed files are served through signed tokens.
type ExportService struct {
	repo   exportDataSource
	store  *storage.LocalStorage
	signer *storage.SignedURLSigner
	queue  *jobs.Queue
	logger *zap.Logger
	config ExportServiceConfig

	mu      sync.RWMutex
	tracked map[string]*models.ExportJob
}

// NewExportService constructs an ExportService instance.
func NewExportService(repo exportDataSource, store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger, config ExportServiceConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.AuditLogLimit <= 0 {
		config.AuditLogLimit = 1000
	}
	if config.Retention <= 0 {
		config.Retention = 48 * time.Hour
	}

	s := &ExportService{
		repo:    repo,
		store:   store,
		signer:  signer,
		logger:  logger,
		config:  config,
		tracked: make(map[string]*models.ExportJob),
	}
	s.queue = jobs.NewQueue("account-exports", s.process, jobs.QueueConfig{
		Workers: config.Workers,
		Logger:  logger,
	})
	return s
}

// Start launches the export workers and the retention janitor. Expired
// files are removed on an interval tied to the retention window.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)

	go func() {
		interval := s.config.Retention / 4
		if interval < time.Minute {
			interval = time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.store.CleanupOlderThan(s.config.Retention)
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(deleted) > 0 {
					s.logger.Info("expired exports removed", zap.Int("count", len(deleted)))
				}
			}
		}
	}()
}

// Stop drains the export workers.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// Request enqueues a new export for the user and returns the tracking job.
func (s *ExportService) Request(ctx context.Context, userID string, req models.ExportRequest) (*models.ExportJob, error) {
	if req.Format != models.ExportFormatCSV && req.Format != models.ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	if _, err := s.repo.FindUserByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	job := &models.ExportJob{
		ID:          uuid.NewString(),
		UserID:      userID,
		Format:      req.Format,
		Status:      models.ExportStatusPending,
		RequestedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.tracked[job.ID] = job
	s.mu.Unlock()

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "account_export", Payload: userID}); err != nil {
		s.mu.Lock()
		delete(s.tracked, job.ID)
		s.mu.Unlock()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export")
	}

	return s.snapshot(job.ID), nil
}

// Status returns the job state for its owner, attaching a signed download
// token once the file is ready.
func (s *ExportService) Status(ctx context.Context, userID, jobID string) (*models.ExportJob, error) {
	job := s.snapshot(jobID)
	if job == nil || job.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}

	if job.Status == models.ExportStatusCompleted && job.File != "" {
		token, expiresAt, err := s.signer.Generate(job.ID, job.File)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
		}
		job.DownloadToken = token
		job.DownloadExpires = &expiresAt
	}

	return job, nil
}

// Download resolves a signed token to the stored file. It returns the
// absolute path and a suggested attachment name.
func (s *ExportService) Download(token string) (string, string, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}

	job := s.snapshot(jobID)
	if job == nil || job.Status != models.ExportStatusCompleted || job.File != relPath {
		return "", "", appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}

	name := fmt.Sprintf("account-export-%s.%s", jobID, job.Format)
	return s.store.Path(relPath), name, nil
}

func (s *ExportService) process(ctx context.Context, job jobs.Job) error {
	userID, _ := job.Payload.(string)
	s.setStatus(job.ID, models.ExportStatusProcessing, "", "")

	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		s.setStatus(job.ID, models.ExportStatusFailed, "", "account lookup failed")
		return fmt.Errorf("export %s: load user: %w", job.ID, err)
	}

	logs, err := s.repo.ListAuditLogs(ctx, userID, s.config.AuditLogLimit)
	if err != nil {
		s.setStatus(job.ID, models.ExportStatusFailed, "", "audit trail lookup failed")
		return fmt.Errorf("export %s: list audit logs: %w", job.ID, err)
	}

	dataset := buildAccountDataset(user, logs)

	format := s.format(job.ID)
	var rendered []byte
	switch format {
	case models.ExportFormatPDF:
		rendered, err = export.RenderPDF(dataset, fmt.Sprintf("Account data for %s", user.Username))
	default:
		rendered, err = export.RenderCSV(dataset)
	}
	if err != nil {
		s.setStatus(job.ID, models.ExportStatusFailed, "", "render failed")
		return fmt.Errorf("export %s: render: %w", job.ID, err)
	}

	filename := fmt.Sprintf("%s/%s.%s", userID, job.ID, format)
	if _, err := s.store.Save(filename, rendered); err != nil {
		s.setStatus(job.ID, models.ExportStatusFailed, "", "storage failed")
		return fmt.Errorf("export %s: save: %w", job.ID, err)
	}

	s.setStatus(job.ID, models.ExportStatusCompleted, filename, "")
	s.logger.Info("account export completed",
		zap.String("job_id", job.ID),
		zap.String("user_id", userID),
		zap.String("format", format))
	return nil
}

// buildAccountDataset flattens the profile and the audit trail into one
// tabular document. The first row carries the profile fields.
func buildAccountDataset(user *models.User, logs []models.AuditLog) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"section", "field", "value", "occurred_at"},
	}

	profileRows := []struct {
		field string
		value string
	}{
		{"username", user.Username},
		{"email", user.Email},
		{"email_verified", fmt.Sprintf("%t", user.EmailVerified)},
		{"created_at", user.CreatedAt.Format(time.RFC3339)},
	}
	if user.Bio != nil {
		profileRows = append(profileRows, struct {
			field string
			value string
		}{"bio", *user.Bio})
	}
	if user.LastLoginAt != nil {
		profileRows = append(profileRows, struct {
			field string
			value string
		}{"last_login_at", user.LastLoginAt.Format(time.RFC3339)})
	}
	for _, row := range profileRows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"section": "profile",
			"field":   row.field,
			"value":   row.value,
		})
	}

	for _, entry := range logs {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"section":     "activity",
			"field":       entry.Action,
			"value":       entry.IPAddress,
			"occurred_at": entry.CreatedAt.Format(time.RFC3339),
		})
	}

	return dataset
}

func (s *ExportService) snapshot(jobID string) *models.ExportJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.tracked[jobID]
	if !ok {
		return nil
	}
	copied := *job
	return &copied
}

func (s *ExportService) format(jobID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if job, ok := s.tracked[jobID]; ok {
		return job.Format
	}
	return models.ExportFormatCSV
}

func (s *ExportService) setStatus(jobID, status, file, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.tracked[jobID]
	if !ok {
		return
	}
	job.Status = status
	job.Error = errMsg
	if file != "" {
		job.File = file
	}
	if status == models.ExportStatusCompleted {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
}
