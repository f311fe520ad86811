package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) CreateJob(ctx context.Context, job *domain.AnalysisJob) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO analysis_jobs (
	id, user_id, filename, media_type, model, storage_key, status, analysis_id, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		job.ID, job.UserID, job.Filename, string(job.MediaType), job.Model, job.StorageKey, string(job.Status),
		nullableString(job.AnalysisID), nullableString(job.Error), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis job: %w", err)
	}
	return nil
}

func (r *JobRepository) GetJob(ctx context.Context, id string) (*domain.AnalysisJob, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, filename, media_type, model, storage_key, status, COALESCE(analysis_id, ''), COALESCE(error_message, ''), created_at, updated_at
FROM analysis_jobs
WHERE id = $1
`, id)
	return scanJob(row, id)
}

func (r *JobRepository) GetJobForUser(ctx context.Context, userID, id string) (*domain.AnalysisJob, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, filename, media_type, model, storage_key, status, COALESCE(analysis_id, ''), COALESCE(error_message, ''), created_at, updated_at
FROM analysis_jobs
WHERE id = $1 AND user_id = $2
`, id, userID)
	return scanJob(row, id)
}

func (r *JobRepository) UpdateJobStatus(ctx context.Context, id string, status domain.JobStatus, analysisID, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE analysis_jobs
SET status = $2, analysis_id = $3, error_message = $4, updated_at = $5
WHERE id = $1
`, id, string(status), nullableString(analysisID), nullableString(errMessage), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update analysis job status: %w", err)
	}
	return nil
}

func scanJob(row *sql.Row, id string) (*domain.AnalysisJob, error) {
	var (
		job       domain.AnalysisJob
		mediaType string
		status    string
	)
	err := row.Scan(
		&job.ID, &job.UserID, &job.Filename, &mediaType, &job.Model, &job.StorageKey,
		&status, &job.AnalysisID, &job.Error, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get analysis job", fmt.Errorf("job %s", id))
		}
		return nil, fmt.Errorf("scan analysis job: %w", err)
	}
	job.MediaType = domain.MediaType(mediaType)
	job.Status = domain.JobStatus(status)
	return &job, nil
}
