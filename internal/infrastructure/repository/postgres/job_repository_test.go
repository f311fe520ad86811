package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
)

func TestJobRepositoryCreate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewJobRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO analysis_jobs").
		WithArgs("j-1", "u-1", "rx.pdf", "application/pdf", "", "jobs/j-1", "queued", nil, nil, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateJob(context.Background(), &domain.AnalysisJob{
		ID: "j-1", UserID: "u-1", Filename: "rx.pdf", MediaType: domain.MediaTypePDF,
		StorageKey: "jobs/j-1", Status: domain.JobQueued, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
}

func TestJobRepositoryGetForUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewJobRepository(db)
	now := time.Now()
	columns := []string{"id", "user_id", "filename", "media_type", "model", "storage_key", "status", "analysis_id", "error_message", "created_at", "updated_at"}

	mock.ExpectQuery("FROM analysis_jobs").
		WithArgs("j-1", "u-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("j-1", "u-1", "rx.pdf", "application/pdf", "llava", "jobs/j-1", "completed", "a-1", "", now, now))
	mock.ExpectQuery("FROM analysis_jobs").
		WithArgs("j-1", "u-2").
		WillReturnError(sql.ErrNoRows)

	job, err := repo.GetJobForUser(context.Background(), "u-1", "j-1")
	if err != nil {
		t.Fatalf("GetJobForUser() error = %v", err)
	}
	if job.Status != domain.JobCompleted || job.AnalysisID != "a-1" || job.MediaType != domain.MediaTypePDF {
		t.Fatalf("unexpected job %+v", job)
	}
	if _, err := repo.GetJobForUser(context.Background(), "u-2", "j-1"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestJobRepositoryUpdateStatus(t *testing.T) {
	db, mock := newMock(t)
	repo := NewJobRepository(db)

	mock.ExpectExec("UPDATE analysis_jobs").
		WithArgs("j-1", "failed", nil, "boom", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateJobStatus(context.Background(), "j-1", domain.JobFailed, "", "boom"); err != nil {
		t.Fatalf("UpdateJobStatus() error = %v", err)
	}
}
