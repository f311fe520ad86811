package usecase

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
	"github.com/kirillkom/medical-doc-assistant/internal/core/ports"
)

// SubmitAnalysisJobUseCase stages a sealed upload and queues it for the worker.
type SubmitAnalysisJobUseCase struct {
	jobs      ports.AnalysisJobStore
	storage   ports.ObjectStorage
	queue     ports.MessageQueue
	sealer    ports.BlobSealer
	validator uploadValidator
	now       func() time.Time
}

type uploadValidator interface {
	Validate(doc domain.UploadedDocument) error
}

func NewSubmitAnalysisJobUseCase(
	jobs ports.AnalysisJobStore,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	sealer ports.BlobSealer,
	validator uploadValidator,
) *SubmitAnalysisJobUseCase {
	return &SubmitAnalysisJobUseCase{
		jobs:      jobs,
		storage:   storage,
		queue:     queue,
		sealer:    sealer,
		validator: validator,
		now:       time.Now,
	}
}

func (uc *SubmitAnalysisJobUseCase) Submit(ctx context.Context, userID, model string, doc domain.UploadedDocument) (*domain.AnalysisJob, error) {
	if err := uc.validator.Validate(doc); err != nil {
		return nil, err
	}
	mediaType, _ := domain.ParseMediaType(string(doc.MediaType))

	sealed, err := uc.sealer.SealBytes(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("seal upload: %w", err)
	}

	id := uuid.NewString()
	now := uc.now().UTC()
	job := &domain.AnalysisJob{
		ID:         id,
		UserID:     userID,
		Filename:   sanitizeFilename(doc.Filename),
		MediaType:  mediaType,
		Model:      strings.TrimSpace(model),
		StorageKey: "jobs/" + id,
		Status:     domain.JobQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := uc.storage.Save(ctx, job.StorageKey, bytes.NewReader(sealed)); err != nil {
		return nil, fmt.Errorf("stage sealed upload: %w", err)
	}
	if err := uc.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create analysis job: %w", err)
	}
	if err := uc.queue.PublishAnalysisRequested(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("publish analysis job: %w", err)
	}
	return job, nil
}

func (uc *SubmitAnalysisJobUseCase) Get(ctx context.Context, userID, jobID string) (*domain.AnalysisJob, error) {
	job, err := uc.jobs.GetJobForUser(ctx, userID, jobID)
	if err != nil {
		return nil, fmt.Errorf("get analysis job: %w", err)
	}
	return job, nil
}

func sanitizeFilename(name string) string {
	base := name
	if idx := strings.LastIndexAny(base, `/\`); idx >= 0 {
		base = base[idx+1:]
	}
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(base))
	if base == "" || base == "." || base == ".." {
		return "document"
	}
	return base
}
