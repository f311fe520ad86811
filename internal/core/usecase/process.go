package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
	"github.com/kirillkom/medical-doc-assistant/internal/core/ports"
)

// ProcessAnalysisJobUseCase runs a queued job through the same pipeline as the streaming endpoint.
type ProcessAnalysisJobUseCase struct {
	jobs     ports.AnalysisJobStore
	storage  ports.ObjectStorage
	sealer   ports.BlobSealer
	pipeline ports.DocumentAnalyzer
	lag      func(time.Duration)
	now      func() time.Time
}

var _ ports.JobProcessor = (*ProcessAnalysisJobUseCase)(nil)

func NewProcessAnalysisJobUseCase(
	jobs ports.AnalysisJobStore,
	storage ports.ObjectStorage,
	sealer ports.BlobSealer,
	pipeline ports.DocumentAnalyzer,
) *ProcessAnalysisJobUseCase {
	return &ProcessAnalysisJobUseCase{
		jobs:     jobs,
		storage:  storage,
		sealer:   sealer,
		pipeline: pipeline,
		now:      time.Now,
	}
}

// WithLagObserver reports the delay between job submission and processing start.
func (uc *ProcessAnalysisJobUseCase) WithLagObserver(observe func(time.Duration)) *ProcessAnalysisJobUseCase {
	uc.lag = observe
	return uc
}

func (uc *ProcessAnalysisJobUseCase) ProcessByID(ctx context.Context, jobID string) error {
	job, err := uc.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == domain.JobCompleted || job.Status == domain.JobFailed {
		return nil
	}
	if uc.lag != nil && !job.CreatedAt.IsZero() {
		uc.lag(uc.now().Sub(job.CreatedAt))
	}
	if err := uc.markStatus(ctx, job.ID, domain.JobProcessing, "", ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	analysisID, err := uc.processPipeline(ctx, job)
	uc.discardUpload(ctx, job)
	if err != nil {
		if failErr := uc.markFailed(ctx, job.ID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.markStatus(ctx, job.ID, domain.JobCompleted, analysisID, ""); err != nil {
		return fmt.Errorf("set status=completed: %w", err)
	}
	return nil
}

func (uc *ProcessAnalysisJobUseCase) processPipeline(ctx context.Context, job *domain.AnalysisJob) (string, error) {
	data, err := uc.openUpload(ctx, job)
	if err != nil {
		return "", err
	}

	recorder := &jobEventRecorder{}
	err = uc.pipeline.Run(ctx, domain.AnalysisInput{
		UserID: job.UserID,
		Model:  job.Model,
		Document: domain.UploadedDocument{
			Filename:  job.Filename,
			MediaType: job.MediaType,
			Data:      data,
		},
	}, recorder.record)
	if err != nil {
		return "", fmt.Errorf("run analysis pipeline: %w", err)
	}
	if recorder.warning != "" {
		return "", errors.New(recorder.warning)
	}
	return recorder.analysisID, nil
}

func (uc *ProcessAnalysisJobUseCase) loadJob(ctx context.Context, jobID string) (*domain.AnalysisJob, error) {
	job, err := uc.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("fetch analysis job by id: %w", err)
	}
	return job, nil
}

func (uc *ProcessAnalysisJobUseCase) openUpload(ctx context.Context, job *domain.AnalysisJob) ([]byte, error) {
	reader, err := uc.storage.Open(ctx, job.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("open staged upload: %w", err)
	}
	defer reader.Close()

	sealed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read staged upload: %w", err)
	}
	data, err := uc.sealer.OpenBytes(sealed)
	if err != nil {
		return nil, fmt.Errorf("unseal staged upload: %w", err)
	}
	return data, nil
}

// discardUpload is best-effort; a leftover blob is sealed and can be swept later.
func (uc *ProcessAnalysisJobUseCase) discardUpload(ctx context.Context, job *domain.AnalysisJob) {
	_ = uc.storage.Delete(context.WithoutCancel(ctx), job.StorageKey)
}

func (uc *ProcessAnalysisJobUseCase) markStatus(ctx context.Context, jobID string, status domain.JobStatus, analysisID, errMessage string) error {
	return uc.jobs.UpdateJobStatus(ctx, jobID, status, analysisID, errMessage)
}

func (uc *ProcessAnalysisJobUseCase) markFailed(ctx context.Context, jobID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(context.WithoutCancel(ctx), jobID, domain.JobFailed, "", processErr.Error())
}

// jobEventRecorder keeps what the worker needs from the event stream.
type jobEventRecorder struct {
	analysisID string
	warning    string
}

func (r *jobEventRecorder) record(event domain.AnalysisEvent) error {
	switch payload := event.Payload.(type) {
	case domain.CompletePayload:
		r.analysisID = payload.AnalysisID
	case domain.MessagePayload:
		if event.Type == domain.AnalysisEventWarning {
			r.warning = payload.Message
		}
	}
	return nil
}
