package ports

import (
	"context"
	"io"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
)

// InferenceService is the language model boundary.
type InferenceService interface {
	Complete(ctx context.Context, req domain.InferenceRequest) (string, error)
	StreamComplete(ctx context.Context, req domain.InferenceRequest) (TextStream, error)
}

// TextStream yields incremental model output. Recv returns io.EOF at the natural end.
// Close stops the producer; the stream must not be read afterwards.
type TextStream interface {
	Recv() (string, error)
	Close() error
}

// FieldCipher protects stored free text.
type FieldCipher interface {
	Encrypt(plaintext string) (string, error)
	SafeDecrypt(value string) string
}

// BlobSealer protects staged upload bytes.
type BlobSealer interface {
	SealBytes(data []byte) ([]byte, error)
	OpenBytes(sealed []byte) ([]byte, error)
}

// TextExtractor pulls plain text out of a document. Images yield an empty string.
type TextExtractor interface {
	Extract(ctx context.Context, doc domain.UploadedDocument) (string, error)
}

// AnalysisStore persists analysis records. Free-text fields arrive encrypted.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, record *domain.AnalysisRecord) error
	ListAnalysesByUser(ctx context.Context, userID string, limit, offset int) ([]domain.AnalysisRecord, error)
	GetAnalysis(ctx context.Context, userID, id string) (*domain.AnalysisRecord, error)
	LatestAnalysisForSession(ctx context.Context, userID, sessionID string) (*domain.AnalysisRecord, error)
	AttachSession(ctx context.Context, userID, analysisID, sessionID string) error
	CategoryStats(ctx context.Context, userID string) ([]domain.CategoryStat, error)
}

// SessionStore persists chat sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *domain.ChatSession) error
	GetSessionByID(ctx context.Context, id, userID string) (*domain.ChatSession, error)
	CountOpenSessions(ctx context.Context, userID string) (int, error)
	ListSessions(ctx context.Context, userID string, limit, offset int) ([]domain.ChatSession, int, error)
	TouchSession(ctx context.Context, id string) error
	CloseSession(ctx context.Context, id, userID string) error
	DeleteSession(ctx context.Context, id, userID string) error
}

// ChatTurnStore persists chat turns. Content arrives encrypted.
type ChatTurnStore interface {
	SaveChatTurns(ctx context.Context, sessionID string, turns []domain.ChatTurn) error
	ListRecentTurns(ctx context.Context, sessionID string, limit int) ([]domain.ChatTurn, error)
}

// AnalysisJobStore persists queued analysis state.
type AnalysisJobStore interface {
	CreateJob(ctx context.Context, job *domain.AnalysisJob) error
	GetJob(ctx context.Context, id string) (*domain.AnalysisJob, error)
	GetJobForUser(ctx context.Context, userID, id string) (*domain.AnalysisJob, error)
	UpdateJobStatus(ctx context.Context, id string, status domain.JobStatus, analysisID, errMessage string) error
}

// ObjectStorage stages sealed uploads for queued analysis.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes analysis job IDs.
type MessageQueue interface {
	PublishAnalysisRequested(ctx context.Context, jobID string) error
	SubscribeAnalysisRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// PipelineObserver receives pipeline outcomes for metrics.
type PipelineObserver interface {
	ObserveClassification(method domain.ClassificationMethod, category domain.CategoryCode)
	ObserveAnalysis(category domain.CategoryCode, tokens int, truncated bool)
	ObserveSummaryFallback()
	ObservePersistFailure()
}
