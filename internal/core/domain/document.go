package domain

import (
	"strings"
	"time"
)

type MediaType string

const (
	MediaTypeJPEG MediaType = "image/jpeg"
	MediaTypePNG  MediaType = "image/png"
	MediaTypePDF  MediaType = "application/pdf"
)

// ParseMediaType normalises a declared content type. image/jpg is accepted as JPEG.
func ParseMediaType(raw string) (MediaType, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.Index(value, ";"); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	switch value {
	case "image/jpeg", "image/jpg":
		return MediaTypeJPEG, true
	case "image/png":
		return MediaTypePNG, true
	case "application/pdf":
		return MediaTypePDF, true
	default:
		return "", false
	}
}

func (m MediaType) IsImage() bool {
	return m == MediaTypeJPEG || m == MediaTypePNG
}

// UploadedDocument lives for one request and is never stored in raw form.
type UploadedDocument struct {
	Filename  string
	MediaType MediaType
	Data      []byte
}

type ClassificationMethod string

const (
	MethodKeyword   ClassificationMethod = "keyword"
	MethodModel     ClassificationMethod = "model"
	MethodFallback  ClassificationMethod = "fallback"
	MethodNoContent ClassificationMethod = "no_content"
)

const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

type ClassificationResult struct {
	Category   CategoryCode         `json:"category"`
	Confidence float64              `json:"confidence"`
	Reason     string               `json:"reason"`
	Method     ClassificationMethod `json:"method"`
}

func (r ClassificationResult) ConfidenceLabel() string {
	switch {
	case r.Confidence >= 0.85:
		return ConfidenceHigh
	case r.Confidence >= 0.6:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// AnalysisJob tracks a queued analysis. The staged upload is sealed before it reaches storage.
type AnalysisJob struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Filename   string    `json:"filename"`
	MediaType  MediaType `json:"media_type"`
	Model      string    `json:"model,omitempty"`
	StorageKey string    `json:"-"`
	Status     JobStatus `json:"status"`
	AnalysisID string    `json:"analysis_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
