package domain

import "time"

// AnalysisRecord is persisted once per completed analysis.
// Summary and FullText are ciphertext envelopes while crossing the store boundary.
type AnalysisRecord struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	SessionID string       `json:"session_id,omitempty"`
	Category  CategoryCode `json:"category"`
	Model     string       `json:"model"`
	Summary   string       `json:"summary"`
	FullText  string       `json:"full_text,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

type AnalysisEventType string

const (
	AnalysisEventStatus         AnalysisEventType = "status"
	AnalysisEventClassification AnalysisEventType = "classification"
	AnalysisEventChunk          AnalysisEventType = "chunk"
	AnalysisEventInfo           AnalysisEventType = "info"
	AnalysisEventWarning        AnalysisEventType = "warning"
	AnalysisEventComplete       AnalysisEventType = "complete"
	AnalysisEventError          AnalysisEventType = "error"
)

// AnalysisEvent is one entry of the analysis event stream. Payload is JSON-encodable.
type AnalysisEvent struct {
	Type    AnalysisEventType
	Payload any
}

type MessagePayload struct {
	Message string `json:"message"`
}

type ChunkPayload struct {
	Content string `json:"content"`
}

type ClassificationPayload struct {
	Category        CategoryCode         `json:"category"`
	CategoryName    string               `json:"categoryName"`
	Confidence      float64              `json:"confidence"`
	ConfidenceLabel string               `json:"confidenceLabel"`
	Method          ClassificationMethod `json:"method"`
	Reason          string               `json:"reason"`
	CategoryInfo    CategoryDescriptor   `json:"categoryInfo"`
}

type CompletePayload struct {
	AnalysisID     string               `json:"analysisId,omitempty"`
	Analysis       string               `json:"analysis"`
	Summary        string               `json:"summary"`
	Category       CategoryCode         `json:"category"`
	CategoryInfo   CategoryDescriptor   `json:"categoryInfo"`
	Classification ClassificationResult `json:"classification"`
	Model          string               `json:"model"`
	Truncated      bool                 `json:"truncated"`
	FileName       string               `json:"fileName"`
	AnalyzedAt     time.Time            `json:"analyzedAt"`
}

func StatusEvent(message string) AnalysisEvent {
	return AnalysisEvent{Type: AnalysisEventStatus, Payload: MessagePayload{Message: message}}
}

func ErrorEvent(message string) AnalysisEvent {
	return AnalysisEvent{Type: AnalysisEventError, Payload: MessagePayload{Message: message}}
}

// AnalysisInput is one pipeline run. An empty Model selects the configured default.
type AnalysisInput struct {
	UserID    string
	SessionID string
	Model     string
	Document  UploadedDocument
}
