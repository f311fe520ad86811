package ports

import (
	"context"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
)

// AnalysisEventSink receives pipeline events in order. An error aborts the run.
type AnalysisEventSink func(domain.AnalysisEvent) error

// ChatEventSink receives chat events in order. An error aborts the turn.
type ChatEventSink func(domain.ChatEvent) error

// DocumentAnalyzer is the inbound contract for a single streamed analysis.
type DocumentAnalyzer interface {
	Run(ctx context.Context, in domain.AnalysisInput, emit AnalysisEventSink) error
}

// JobProcessor is the inbound contract for queued analysis processing.
type JobProcessor interface {
	ProcessByID(ctx context.Context, jobID string) error
}
