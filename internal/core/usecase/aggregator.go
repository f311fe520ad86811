package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kirillkom/medical-doc-assistant/internal/core/catalog"
	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
	"github.com/kirillkom/medical-doc-assistant/internal/core/ports"
)

const DefaultTokenBudget = 4000

const truncationNotice = "token budget reached; analysis truncated"

type AnalysisRequest struct {
	Document      domain.UploadedDocument
	Category      domain.CategoryCode
	ExtractedText string
	Model         string
}

type AggregateResult struct {
	FullText  string
	Tokens    int
	Chunks    int
	Truncated bool
}

// StreamingAggregator runs the category prompt as a stream and accumulates it under a token budget.
type StreamingAggregator struct {
	inference ports.InferenceService
	catalog   *catalog.Catalog
	budget    int
}

func NewStreamingAggregator(inference ports.InferenceService, cat *catalog.Catalog, budget int) *StreamingAggregator {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	return &StreamingAggregator{inference: inference, catalog: cat, budget: budget}
}

// Analyze forwards every chunk to emit in arrival order. When the running word
// estimate reaches the budget it closes the stream and emits an info event.
// The returned text is the canonical full text, truncated or not.
func (a *StreamingAggregator) Analyze(ctx context.Context, req AnalysisRequest, emit ports.AnalysisEventSink) (AggregateResult, error) {
	stream, err := a.inference.StreamComplete(ctx, a.buildRequest(req))
	if err != nil {
		return AggregateResult{}, fmt.Errorf("open analysis stream: %w", err)
	}
	defer stream.Close()

	var (
		out AggregateResult
		acc strings.Builder
	)
	for out.Tokens < a.budget {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return AggregateResult{}, fmt.Errorf("read analysis stream: %w", err)
		}
		if chunk == "" {
			continue
		}

		acc.WriteString(chunk)
		out.Tokens += len(strings.Fields(chunk))
		out.Chunks++
		if err := emit(domain.AnalysisEvent{
			Type:    domain.AnalysisEventChunk,
			Payload: domain.ChunkPayload{Content: chunk},
		}); err != nil {
			return AggregateResult{}, fmt.Errorf("emit analysis chunk: %w", err)
		}
	}

	if out.Tokens >= a.budget {
		out.Truncated = true
		// Closing now stops the model from generating past the budget.
		if err := stream.Close(); err != nil {
			slog.Warn("analysis_stream_close_failed", "error", err, "category", req.Category)
		}
		if err := emit(domain.AnalysisEvent{
			Type:    domain.AnalysisEventInfo,
			Payload: domain.MessagePayload{Message: truncationNotice},
		}); err != nil {
			return AggregateResult{}, fmt.Errorf("emit truncation notice: %w", err)
		}
	}

	out.FullText = acc.String()
	return out, nil
}

func (a *StreamingAggregator) buildRequest(req AnalysisRequest) domain.InferenceRequest {
	out := domain.InferenceRequest{
		Model:  req.Model,
		System: a.catalog.PromptFor(req.Category).Render(),
	}

	descriptor := a.catalog.Descriptor(req.Category)
	switch {
	case req.Document.MediaType.IsImage():
		out.Prompt = fmt.Sprintf("Analyse the attached %s.", strings.ToLower(descriptor.Name))
		out.Images = []domain.Image{{MediaType: req.Document.MediaType, Data: req.Document.Data}}
	case strings.TrimSpace(req.ExtractedText) != "":
		out.Prompt = fmt.Sprintf("Analyse the following %s.\n\n%s", strings.ToLower(descriptor.Name), req.ExtractedText)
	default:
		out.Prompt = fmt.Sprintf("The uploaded %s %q has no readable text. Explain what information such a document usually contains and what the patient should check.",
			strings.ToLower(descriptor.Name), req.Document.Filename)
	}
	return out
}
