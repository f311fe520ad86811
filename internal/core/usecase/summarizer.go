package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kirillkom/medical-doc-assistant/internal/core/catalog"
	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
	"github.com/kirillkom/medical-doc-assistant/internal/core/ports"
)

const (
	summaryMaxRunes = 100
	summaryEllipsis = "..."
	summaryExcerpt  = 6000
	fallbackClauses = 2
)

var errEmptySummary = errors.New("model returned an empty summary")

var diagnosticClause = regexp.MustCompile(`(?i)(?:진단|소견|의심|확인|diagnosis|finding|suspicion|suspected|confirmation|confirmed)[^.]*\.`)

type Summarizer struct {
	inference ports.InferenceService
	catalog   *catalog.Catalog
	observer  ports.PipelineObserver
}

func NewSummarizer(inference ports.InferenceService, cat *catalog.Catalog, observer ports.PipelineObserver) *Summarizer {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Summarizer{inference: inference, catalog: cat, observer: observer}
}

// Summarize never fails. The pattern fallback runs when the model call errors or returns nothing.
func (s *Summarizer) Summarize(ctx context.Context, fullText string, category domain.CategoryCode, model string) string {
	if strings.TrimSpace(fullText) == "" {
		return s.catalog.FallbackSummary(category)
	}

	prompt := fmt.Sprintf(`Summarise the medical analysis below in 1-2 sentences and at most %d characters.
Cover %s.
Answer with the summary only.

Analysis:
%s`, summaryMaxRunes, s.catalog.SummaryHint(category), excerpt(fullText, summaryExcerpt))

	summary, err := s.inference.Complete(ctx, domain.InferenceRequest{Model: model, Prompt: prompt})
	if err == nil && strings.TrimSpace(summary) == "" {
		// An empty reply is no summary at all; it is counted like a failed call.
		err = errEmptySummary
	}
	if err != nil {
		slog.Warn("summary_fallback", "error", err, "category", category)
		s.observer.ObserveSummaryFallback()
		return s.fallback(fullText, category)
	}
	return truncateSummary(strings.TrimSpace(summary))
}

func (s *Summarizer) fallback(fullText string, category domain.CategoryCode) string {
	matches := diagnosticClause.FindAllString(fullText, fallbackClauses)
	if len(matches) == 0 {
		return s.catalog.FallbackSummary(category)
	}
	for i := range matches {
		matches[i] = strings.TrimSpace(matches[i])
	}
	return capRunes(strings.Join(matches, " "), summaryMaxRunes)
}

// truncateSummary keeps summaries within summaryMaxRunes, marking the cut with an ellipsis.
func truncateSummary(summary string) string {
	runes := []rune(summary)
	if len(runes) <= summaryMaxRunes {
		return summary
	}
	return string(runes[:summaryMaxRunes-len(summaryEllipsis)]) + summaryEllipsis
}

func capRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
