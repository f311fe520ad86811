package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/medical-doc-assistant/internal/core/catalog"
	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
)

const DefaultRecentAnalyses = 5

const contextUsageRules = `Use these rules for the records above:
- Refer to the existing analyses naturally when they are relevant to the question.
- Never issue a new diagnosis or a new drug recommendation based on them.
- When records conflict, prefer the most recent one.`

type analysisReader interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.AnalysisRecord, error)
	ForSession(ctx context.Context, userID, sessionID string) (*domain.AnalysisRecord, error)
}

// ContextAssembler appends the user's prior analyses to a chat system prompt.
// Personalisation is best-effort: any retrieval failure yields the base prompt.
type ContextAssembler struct {
	analyses analysisReader
	catalog  *catalog.Catalog
	recent   int
}

func NewContextAssembler(analyses analysisReader, cat *catalog.Catalog, recent int) *ContextAssembler {
	if recent <= 0 {
		recent = DefaultRecentAnalyses
	}
	return &ContextAssembler{analyses: analyses, catalog: cat, recent: recent}
}

// BuildContext scopes to the session's linked analysis when sessionID is set,
// otherwise to the user's most recent analyses.
func (a *ContextAssembler) BuildContext(ctx context.Context, userID, basePrompt, sessionID string) string {
	if sessionID != "" {
		return a.forSession(ctx, userID, basePrompt, sessionID)
	}
	return a.forUser(ctx, userID, basePrompt)
}

func (a *ContextAssembler) forSession(ctx context.Context, userID, basePrompt, sessionID string) string {
	record, err := a.analyses.ForSession(ctx, userID, sessionID)
	if err != nil {
		if !domain.IsKind(err, domain.ErrNotFound) {
			slog.Warn("context_assembly_degraded", "scope", "session", "session_id", sessionID, "error", err)
		}
		return basePrompt
	}

	var b strings.Builder
	b.WriteString("The user opened this conversation about the following analysis:\n")
	a.writeRecord(&b, 1, *record)
	if record.FullText != "" {
		b.WriteString("\nFull analysis:\n")
		b.WriteString(excerpt(record.FullText, 4000))
		b.WriteByte('\n')
	}
	return appendContext(basePrompt, b.String())
}

func (a *ContextAssembler) forUser(ctx context.Context, userID, basePrompt string) string {
	records, err := a.analyses.ListByUser(ctx, userID, a.recent, 0)
	if err != nil {
		slog.Warn("context_assembly_degraded", "scope", "user", "error", err)
		return basePrompt
	}
	if len(records) == 0 {
		return basePrompt
	}

	var b strings.Builder
	b.WriteString("The user's most recent medical document analyses, newest first:\n")
	for i, record := range records {
		a.writeRecord(&b, i+1, record)
	}
	return appendContext(basePrompt, b.String())
}

func (a *ContextAssembler) writeRecord(b *strings.Builder, n int, record domain.AnalysisRecord) {
	fmt.Fprintf(b, "%d. [%s] %s: %s\n",
		n,
		record.CreatedAt.Format("2006-01-02"),
		a.catalog.Descriptor(record.Category).Name,
		strings.TrimSpace(record.Summary),
	)
}

func appendContext(basePrompt, rendered string) string {
	return basePrompt + "\n\n" + rendered + "\n" + contextUsageRules
}
