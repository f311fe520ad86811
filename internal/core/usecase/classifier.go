package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kirillkom/medical-doc-assistant/internal/core/catalog"
	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
	"github.com/kirillkom/medical-doc-assistant/internal/core/ports"
)

const (
	keywordMinScore       = 2
	classificationExcerpt = 2000

	confidenceModel    = 0.9
	confidenceKeyword  = 0.7
	confidenceFallback = 0.3
)

// Classifier decides the category of an uploaded document. It never fails:
// every error path ends in domain.CategoryOther.
type Classifier struct {
	inference ports.InferenceService
	catalog   *catalog.Catalog
}

func NewClassifier(inference ports.InferenceService, cat *catalog.Catalog) *Classifier {
	return &Classifier{inference: inference, catalog: cat}
}

func (c *Classifier) Classify(ctx context.Context, doc domain.UploadedDocument, extractedText, model string) domain.ClassificationResult {
	if doc.MediaType.IsImage() {
		return c.classifyWithModel(ctx, model, "Classify the attached document image.", []domain.Image{{
			MediaType: doc.MediaType,
			Data:      doc.Data,
		}})
	}

	if strings.TrimSpace(extractedText) != "" {
		if result, ok := c.classifyByKeywords(extractedText); ok {
			return result
		}
		return c.classifyWithModel(ctx, model, "Document text:\n"+excerpt(extractedText, classificationExcerpt), nil)
	}

	// A filename alone is not evidence; the model is not asked to guess from it.
	return domain.ClassificationResult{
		Category:   domain.CategoryOther,
		Confidence: confidenceFallback,
		Reason:     "no extractable text",
		Method:     domain.MethodNoContent,
	}
}

type keywordScore struct {
	category domain.CategoryCode
	score    int
	matched  []string
}

// classifyByKeywords accepts a category only when it scores at least keywordMinScore
// and strictly more than every other category. The score is the number of distinct
// keywords present; repeats do not count.
func (c *Classifier) classifyByKeywords(text string) (domain.ClassificationResult, bool) {
	normalized := strings.ToLower(text)

	var scores []keywordScore
	for _, code := range domain.Categories() {
		var found []string
		for _, kw := range c.catalog.Keywords(code) {
			if strings.Contains(normalized, kw) {
				found = append(found, kw)
			}
		}
		if matched := outermostKeywords(found); len(matched) > 0 {
			scores = append(scores, keywordScore{category: code, score: len(matched), matched: matched})
		}
	}
	if len(scores) == 0 {
		return domain.ClassificationResult{}, false
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	best := scores[0]
	if best.score < keywordMinScore {
		return domain.ClassificationResult{}, false
	}
	if len(scores) > 1 && scores[1].score == best.score {
		return domain.ClassificationResult{}, false
	}

	return domain.ClassificationResult{
		Category:   best.category,
		Confidence: confidenceKeyword,
		Reason:     fmt.Sprintf("matched %d keywords: %s", best.score, strings.Join(best.matched, ", ")),
		Method:     domain.MethodKeyword,
	}, true
}

// outermostKeywords drops keywords that only matched as part of a longer
// matched keyword, e.g. 차트 inside 진료차트.
func outermostKeywords(found []string) []string {
	var out []string
	for i, kw := range found {
		nested := false
		for j, other := range found {
			if i != j && len(other) > len(kw) && strings.Contains(other, kw) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, kw)
		}
	}
	return out
}

func (c *Classifier) classifyWithModel(ctx context.Context, model, prompt string, images []domain.Image) domain.ClassificationResult {
	raw, err := c.inference.Complete(ctx, domain.InferenceRequest{
		Model:  model,
		System: c.catalog.ClassificationInstruction(),
		Prompt: prompt,
		Images: images,
	})
	if err != nil {
		slog.Warn("classification_fallback", "error", err, "model", model)
		return domain.ClassificationResult{
			Category:   domain.CategoryOther,
			Confidence: confidenceFallback,
			Reason:     "classification unavailable",
			Method:     domain.MethodFallback,
		}
	}

	code, ok := parseCategoryResponse(raw)
	if !ok {
		return domain.ClassificationResult{
			Category:   domain.CategoryOther,
			Confidence: confidenceFallback,
			Reason:     "unrecognized model response",
			Method:     domain.MethodModel,
		}
	}
	return domain.ClassificationResult{
		Category:   code,
		Confidence: confidenceModel,
		Reason:     "model classification",
		Method:     domain.MethodModel,
	}
}

// parseCategoryResponse accepts a single category code, tolerating quotes,
// trailing punctuation and surrounding whitespace.
func parseCategoryResponse(raw string) (domain.CategoryCode, bool) {
	token := strings.ToLower(strings.TrimSpace(raw))
	token = strings.Trim(token, "\"'`.,;:!* \n\t")
	return domain.ParseCategoryCode(token)
}

func excerpt(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes])
}
