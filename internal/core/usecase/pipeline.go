package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/medical-doc-assistant/internal/core/catalog"
	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
	"github.com/kirillkom/medical-doc-assistant/internal/core/ports"
)

const DefaultMaxUploadBytes = 10 << 20

const (
	analysisFailedMessage = "analysis failed, please try again later"
	persistWarningMessage = "analysis could not be saved; the result below is not stored"
	extractionStatus      = "Extracting document text"
	classificationStatus  = "Classifying document"
	summarizationStatus   = "Summarizing analysis"
)

type PipelineConfig struct {
	DefaultModel   string
	MaxUploadBytes int
}

// AnalysisPipeline sequences extraction, classification, streamed analysis,
// summarisation and persistence for one uploaded document.
type AnalysisPipeline struct {
	extractor  ports.TextExtractor
	classifier *Classifier
	aggregator *StreamingAggregator
	summarizer *Summarizer
	archive    *AnalysisArchive
	catalog    *catalog.Catalog
	observer   ports.PipelineObserver
	cfg        PipelineConfig
	now        func() time.Time
}

var _ ports.DocumentAnalyzer = (*AnalysisPipeline)(nil)

func NewAnalysisPipeline(
	extractor ports.TextExtractor,
	classifier *Classifier,
	aggregator *StreamingAggregator,
	summarizer *Summarizer,
	archive *AnalysisArchive,
	cat *catalog.Catalog,
	observer ports.PipelineObserver,
	cfg PipelineConfig,
) *AnalysisPipeline {
	if observer == nil {
		observer = noopObserver{}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &AnalysisPipeline{
		extractor:  extractor,
		classifier: classifier,
		aggregator: aggregator,
		summarizer: summarizer,
		archive:    archive,
		catalog:    cat,
		observer:   observer,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Run returns input validation errors synchronously without emitting. After
// validation every run ends with exactly one complete or error event, unless
// emit itself fails, in which case the run is abandoned and nothing is stored.
func (p *AnalysisPipeline) Run(ctx context.Context, in domain.AnalysisInput, emit ports.AnalysisEventSink) error {
	if err := p.Validate(in.Document); err != nil {
		return err
	}
	in.Document.MediaType, _ = domain.ParseMediaType(string(in.Document.MediaType))
	model := p.resolveModel(in.Model)

	err := p.run(ctx, in, model, emit)
	var sinkErr *sinkError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &sinkErr):
		return sinkErr.err
	default:
		slog.Error("analysis_failed", "user_id", in.UserID, "model", model, "error", err)
		if emitErr := emit(domain.ErrorEvent(userFacingMessage(err))); emitErr != nil {
			return emitErr
		}
		return err
	}
}

// Validate checks the upload before any work is started.
func (p *AnalysisPipeline) Validate(doc domain.UploadedDocument) error {
	if len(doc.Data) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("file is empty"))
	}
	if len(doc.Data) > p.cfg.MaxUploadBytes {
		return domain.WrapError(domain.ErrInvalidInput, "validate upload",
			fmt.Errorf("file exceeds %d bytes", p.cfg.MaxUploadBytes))
	}
	if _, ok := domain.ParseMediaType(string(doc.MediaType)); !ok {
		return domain.WrapError(domain.ErrUnsupportedMedia, "validate upload",
			fmt.Errorf("media type %q is not one of JPEG, PNG, PDF", doc.MediaType))
	}
	return nil
}

func (p *AnalysisPipeline) run(ctx context.Context, in domain.AnalysisInput, model string, emit ports.AnalysisEventSink) error {
	send := func(event domain.AnalysisEvent) error {
		if err := emit(event); err != nil {
			return &sinkError{err: err}
		}
		return nil
	}

	text, err := p.extractText(ctx, in.Document, send)
	if err != nil {
		return err
	}
	if err := send(domain.StatusEvent(classificationStatus)); err != nil {
		return err
	}

	classification := p.classifier.Classify(ctx, in.Document, text, model)
	p.observer.ObserveClassification(classification.Method, classification.Category)
	descriptor := p.catalog.Descriptor(classification.Category)
	if err := send(domain.AnalysisEvent{
		Type: domain.AnalysisEventClassification,
		Payload: domain.ClassificationPayload{
			Category:        classification.Category,
			CategoryName:    descriptor.Name,
			Confidence:      classification.Confidence,
			ConfidenceLabel: classification.ConfidenceLabel(),
			Method:          classification.Method,
			Reason:          classification.Reason,
			CategoryInfo:    descriptor,
		},
	}); err != nil {
		return err
	}

	if err := send(domain.StatusEvent("Analyzing " + strings.ToLower(descriptor.Name))); err != nil {
		return err
	}
	aggregate, err := p.aggregator.Analyze(ctx, AnalysisRequest{
		Document:      in.Document,
		Category:      classification.Category,
		ExtractedText: text,
		Model:         model,
	}, send)
	if err != nil {
		return err
	}
	p.observer.ObserveAnalysis(classification.Category, aggregate.Tokens, aggregate.Truncated)

	if err := send(domain.StatusEvent(summarizationStatus)); err != nil {
		return err
	}
	summary := p.summarizer.Summarize(ctx, aggregate.FullText, classification.Category, model)
	if err := ctx.Err(); err != nil {
		return &sinkError{err: err}
	}

	analysisID := ""
	record, err := p.archive.Save(ctx, NewAnalysis{
		UserID:    in.UserID,
		SessionID: in.SessionID,
		Category:  classification.Category,
		Model:     model,
		Summary:   summary,
		FullText:  aggregate.FullText,
	})
	if err != nil {
		p.observer.ObservePersistFailure()
		slog.Error("analysis_persist_failed", "user_id", in.UserID, "category", classification.Category, "error", err)
		if err := send(domain.AnalysisEvent{
			Type:    domain.AnalysisEventWarning,
			Payload: domain.MessagePayload{Message: persistWarningMessage},
		}); err != nil {
			return err
		}
	} else {
		analysisID = record.ID
	}

	slog.Info("analysis_completed",
		"analysis_id", analysisID,
		"user_id", in.UserID,
		"category", classification.Category,
		"method", classification.Method,
		"tokens", aggregate.Tokens,
		"truncated", aggregate.Truncated,
	)
	return send(domain.AnalysisEvent{
		Type: domain.AnalysisEventComplete,
		Payload: domain.CompletePayload{
			AnalysisID:     analysisID,
			Analysis:       aggregate.FullText,
			Summary:        summary,
			Category:       classification.Category,
			CategoryInfo:   descriptor,
			Classification: classification,
			Model:          model,
			Truncated:      aggregate.Truncated,
			FileName:       in.Document.Filename,
			AnalyzedAt:     p.now().UTC(),
		},
	})
}

// extractText is best-effort: a PDF without a readable text layer is still classified and analysed.
func (p *AnalysisPipeline) extractText(ctx context.Context, doc domain.UploadedDocument, send ports.AnalysisEventSink) (string, error) {
	if doc.MediaType != domain.MediaTypePDF {
		return "", nil
	}
	if err := send(domain.StatusEvent(extractionStatus)); err != nil {
		return "", err
	}
	text, err := p.extractor.Extract(ctx, doc)
	if err != nil {
		slog.Warn("text_extraction_failed", "filename", doc.Filename, "error", err)
		return "", nil
	}
	return text, nil
}

func (p *AnalysisPipeline) resolveModel(requested string) string {
	if model := strings.TrimSpace(requested); model != "" {
		return model
	}
	return p.cfg.DefaultModel
}

// sinkError marks failures of the caller's event sink, e.g. a closed connection.
type sinkError struct {
	err error
}

func (e *sinkError) Error() string { return "emit event: " + e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }

func userFacingMessage(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "the model service rejected the analysis request"
	case errors.Is(err, context.DeadlineExceeded):
		return "analysis timed out, please try again later"
	default:
		return analysisFailedMessage
	}
}
