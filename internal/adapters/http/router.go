package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kirillkom/medical-doc-assistant/internal/config"
	"github.com/kirillkom/medical-doc-assistant/internal/core/catalog"
	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
	"github.com/kirillkom/medical-doc-assistant/internal/core/ports"
	"github.com/kirillkom/medical-doc-assistant/internal/core/usecase"
	"github.com/kirillkom/medical-doc-assistant/internal/observability/metrics"
)

type jobService interface {
	Submit(ctx context.Context, userID, model string, doc domain.UploadedDocument) (*domain.AnalysisJob, error)
	Get(ctx context.Context, userID, jobID string) (*domain.AnalysisJob, error)
}

type analysisHistory interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.AnalysisRecord, error)
	Get(ctx context.Context, userID, id string) (*domain.AnalysisRecord, error)
	CategoryStats(ctx context.Context, userID string) ([]domain.CategoryStat, error)
}

type sessionService interface {
	Create(ctx context.Context, principal domain.Principal, in usecase.CreateSessionInput) (*domain.ChatSession, error)
	Get(ctx context.Context, userID, sessionID string) (*domain.ChatSession, error)
	List(ctx context.Context, userID string, page, limit int) (*domain.SessionPage, error)
	Close(ctx context.Context, userID, sessionID string) error
	Delete(ctx context.Context, userID, sessionID string) error
	History(ctx context.Context, userID, sessionID string, limit int) ([]domain.ChatTurn, error)
}

type chatService interface {
	Send(ctx context.Context, principal domain.Principal, in usecase.SendMessageInput, emit ports.ChatEventSink) error
}

type analysisExporter interface {
	Write(w io.Writer, records []domain.AnalysisRecord) error
}

type Dependencies struct {
	Analyzer ports.DocumentAnalyzer
	Jobs     jobService
	History  analysisHistory
	Sessions sessionService
	Chat     chatService
	Exporter analysisExporter
	Catalog  *catalog.Catalog
	Metrics  *metrics.HTTPServerMetrics
}

type Router struct {
	deps           Dependencies
	cfg            config.Config
	maxUploadBytes int
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	if deps.Catalog == nil {
		deps.Catalog = catalog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewHTTPServerMetrics("api")
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = usecase.DefaultMaxUploadBytes
	}
	return &Router{deps: deps, cfg: cfg, maxUploadBytes: maxUpload}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("GET /metrics", rt.deps.Metrics.Handler())

	rt.handleStream(mux, "POST /v1/analyses/stream", rt.streamAnalysis)
	rt.handle(mux, "POST /v1/analysis-jobs", rt.submitAnalysisJob)
	rt.handle(mux, "GET /v1/analysis-jobs/{id}", rt.getAnalysisJob)
	rt.handle(mux, "GET /v1/analyses", rt.listAnalyses)
	rt.handle(mux, "GET /v1/analyses/export.xlsx", rt.exportAnalyses)
	rt.handle(mux, "GET /v1/analyses/{id}", rt.getAnalysis)
	rt.handle(mux, "GET /v1/categories", rt.listCategories)
	rt.handle(mux, "GET /v1/categories/stats", rt.categoryStats)

	rt.handle(mux, "POST /v1/chat/sessions", rt.createSession)
	rt.handle(mux, "GET /v1/chat/sessions", rt.listSessions)
	rt.handle(mux, "GET /v1/chat/sessions/{id}", rt.getSession)
	rt.handle(mux, "POST /v1/chat/sessions/{id}/close", rt.closeSession)
	rt.handle(mux, "DELETE /v1/chat/sessions/{id}", rt.deleteSession)
	rt.handle(mux, "GET /v1/chat/sessions/{id}/turns", rt.listTurns)
	rt.handleStream(mux, "POST /v1/chat/sessions/{id}/messages", rt.sendMessage)

	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = rt.deps.Metrics.Middleware(handler)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, authMiddleware(h, rt.cfg.APIKey))
}

func (rt *Router) handleStream(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, authMiddleware(
		backpressureMiddleware(h, rt.cfg.APIMaxConcurrentStreams, rt.cfg.APIBackpressureWait),
		rt.cfg.APIKey,
	))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// principal is always present behind authMiddleware.
func principal(r *http.Request) domain.Principal {
	p, _ := principalFromContext(r.Context())
	return p
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
		if status == http.StatusInternalServerError {
			message = "internal error"
		}
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	body := http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("invalid json"))
	}
	return nil
}

// queryInt returns fallback for an absent parameter and an invalid-input error for a malformed one.
func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "parse query", errors.New(key+" must be a non-negative integer"))
	}
	return n, nil
}
