package httpadapter

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/kirillkom/medical-doc-assistant/internal/config"
	"github.com/kirillkom/medical-doc-assistant/internal/core/catalog"
	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
	"github.com/kirillkom/medical-doc-assistant/internal/core/ports"
	"github.com/kirillkom/medical-doc-assistant/internal/core/usecase"
	"github.com/kirillkom/medical-doc-assistant/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/medical-doc-assistant/internal/observability/metrics"
)

const testUserID = "u1"

type analyzerFake struct {
	events []domain.AnalysisEvent
	err    error
	input  domain.AnalysisInput
}

func (f *analyzerFake) Run(_ context.Context, in domain.AnalysisInput, emit ports.AnalysisEventSink) error {
	f.input = in
	for _, event := range f.events {
		if err := emit(event); err != nil {
			return err
		}
	}
	return f.err
}

type jobsFake struct {
	job       *domain.AnalysisJob
	err       error
	submitted domain.UploadedDocument
	model     string
}

func (f *jobsFake) Submit(_ context.Context, userID, model string, doc domain.UploadedDocument) (*domain.AnalysisJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.submitted = doc
	f.model = model
	return &domain.AnalysisJob{ID: "j1", UserID: userID, Filename: doc.Filename, MediaType: doc.MediaType, Status: domain.JobQueued}, nil
}

func (f *jobsFake) Get(context.Context, string, string) (*domain.AnalysisJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.job, nil
}

type historyFake struct {
	records []domain.AnalysisRecord
	stats   []domain.CategoryStat
	err     error
}

func (f *historyFake) ListByUser(_ context.Context, _ string, limit, offset int) ([]domain.AnalysisRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if offset >= len(f.records) {
		return nil, nil
	}
	end := min(offset+limit, len(f.records))
	return f.records[offset:end], nil
}

func (f *historyFake) Get(_ context.Context, _ string, id string) (*domain.AnalysisRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, record := range f.records {
		if record.ID == id {
			return &record, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "get analysis", errors.New("id="+id))
}

func (f *historyFake) CategoryStats(context.Context, string) ([]domain.CategoryStat, error) {
	return f.stats, f.err
}

type sessionsFake struct {
	principal domain.Principal
	created   usecase.CreateSessionInput
	session   *domain.ChatSession
	turns     []domain.ChatTurn
	closed    []string
	deleted   []string
	err       error
}

func (f *sessionsFake) Create(_ context.Context, principal domain.Principal, in usecase.CreateSessionInput) (*domain.ChatSession, error) {
	f.principal = principal
	f.created = in
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ChatSession{ID: "s1", UserID: principal.UserID, Title: in.Title}, nil
}

func (f *sessionsFake) Get(context.Context, string, string) (*domain.ChatSession, error) {
	return f.session, f.err
}

func (f *sessionsFake) List(_ context.Context, _ string, page, limit int) (*domain.SessionPage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SessionPage{Sessions: []domain.ChatSession{}, Page: page, Limit: limit}, nil
}

func (f *sessionsFake) Close(_ context.Context, _ string, sessionID string) error {
	f.closed = append(f.closed, sessionID)
	return f.err
}

func (f *sessionsFake) Delete(_ context.Context, _ string, sessionID string) error {
	f.deleted = append(f.deleted, sessionID)
	return f.err
}

func (f *sessionsFake) History(context.Context, string, string, int) ([]domain.ChatTurn, error) {
	return f.turns, f.err
}

type chatFake struct {
	events []domain.ChatEvent
	err    error
	input  usecase.SendMessageInput
}

func (f *chatFake) Send(_ context.Context, _ domain.Principal, in usecase.SendMessageInput, emit ports.ChatEventSink) error {
	f.input = in
	for _, event := range f.events {
		if err := emit(event); err != nil {
			return err
		}
	}
	return f.err
}

// newTestHandler fills every dependency the test leaves unset.
func newTestHandler(cfg config.Config, deps Dependencies) http.Handler {
	cat := catalog.Default()
	if deps.Analyzer == nil {
		deps.Analyzer = &analyzerFake{}
	}
	if deps.Jobs == nil {
		deps.Jobs = &jobsFake{}
	}
	if deps.History == nil {
		deps.History = &historyFake{}
	}
	if deps.Sessions == nil {
		deps.Sessions = &sessionsFake{}
	}
	if deps.Chat == nil {
		deps.Chat = &chatFake{}
	}
	if deps.Exporter == nil {
		deps.Exporter = xlsx.NewAnalysisExporter(cat)
	}
	if deps.Catalog == nil {
		deps.Catalog = cat
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewHTTPServerMetrics("api")
	}
	return NewRouter(cfg, deps).Handler()
}

func newUserRequest(method, target string, body *bytes.Buffer) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	req.Header.Set(userIDHeader, testUserID)
	return req
}

// multipartUpload builds a request body with a "file" part carrying contentType.
func multipartUpload(t *testing.T, filename, contentType string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart() error = %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &body, writer.FormDataContentType()
}

func scrapeMetrics(t *testing.T, handler http.Handler) string {
	t.Helper()
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("metrics expected 200, got %d", res.Code)
	}
	return res.Body.String()
}
