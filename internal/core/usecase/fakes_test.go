package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
	"github.com/kirillkom/medical-doc-assistant/internal/core/ports"
)

// streamFake replays scripted chunks, then err (io.EOF when nil).
type streamFake struct {
	chunks []string
	err    error
	pos    int
	reads  int
	closed bool
	closes int

	closeErr error
}

func (s *streamFake) Recv() (string, error) {
	if s.closed {
		return "", errors.New("recv after close")
	}
	s.reads++
	if s.pos < len(s.chunks) {
		chunk := s.chunks[s.pos]
		s.pos++
		return chunk, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *streamFake) Close() error {
	s.closed = true
	s.closes++
	return s.closeErr
}

type inferenceFake struct {
	mu          sync.Mutex
	completeOut []string
	completeErr error
	stream      *streamFake
	streamErr   error
	completes   []domain.InferenceRequest
	streams     []domain.InferenceRequest
}

func (f *inferenceFake) Complete(_ context.Context, req domain.InferenceRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes = append(f.completes, req)
	if f.completeErr != nil {
		return "", f.completeErr
	}
	if len(f.completeOut) == 0 {
		return "", nil
	}
	out := f.completeOut[0]
	if len(f.completeOut) > 1 {
		f.completeOut = f.completeOut[1:]
	}
	return out, nil
}

func (f *inferenceFake) StreamComplete(_ context.Context, req domain.InferenceRequest) (ports.TextStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams = append(f.streams, req)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	if f.stream == nil {
		f.stream = &streamFake{}
	}
	return f.stream, nil
}

// cipherFake marks ciphertext with a prefix so tests can tell what crossed the store boundary.
type cipherFake struct {
	err error
}

const cipherFakePrefix = "enc:"

func (c cipherFake) Encrypt(plaintext string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	if plaintext == "" {
		return "", nil
	}
	return cipherFakePrefix + plaintext, nil
}

func (c cipherFake) SafeDecrypt(value string) string {
	return strings.TrimPrefix(value, cipherFakePrefix)
}

func (c cipherFake) SealBytes(data []byte) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	return append([]byte(cipherFakePrefix), data...), nil
}

func (c cipherFake) OpenBytes(sealed []byte) ([]byte, error) {
	if !bytes.HasPrefix(sealed, []byte(cipherFakePrefix)) {
		return nil, errors.New("not sealed")
	}
	return bytes.TrimPrefix(sealed, []byte(cipherFakePrefix)), nil
}

type analysisStoreFake struct {
	records   []domain.AnalysisRecord
	saveErr   error
	listErr   error
	attachErr error
	stats     []domain.CategoryStat
}

func (f *analysisStoreFake) SaveAnalysis(_ context.Context, record *domain.AnalysisRecord) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.records = append(f.records, *record)
	return nil
}

func (f *analysisStoreFake) ListAnalysesByUser(_ context.Context, userID string, limit, offset int) ([]domain.AnalysisRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.AnalysisRecord
	for _, r := range f.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *analysisStoreFake) GetAnalysis(_ context.Context, userID, id string) (*domain.AnalysisRecord, error) {
	for _, r := range f.records {
		if r.ID == id && r.UserID == userID {
			copyRecord := r
			return &copyRecord, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "get analysis", errors.New(id))
}

func (f *analysisStoreFake) LatestAnalysisForSession(_ context.Context, userID, sessionID string) (*domain.AnalysisRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var latest *domain.AnalysisRecord
	for i, r := range f.records {
		if r.UserID == userID && r.SessionID == sessionID {
			if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
				latest = &f.records[i]
			}
		}
	}
	if latest == nil {
		return nil, domain.WrapError(domain.ErrNotFound, "session analysis", errors.New(sessionID))
	}
	copyRecord := *latest
	return &copyRecord, nil
}

func (f *analysisStoreFake) AttachSession(_ context.Context, userID, analysisID, sessionID string) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	for i, r := range f.records {
		if r.ID == analysisID && r.UserID == userID {
			f.records[i].SessionID = sessionID
			return nil
		}
	}
	return domain.WrapError(domain.ErrNotFound, "attach session", errors.New(analysisID))
}

func (f *analysisStoreFake) CategoryStats(context.Context, string) ([]domain.CategoryStat, error) {
	return f.stats, nil
}

type sessionStoreFake struct {
	sessions map[string]*domain.ChatSession
	touched  []string
	countErr error
}

func newSessionStoreFake() *sessionStoreFake {
	return &sessionStoreFake{sessions: map[string]*domain.ChatSession{}}
}

func (f *sessionStoreFake) CreateSession(_ context.Context, session *domain.ChatSession) error {
	copySession := *session
	f.sessions[session.ID] = &copySession
	return nil
}

func (f *sessionStoreFake) GetSessionByID(_ context.Context, id, userID string) (*domain.ChatSession, error) {
	session, ok := f.sessions[id]
	if !ok || session.UserID != userID {
		return nil, domain.WrapError(domain.ErrNotFound, "get session", errors.New(id))
	}
	copySession := *session
	return &copySession, nil
}

func (f *sessionStoreFake) CountOpenSessions(_ context.Context, userID string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	n := 0
	for _, s := range f.sessions {
		if s.UserID == userID && s.Open() {
			n++
		}
	}
	return n, nil
}

func (f *sessionStoreFake) ListSessions(_ context.Context, userID string, limit, offset int) ([]domain.ChatSession, int, error) {
	var out []domain.ChatSession
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	total := len(out)
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (f *sessionStoreFake) TouchSession(_ context.Context, id string) error {
	f.touched = append(f.touched, id)
	return nil
}

func (f *sessionStoreFake) CloseSession(_ context.Context, id, userID string) error {
	session, ok := f.sessions[id]
	if !ok || session.UserID != userID {
		return domain.WrapError(domain.ErrNotFound, "close session", errors.New(id))
	}
	now := session.CreatedAt
	session.ClosedAt = &now
	return nil
}

func (f *sessionStoreFake) DeleteSession(_ context.Context, id, userID string) error {
	session, ok := f.sessions[id]
	if !ok || session.UserID != userID {
		return domain.WrapError(domain.ErrNotFound, "delete session", errors.New(id))
	}
	delete(f.sessions, id)
	return nil
}

// turnStoreFake keeps turns in insertion order and returns the newest limit of them oldest first.
type turnStoreFake struct {
	turns   []domain.ChatTurn
	saveErr error
}

func (f *turnStoreFake) SaveChatTurns(_ context.Context, _ string, turns []domain.ChatTurn) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.turns = append(f.turns, turns...)
	return nil
}

func (f *turnStoreFake) ListRecentTurns(_ context.Context, sessionID string, limit int) ([]domain.ChatTurn, error) {
	var out []domain.ChatTurn
	for _, t := range f.turns {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type extractorFake struct {
	text string
	err  error
}

func (f extractorFake) Extract(context.Context, domain.UploadedDocument) (string, error) {
	return f.text, f.err
}

type observerFake struct {
	classifications  []domain.ClassificationMethod
	analyses         int
	summaryFallbacks int
	persistFailures  int
}

func (o *observerFake) ObserveClassification(method domain.ClassificationMethod, _ domain.CategoryCode) {
	o.classifications = append(o.classifications, method)
}
func (o *observerFake) ObserveAnalysis(domain.CategoryCode, int, bool) { o.analyses++ }
func (o *observerFake) ObserveSummaryFallback()                        { o.summaryFallbacks++ }
func (o *observerFake) ObservePersistFailure()                         { o.persistFailures++ }

// analysisEventRecorder collects emitted events; failAt makes the n-th emit (1-based) fail.
type analysisEventRecorder struct {
	events []domain.AnalysisEvent
	failAt int
}

func (r *analysisEventRecorder) emit(event domain.AnalysisEvent) error {
	if r.failAt > 0 && len(r.events)+1 == r.failAt {
		return errors.New("client went away")
	}
	r.events = append(r.events, event)
	return nil
}

func (r *analysisEventRecorder) types() []domain.AnalysisEventType {
	out := make([]domain.AnalysisEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *analysisEventRecorder) last() domain.AnalysisEvent {
	if len(r.events) == 0 {
		return domain.AnalysisEvent{}
	}
	return r.events[len(r.events)-1]
}
