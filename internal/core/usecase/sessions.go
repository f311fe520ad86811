package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
	"github.com/kirillkom/medical-doc-assistant/internal/core/ports"
)

const (
	DefaultFreeSessionQuota = 3
	maxSessionPageSize      = 50
	defaultSessionTitle     = "New conversation"
)

type CreateSessionInput struct {
	Title      string
	AnalysisID string
}

// SessionService manages chat sessions. The free-tier quota is checked by
// counting open sessions before insert; two concurrent creations may both pass.
type SessionService struct {
	sessions ports.SessionStore
	analyses ports.AnalysisStore
	history  *ChatHistory
	quota    int
	now      func() time.Time
}

func NewSessionService(sessions ports.SessionStore, analyses ports.AnalysisStore, history *ChatHistory, quota int) *SessionService {
	if quota <= 0 {
		quota = DefaultFreeSessionQuota
	}
	return &SessionService{
		sessions: sessions,
		analyses: analyses,
		history:  history,
		quota:    quota,
		now:      time.Now,
	}
}

func (s *SessionService) Create(ctx context.Context, principal domain.Principal, in CreateSessionInput) (*domain.ChatSession, error) {
	if !principal.Privileged {
		open, err := s.sessions.CountOpenSessions(ctx, principal.UserID)
		if err != nil {
			return nil, fmt.Errorf("count open sessions: %w", err)
		}
		if open >= s.quota {
			return nil, domain.WrapError(domain.ErrQuotaExceeded, "create session",
				fmt.Errorf("free tier allows %d open sessions", s.quota))
		}
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = defaultSessionTitle
	}
	now := s.now().UTC()
	session := &domain.ChatSession{
		ID:        uuid.NewString(),
		UserID:    principal.UserID,
		Title:     excerpt(title, 120),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if analysisID := strings.TrimSpace(in.AnalysisID); analysisID != "" {
		if err := s.analyses.AttachSession(ctx, principal.UserID, analysisID, session.ID); err != nil {
			if cleanupErr := s.sessions.DeleteSession(ctx, session.ID, principal.UserID); cleanupErr != nil {
				return nil, fmt.Errorf("attach analysis: %w; remove session: %v", err, cleanupErr)
			}
			return nil, fmt.Errorf("attach analysis: %w", err)
		}
	}
	return session, nil
}

func (s *SessionService) Get(ctx context.Context, userID, sessionID string) (*domain.ChatSession, error) {
	session, err := s.sessions.GetSessionByID(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// List pages sessions by most recent activity. page starts at 1.
func (s *SessionService) List(ctx context.Context, userID string, page, limit int) (*domain.SessionPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > maxSessionPageSize {
		limit = 20
	}
	sessions, total, err := s.sessions.ListSessions(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []domain.ChatSession{}
	}
	return &domain.SessionPage{Sessions: sessions, Page: page, Limit: limit, Total: total}, nil
}

func (s *SessionService) Close(ctx context.Context, userID, sessionID string) error {
	if err := s.sessions.CloseSession(ctx, sessionID, userID); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// Delete removes the session together with its turns and linked analyses.
func (s *SessionService) Delete(ctx context.Context, userID, sessionID string) error {
	if err := s.sessions.DeleteSession(ctx, sessionID, userID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// History returns the session turns in chronological order with decrypted content.
func (s *SessionService) History(ctx context.Context, userID, sessionID string, limit int) ([]domain.ChatTurn, error) {
	if _, err := s.Get(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	return s.history.Recent(ctx, sessionID, limit)
}

// ChatHistory is the encryption boundary for chat turn content.
type ChatHistory struct {
	turns  ports.ChatTurnStore
	cipher ports.FieldCipher
}

func NewChatHistory(turns ports.ChatTurnStore, cipher ports.FieldCipher) *ChatHistory {
	return &ChatHistory{turns: turns, cipher: cipher}
}

func (h *ChatHistory) Append(ctx context.Context, sessionID string, turns ...domain.ChatTurn) error {
	if len(turns) == 0 {
		return errors.New("append chat turns: nothing to save")
	}
	sealed := make([]domain.ChatTurn, len(turns))
	for i, turn := range turns {
		content, err := h.cipher.Encrypt(turn.Content)
		if err != nil {
			return fmt.Errorf("encrypt chat turn: %w", err)
		}
		turn.Content = content
		turn.SessionID = sessionID
		if turn.ID == "" {
			turn.ID = uuid.NewString()
		}
		sealed[i] = turn
	}
	if err := h.turns.SaveChatTurns(ctx, sessionID, sealed); err != nil {
		return fmt.Errorf("save chat turns: %w", err)
	}
	return nil
}

// Recent returns the last limit turns, oldest first.
func (h *ChatHistory) Recent(ctx context.Context, sessionID string, limit int) ([]domain.ChatTurn, error) {
	turns, err := h.turns.ListRecentTurns(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat turns: %w", err)
	}
	for i := range turns {
		turns[i].Content = h.cipher.SafeDecrypt(turns[i].Content)
	}
	return turns, nil
}
