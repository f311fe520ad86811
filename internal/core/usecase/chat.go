package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
	"github.com/kirillkom/medical-doc-assistant/internal/core/emergency"
	"github.com/kirillkom/medical-doc-assistant/internal/core/ports"
)

const (
	DefaultChatHistoryTurns = 20
	DefaultMaxMessageRunes  = 2000
)

const chatSystemPrompt = `You are a friendly medical information assistant.
Explain medical documents, test results and medicines in plain language.
You are not a doctor: do not diagnose, do not change prescriptions, and recommend seeing a physician when symptoms are serious or persistent.
Answer in the language the user writes in.`

type ChatConfig struct {
	DefaultModel    string
	HistoryTurns    int
	MaxMessageRunes int
}

type SendMessageInput struct {
	SessionID string
	Message   string
	Model     string
}

// ChatService runs one chat turn: emergency check, context assembly, streamed reply, persistence.
type ChatService struct {
	sessions  ports.SessionStore
	history   *ChatHistory
	assembler *ContextAssembler
	inference ports.InferenceService
	cfg       ChatConfig
	now       func() time.Time
}

func NewChatService(
	sessions ports.SessionStore,
	history *ChatHistory,
	assembler *ContextAssembler,
	inference ports.InferenceService,
	cfg ChatConfig,
) *ChatService {
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = DefaultChatHistoryTurns
	}
	if cfg.MaxMessageRunes <= 0 {
		cfg.MaxMessageRunes = DefaultMaxMessageRunes
	}
	return &ChatService{
		sessions:  sessions,
		history:   history,
		assembler: assembler,
		inference: inference,
		cfg:       cfg,
		now:       time.Now,
	}
}

// ValidateMessage trims the message and enforces the length limit.
func (s *ChatService) ValidateMessage(raw string) (string, error) {
	message := strings.TrimSpace(raw)
	if message == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "validate message", errors.New("message is empty"))
	}
	if utf8.RuneCountInString(message) > s.cfg.MaxMessageRunes {
		return "", domain.WrapError(domain.ErrInvalidInput, "validate message",
			fmt.Errorf("message exceeds %d characters", s.cfg.MaxMessageRunes))
	}
	return message, nil
}

// Send returns validation and session lookup errors synchronously. Once streaming
// starts, failures are reported as an error event.
func (s *ChatService) Send(ctx context.Context, principal domain.Principal, in SendMessageInput, emit ports.ChatEventSink) error {
	message, err := s.ValidateMessage(in.Message)
	if err != nil {
		return err
	}
	session, err := s.sessions.GetSessionByID(ctx, in.SessionID, principal.UserID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !session.Open() {
		return domain.WrapError(domain.ErrInvalidInput, "send message", errors.New("session is closed"))
	}

	model := strings.TrimSpace(in.Model)
	if model == "" {
		model = s.cfg.DefaultModel
	}

	reply, flagged, err := s.converse(ctx, principal.UserID, session.ID, message, model, emit)
	if err != nil {
		var sinkErr *sinkError
		if errors.As(err, &sinkErr) {
			return sinkErr.err
		}
		slog.Error("chat_turn_failed", "session_id", session.ID, "model", model, "error", err)
		if emitErr := emit(domain.ChatEvent{
			Type:    domain.ChatEventError,
			Payload: domain.MessagePayload{Message: "the assistant could not answer, please try again"},
		}); emitErr != nil {
			return emitErr
		}
		return err
	}

	s.persistTurn(ctx, session.ID, message, reply, flagged)
	return emit(domain.ChatEvent{
		Type:    domain.ChatEventEnd,
		Payload: domain.ChatEndPayload{SessionID: session.ID, Reply: reply, Emergency: flagged},
	})
}

func (s *ChatService) converse(ctx context.Context, userID, sessionID, message, model string, emit ports.ChatEventSink) (string, bool, error) {
	send := func(event domain.ChatEvent) error {
		if err := emit(event); err != nil {
			return &sinkError{err: err}
		}
		return nil
	}

	if err := send(domain.ChatEvent{
		Type:    domain.ChatEventStatus,
		Payload: domain.MessagePayload{Message: "Preparing answer"},
	}); err != nil {
		return "", false, err
	}

	system := chatSystemPrompt
	matches := emergency.Matches(message)
	flagged := len(matches) > 0
	if flagged {
		slog.Warn("emergency_keywords_detected", "session_id", sessionID, "matches", len(matches))
		system += "\n\n" + emergency.Directive
		if err := send(domain.ChatEvent{
			Type:    domain.ChatEventEmergency,
			Payload: domain.MessagePayload{Message: "Urgent symptoms mentioned. If this is an emergency, call 119 / 911 now."},
		}); err != nil {
			return "", false, err
		}
	}

	turns, err := s.history.Recent(ctx, sessionID, s.cfg.HistoryTurns)
	if err != nil {
		slog.Warn("chat_history_unavailable", "session_id", sessionID, "error", err)
		turns = nil
	}
	system = s.personalize(ctx, userID, system, sessionID)

	stream, err := s.inference.StreamComplete(ctx, domain.InferenceRequest{
		Model:  model,
		System: system,
		Prompt: renderTranscript(turns, message),
	})
	if err != nil {
		return "", flagged, fmt.Errorf("open chat stream: %w", err)
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", flagged, fmt.Errorf("read chat stream: %w", err)
		}
		if chunk == "" {
			continue
		}
		reply.WriteString(chunk)
		if err := send(domain.ChatEvent{
			Type:    domain.ChatEventChunk,
			Payload: domain.ChunkPayload{Content: chunk},
		}); err != nil {
			return "", flagged, err
		}
	}
	return reply.String(), flagged, nil
}

// personalize prefers the analysis linked to the session and falls back to the
// user's recent analyses for sessions opened without one.
func (s *ChatService) personalize(ctx context.Context, userID, system, sessionID string) string {
	if scoped := s.assembler.BuildContext(ctx, userID, system, sessionID); scoped != system {
		return scoped
	}
	return s.assembler.BuildContext(ctx, userID, system, "")
}

// persistTurn is best-effort; the reply was already delivered.
func (s *ChatService) persistTurn(ctx context.Context, sessionID, message, reply string, flagged bool) {
	ctx = context.WithoutCancel(ctx)
	now := s.now().UTC()
	if err := s.history.Append(ctx, sessionID,
		domain.ChatTurn{Role: domain.RoleUser, Content: message, Emergency: flagged, CreatedAt: now},
		domain.ChatTurn{Role: domain.RoleAssistant, Content: reply, CreatedAt: now.Add(time.Millisecond)},
	); err != nil {
		slog.Error("chat_turn_persist_failed", "session_id", sessionID, "error", err)
		return
	}
	if err := s.sessions.TouchSession(ctx, sessionID); err != nil {
		slog.Warn("chat_session_touch_failed", "session_id", sessionID, "error", err)
	}
}

func renderTranscript(turns []domain.ChatTurn, message string) string {
	var b strings.Builder
	for _, turn := range turns {
		switch turn.Role {
		case domain.RoleUser:
			b.WriteString("User: ")
		default:
			b.WriteString("Assistant: ")
		}
		b.WriteString(turn.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("User: ")
	b.WriteString(message)
	b.WriteString("\n\nAssistant:")
	return b.String()
}
