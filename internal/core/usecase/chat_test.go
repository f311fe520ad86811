package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/medical-doc-assistant/internal/core/catalog"
	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
	"github.com/kirillkom/medical-doc-assistant/internal/core/emergency"
)

type chatFixture struct {
	inference *inferenceFake
	sessions  *sessionStoreFake
	turns     *turnStoreFake
	analyses  *analysisStoreFake
	service   *ChatService
}

func newChatFixture(stream *streamFake) *chatFixture {
	f := &chatFixture{
		inference: &inferenceFake{stream: stream},
		sessions:  newSessionStoreFake(),
		turns:     &turnStoreFake{},
		analyses:  &analysisStoreFake{},
	}
	f.sessions.sessions["s1"] = &domain.ChatSession{ID: "s1", UserID: "u1", CreatedAt: time.Now()}
	archive := NewAnalysisArchive(f.analyses, cipherFake{})
	f.service = NewChatService(
		f.sessions,
		NewChatHistory(f.turns, cipherFake{}),
		NewContextAssembler(archive, catalog.Default(), 5),
		f.inference,
		ChatConfig{DefaultModel: "llama"},
	)
	return f
}

type chatRecorder struct {
	events []domain.ChatEvent
}

func (r *chatRecorder) emit(event domain.ChatEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *chatRecorder) types() []domain.ChatEventType {
	out := make([]domain.ChatEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func TestSendStreamsReplyAndPersistsTurns(t *testing.T) {
	f := newChatFixture(&streamFake{chunks: []string{"Take it ", "with food."}})
	recorder := &chatRecorder{}

	err := f.service.Send(context.Background(), domain.Principal{UserID: "u1"}, SendMessageInput{SessionID: "s1", Message: "  How do I take amoxicillin?  "}, recorder.emit)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	want := []domain.ChatEventType{domain.ChatEventStatus, domain.ChatEventChunk, domain.ChatEventChunk, domain.ChatEventEnd}
	got := recorder.types()
	if strings.Join(toStrings(got), ",") != strings.Join(toStrings(want), ",") {
		t.Fatalf("expected %v, got %v", want, got)
	}
	end := recorder.events[len(recorder.events)-1].Payload.(domain.ChatEndPayload)
	if end.Reply != "Take it with food." || end.Emergency {
		t.Fatalf("unexpected end payload %+v", end)
	}

	if len(f.turns.turns) != 2 {
		t.Fatalf("expected two stored turns, got %d", len(f.turns.turns))
	}
	if f.turns.turns[0].Content != cipherFakePrefix+"How do I take amoxicillin?" {
		t.Fatalf("expected encrypted trimmed user turn, got %q", f.turns.turns[0].Content)
	}
	if len(f.sessions.touched) != 1 {
		t.Fatalf("expected session touch")
	}
	if !strings.HasSuffix(f.inference.streams[0].Prompt, "User: How do I take amoxicillin?\n\nAssistant:") {
		t.Fatalf("unexpected prompt %q", f.inference.streams[0].Prompt)
	}
}

func TestSendEmergencyAddsDirective(t *testing.T) {
	f := newChatFixture(&streamFake{chunks: []string{"Call 119 now."}})
	recorder := &chatRecorder{}

	err := f.service.Send(context.Background(), domain.Principal{UserID: "u1"}, SendMessageInput{SessionID: "s1", Message: "I have severe chest pain"}, recorder.emit)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if recorder.events[1].Type != domain.ChatEventEmergency {
		t.Fatalf("expected emergency event before reply, got %v", recorder.types())
	}
	if !strings.Contains(f.inference.streams[0].System, emergency.Directive) {
		t.Fatalf("expected emergency directive in system prompt")
	}
	if !f.turns.turns[0].Emergency {
		t.Fatalf("expected user turn flagged")
	}
}

func TestSendIncludesHistoryOldestFirst(t *testing.T) {
	f := newChatFixture(&streamFake{chunks: []string{"ok"}})
	f.turns.turns = []domain.ChatTurn{
		{SessionID: "s1", Role: domain.RoleUser, Content: cipherFakePrefix + "first question"},
		{SessionID: "s1", Role: domain.RoleAssistant, Content: cipherFakePrefix + "first answer"},
	}

	if err := f.service.Send(context.Background(), domain.Principal{UserID: "u1"}, SendMessageInput{SessionID: "s1", Message: "second"}, (&chatRecorder{}).emit); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	prompt := f.inference.streams[0].Prompt
	first := strings.Index(prompt, "User: first question")
	answer := strings.Index(prompt, "Assistant: first answer")
	second := strings.Index(prompt, "User: second")
	if first < 0 || answer < first || second < answer {
		t.Fatalf("expected chronological transcript, got %q", prompt)
	}
}

func TestSendPersonalizesWithAnalyses(t *testing.T) {
	f := newChatFixture(&streamFake{chunks: []string{"ok"}})
	f.analyses.records = []domain.AnalysisRecord{{
		ID: "a1", UserID: "u1", Category: domain.CategoryLabResult,
		Summary: cipherFakePrefix + "LDL cholesterol elevated", CreatedAt: time.Now(),
	}}

	if err := f.service.Send(context.Background(), domain.Principal{UserID: "u1"}, SendMessageInput{SessionID: "s1", Message: "what about my cholesterol?"}, (&chatRecorder{}).emit); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	system := f.inference.streams[0].System
	if !strings.HasPrefix(system, chatSystemPrompt) || !strings.Contains(system, "LDL cholesterol elevated") {
		t.Fatalf("expected recent analysis in system prompt, got %q", system)
	}
}

func TestSendRejectsInvalidInput(t *testing.T) {
	f := newChatFixture(&streamFake{})
	recorder := &chatRecorder{}
	ctx := context.Background()
	user := domain.Principal{UserID: "u1"}

	if err := f.service.Send(ctx, user, SendMessageInput{SessionID: "s1", Message: "   "}, recorder.emit); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank message, got %v", err)
	}
	if err := f.service.Send(ctx, user, SendMessageInput{SessionID: "s1", Message: strings.Repeat("a", DefaultMaxMessageRunes+1)}, recorder.emit); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for long message, got %v", err)
	}
	if err := f.service.Send(ctx, domain.Principal{UserID: "other"}, SendMessageInput{SessionID: "s1", Message: "hi"}, recorder.emit); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for foreign session, got %v", err)
	}

	closedAt := time.Now()
	f.sessions.sessions["s1"].ClosedAt = &closedAt
	if err := f.service.Send(ctx, user, SendMessageInput{SessionID: "s1", Message: "hi"}, recorder.emit); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for closed session, got %v", err)
	}
	if len(recorder.events) != 0 {
		t.Fatalf("expected no events, got %v", recorder.types())
	}
}

func TestSendModelFailureEmitsError(t *testing.T) {
	f := newChatFixture(nil)
	f.inference.streamErr = errors.New("ollama down")
	recorder := &chatRecorder{}

	err := f.service.Send(context.Background(), domain.Principal{UserID: "u1"}, SendMessageInput{SessionID: "s1", Message: "hi"}, recorder.emit)
	if err == nil {
		t.Fatalf("expected error")
	}
	if recorder.events[len(recorder.events)-1].Type != domain.ChatEventError {
		t.Fatalf("expected trailing error event, got %v", recorder.types())
	}
	if len(f.turns.turns) != 0 {
		t.Fatalf("expected no turns stored on failure")
	}
}

func toStrings(types []domain.ChatEventType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
