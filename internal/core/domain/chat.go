package domain

import "time"

type Principal struct {
	UserID     string `json:"user_id"`
	Privileged bool   `json:"privileged"`
}

type ChatSession struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Title     string     `json:"title"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (s ChatSession) Open() bool {
	return s.ClosedAt == nil
}

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatTurn content is a ciphertext envelope while crossing the store boundary.
type ChatTurn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Emergency bool      `json:"emergency"`
	CreatedAt time.Time `json:"created_at"`
}

type ChatEventType string

const (
	ChatEventStatus    ChatEventType = "status"
	ChatEventEmergency ChatEventType = "emergency_detected"
	ChatEventChunk     ChatEventType = "chunk"
	ChatEventEnd       ChatEventType = "end"
	ChatEventError     ChatEventType = "error"
)

type ChatEvent struct {
	Type    ChatEventType
	Payload any
}

type ChatEndPayload struct {
	SessionID string `json:"sessionId"`
	Reply     string `json:"reply"`
	Emergency bool   `json:"emergency"`
}

type SessionPage struct {
	Sessions []ChatSession `json:"sessions"`
	Page     int           `json:"page"`
	Limit    int           `json:"limit"`
	Total    int           `json:"total"`
}
