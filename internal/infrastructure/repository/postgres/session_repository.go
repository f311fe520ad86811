package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
)

// SessionRepository stores chat sessions and their turns.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) CreateSession(ctx context.Context, session *domain.ChatSession) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO chat_sessions (id, user_id, title, closed_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, session.ID, session.UserID, session.Title, session.ClosedAt, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert chat session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetSessionByID(ctx context.Context, id, userID string) (*domain.ChatSession, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, title, closed_at, created_at, updated_at
FROM chat_sessions
WHERE id = $1 AND user_id = $2
`, id, userID)

	var session domain.ChatSession
	var closedAt sql.NullTime
	if err := row.Scan(&session.ID, &session.UserID, &session.Title, &closedAt, &session.CreatedAt, &session.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get chat session", fmt.Errorf("session %s", id))
		}
		return nil, fmt.Errorf("scan chat session: %w", err)
	}
	if closedAt.Valid {
		session.ClosedAt = &closedAt.Time
	}
	return &session, nil
}

func (r *SessionRepository) CountOpenSessions(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM chat_sessions
WHERE user_id = $1 AND closed_at IS NULL
`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open sessions: %w", err)
	}
	return n, nil
}

func (r *SessionRepository) ListSessions(ctx context.Context, userID string, limit, offset int) ([]domain.ChatSession, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_sessions WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count chat sessions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, title, closed_at, created_at, updated_at
FROM chat_sessions
WHERE user_id = $1
ORDER BY updated_at DESC
LIMIT $2 OFFSET $3
`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list chat sessions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChatSession, 0, limit)
	for rows.Next() {
		var session domain.ChatSession
		var closedAt sql.NullTime
		if err := rows.Scan(&session.ID, &session.UserID, &session.Title, &closedAt, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan chat session: %w", err)
		}
		if closedAt.Valid {
			session.ClosedAt = &closedAt.Time
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate chat sessions: %w", err)
	}
	return out, total, nil
}

func (r *SessionRepository) TouchSession(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = $2 WHERE id = $1`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("touch chat session: %w", err)
	}
	return nil
}

// CloseSession is idempotent for an already closed session.
func (r *SessionRepository) CloseSession(ctx context.Context, id, userID string) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE chat_sessions
SET closed_at = COALESCE(closed_at, $3), updated_at = $3
WHERE id = $1 AND user_id = $2
`, id, userID, now)
	if err != nil {
		return fmt.Errorf("close chat session: %w", err)
	}
	return requireAffected(res, "close chat session", id)
}

// DeleteSession removes the session; turns and linked analyses go with it via ON DELETE CASCADE.
func (r *SessionRepository) DeleteSession(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete chat session: %w", err)
	}
	return requireAffected(res, "delete chat session", id)
}

func (r *SessionRepository) SaveChatTurns(ctx context.Context, sessionID string, turns []domain.ChatTurn) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chat turn tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, turn := range turns {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO chat_turns (id, session_id, role, content, emergency, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, turn.ID, sessionID, string(turn.Role), turn.Content, turn.Emergency, turn.CreatedAt); err != nil {
			return fmt.Errorf("insert chat turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chat turns: %w", err)
	}
	return nil
}

func (r *SessionRepository) ListRecentTurns(ctx context.Context, sessionID string, limit int) ([]domain.ChatTurn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, session_id, role, content, emergency, created_at
FROM chat_turns
WHERE session_id = $1
ORDER BY created_at DESC
LIMIT $2
`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent chat turns: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChatTurn, 0, limit)
	for rows.Next() {
		var turn domain.ChatTurn
		var role string
		if err := rows.Scan(&turn.ID, &turn.SessionID, &role, &turn.Content, &turn.Emergency, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat turn: %w", err)
		}
		turn.Role = domain.ChatRole(role)
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat turns: %w", err)
	}

	// Returned in descending order from SQL; reverse to keep chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func requireAffected(res sql.Result, op, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, op, fmt.Errorf("session %s", id))
	}
	return nil
}
