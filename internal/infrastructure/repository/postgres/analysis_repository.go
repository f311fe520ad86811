package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
)

// AnalysisRepository stores analysis records. Summary and full text arrive as ciphertext.
type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

func (r *AnalysisRepository) SaveAnalysis(ctx context.Context, record *domain.AnalysisRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO analyses (id, user_id, session_id, category, model, summary, full_text, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		record.ID, record.UserID, nullableString(record.SessionID), string(record.Category),
		record.Model, record.Summary, record.FullText, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// ListAnalysesByUser returns records newest first without the full text column.
func (r *AnalysisRepository) ListAnalysesByUser(ctx context.Context, userID string, limit, offset int) ([]domain.AnalysisRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, COALESCE(session_id, ''), category, model, summary, created_at
FROM analyses
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AnalysisRecord, 0, limit)
	for rows.Next() {
		var rec domain.AnalysisRecord
		var category string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.SessionID, &category, &rec.Model, &rec.Summary, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		rec.Category = domain.CategoryCode(category)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyses: %w", err)
	}
	return out, nil
}

func (r *AnalysisRepository) GetAnalysis(ctx context.Context, userID, id string) (*domain.AnalysisRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, COALESCE(session_id, ''), category, model, summary, full_text, created_at
FROM analyses
WHERE user_id = $1 AND id = $2
`, userID, id)
	rec, err := scanAnalysis(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get analysis", fmt.Errorf("analysis %s", id))
		}
		return nil, fmt.Errorf("scan analysis: %w", err)
	}
	return rec, nil
}

func (r *AnalysisRepository) LatestAnalysisForSession(ctx context.Context, userID, sessionID string) (*domain.AnalysisRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, COALESCE(session_id, ''), category, model, summary, full_text, created_at
FROM analyses
WHERE user_id = $1 AND session_id = $2
ORDER BY created_at DESC
LIMIT 1
`, userID, sessionID)
	rec, err := scanAnalysis(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "session analysis", fmt.Errorf("session %s has no analysis", sessionID))
		}
		return nil, fmt.Errorf("scan session analysis: %w", err)
	}
	return rec, nil
}

func (r *AnalysisRepository) AttachSession(ctx context.Context, userID, analysisID, sessionID string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE analyses
SET session_id = $3
WHERE user_id = $1 AND id = $2
`, userID, analysisID, sessionID)
	if err != nil {
		return fmt.Errorf("attach analysis to session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach analysis rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "attach analysis", fmt.Errorf("analysis %s", analysisID))
	}
	return nil
}

func (r *AnalysisRepository) CategoryStats(ctx context.Context, userID string) ([]domain.CategoryStat, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT category, COUNT(*), MAX(created_at)
FROM analyses
WHERE user_id = $1
GROUP BY category
ORDER BY COUNT(*) DESC, category
`, userID)
	if err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}
	defer rows.Close()

	var out []domain.CategoryStat
	for rows.Next() {
		var (
			stat     domain.CategoryStat
			category string
			latest   time.Time
		)
		if err := rows.Scan(&category, &stat.Count, &latest); err != nil {
			return nil, fmt.Errorf("scan category stat: %w", err)
		}
		stat.Category = domain.CategoryCode(category)
		stat.LatestAt = latest.UTC().Format(time.RFC3339)
		out = append(out, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category stats: %w", err)
	}
	return out, nil
}

func scanAnalysis(row *sql.Row) (*domain.AnalysisRecord, error) {
	var rec domain.AnalysisRecord
	var category string
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.SessionID, &category, &rec.Model, &rec.Summary, &rec.FullText, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Category = domain.CategoryCode(category)
	return &rec, nil
}
