package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
	"github.com/kirillkom/medical-doc-assistant/internal/core/ports"
)

// AnalysisArchive is the only path between plaintext analyses and the store.
// Writes encrypt Summary and FullText; reads decrypt them with SafeDecrypt.
type AnalysisArchive struct {
	store  ports.AnalysisStore
	cipher ports.FieldCipher
	now    func() time.Time
}

func NewAnalysisArchive(store ports.AnalysisStore, cipher ports.FieldCipher) *AnalysisArchive {
	return &AnalysisArchive{store: store, cipher: cipher, now: time.Now}
}

type NewAnalysis struct {
	UserID    string
	SessionID string
	Category  domain.CategoryCode
	Model     string
	Summary   string
	FullText  string
}

func (a *AnalysisArchive) Save(ctx context.Context, in NewAnalysis) (*domain.AnalysisRecord, error) {
	summary, err := a.cipher.Encrypt(in.Summary)
	if err != nil {
		return nil, fmt.Errorf("encrypt summary: %w", err)
	}
	fullText, err := a.cipher.Encrypt(in.FullText)
	if err != nil {
		return nil, fmt.Errorf("encrypt analysis: %w", err)
	}

	record := &domain.AnalysisRecord{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		SessionID: in.SessionID,
		Category:  in.Category,
		Model:     in.Model,
		Summary:   summary,
		FullText:  fullText,
		CreatedAt: a.now().UTC(),
	}
	if err := a.store.SaveAnalysis(ctx, record); err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}

	out := *record
	out.Summary = in.Summary
	out.FullText = in.FullText
	return &out, nil
}

// ListByUser returns records with decrypted summaries and no full text.
func (a *AnalysisArchive) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.AnalysisRecord, error) {
	records, err := a.store.ListAnalysesByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	for i := range records {
		records[i].Summary = a.cipher.SafeDecrypt(records[i].Summary)
		records[i].FullText = ""
	}
	return records, nil
}

func (a *AnalysisArchive) Get(ctx context.Context, userID, id string) (*domain.AnalysisRecord, error) {
	record, err := a.store.GetAnalysis(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	a.decrypt(record)
	return record, nil
}

func (a *AnalysisArchive) ForSession(ctx context.Context, userID, sessionID string) (*domain.AnalysisRecord, error) {
	record, err := a.store.LatestAnalysisForSession(ctx, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session analysis: %w", err)
	}
	a.decrypt(record)
	return record, nil
}

func (a *AnalysisArchive) CategoryStats(ctx context.Context, userID string) ([]domain.CategoryStat, error) {
	stats, err := a.store.CategoryStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}
	return stats, nil
}

func (a *AnalysisArchive) decrypt(record *domain.AnalysisRecord) {
	record.Summary = a.cipher.SafeDecrypt(record.Summary)
	record.FullText = a.cipher.SafeDecrypt(record.FullText)
}
