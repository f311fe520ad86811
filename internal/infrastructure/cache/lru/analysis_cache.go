// Package lru caches recent-analysis listings in front of the analysis store.
//
// Cached values are the store's rows, so summaries stay encrypted in memory.
// Any write that can change a user's listing evicts every cached page of that user.
// Eviction is local to the process: analyses saved by the worker reach the api's
// cached pages only once they expire, so CACHE_TTL bounds that staleness.
package lru

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
	"github.com/kirillkom/medical-doc-assistant/internal/core/ports"
)

const (
	DefaultSize = 512
	DefaultTTL  = 30 * time.Second
)

type AnalysisCache struct {
	next  ports.AnalysisStore
	pages *expirable.LRU[string, []domain.AnalysisRecord]
}

var _ ports.AnalysisStore = (*AnalysisCache)(nil)

func NewAnalysisCache(next ports.AnalysisStore, size int, ttl time.Duration) *AnalysisCache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &AnalysisCache{
		next:  next,
		pages: expirable.NewLRU[string, []domain.AnalysisRecord](size, nil, ttl),
	}
}

func (c *AnalysisCache) SaveAnalysis(ctx context.Context, record *domain.AnalysisRecord) error {
	if err := c.next.SaveAnalysis(ctx, record); err != nil {
		return err
	}
	c.InvalidateUser(record.UserID)
	return nil
}

func (c *AnalysisCache) ListAnalysesByUser(ctx context.Context, userID string, limit, offset int) ([]domain.AnalysisRecord, error) {
	key := pageKey(userID, limit, offset)
	if cached, ok := c.pages.Get(key); ok {
		return cloneRecords(cached), nil
	}
	records, err := c.next.ListAnalysesByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	c.pages.Add(key, cloneRecords(records))
	return records, nil
}

func (c *AnalysisCache) GetAnalysis(ctx context.Context, userID, id string) (*domain.AnalysisRecord, error) {
	return c.next.GetAnalysis(ctx, userID, id)
}

func (c *AnalysisCache) LatestAnalysisForSession(ctx context.Context, userID, sessionID string) (*domain.AnalysisRecord, error) {
	return c.next.LatestAnalysisForSession(ctx, userID, sessionID)
}

func (c *AnalysisCache) AttachSession(ctx context.Context, userID, analysisID, sessionID string) error {
	if err := c.next.AttachSession(ctx, userID, analysisID, sessionID); err != nil {
		return err
	}
	c.InvalidateUser(userID)
	return nil
}

func (c *AnalysisCache) CategoryStats(ctx context.Context, userID string) ([]domain.CategoryStat, error) {
	return c.next.CategoryStats(ctx, userID)
}

// InvalidateUser drops every cached page of userID.
func (c *AnalysisCache) InvalidateUser(userID string) {
	prefix := userID + "|"
	for _, key := range c.pages.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.pages.Remove(key)
		}
	}
}

func (c *AnalysisCache) Len() int {
	return c.pages.Len()
}

// SessionInvalidator evicts the owner's listings when a session is deleted,
// since linked analyses are removed with it.
type SessionInvalidator struct {
	ports.SessionStore
	cache *AnalysisCache
}

func NewSessionInvalidator(next ports.SessionStore, cache *AnalysisCache) *SessionInvalidator {
	return &SessionInvalidator{SessionStore: next, cache: cache}
}

func (s *SessionInvalidator) DeleteSession(ctx context.Context, id, userID string) error {
	if err := s.SessionStore.DeleteSession(ctx, id, userID); err != nil {
		return err
	}
	s.cache.InvalidateUser(userID)
	return nil
}

func pageKey(userID string, limit, offset int) string {
	return fmt.Sprintf("%s|%d|%d", userID, limit, offset)
}

func cloneRecords(records []domain.AnalysisRecord) []domain.AnalysisRecord {
	if records == nil {
		return nil
	}
	out := make([]domain.AnalysisRecord, len(records))
	copy(out, records)
	return out
}
