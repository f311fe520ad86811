package lru

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
	"github.com/kirillkom/medical-doc-assistant/internal/core/ports"
)

type storeFake struct {
	records   []domain.AnalysisRecord
	listCalls int
	listErr   error
}

func (s *storeFake) SaveAnalysis(_ context.Context, record *domain.AnalysisRecord) error {
	s.records = append([]domain.AnalysisRecord{*record}, s.records...)
	return nil
}

func (s *storeFake) ListAnalysesByUser(context.Context, string, int, int) ([]domain.AnalysisRecord, error) {
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]domain.AnalysisRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *storeFake) GetAnalysis(context.Context, string, string) (*domain.AnalysisRecord, error) {
	return nil, errors.New("not implemented")
}

func (s *storeFake) LatestAnalysisForSession(context.Context, string, string) (*domain.AnalysisRecord, error) {
	return nil, errors.New("not implemented")
}

func (s *storeFake) AttachSession(context.Context, string, string, string) error { return nil }

func (s *storeFake) CategoryStats(context.Context, string) ([]domain.CategoryStat, error) {
	return nil, nil
}

type sessionsFake struct {
	ports.SessionStore
	deleteErr error
}

func (s sessionsFake) DeleteSession(context.Context, string, string) error { return s.deleteErr }

func TestListIsServedFromCache(t *testing.T) {
	store := &storeFake{records: []domain.AnalysisRecord{{ID: "a-1", UserID: "u-1", Summary: "enc"}}}
	cache := NewAnalysisCache(store, 8, time.Minute)
	ctx := context.Background()

	first, err := cache.ListAnalysesByUser(ctx, "u-1", 5, 0)
	require.NoError(t, err)
	first[0].Summary = "mutated by caller"

	second, err := cache.ListAnalysesByUser(ctx, "u-1", 5, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, store.listCalls)
	assert.Equal(t, "enc", second[0].Summary, "callers must not be able to mutate cached rows")
}

func TestSaveInvalidatesOnlyThatUser(t *testing.T) {
	store := &storeFake{}
	cache := NewAnalysisCache(store, 8, time.Minute)
	ctx := context.Background()

	_, _ = cache.ListAnalysesByUser(ctx, "u-1", 5, 0)
	_, _ = cache.ListAnalysesByUser(ctx, "u-1", 5, 5)
	_, _ = cache.ListAnalysesByUser(ctx, "u-2", 5, 0)
	require.Equal(t, 3, cache.Len())

	require.NoError(t, cache.SaveAnalysis(ctx, &domain.AnalysisRecord{ID: "a-2", UserID: "u-1"}))
	assert.Equal(t, 1, cache.Len())

	records, err := cache.ListAnalysesByUser(ctx, "u-1", 5, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestAttachInvalidates(t *testing.T) {
	cache := NewAnalysisCache(&storeFake{}, 8, time.Minute)
	ctx := context.Background()

	_, _ = cache.ListAnalysesByUser(ctx, "u-1", 5, 0)
	require.NoError(t, cache.AttachSession(ctx, "u-1", "a-1", "s-1"))
	assert.Zero(t, cache.Len())
}

func TestErrorsAreNotCached(t *testing.T) {
	store := &storeFake{listErr: errors.New("db down")}
	cache := NewAnalysisCache(store, 8, time.Minute)

	_, err := cache.ListAnalysesByUser(context.Background(), "u-1", 5, 0)
	require.Error(t, err)
	assert.Zero(t, cache.Len())
}

func TestEntriesExpire(t *testing.T) {
	store := &storeFake{}
	cache := NewAnalysisCache(store, 8, 20*time.Millisecond)
	ctx := context.Background()

	_, _ = cache.ListAnalysesByUser(ctx, "u-1", 5, 0)
	assert.Eventually(t, func() bool {
		_, _ = cache.ListAnalysesByUser(ctx, "u-1", 5, 0)
		return store.listCalls > 1
	}, time.Second, 10*time.Millisecond)
}

func TestSessionDeleteInvalidates(t *testing.T) {
	cache := NewAnalysisCache(&storeFake{}, 8, time.Minute)
	ctx := context.Background()
	_, _ = cache.ListAnalysesByUser(ctx, "u-1", 5, 0)

	failing := NewSessionInvalidator(sessionsFake{deleteErr: errors.New("not found")}, cache)
	require.Error(t, failing.DeleteSession(ctx, "s-1", "u-1"))
	assert.Equal(t, 1, cache.Len())

	sessions := NewSessionInvalidator(sessionsFake{}, cache)
	require.NoError(t, sessions.DeleteSession(ctx, "s-1", "u-1"))
	assert.Zero(t, cache.Len())
}

func TestSaveFromAnotherProcessVisibleAfterTTL(t *testing.T) {
	store := &storeFake{}
	api := NewAnalysisCache(store, 8, 30*time.Millisecond)
	ctx := context.Background()

	first, err := api.ListAnalysesByUser(ctx, "u-1", 5, 0)
	require.NoError(t, err)
	require.Empty(t, first)

	// the worker writes straight to the shared store, not through this cache
	require.NoError(t, store.SaveAnalysis(ctx, &domain.AnalysisRecord{ID: "a-1", UserID: "u-1"}))

	stale, err := api.ListAnalysesByUser(ctx, "u-1", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, stale, "page is served from cache until it expires")

	assert.Eventually(t, func() bool {
		fresh, _ := api.ListAnalysesByUser(ctx, "u-1", 5, 0)
		return len(fresh) == 1
	}, time.Second, 10*time.Millisecond)
}
