package searcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lorekeeper/internal/storage"
	"github.com/dshills/lorekeeper/pkg/types"
)

// setupTestSearcher creates a searcher over an in-memory catalog
func setupTestSearcher(t *testing.T) (*Searcher, *storage.SQLiteStorage) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	items := []types.DetailItem{
		{ID: "npc-1", CampaignID: "c1", Name: "Evil NPC", Category: types.CategoryNPC,
			Description: types.StringPtr("An evil character"), IsAIGenerated: true, CreatedAt: base},
		{ID: "loc-1", CampaignID: "c1", Name: "Dark Forest", Category: types.CategoryLocation,
			Description: types.StringPtr("Where the evil witch lives"), CreatedAt: base.Add(time.Hour)},
		{ID: "mon-1", CampaignID: "c1", Name: "Goblin King", Category: types.CategoryMonster, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "npc-2", CampaignID: "c2", Name: "Evil NPC", Category: types.CategoryNPC, CreatedAt: base},
	}
	for i := range items {
		require.NoError(t, store.UpsertDetailItem(ctx, &items[i]))
	}

	return NewDefault(store, zerolog.Nop()), store
}

func ids(results []types.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestNewDefault_Strategies(t *testing.T) {
	s := NewDefault(&mockStore{}, zerolog.Nop())
	assert.Equal(t, []types.StrategyName{
		types.StrategyExact, types.StrategyHybrid, types.StrategyTrigram, types.StrategyVector,
	}, s.Strategies())
}

func TestSearch_BlankQueryShortCircuits(t *testing.T) {
	store := &mockStore{}
	s := NewDefault(store, zerolog.Nop())

	for _, query := range []string{"", "   ", "\t\n"} {
		results, err := s.Search(context.Background(), query, types.SearchFilters{Strategy: types.StrategyExact}, "c1")
		require.NoError(t, err)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	}
	assert.Equal(t, int32(0), store.calls.Load(), "store must not be queried")
}

func TestSearch_RequiresCampaign(t *testing.T) {
	s := NewDefault(&mockStore{}, zerolog.Nop())
	_, err := s.Search(context.Background(), "x", types.SearchFilters{}, "")
	assert.ErrorIs(t, err, types.ErrMissingCampaignID)
}

func TestSearch_UnknownStrategyFallsBackToExact(t *testing.T) {
	s, _ := setupTestSearcher(t)
	ctx := context.Background()

	exact, err := s.Search(ctx, "evil", types.SearchFilters{Strategy: types.StrategyExact}, "c1")
	require.NoError(t, err)
	bogus, err := s.Search(ctx, "evil", types.SearchFilters{Strategy: "bogus"}, "c1")
	require.NoError(t, err)

	require.NotEmpty(t, exact)
	assert.Equal(t, exact, bogus)
	assert.Equal(t, types.StrategyExact, bogus[0].Strategy)
}

func TestSearch_DefaultsToHybrid(t *testing.T) {
	s, _ := setupTestSearcher(t)

	results, err := s.Search(context.Background(), "goblin", types.SearchFilters{}, "c1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mon-1", results[0].ID)
	assert.Equal(t, types.StrategyHybrid, results[0].Strategy)
	// trigram 0.5*100 + 50 name bonus, scaled by 0.6
	assert.InDelta(t, 60.0, results[0].RelevanceScore, 1e-9)
}

func TestSearch_ExactAgainstStore(t *testing.T) {
	s, _ := setupTestSearcher(t)
	ctx := context.Background()

	tests := []struct {
		query string
		want  float64
	}{
		{"Evil NPC", 105},
		{"Evil", 55},
		{"character", 15},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			results, err := s.Search(ctx, tt.query, types.SearchFilters{Strategy: types.StrategyExact, Category: "NPCs"}, "c1")
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "npc-1", results[0].ID)
			assert.Equal(t, tt.want, results[0].RelevanceScore)
		})
	}
}

func TestSearch_Deterministic(t *testing.T) {
	s, _ := setupTestSearcher(t)
	ctx := context.Background()

	for _, name := range s.Strategies() {
		filters := types.SearchFilters{Strategy: name, SimilarityThreshold: 0.1}
		first, err := s.Search(ctx, "evil forest", filters, "c1")
		require.NoError(t, err)
		second, err := s.Search(ctx, "evil forest", filters, "c1")
		require.NoError(t, err)
		assert.Equal(t, ids(first), ids(second), name)
	}
}

func TestSearch_StrategyErrorReturned(t *testing.T) {
	boom := errors.New("boom")
	failing := &mockStrategy{name: types.StrategyExact, weight: 1,
		searchFunc: func(context.Context, string, types.SearchFilters, string) ([]types.SearchResult, error) {
			return nil, boom
		}}
	s := New(zerolog.Nop(), failing)

	_, err := s.Search(context.Background(), "x", types.SearchFilters{Strategy: types.StrategyExact}, "c1")
	assert.ErrorIs(t, err, boom)
}

func TestSearch_HybridStoreOutageIsNotCached(t *testing.T) {
	var down atomic.Bool
	down.Store(true)
	store := &mockStore{queryFunc: func(context.Context, storage.ItemQuery) ([]types.DetailItem, error) {
		if down.Load() {
			return nil, errors.New("connection refused")
		}
		return []types.DetailItem{{ID: "npc-1", CampaignID: "c1", Name: "Evil NPC", Category: types.CategoryNPC}}, nil
	}}
	s := NewDefault(store, zerolog.Nop())
	require.NoError(t, s.EnableCache(10, time.Minute))
	ctx := context.Background()

	results, err := s.Search(ctx, "evil", types.SearchFilters{}, "c1")
	require.Error(t, err, "an outage must reach the caller's fallback")
	assert.Nil(t, results)
	assert.Equal(t, 0, s.cache.len())

	down.Store(false)
	results, err = s.Search(ctx, "evil", types.SearchFilters{}, "c1")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "npc-1", results[0].ID)
}

func TestResolve_NoFallback(t *testing.T) {
	s := New(zerolog.Nop(), NewVectorSearch())

	_, _, err := s.Resolve("bogus")
	assert.ErrorIs(t, err, ErrNoStrategy)

	strategy, substituted, err := s.Resolve(types.StrategyVector)
	require.NoError(t, err)
	assert.False(t, substituted)
	assert.Equal(t, types.StrategyVector, strategy.Name())

	s.SetDefaultStrategy(types.StrategyVector)
	strategy, _, err = s.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, types.StrategyVector, strategy.Name())
}

func TestSearch_CacheHitAndInvalidation(t *testing.T) {
	calls := 0
	exact := &mockStrategy{name: types.StrategyExact, weight: 1,
		searchFunc: func(context.Context, string, types.SearchFilters, string) ([]types.SearchResult, error) {
			calls++
			return []types.SearchResult{scored("A", 10)}, nil
		}}
	s := New(zerolog.Nop(), exact)
	require.NoError(t, s.EnableCache(10, time.Minute))
	ctx := context.Background()
	filters := types.SearchFilters{Strategy: types.StrategyExact}

	first, err := s.Search(ctx, "q", filters, "c1")
	require.NoError(t, err)
	first[0].Name = "mutated by caller"

	second, err := s.Search(ctx, "q", filters, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second search served from cache")
	assert.Equal(t, "A", second[0].Name, "cached results are copies")

	_, err = s.Search(ctx, "q", filters, "c2")
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "campaign is part of the key")

	s.InvalidateCampaign("c1")
	assert.Equal(t, 1, s.cache.len())
	_, err = s.Search(ctx, "q", filters, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	s.InvalidateCache()
	assert.Equal(t, 0, s.cache.len())
}

func TestQueryCache_Expiry(t *testing.T) {
	c, err := newQueryCache(4, time.Minute)
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	key := computeQueryHash("q", types.StrategyExact, types.SearchFilters{}, "c1")
	c.put(key, "c1", []types.SearchResult{scored("A", 1)})

	_, ok := c.get(key)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, c.len())
}

func TestComputeQueryHash(t *testing.T) {
	base := computeQueryHash("q", types.StrategyExact, types.SearchFilters{Category: "NPCs"}, "c1")
	assert.Equal(t, base, computeQueryHash("q", types.StrategyExact, types.SearchFilters{Category: "npc"}, "c1"),
		"labels and raw categories resolve to the same key")
	assert.Equal(t, base, computeQueryHash("q", types.StrategyExact, types.SearchFilters{Category: "NPCs", SortKey: types.SortName}, "c1"),
		"sorting does not change strategy output")
	assert.NotEqual(t, base, computeQueryHash("q", types.StrategyTrigram, types.SearchFilters{Category: "NPCs"}, "c1"))
	assert.NotEqual(t, base, computeQueryHash("q", types.StrategyExact, types.SearchFilters{Category: "NPCs", SimilarityThreshold: 0.5}, "c1"))
}
