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

// mockStore implements ItemQuerier for testing
type mockStore struct {
	queryFunc func(ctx context.Context, q storage.ItemQuery) ([]types.DetailItem, error)
	calls     atomic.Int32
}

func (m *mockStore) QueryDetailItems(ctx context.Context, q storage.ItemQuery) ([]types.DetailItem, error) {
	m.calls.Add(1)
	if m.queryFunc != nil {
		return m.queryFunc(ctx, q)
	}
	return []types.DetailItem{}, nil
}

// mockStrategy implements Strategy for testing
type mockStrategy struct {
	name       types.StrategyName
	weight     float64
	searchFunc func(ctx context.Context, query string, filters types.SearchFilters, campaignID string) ([]types.SearchResult, error)
}

func (m *mockStrategy) Name() types.StrategyName { return m.name }
func (m *mockStrategy) Weight() float64          { return m.weight }
func (m *mockStrategy) Search(ctx context.Context, query string, filters types.SearchFilters, campaignID string) ([]types.SearchResult, error) {
	return m.searchFunc(ctx, query, filters, campaignID)
}

func fixedResults(results ...types.SearchResult) func(context.Context, string, types.SearchFilters, string) ([]types.SearchResult, error) {
	return func(context.Context, string, types.SearchFilters, string) ([]types.SearchResult, error) {
		return results, nil
	}
}

func scored(id string, score float64) types.SearchResult {
	return types.SearchResult{DetailItem: types.DetailItem{ID: id, Name: id}, RelevanceScore: score}
}

func TestExactSearch_QueriesFullText(t *testing.T) {
	var got storage.ItemQuery
	store := &mockStore{queryFunc: func(ctx context.Context, q storage.ItemQuery) ([]types.DetailItem, error) {
		got = q
		return []types.DetailItem{
			{ID: "2", Name: "Dark Forest", Description: types.StringPtr("Home of the Evil witch")},
			{ID: "1", Name: "Evil NPC", IsAIGenerated: true},
		}, nil
	}}

	results, err := NewExactSearch(store).Search(context.Background(), "Evil", types.SearchFilters{Category: "NPCs"}, "c1")
	require.NoError(t, err)

	assert.Equal(t, storage.MatchFullText, got.Match)
	assert.Equal(t, "Evil", got.Text)
	assert.Equal(t, "c1", got.CampaignID)
	assert.Equal(t, types.CategoryNPC, got.Category)
	assert.Equal(t, types.SortCreatedAt, got.OrderBy)
	assert.True(t, got.Descending)

	require.Len(t, results, 2)
	assert.Equal(t, "1", results[0].ID)
	assert.Equal(t, 55.0, results[0].RelevanceScore)
	assert.Equal(t, 10.0, results[1].RelevanceScore)
	assert.Equal(t, types.StrategyExact, results[0].Strategy)
}

func TestExactSearch_StoreError(t *testing.T) {
	boom := errors.New("store down")
	store := &mockStore{queryFunc: func(context.Context, storage.ItemQuery) ([]types.DetailItem, error) {
		return nil, boom
	}}
	_, err := NewExactSearch(store).Search(context.Background(), "x", types.SearchFilters{}, "c1")
	assert.ErrorIs(t, err, boom)
}

func TestTrigramSearch_Threshold(t *testing.T) {
	var got storage.ItemQuery
	store := &mockStore{queryFunc: func(ctx context.Context, q storage.ItemQuery) ([]types.DetailItem, error) {
		got = q
		return []types.DetailItem{
			{ID: "a", Name: "Goblin King"},
			{ID: "b", Name: "Goblin Warrens Deep Below", Description: types.StringPtr("caves")},
			{ID: "c", Name: "Dragon"},
		}, nil
	}}
	strategy := NewTrigramSearch(store)

	results, err := strategy.Search(context.Background(), "goblin", types.SearchFilters{Category: "All"}, "c1")
	require.NoError(t, err)
	assert.Equal(t, types.SortName, got.OrderBy)
	assert.Equal(t, types.Category(""), got.Category)
	assert.Equal(t, storage.MatchNone, got.Match)

	// "goblin" vs "Goblin Warrens Deep Below" is 1/4 and falls under 0.3
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	require.NotNil(t, results[0].Similarity)
	assert.InDelta(t, 0.5, *results[0].Similarity, 1e-9)
	assert.InDelta(t, 100.0, results[0].RelevanceScore, 1e-9)
	assert.Equal(t, types.StrategyTrigram, results[0].Strategy)

	results, err = strategy.Search(context.Background(), "goblin", types.SearchFilters{SimilarityThreshold: 0.2}, "c1")
	require.NoError(t, err)
	assert.Len(t, results, 2, "lower threshold is more permissive")
}

func TestVectorSearch_AlwaysEmpty(t *testing.T) {
	results, err := NewVectorSearch().Search(context.Background(), "anything", types.SearchFilters{}, "c1")
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Equal(t, WeightVector, NewVectorSearch().Weight())
}

func TestHybridSearch_WeightedUnion(t *testing.T) {
	trigram := &mockStrategy{name: types.StrategyTrigram, weight: WeightTrigram,
		searchFunc: fixedResults(scored("A", 80), scored("B", 40))}
	vector := &mockStrategy{name: types.StrategyVector, weight: WeightVector,
		searchFunc: fixedResults(scored("A", 50), scored("C", 100))}

	results, err := NewHybridSearch(trigram, vector, zerolog.Nop()).Search(context.Background(), "q", types.SearchFilters{}, "c1")
	require.NoError(t, err)
	require.Len(t, results, 3)

	byID := map[string]float64{}
	for _, r := range results {
		byID[r.ID] = r.RelevanceScore
		assert.Equal(t, types.StrategyHybrid, r.Strategy)
	}
	assert.InDelta(t, 68.0, byID["A"], 1e-9)
	assert.InDelta(t, 24.0, byID["B"], 1e-9)
	assert.InDelta(t, 40.0, byID["C"], 1e-9)
	assert.Equal(t, "A", results[0].ID)
}

func TestHybridSearch_VectorFailureIsIsolated(t *testing.T) {
	trigram := &mockStrategy{name: types.StrategyTrigram, weight: WeightTrigram,
		searchFunc: fixedResults(scored("A", 80), scored("B", 40))}
	vector := &mockStrategy{name: types.StrategyVector, weight: WeightVector,
		searchFunc: func(context.Context, string, types.SearchFilters, string) ([]types.SearchResult, error) {
			return nil, errors.New("embedding provider unavailable")
		}}

	results, err := NewHybridSearch(trigram, vector, zerolog.Nop()).Search(context.Background(), "q", types.SearchFilters{}, "c1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.InDelta(t, 48.0, results[0].RelevanceScore, 1e-9)
	assert.InDelta(t, 24.0, results[1].RelevanceScore, 1e-9)
}

func TestHybridSearch_RunsConcurrently(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	blocking := func(context.Context, string, types.SearchFilters, string) ([]types.SearchResult, error) {
		started <- struct{}{}
		<-release
		return nil, nil
	}
	trigram := &mockStrategy{name: types.StrategyTrigram, weight: WeightTrigram, searchFunc: blocking}
	vector := &mockStrategy{name: types.StrategyVector, weight: WeightVector, searchFunc: blocking}

	done := make(chan struct{})
	go func() {
		_, _ = NewHybridSearch(trigram, vector, zerolog.Nop()).Search(context.Background(), "q", types.SearchFilters{}, "c1")
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("sub-searches did not start concurrently")
		}
	}
	close(release)
	<-done
}

func TestHybridSearch_TrigramFailureFails(t *testing.T) {
	down := errors.New("store down")
	trigram := &mockStrategy{name: types.StrategyTrigram, weight: WeightTrigram,
		searchFunc: func(context.Context, string, types.SearchFilters, string) ([]types.SearchResult, error) {
			return nil, down
		}}
	vector := &mockStrategy{name: types.StrategyVector, weight: WeightVector,
		searchFunc: fixedResults(scored("C", 100))}

	results, err := NewHybridSearch(trigram, vector, zerolog.Nop()).Search(context.Background(), "q", types.SearchFilters{}, "c1")
	assert.ErrorIs(t, err, down)
	assert.Nil(t, results)
}
