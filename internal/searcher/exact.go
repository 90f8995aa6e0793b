package searcher

import (
	"context"
	"fmt"

	"github.com/dshills/lorekeeper/internal/storage"
	"github.com/dshills/lorekeeper/pkg/types"
)

// ExactSearch matches with the store's full-text predicate and scores with ExactScore
type ExactSearch struct {
	store ItemQuerier
}

// NewExactSearch creates an exact strategy over store
func NewExactSearch(store ItemQuerier) *ExactSearch {
	return &ExactSearch{store: store}
}

// Name implements Strategy
func (s *ExactSearch) Name() types.StrategyName { return types.StrategyExact }

// Weight implements Strategy
func (s *ExactSearch) Weight() float64 { return WeightExact }

// Search implements Strategy
func (s *ExactSearch) Search(ctx context.Context, query string, filters types.SearchFilters, campaignID string) ([]types.SearchResult, error) {
	q := scopedQuery(filters, campaignID)
	q.Match = storage.MatchFullText
	q.Text = query
	q.OrderBy = types.SortCreatedAt
	q.Descending = true

	items, err := s.store.QueryDetailItems(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("exact search: %w", err)
	}

	results := make([]types.SearchResult, 0, len(items))
	for _, item := range items {
		results = append(results, types.SearchResult{
			DetailItem:     item,
			RelevanceScore: ExactScore(item, query),
			Strategy:       types.StrategyExact,
		})
	}

	SortByRelevance(results)
	return results, nil
}
