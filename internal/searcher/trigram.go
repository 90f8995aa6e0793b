package searcher

import (
	"context"
	"fmt"

	"github.com/dshills/lorekeeper/pkg/types"
)

// TrigramSearch keeps items whose name or description is similar enough to
// the query. The threshold comes from SearchFilters.SimilarityThreshold.
type TrigramSearch struct {
	store ItemQuerier
}

// NewTrigramSearch creates a trigram strategy over store
func NewTrigramSearch(store ItemQuerier) *TrigramSearch {
	return &TrigramSearch{store: store}
}

// Name implements Strategy
func (s *TrigramSearch) Name() types.StrategyName { return types.StrategyTrigram }

// Weight implements Strategy
func (s *TrigramSearch) Weight() float64 { return WeightTrigram }

// Search implements Strategy
func (s *TrigramSearch) Search(ctx context.Context, query string, filters types.SearchFilters, campaignID string) ([]types.SearchResult, error) {
	q := scopedQuery(filters, campaignID)
	q.OrderBy = types.SortName

	items, err := s.store.QueryDetailItems(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("trigram search: %w", err)
	}

	threshold := filters.Threshold()
	results := make([]types.SearchResult, 0)
	for _, item := range items {
		sim := max(Similarity(query, item.Name), Similarity(query, item.DescriptionText()))
		if sim < threshold {
			continue
		}

		similarity := sim
		results = append(results, types.SearchResult{
			DetailItem:     item,
			RelevanceScore: TrigramScore(item, query, sim),
			Strategy:       types.StrategyTrigram,
			Similarity:     &similarity,
		})
	}

	SortByRelevance(results)
	return results, nil
}
