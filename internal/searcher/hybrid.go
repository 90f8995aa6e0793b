package searcher

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/lorekeeper/pkg/types"
)

// HybridSearch runs two strategies concurrently and merges their results by
// id, scaling each score by its strategy's weight. A failing secondary
// contributes nothing. A failing primary fails the search, since the primary
// is the only half backed by the store and an empty answer would hide an
// outage from the caller's fallback.
type HybridSearch struct {
	primary   Strategy
	secondary Strategy
	log       zerolog.Logger
}

// NewHybridSearch combines primary (trigram) and secondary (vector)
func NewHybridSearch(primary, secondary Strategy, log zerolog.Logger) *HybridSearch {
	return &HybridSearch{primary: primary, secondary: secondary, log: log}
}

// Name implements Strategy
func (s *HybridSearch) Name() types.StrategyName { return types.StrategyHybrid }

// Weight implements Strategy
func (s *HybridSearch) Weight() float64 { return WeightHybrid }

// Search implements Strategy
func (s *HybridSearch) Search(ctx context.Context, query string, filters types.SearchFilters, campaignID string) ([]types.SearchResult, error) {
	var primaryResults, secondaryResults []types.SearchResult
	var primaryErr error

	// Sub-search errors are collected so one failure never cancels the other
	var g errgroup.Group
	g.Go(func() error {
		primaryResults, primaryErr = s.run(ctx, s.primary, query, filters, campaignID)
		return nil
	})
	g.Go(func() error {
		secondaryResults, _ = s.run(ctx, s.secondary, query, filters, campaignID)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if primaryErr != nil {
		return nil, fmt.Errorf("hybrid %s search failed: %w", s.primary.Name(), primaryErr)
	}

	results := combineWeighted(
		weighted{results: primaryResults, weight: s.primary.Weight()},
		weighted{results: secondaryResults, weight: s.secondary.Weight()},
	)
	SortByRelevance(results)
	return results, nil
}

// run executes one sub-search and logs its failure
func (s *HybridSearch) run(ctx context.Context, strategy Strategy, query string, filters types.SearchFilters, campaignID string) ([]types.SearchResult, error) {
	results, err := strategy.Search(ctx, query, filters, campaignID)
	if err != nil {
		subSearchFailuresTotal.WithLabelValues(string(strategy.Name())).Inc()
		s.log.Warn().Err(err).
			Str("strategy", string(strategy.Name())).
			Str("campaign_id", campaignID).
			Msg("hybrid sub-search failed")
		return nil, err
	}
	return results, nil
}

// weighted pairs a strategy's results with its weight
type weighted struct {
	results []types.SearchResult
	weight  float64
}

// combineWeighted unions result sets by id, summing weighted scores.
// The first set to contribute an id supplies its item and similarity.
func combineWeighted(sets ...weighted) []types.SearchResult {
	combined := make(map[string]*types.SearchResult)
	order := make([]string, 0)

	for _, set := range sets {
		for _, r := range set.results {
			score := r.RelevanceScore * set.weight
			if existing, ok := combined[r.ID]; ok {
				existing.RelevanceScore += score
				if existing.Similarity == nil && r.Similarity != nil {
					existing.Similarity = r.Clone().Similarity
				}
				continue
			}

			merged := r.Clone()
			merged.RelevanceScore = score
			merged.Strategy = types.StrategyHybrid
			combined[r.ID] = &merged
			order = append(order, r.ID)
		}
	}

	results := make([]types.SearchResult, 0, len(order))
	for _, id := range order {
		results = append(results, *combined[id])
	}
	return results
}
