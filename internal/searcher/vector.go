package searcher

import (
	"context"

	"github.com/dshills/lorekeeper/pkg/types"
)

// VectorSearch is the embedding similarity strategy. No embedding provider
// is wired, so it matches nothing; SearchFilters.VectorThreshold is reserved
// for it.
type VectorSearch struct{}

// NewVectorSearch creates the vector strategy
func NewVectorSearch() *VectorSearch {
	return &VectorSearch{}
}

// Name implements Strategy
func (s *VectorSearch) Name() types.StrategyName { return types.StrategyVector }

// Weight implements Strategy
func (s *VectorSearch) Weight() float64 { return WeightVector }

// Search implements Strategy and always returns an empty set
func (s *VectorSearch) Search(ctx context.Context, query string, filters types.SearchFilters, campaignID string) ([]types.SearchResult, error) {
	return []types.SearchResult{}, nil
}
