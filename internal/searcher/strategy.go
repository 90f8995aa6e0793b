package searcher

import (
	"context"

	"github.com/dshills/lorekeeper/internal/storage"
	"github.com/dshills/lorekeeper/pkg/types"
)

// ItemQuerier is the part of the catalog store the strategies read from
type ItemQuerier interface {
	QueryDetailItems(ctx context.Context, q storage.ItemQuery) ([]types.DetailItem, error)
}

// Strategy ranks detail items of one campaign for a query
type Strategy interface {
	Name() types.StrategyName
	Weight() float64
	Search(ctx context.Context, query string, filters types.SearchFilters, campaignID string) ([]types.SearchResult, error)
}

// scopedQuery builds the store query shared by all strategies: the campaign
// plus the resolved category, if any
func scopedQuery(filters types.SearchFilters, campaignID string) storage.ItemQuery {
	q := storage.ItemQuery{CampaignID: campaignID}
	if category, ok := types.ResolveCategory(filters.Category); ok {
		q.Category = category
	}
	return q
}
