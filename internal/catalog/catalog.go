// Package catalog is the fetch boundary between callers and the search
// engine. It degrades from enhanced search to a basic substring search,
// applies the requested sort and seeds the client cache.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dshills/lorekeeper/internal/cache"
	"github.com/dshills/lorekeeper/internal/searcher"
	"github.com/dshills/lorekeeper/internal/storage"
	"github.com/dshills/lorekeeper/pkg/types"
)

// ErrFetchFailed is returned when both the enhanced and the basic search fail
var ErrFetchFailed = errors.New("failed to fetch detail items")

// Searcher is the enhanced search tier
type Searcher interface {
	Search(ctx context.Context, query string, filters types.SearchFilters, campaignID string) ([]types.SearchResult, error)
}

// Service answers catalog queries
type Service struct {
	store    searcher.ItemQuerier
	searcher Searcher
	cache    *cache.Cache[types.DetailItem]
	log      zerolog.Logger
}

// NewService creates a catalog service. items may be nil when no client
// cache is kept.
func NewService(store searcher.ItemQuerier, s Searcher, items *cache.Cache[types.DetailItem], log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		searcher: s,
		cache:    items,
		log:      log.With().Str("component", "catalog").Logger(),
	}
}

// Search returns ranked detail items of campaignID. An empty query browses
// the campaign. Enhanced search failures fall back to a substring search
// scored with the exact-match formula.
func (s *Service) Search(ctx context.Context, campaignID string, filters types.SearchFilters) ([]types.SearchResult, error) {
	if campaignID == "" {
		return nil, types.ErrMissingCampaignID
	}

	query := strings.TrimSpace(filters.QueryText)
	if query == "" {
		return s.browse(ctx, campaignID, filters)
	}

	results, err := s.searcher.Search(ctx, query, filters, campaignID)
	if err == nil {
		applySort(results, filters)
		return results, nil
	}

	fallbacksTotal.Inc()
	s.log.Warn().Err(err).
		Str("campaign_id", campaignID).
		Str("strategy", string(filters.Strategy)).
		Msg("enhanced search failed, falling back to basic search")

	results, fallbackErr := s.basicSearch(ctx, campaignID, query, filters)
	if fallbackErr != nil {
		return nil, fmt.Errorf("%w: enhanced: %v, basic: %v", ErrFetchFailed, err, fallbackErr)
	}
	applySort(results, filters)
	return results, nil
}

// Fetch runs Search and seeds the client cache under the query key. A
// response that arrives after a newer fetch of the same query is returned
// to the caller but not cached.
func (s *Service) Fetch(ctx context.Context, campaignID string, filters types.SearchFilters) ([]types.SearchResult, error) {
	key := QueryKey(campaignID, filters)
	var seq uint64
	if s.cache != nil {
		seq = s.cache.Begin(key)
	}

	results, err := s.Search(ctx, campaignID, filters)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		items := make([]types.DetailItem, len(results))
		for i, r := range results {
			items[i] = r.DetailItem
		}
		if !s.cache.Replace(key, seq, items) {
			s.log.Debug().Str("key", key).Uint64("seq", seq).Msg("discarded stale fetch")
		}
	}
	return results, nil
}

// Cached returns the list last seeded by Fetch for this query
func (s *Service) Cached(campaignID string, filters types.SearchFilters) []types.DetailItem {
	if s.cache == nil {
		return []types.DetailItem{}
	}
	return s.cache.Get(QueryKey(campaignID, filters))
}

// QueryKey names the cached list of one campaign query. Keys always carry
// a '?' so they never collide with a campaign's live list, which is keyed
// by the bare campaign ID.
func QueryKey(campaignID string, filters types.SearchFilters) string {
	category, _ := types.ResolveCategory(filters.Category)

	var data strings.Builder
	data.WriteString(strings.TrimSpace(filters.QueryText))
	data.WriteString("|")
	data.WriteString(string(category))
	data.WriteString("|")
	data.WriteString(string(filters.Strategy))
	data.WriteString("|")
	data.WriteString(string(filters.SortKey))
	data.WriteString("|")
	data.WriteString(string(filters.SortOrder))
	data.WriteString("|")
	data.WriteString(strconv.FormatFloat(filters.Threshold(), 'f', 4, 64))

	sum := sha256.Sum256([]byte(data.String()))
	return campaignID + "?" + hex.EncodeToString(sum[:8])
}

// browse lists the campaign ordered by the requested sort key
func (s *Service) browse(ctx context.Context, campaignID string, filters types.SearchFilters) ([]types.SearchResult, error) {
	q := storage.ItemQuery{CampaignID: campaignID, OrderBy: types.SortCreatedAt, Descending: true}
	if category, ok := types.ResolveCategory(filters.Category); ok {
		q.Category = category
	}
	if filters.SortKey != "" && filters.SortKey != types.SortRelevance {
		q.OrderBy = filters.SortKey
		q.Descending = filters.SortOrder != types.SortAsc
	}

	items, err := s.store.QueryDetailItems(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	results := make([]types.SearchResult, len(items))
	for i, item := range items {
		results[i] = types.SearchResult{DetailItem: item}
	}
	return results, nil
}

// basicSearch is the substring fallback tier
func (s *Service) basicSearch(ctx context.Context, campaignID, query string, filters types.SearchFilters) ([]types.SearchResult, error) {
	q := storage.ItemQuery{
		CampaignID: campaignID,
		Match:      storage.MatchSubstring,
		Text:       query,
		OrderBy:    types.SortCreatedAt,
		Descending: true,
	}
	if category, ok := types.ResolveCategory(filters.Category); ok {
		q.Category = category
	}

	items, err := s.store.QueryDetailItems(ctx, q)
	if err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, len(items))
	for i, item := range items {
		results[i] = types.SearchResult{
			DetailItem:     item,
			RelevanceScore: searcher.BasicScore(item, query),
		}
	}
	searcher.SortByRelevance(results)
	return results, nil
}

// applySort re-orders ranked results when a non-relevance sort key is set
func applySort(results []types.SearchResult, filters types.SearchFilters) {
	if filters.SortKey == "" || filters.SortKey == types.SortRelevance {
		return
	}
	desc := filters.SortOrder != types.SortAsc

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		var cmp int
		switch filters.SortKey {
		case types.SortName:
			cmp = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		case types.SortUpdatedAt:
			cmp = a.UpdatedAt.Compare(b.UpdatedAt)
		default:
			cmp = a.CreatedAt.Compare(b.CreatedAt)
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}
