package searcher

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/lorekeeper/pkg/types"
)

// ErrNoStrategy is returned when neither the requested nor the fallback
// strategy is registered
var ErrNoStrategy = errors.New("no search strategy available")

// Searcher dispatches queries to registered strategies
type Searcher struct {
	strategies  map[types.StrategyName]Strategy
	defaultName types.StrategyName
	fallback    types.StrategyName
	log         zerolog.Logger
	cache       *queryCache
}

// New creates a Searcher over the given strategies. Hybrid is the default
// and exact the fallback for unknown names.
func New(log zerolog.Logger, strategies ...Strategy) *Searcher {
	s := &Searcher{
		strategies:  make(map[types.StrategyName]Strategy, len(strategies)),
		defaultName: types.StrategyHybrid,
		fallback:    types.StrategyExact,
		log:         log.With().Str("component", "searcher").Logger(),
	}
	for _, strategy := range strategies {
		s.strategies[strategy.Name()] = strategy
	}
	return s
}

// NewDefault registers exact, trigram, vector and hybrid over store
func NewDefault(store ItemQuerier, log zerolog.Logger) *Searcher {
	trigram := NewTrigramSearch(store)
	vector := NewVectorSearch()
	return New(log,
		NewExactSearch(store),
		trigram,
		vector,
		NewHybridSearch(trigram, vector, log.With().Str("component", "searcher").Logger()),
	)
}

// SetDefaultStrategy changes the strategy used when filters name none
func (s *Searcher) SetDefaultStrategy(name types.StrategyName) {
	if name != "" {
		s.defaultName = name
	}
}

// EnableCache caches ranked results in an LRU of size entries for ttl
func (s *Searcher) EnableCache(size int, ttl time.Duration) error {
	cache, err := newQueryCache(size, ttl)
	if err != nil {
		return err
	}
	s.cache = cache
	return nil
}

// Strategies lists the registered strategy names
func (s *Searcher) Strategies() []types.StrategyName {
	names := make([]types.StrategyName, 0, len(s.strategies))
	for name := range s.strategies {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Resolve picks the strategy for name. substituted is true when name was
// not recognized and the fallback was chosen instead.
func (s *Searcher) Resolve(name types.StrategyName) (strategy Strategy, substituted bool, err error) {
	if name == "" {
		name = s.defaultName
	}

	switch name {
	case types.StrategyExact, types.StrategyTrigram, types.StrategyVector, types.StrategyHybrid:
		if strategy, ok := s.strategies[name]; ok {
			return strategy, false, nil
		}
	}

	strategy, ok := s.strategies[s.fallback]
	if !ok {
		return nil, true, ErrNoStrategy
	}
	return strategy, true, nil
}

// Search ranks detail items of campaignID for query. A whitespace-only
// query returns an empty list without touching the store. Strategy errors
// are returned so the caller can degrade to a basic search.
func (s *Searcher) Search(ctx context.Context, query string, filters types.SearchFilters, campaignID string) ([]types.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return []types.SearchResult{}, nil
	}
	if campaignID == "" {
		return nil, types.ErrMissingCampaignID
	}

	strategy, substituted, err := s.Resolve(filters.Strategy)
	if err != nil {
		return nil, err
	}
	if substituted {
		unknownStrategyTotal.Inc()
		s.log.Warn().
			Str("requested", string(filters.Strategy)).
			Str("using", string(strategy.Name())).
			Msg("unknown search strategy, falling back")
	}

	// Check cache if enabled
	var key [32]byte
	if s.cache != nil {
		key = computeQueryHash(query, strategy.Name(), filters, campaignID)
		if cached, ok := s.cache.get(key); ok {
			cacheHitsTotal.Inc()
			return cached, nil
		}
	}

	searchesTotal.WithLabelValues(string(strategy.Name())).Inc()
	results, err := strategy.Search(ctx, query, filters, campaignID)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []types.SearchResult{}
	}

	if s.cache != nil {
		s.cache.put(key, campaignID, results)
	}
	return results, nil
}

// InvalidateCampaign drops cached results for a campaign
func (s *Searcher) InvalidateCampaign(campaignID string) {
	if s.cache == nil {
		return
	}
	if removed := s.cache.invalidateCampaign(campaignID); removed > 0 {
		s.log.Debug().Str("campaign_id", campaignID).Int("entries", removed).Msg("query cache invalidated")
	}
}

// InvalidateCache drops all cached results
func (s *Searcher) InvalidateCache() {
	if s.cache != nil {
		s.cache.purge()
	}
}
