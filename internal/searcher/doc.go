// Package searcher ranks campaign detail items for free-text queries.
//
// Four strategies share the Strategy interface:
//
//   - exact: full-text store match, scored by name equality, prefix and containment
//   - trigram: word-overlap similarity against name and description with a tunable threshold
//   - vector: embedding similarity placeholder that always returns no results
//   - hybrid: trigram and vector run concurrently and are combined by strategy weight
//
// The Searcher dispatches on SearchFilters.Strategy, defaulting to hybrid and
// substituting exact for names it does not recognize. A whitespace-only query
// returns no results without touching the store.
//
// Results can be cached in an LRU keyed by a hash of the query, the resolved
// strategy and its filters. The cache is invalidated per campaign when detail
// items change.
//
// Scores are comparable within a strategy. Hybrid weighting is what reconciles
// the scales of its sub-strategies. Equal scores always order by CreatedAt
// descending, then by ID.
package searcher
