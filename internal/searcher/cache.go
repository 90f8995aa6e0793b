package searcher

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/lorekeeper/pkg/types"
)

// Query cache defaults
const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = time.Minute
)

// cacheEntry represents cached results with expiration time
type cacheEntry struct {
	campaignID string
	results    []types.SearchResult
	expiresAt  time.Time
}

// queryCache is an LRU of ranked results with a TTL
type queryCache struct {
	mu  sync.RWMutex
	lru *lru.Cache[[32]byte, *cacheEntry]
	ttl time.Duration
	now func() time.Time
}

func newQueryCache(size int, ttl time.Duration) (*queryCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c, err := lru.New[[32]byte, *cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &queryCache{lru: c, ttl: ttl, now: time.Now}, nil
}

// get returns a copy of unexpired cached results
func (c *queryCache) get(key [32]byte) ([]types.SearchResult, bool) {
	c.mu.RLock()
	entry, found := c.lru.Get(key)
	if !found {
		c.mu.RUnlock()
		return nil, false
	}

	if c.now().After(entry.expiresAt) {
		c.mu.RUnlock()

		// Remove expired entry - need write lock
		c.mu.Lock()
		c.lru.Remove(key)
		c.mu.Unlock()
		return nil, false
	}

	results := cloneResults(entry.results)
	c.mu.RUnlock()
	return results, true
}

// put stores a copy of results
func (c *queryCache) put(key [32]byte, campaignID string, results []types.SearchResult) {
	entry := &cacheEntry{
		campaignID: campaignID,
		results:    cloneResults(results),
		expiresAt:  c.now().Add(c.ttl),
	}

	c.mu.Lock()
	c.lru.Add(key, entry)
	c.mu.Unlock()
}

// invalidateCampaign drops every entry for campaignID
func (c *queryCache) invalidateCampaign(campaignID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.lru.Keys() {
		if entry, ok := c.lru.Peek(key); ok && entry.campaignID == campaignID {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

func (c *queryCache) purge() {
	c.mu.Lock()
	c.lru.Purge()
	c.mu.Unlock()
}

func (c *queryCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}

// computeQueryHash hashes everything that changes a strategy's output
func computeQueryHash(query string, strategy types.StrategyName, filters types.SearchFilters, campaignID string) [32]byte {
	category, _ := types.ResolveCategory(filters.Category)

	var data strings.Builder
	data.WriteString(campaignID)
	data.WriteString("|")
	data.WriteString(query)
	data.WriteString("|")
	data.WriteString(string(strategy))
	data.WriteString("|")
	data.WriteString(string(category))
	data.WriteString("|")
	data.WriteString(strconv.FormatFloat(filters.Threshold(), 'f', 4, 64))
	data.WriteString("|")
	data.WriteString(strconv.FormatFloat(filters.VectorCutoff(), 'f', 4, 64))

	return sha256.Sum256([]byte(data.String()))
}

func cloneResults(src []types.SearchResult) []types.SearchResult {
	dst := make([]types.SearchResult, len(src))
	for i, r := range src {
		dst[i] = r.Clone()
	}
	return dst
}
