package binance

import (
	"sync"
	"time"

	"github.com/aristath/convertbot/internal/domain"
)

// exchangeInfoCache is a concurrency-safe, TTL-keyed cache of
// (fromAsset, toAsset) -> *domain.ConvertRoute, used by the Convert
// Gateway's exchangeInfo wrapper (C3) per C1's caching contract.
type exchangeInfoCache struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]cacheEntry
}

type cacheEntry struct {
	route     *domain.ConvertRoute
	expiresAt time.Time
}

func newExchangeInfoCache(ttl time.Duration) *exchangeInfoCache {
	return &exchangeInfoCache{ttl: ttl, m: make(map[string]cacheEntry)}
}

func cacheKey(from, to string) string { return from + "->" + to }

// Get returns the cached route for (from, to) if present and unexpired.
func (c *exchangeInfoCache) Get(from, to string) (*domain.ConvertRoute, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.m[cacheKey(from, to)]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.route, true
}

// Put stores route for (from, to) with the cache's configured TTL.
func (c *exchangeInfoCache) Put(from, to string, route *domain.ConvertRoute) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[cacheKey(from, to)] = cacheEntry{route: route, expiresAt: time.Now().Add(c.ttl)}
}
