package marketdata

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MidRefCache is a short-TTL, last-observed-mid-price cache keyed by
// symbol, consulted by the Ranker's composite edge term
// (edge = (quoteRatio - midRef) / midRef). Ported from the original
// mid_ref.py reference-price cache: a quote's ratio is only meaningfully
// "above" or "below" the market if the reference price is recent.
type MidRefCache struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]midRefEntry
}

type midRefEntry struct {
	price     decimal.Decimal
	expiresAt time.Time
}

// NewMidRefCache builds a cache with the given freshness window.
func NewMidRefCache(ttl time.Duration) *MidRefCache {
	return &MidRefCache{ttl: ttl, m: make(map[string]midRefEntry)}
}

// Put records the latest observed mid price for symbol.
func (c *MidRefCache) Put(symbol string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[symbol] = midRefEntry{price: price, expiresAt: time.Now().Add(c.ttl)}
}

// Get returns the cached mid price for symbol if it is still fresh.
func (c *MidRefCache) Get(symbol string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.m[symbol]
	if !ok || time.Now().After(entry.expiresAt) {
		return decimal.Zero, false
	}
	return entry.price, true
}
