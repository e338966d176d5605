package binance

import (
	"testing"
	"time"

	"github.com/aristath/convertbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchangeInfoCacheMissThenHit(t *testing.T) {
	c := newExchangeInfoCache(50 * time.Millisecond)

	_, ok := c.Get("ETH", "USDT")
	require.False(t, ok)

	route := &domain.ConvertRoute{Steps: []domain.RouteStep{{FromAsset: "ETH", ToAsset: "USDT"}}}
	c.Put("ETH", "USDT", route)

	got, ok := c.Get("ETH", "USDT")
	require.True(t, ok)
	assert.Same(t, route, got)
}

func TestExchangeInfoCacheExpires(t *testing.T) {
	c := newExchangeInfoCache(10 * time.Millisecond)
	c.Put("ETH", "USDT", &domain.ConvertRoute{})

	time.Sleep(25 * time.Millisecond)

	_, ok := c.Get("ETH", "USDT")
	assert.False(t, ok)
}

func TestExchangeInfoCacheKeyIsDirectional(t *testing.T) {
	c := newExchangeInfoCache(time.Second)
	c.Put("ETH", "USDT", &domain.ConvertRoute{})

	_, ok := c.Get("USDT", "ETH")
	assert.False(t, ok, "cache key must be directional, not symmetric")
}
