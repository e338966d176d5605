package route

import (
	"context"
	"testing"

	"github.com/aristath/convertbot/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchangeInfo struct {
	routes map[string]*domain.ConvertRoute
	calls  map[string]int
}

func newFakeExchangeInfo() *fakeExchangeInfo {
	return &fakeExchangeInfo{routes: make(map[string]*domain.ConvertRoute), calls: make(map[string]int)}
}

func (f *fakeExchangeInfo) allow(from, to string, min, max float64) {
	f.routes[from+"->"+to] = &domain.ConvertRoute{
		Steps: []domain.RouteStep{{
			FromAsset: from, ToAsset: to,
			MinQuote: decimal.NewFromFloat(min), MaxQuote: decimal.NewFromFloat(max),
		}},
	}
}

func (f *fakeExchangeInfo) ExchangeInfo(ctx context.Context, from, to string) (*domain.ConvertRoute, error) {
	key := from + "->" + to
	f.calls[key]++
	if route, ok := f.routes[key]; ok {
		return route, nil
	}
	return nil, nil
}

func newTestResolver(gw *fakeExchangeInfo) *Resolver {
	return New(gw, []string{"USDT", "USDC", "BUSD", "BTC"}, zerolog.Nop())
}

func TestResolvePrefersDirectRouteOverHub(t *testing.T) {
	gw := newFakeExchangeInfo()
	gw.allow("ETH", "SOL", 1, 1000)
	gw.allow("ETH", "USDT", 1, 1000)
	gw.allow("USDT", "SOL", 1, 1000)

	r := newTestResolver(gw)
	held := map[string]decimal.Decimal{"ETH": decimal.NewFromInt(5)}

	route, ok := r.Resolve(context.Background(), held, "SOL")
	require.True(t, ok)
	assert.True(t, route.IsDirect())
	assert.Equal(t, "ETH", route.Steps[0].FromAsset)
}

func TestResolveDirectRouteTieBreaksOnLargestHolding(t *testing.T) {
	gw := newFakeExchangeInfo()
	gw.allow("ETH", "SOL", 1, 1000)
	gw.allow("ADA", "SOL", 1, 1000)

	r := newTestResolver(gw)
	held := map[string]decimal.Decimal{
		"ETH": decimal.NewFromInt(5),
		"ADA": decimal.NewFromInt(500),
	}

	route, ok := r.Resolve(context.Background(), held, "SOL")
	require.True(t, ok)
	assert.Equal(t, "ADA", route.Steps[0].FromAsset)
}

func TestResolveFallsBackToHubRoute(t *testing.T) {
	gw := newFakeExchangeInfo()
	gw.allow("ETH", "USDT", 1, 1000)
	gw.allow("USDT", "SOL", 1, 1000)

	r := newTestResolver(gw)
	held := map[string]decimal.Decimal{"ETH": decimal.NewFromInt(5)}

	route, ok := r.Resolve(context.Background(), held, "SOL")
	require.True(t, ok)
	assert.False(t, route.IsDirect())
	assert.Equal(t, []string{"ETH", "USDT", "SOL"}, []string{
		route.Steps[0].FromAsset, route.Steps[0].ToAsset, route.Steps[1].ToAsset,
	})
}

func TestResolveTriesHubsInOrder(t *testing.T) {
	gw := newFakeExchangeInfo()
	gw.allow("ETH", "USDC", 1, 1000)
	gw.allow("USDC", "SOL", 1, 1000)

	r := newTestResolver(gw)
	held := map[string]decimal.Decimal{"ETH": decimal.NewFromInt(5)}

	route, ok := r.Resolve(context.Background(), held, "SOL")
	require.True(t, ok)
	assert.Equal(t, "USDC", route.Steps[0].ToAsset)
}

func TestResolveReturnsFalseWhenNoRouteExists(t *testing.T) {
	gw := newFakeExchangeInfo()
	r := newTestResolver(gw)
	held := map[string]decimal.Decimal{"ETH": decimal.NewFromInt(5)}

	_, ok := r.Resolve(context.Background(), held, "SOL")
	assert.False(t, ok)
}

func TestResolveSkipsZeroAndTargetHoldings(t *testing.T) {
	gw := newFakeExchangeInfo()
	gw.allow("SOL", "SOL", 1, 1000) // would be nonsensical, never queried
	gw.allow("ETH", "SOL", 1, 1000)

	r := newTestResolver(gw)
	held := map[string]decimal.Decimal{
		"SOL": decimal.NewFromInt(100), // same as target, must be skipped
		"ADA": decimal.Zero,            // zero balance, must be skipped
		"ETH": decimal.NewFromInt(5),
	}

	route, ok := r.Resolve(context.Background(), held, "SOL")
	require.True(t, ok)
	assert.Equal(t, "ETH", route.Steps[0].FromAsset)
	assert.Zero(t, gw.calls["SOL->SOL"])
	assert.Zero(t, gw.calls["ADA->SOL"])
}

func TestRouteExistsChecksDirectThenHub(t *testing.T) {
	gw := newFakeExchangeInfo()
	gw.allow("BTC", "USDT", 1, 1000)
	gw.allow("USDT", "ADA", 1, 1000)

	r := newTestResolver(gw)
	assert.True(t, r.RouteExists(context.Background(), "BTC", "ADA"))
	assert.False(t, r.RouteExists(context.Background(), "XRP", "ADA"))
}

func TestMemoizationAvoidsRepeatedExchangeInfoCalls(t *testing.T) {
	gw := newFakeExchangeInfo()
	gw.allow("ETH", "USDT", 1, 1000)

	r := newTestResolver(gw)
	held := map[string]decimal.Decimal{"ETH": decimal.NewFromInt(5)}

	_, _ = r.Resolve(context.Background(), held, "USDT")
	_, _ = r.Resolve(context.Background(), held, "USDT")
	assert.Equal(t, 1, gw.calls["ETH->USDT"])
}

func TestResetCycleClearsMemoization(t *testing.T) {
	gw := newFakeExchangeInfo()
	gw.allow("ETH", "USDT", 1, 1000)

	r := newTestResolver(gw)
	held := map[string]decimal.Decimal{"ETH": decimal.NewFromInt(5)}

	_, _ = r.Resolve(context.Background(), held, "USDT")
	r.ResetCycle()
	_, _ = r.Resolve(context.Background(), held, "USDT")
	assert.Equal(t, 2, gw.calls["ETH->USDT"])
}
