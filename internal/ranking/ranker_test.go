package ranking

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/convertbot/internal/domain"
	"github.com/aristath/convertbot/internal/marketdata"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRouteLookup struct {
	allowed map[string]bool
}

func newFakeRoutes() *fakeRouteLookup { return &fakeRouteLookup{allowed: make(map[string]bool)} }

func (f *fakeRouteLookup) allow(from, to string) { f.allowed[from+"->"+to] = true }

func (f *fakeRouteLookup) RouteExists(ctx context.Context, from, to string) bool {
	return f.allowed[from+"->"+to]
}

type fakeMarketData struct {
	klines map[string][]domain.Kline
}

func (f *fakeMarketData) Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error) {
	return f.klines[symbol], nil
}

func baseConfig() Config {
	return Config{
		MinVolumeUSDT: 5_000_000,
		MaxSpreadBps:  5.0,
		TopK:          5,
		ShortlistMult: 2,
		RegionBias:    1.0,
		QuoteAsset:    "USDT",
		Model:         "simple",
	}
}

func TestRankFiltersLowVolumeAndWideSpread(t *testing.T) {
	routes := newFakeRoutes()
	routes.allow("USDT", "A")
	r := New(&fakeMarketData{}, routes, baseConfig(), zerolog.Nop())

	tickers := map[string]domain.Ticker24hr{
		"AUSDT": {Symbol: "AUSDT", QuoteVolume: 10_000_000, ChangePercent24h: 5, LastPrice: 1, BidPrice: 1, AskPrice: 1.0003},
		"BUSDT": {Symbol: "BUSDT", QuoteVolume: 1_000_000, ChangePercent24h: 20, LastPrice: 1, BidPrice: 1, AskPrice: 1.0002},
		"CUSDT": {Symbol: "CUSDT", QuoteVolume: 50_000_000, ChangePercent24h: 1, LastPrice: 1, BidPrice: 1, AskPrice: 1.002},
	}

	result := r.Rank(context.Background(), tickers, nil, nil)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "A", result.Candidates[0].Base)
	assert.Equal(t, 1, result.Rejections.LowVolume)
	assert.Equal(t, 1, result.Rejections.WideSpread)
}

func TestRankOrdersByScoreDescending(t *testing.T) {
	routes := newFakeRoutes()
	routes.allow("USDT", "A")
	routes.allow("USDT", "B")
	r := New(&fakeMarketData{}, routes, baseConfig(), zerolog.Nop())

	tickers := map[string]domain.Ticker24hr{
		"AUSDT": {Symbol: "AUSDT", QuoteVolume: 10_000_000, ChangePercent24h: 1, LastPrice: 1, BidPrice: 1, AskPrice: 1.0001},
		"BUSDT": {Symbol: "BUSDT", QuoteVolume: 100_000_000, ChangePercent24h: 10, LastPrice: 1, BidPrice: 1, AskPrice: 1.0001},
	}

	result := r.Rank(context.Background(), tickers, nil, nil)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "B", result.Candidates[0].Base)
	assert.Equal(t, 1, result.Candidates[0].Rank)
	assert.Equal(t, "A", result.Candidates[1].Base)
	assert.Equal(t, 2, result.Candidates[1].Rank)
}

func TestRankRespectsTopKAndShortlistMult(t *testing.T) {
	routes := newFakeRoutes()
	cfg := baseConfig()
	cfg.TopK = 1
	cfg.ShortlistMult = 1

	tickers := map[string]domain.Ticker24hr{}
	for _, sym := range []string{"A", "B", "C"} {
		routes.allow("USDT", sym)
		tickers[sym+"USDT"] = domain.Ticker24hr{Symbol: sym + "USDT", QuoteVolume: 10_000_000, ChangePercent24h: 1, LastPrice: 1, BidPrice: 1, AskPrice: 1.0001}
	}

	r := New(&fakeMarketData{}, routes, cfg, zerolog.Nop())
	result := r.Rank(context.Background(), tickers, nil, nil)
	assert.Len(t, result.Candidates, 1)
}

func TestRankDropsCandidatesWithNoRoute(t *testing.T) {
	routes := newFakeRoutes() // nothing allowed
	r := New(&fakeMarketData{}, routes, baseConfig(), zerolog.Nop())

	tickers := map[string]domain.Ticker24hr{
		"AUSDT": {Symbol: "AUSDT", QuoteVolume: 10_000_000, ChangePercent24h: 5, LastPrice: 1, BidPrice: 1, AskPrice: 1.0001},
	}

	result := r.Rank(context.Background(), tickers, nil, nil)
	assert.Empty(t, result.Candidates)
	assert.Equal(t, 1, result.Rejections.NoRoute)
}

func TestRankRouteFilterAcceptsHeldAssetPath(t *testing.T) {
	routes := newFakeRoutes()
	routes.allow("ETH", "A") // no direct USDT->A route, but held ETH can reach it
	r := New(&fakeMarketData{}, routes, baseConfig(), zerolog.Nop())

	tickers := map[string]domain.Ticker24hr{
		"AUSDT": {Symbol: "AUSDT", QuoteVolume: 10_000_000, ChangePercent24h: 5, LastPrice: 1, BidPrice: 1, AskPrice: 1.0001},
	}
	held := map[string]decimal.Decimal{"ETH": decimal.NewFromInt(2)}

	result := r.Rank(context.Background(), tickers, held, nil)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "A", result.Candidates[0].Base)
}

func TestRankCompositeModelUsesMidRef(t *testing.T) {
	routes := newFakeRoutes()
	routes.allow("USDT", "A")
	cfg := baseConfig()
	cfg.Model = "composite"
	cfg.Weights = ScoreWeights{Edge: 1, Liquidity: 0.1, Momentum: 0.1, Spread: 0.1, Volatility: 0.1}

	md := &fakeMarketData{klines: map[string][]domain.Kline{
		"AUSDT": {
			{High: 1.01, Low: 0.99, Close: 1.0},
			{High: 1.02, Low: 0.98, Close: 1.01},
		},
	}}
	midRefs := marketdata.NewMidRefCache(time.Minute)
	midRefs.Put("AUSDT", decimal.NewFromFloat(1.0))

	r := New(md, routes, cfg, zerolog.Nop())
	tickers := map[string]domain.Ticker24hr{
		"AUSDT": {Symbol: "AUSDT", QuoteVolume: 10_000_000, ChangePercent24h: 2, LastPrice: 1.02, BidPrice: 1.0, AskPrice: 1.0002},
	}

	result := r.Rank(context.Background(), tickers, nil, midRefs)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "A", result.Candidates[0].Base)
}
