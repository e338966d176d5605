// Package marketdata implements the unsigned Market Data Gateway (C2):
// thin wrappers over the public ticker/book/avgPrice/klines endpoints,
// plus the derived single-pair and cross-pair mid-price helpers that sit
// on top of them. Every method returns a zero value and an error (or
// false, for the mid-price helpers) on transport/parse failure rather
// than panicking — callers decide whether a missing price is fatal.
package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/aristath/convertbot/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// httpClient is the subset of *binance.Client the gateway depends on.
type httpClient interface {
	Unsigned(ctx context.Context, endpointKey, path string, params url.Values) (map[string]interface{}, error)
}

var _ domain.MarketDataGateway = (*Gateway)(nil)

// Gateway implements domain.MarketDataGateway over the public endpoints.
type Gateway struct {
	client httpClient
	log    zerolog.Logger
	midRef *MidRefCache
}

// New builds a Gateway. midRef, if non-nil, is the short-lived
// mid-reference cache that MidPrice populates and the Ranker's composite
// edge term can consult.
func New(client httpClient, log zerolog.Logger, midRef *MidRefCache) *Gateway {
	return &Gateway{
		client: client,
		log:    log.With().Str("component", "marketdata-gateway").Logger(),
		midRef: midRef,
	}
}

// TickerPrice returns the latest trade price for symbol.
func (g *Gateway) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	resp, err := g.client.Unsigned(ctx, "ticker.price.single", "/api/v3/ticker/price", url.Values{"symbol": {symbol}})
	if err != nil {
		return decimal.Zero, fmt.Errorf("ticker price %s: %w", symbol, err)
	}
	return decimalField(resp, "price")
}

// BookTicker returns the best bid/ask for symbol.
func (g *Gateway) BookTicker(ctx context.Context, symbol string) (bid, ask decimal.Decimal, err error) {
	resp, err := g.client.Unsigned(ctx, "ticker.book.single", "/api/v3/ticker/bookTicker", url.Values{"symbol": {symbol}})
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("book ticker %s: %w", symbol, err)
	}
	bid, err = decimalField(resp, "bidPrice")
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	ask, err = decimalField(resp, "askPrice")
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return bid, ask, nil
}

// AvgPrice returns the current average price for symbol.
func (g *Gateway) AvgPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	resp, err := g.client.Unsigned(ctx, "avgPrice", "/api/v3/avgPrice", url.Values{"symbol": {symbol}})
	if err != nil {
		return decimal.Zero, fmt.Errorf("avg price %s: %w", symbol, err)
	}
	return decimalField(resp, "price")
}

// Ticker24hr returns 24h rolling stats for the given symbols. A single
// symbol uses weight 2, a short list uses weight 40 (multi), anything
// else falls back to the all-symbols endpoint at weight 80.
func (g *Gateway) Ticker24hr(ctx context.Context, symbols []string) (map[string]domain.Ticker24hr, error) {
	var resp map[string]interface{}
	var err error

	switch {
	case len(symbols) == 1:
		resp, err = g.client.Unsigned(ctx, "ticker.24hr.single", "/api/v3/ticker/24hr", url.Values{"symbol": {symbols[0]}})
	case len(symbols) > 1 && len(symbols) <= 100:
		encoded, marshalErr := encodeSymbolList(symbols)
		if marshalErr != nil {
			return nil, marshalErr
		}
		resp, err = g.client.Unsigned(ctx, "ticker.24hr.multi", "/api/v3/ticker/24hr", url.Values{"symbols": {encoded}})
	default:
		resp, err = g.client.Unsigned(ctx, "ticker.24hr.all", "/api/v3/ticker/24hr", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("ticker 24hr: %w", err)
	}

	return parseTicker24hrResponse(resp)
}

// Klines returns up to limit OHLCV candles at the given interval.
func (g *Gateway) Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error) {
	resp, err := g.client.Unsigned(ctx, "klines", "/api/v3/klines", url.Values{
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit)},
	})
	if err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, interval, err)
	}
	return parseKlines(resp)
}

// MidPrice returns (bid+ask)/2 from the book ticker when both sides are
// positive, falling back to the average-price endpoint, per §4.2.
func (g *Gateway) MidPrice(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	bid, ask, err := g.BookTicker(ctx, symbol)
	if err == nil && bid.IsPositive() && ask.IsPositive() {
		mid := bid.Add(ask).Div(decimal.NewFromInt(2))
		if g.midRef != nil {
			g.midRef.Put(symbol, mid)
		}
		return mid, true
	}

	avg, err := g.AvgPrice(ctx, symbol)
	if err == nil && avg.IsPositive() {
		if g.midRef != nil {
			g.midRef.Put(symbol, avg)
		}
		return avg, true
	}

	g.log.Warn().Str("symbol", symbol).Msg("no price available")
	return decimal.Zero, false
}

// CrossMidPrice attempts a direct from+to pair, then each hub in order,
// combining (from+hub) / (to+hub), per §4.2.
func (g *Gateway) CrossMidPrice(ctx context.Context, from, to string, hubs []string) (decimal.Decimal, bool) {
	if price, ok := g.MidPrice(ctx, from+to); ok {
		return price, true
	}

	for _, hub := range hubs {
		if hub == to {
			if price, ok := g.MidPrice(ctx, from+hub); ok {
				return price, true
			}
			continue
		}
		fromHub, ok1 := g.MidPrice(ctx, from+hub)
		toHub, ok2 := g.MidPrice(ctx, to+hub)
		if ok1 && ok2 && toHub.IsPositive() {
			return fromHub.Div(toHub), true
		}
	}
	return decimal.Zero, false
}

func decimalField(resp map[string]interface{}, key string) (decimal.Decimal, error) {
	raw, ok := resp[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("missing field %q in response", key)
	}
	s, ok := raw.(string)
	if !ok {
		return decimal.Zero, fmt.Errorf("field %q is not a string: %v", key, raw)
	}
	return decimal.NewFromString(s)
}
