package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// MarketDataGateway exposes the public (unsigned) market-data endpoints (C2).
type MarketDataGateway interface {
	TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	BookTicker(ctx context.Context, symbol string) (bid, ask decimal.Decimal, err error)
	AvgPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	Ticker24hr(ctx context.Context, symbols []string) (map[string]Ticker24hr, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
	MidPrice(ctx context.Context, symbol string) (decimal.Decimal, bool)
	CrossMidPrice(ctx context.Context, from, to string, hubs []string) (decimal.Decimal, bool)
}

// Ticker24hr is a parsed 24-hour rolling statistics record.
type Ticker24hr struct {
	Symbol           string
	QuoteVolume      float64
	ChangePercent24h float64
	LastPrice        float64
	BidPrice         float64
	AskPrice         float64
}

// Kline is a single OHLCV candle.
type Kline struct {
	OpenTime  int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64
}

// ConvertGateway exposes the signed Convert endpoints (C3).
type ConvertGateway interface {
	ExchangeInfo(ctx context.Context, from, to string) (*ConvertRoute, error)
	GetQuote(ctx context.Context, from, to string, fromAmount decimal.Decimal, wallet Wallet) (*Quote, error)
	AcceptQuote(ctx context.Context, quoteID string) (order *Order, duplicate bool, err error)
	OrderStatus(ctx context.Context, orderID, quoteID string) (*Order, error)
	TradeFlow(ctx context.Context, startMs, endMs int64, limit int, cursor string) ([]ConvertHistoryRecord, string, error)
}

// BalanceReader reads available balances from a wallet (C4).
type BalanceReader interface {
	ReadAll(ctx context.Context, wallet Wallet) (map[string]decimal.Decimal, error)
}

// RouteResolver determines convert routes between held assets and a target (C5).
type RouteResolver interface {
	Resolve(ctx context.Context, held map[string]decimal.Decimal, target string) (*ConvertRoute, bool)
	RouteExists(ctx context.Context, from, to string) bool
}

// PositionStore persists PositionState between runs (C9).
type PositionStore interface {
	Load() (*PositionState, error)
	Save(state *PositionState) error
}

// HistoryStore appends Convert outcome records to durable storage.
type HistoryStore interface {
	Append(record ConvertHistoryRecord) error
	Recent(limit int) ([]ConvertHistoryRecord, error)
}
