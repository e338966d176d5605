// Package domain provides core domain models and types for the Convert
// rebalancing system: assets, wallets, balances, routes, quotes, orders,
// candidates, target allocations, rebalance actions and persisted position
// state, per the Data Model.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Wallet identifies the source of funds for a Convert operation.
type Wallet string

const (
	WalletSpot    Wallet = "SPOT"
	WalletFunding Wallet = "FUNDING"
)

// leveragedSuffixes are excluded from asset normalization: leveraged
// tokens are never treated as convertible base/quote assets.
var leveragedSuffixes = []string{"UP", "DOWN", "BULL", "BEAR", "5L", "5S", "PERP"}

// NormalizeAsset uppercases an asset symbol and reports whether it is a
// plain (non-leveraged) asset eligible for Convert routing.
func NormalizeAsset(raw string) (asset string, ok bool) {
	asset = strings.ToUpper(strings.TrimSpace(raw))
	if asset == "" {
		return "", false
	}
	for _, suf := range leveragedSuffixes {
		if strings.HasSuffix(asset, suf) && asset != suf {
			return asset, false
		}
	}
	return asset, true
}

// IsHub reports whether asset is USDT, the invariant convertibility hub.
// Other hub assets are configurable; USDT is always treated as one.
func IsHub(asset string, configuredHubs []string) bool {
	asset = strings.ToUpper(asset)
	if asset == "USDT" {
		return true
	}
	for _, h := range configuredHubs {
		if strings.ToUpper(h) == asset {
			return true
		}
	}
	return false
}

// Balance is an (asset, wallet, free, locked) tuple. Amounts are
// arbitrary-precision decimals, never binary floats.
type Balance struct {
	Asset  string
	Wallet Wallet
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// Symbol is the BASE+QUOTE concatenation used by the exchange (e.g. BTCUSDT).
// Lookup tables built from symbols are kept case-insensitive internally.
type Symbol struct {
	Base  string
	Quote string
}

// String returns the exchange wire-format symbol (e.g. "BTCUSDT").
func (s Symbol) String() string {
	return strings.ToUpper(s.Base) + strings.ToUpper(s.Quote)
}

// RouteStep is one leg of a ConvertRoute.
type RouteStep struct {
	FromAsset string
	ToAsset   string
	MinQuote  decimal.Decimal
	MaxQuote  decimal.Decimal
}

// ConvertRoute is an ordered, non-empty sequence of steps. Direct if
// len(Steps) == 1. Invariant: Steps[i].ToAsset == Steps[i+1].FromAsset.
// Route limits are taken from the first step.
type ConvertRoute struct {
	Steps []RouteStep
}

// IsDirect reports whether the route is a single Convert call.
func (r ConvertRoute) IsDirect() bool { return len(r.Steps) == 1 }

// MinQuote and MaxQuote are taken from the first step per the spec.
func (r ConvertRoute) MinQuote() decimal.Decimal {
	if len(r.Steps) == 0 {
		return decimal.Zero
	}
	return r.Steps[0].MinQuote
}

func (r ConvertRoute) MaxQuote() decimal.Decimal {
	if len(r.Steps) == 0 {
		return decimal.Zero
	}
	return r.Steps[0].MaxQuote
}

// Valid checks the chaining invariant: Steps[i].ToAsset == Steps[i+1].FromAsset.
func (r ConvertRoute) Valid() bool {
	if len(r.Steps) == 0 {
		return false
	}
	for i := 0; i < len(r.Steps)-1; i++ {
		if r.Steps[i].ToAsset != r.Steps[i+1].FromAsset {
			return false
		}
	}
	return true
}

// Describe renders a human-readable route description, e.g. "ETH -> USDT -> SOL".
func (r ConvertRoute) Describe() string {
	if len(r.Steps) == 0 {
		return ""
	}
	parts := []string{r.Steps[0].FromAsset}
	for _, s := range r.Steps {
		parts = append(parts, s.ToAsset)
	}
	return strings.Join(parts, " -> ")
}

// Quote is immutable once returned by the exchange. Stateful only via its
// QuoteID (the idempotency shield keys off it).
type Quote struct {
	QuoteID        string
	FromAsset      string
	ToAsset        string
	FromAmount     decimal.Decimal
	ToAmount       decimal.Decimal
	Ratio          decimal.Decimal
	InverseRatio   decimal.Decimal
	ValidTimestamp int64 // unix millis
	WalletType     Wallet
}

// Expired reports whether now is past the quote's ValidTimestamp.
func (q Quote) Expired(now time.Time) bool {
	return now.UnixMilli() > q.ValidTimestamp
}

// OrderStatus is the terminal/non-terminal state of an accepted Convert order.
type OrderStatus string

const (
	OrderProcess  OrderStatus = "PROCESS"
	OrderSuccess  OrderStatus = "SUCCESS"
	OrderFail     OrderStatus = "FAIL"
	OrderExpired  OrderStatus = "EXPIRED"
	OrderCanceled OrderStatus = "CANCELED"
)

// IsTerminal reports whether the status ends the order's lifecycle.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderSuccess, OrderFail, OrderExpired, OrderCanceled:
		return true
	default:
		return false
	}
}

// Order is the result of accepting a Quote. Lifecycle: PROCESS -> terminal, one-way.
type Order struct {
	OrderID    string
	QuoteID    string
	CreateTime int64
	Status     OrderStatus
	FromAmount decimal.Decimal
	ToAmount   decimal.Decimal
}

// Candidate is a ranked target asset produced by the Ranker (C6).
type Candidate struct {
	Rank              int
	Symbol            string
	Base              string
	Score             float64
	QuoteVolume24h    float64
	Change24hPercent  float64
	SpreadBps         float64
	LastPrice         float64
	Route             ConvertRoute
	RouteDescription  string
	MinQuote          decimal.Decimal
	MaxQuote          decimal.Decimal
}

// TargetAllocation is the desired weight of one asset in the portfolio.
// Invariant: the weights of all allocations in a set sum to <= 1; the
// scheme is {0.6,0.3,0.1} for 3 candidates, {0.7,0.3} for 2, {1.0} for 1.
type TargetAllocation struct {
	Asset           string
	Weight          float64
	QuoteAmount     decimal.Decimal
	Route           ConvertRoute
	MinQuote        decimal.Decimal
	MaxQuote        decimal.Decimal
	SourceCandidate *Candidate
}

// WeightScheme returns the allocation weight scheme for n eligible candidates.
func WeightScheme(n int) []float64 {
	switch n {
	case 1:
		return []float64{1.0}
	case 2:
		return []float64{0.7, 0.3}
	case 3:
		return []float64{0.6, 0.3, 0.1}
	default:
		return nil
	}
}

// RebalanceAction is a single planned swap. Amount is in units of FromAsset.
type RebalanceAction struct {
	FromAsset string
	ToAsset   string
	Amount    decimal.Decimal
	Route     ConvertRoute
	Reason    string // e.g. "liquidation", "allocation", "guard"
}

// PositionState is the durable snapshot of holdings and peak tracking,
// mutated only at end of trade phase and on successful guard execution.
type PositionState struct {
	Assets       map[string]decimal.Decimal `json:"assets"`
	Peaks        map[string]decimal.Decimal `json:"peaks"`
	PortfolioPeak decimal.Decimal           `json:"portfolio_peak"`
	TS           int64                      `json:"ts"` // unix millis
}

// NewPositionState returns an empty, zero-valued PositionState.
func NewPositionState() *PositionState {
	return &PositionState{
		Assets: make(map[string]decimal.Decimal),
		Peaks:  make(map[string]decimal.Decimal),
	}
}

// QuoteCounters is process-scoped, reset at the start of every cycle.
type QuoteCounters struct {
	RequestCount int
	TotalWeight  int
	ByEndpoint   map[string]int
}

// NewQuoteCounters returns a zeroed QuoteCounters ready for a new cycle.
func NewQuoteCounters() *QuoteCounters {
	return &QuoteCounters{ByEndpoint: make(map[string]int)}
}

// ConvertHistoryRecord is one persisted outcome of a RebalanceAction.
type ConvertHistoryRecord struct {
	QuoteID        string  `json:"quoteId"`
	OrderID        string  `json:"orderId,omitempty"`
	FromToken      string  `json:"from_token"`
	ToToken        string  `json:"to_token"`
	Ratio          string  `json:"ratio"`
	InverseRatio   string  `json:"inverseRatio"`
	FromAmount     string  `json:"from_amount"`
	ToAmount       string  `json:"to_amount"`
	Score          float64 `json:"score,omitempty"`
	ExpectedProfit float64 `json:"expected_profit,omitempty"`
	ProbUp         float64 `json:"prob_up,omitempty"`
	Accepted       bool    `json:"accepted"`
	ErrorCode      string  `json:"error_code,omitempty"`
	ErrorMsg       string  `json:"error_msg,omitempty"`
	Timestamp      int64   `json:"timestamp"`
}
