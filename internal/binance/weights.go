package binance

import (
	"sync"

	"github.com/aristath/convertbot/internal/domain"
)

// Weights is the fixed per-endpoint weight table from the exchange's
// published limits, ported verbatim from the original quote_counter.py
// table referenced by the external interfaces.
var Weights = map[string]int{
	"convert.exchangeInfo": 3000,
	"convert.assetInfo":    100,
	"convert.getQuote":     200,
	"convert.acceptQuote":  500,
	"convert.orderStatus":  100,
	"convert.tradeFlow":    3000,
	"account":              10,
	"funding.asset":        10,
	"capital.config":       10,
	"ticker.24hr.single":   2,
	"ticker.24hr.multi":    40,
	"ticker.24hr.all":      80,
	"ticker.price.single":  2,
	"ticker.price.all":     4,
	"ticker.book.single":   2,
	"ticker.book.all":      4,
	"avgPrice":             2,
	"klines":               2,
	"exchangeInfo.public":  10,
}

// counters tracks the process-scoped per-cycle request/weight ledger (C1's
// QuoteCounters). It is reset exactly once at the start of every cycle.
type counters struct {
	mu    sync.Mutex
	state *domain.QuoteCounters
}

// Reset clears the counters for a new cycle. Called exactly once at cycle start.
func (c *counters) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = domain.NewQuoteCounters()
}

// Record adds one request's weight to the current cycle under the given endpoint key.
func (c *counters) Record(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		c.state = domain.NewQuoteCounters()
	}
	w := Weights[endpoint]
	c.state.RequestCount++
	c.state.TotalWeight += w
	c.state.ByEndpoint[endpoint] += w
}

// Snapshot returns a copy of the current cycle's counters for logging.
func (c *counters) Snapshot() domain.QuoteCounters {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return *domain.NewQuoteCounters()
	}
	byEndpoint := make(map[string]int, len(c.state.ByEndpoint))
	for k, v := range c.state.ByEndpoint {
		byEndpoint[k] = v
	}
	return domain.QuoteCounters{
		RequestCount: c.state.RequestCount,
		TotalWeight:  c.state.TotalWeight,
		ByEndpoint:   byEndpoint,
	}
}

// SoftRisk reports whether the cycle's accumulated weight has crossed 70%
// of maxWeight — the graduated throttle from quote_counter.py that spec.md's
// P4 alludes to ("lowered to 5 on soft risk") without stating the exact
// trigger ratio.
func (c *counters) SoftRisk(maxWeight int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return false
	}
	return float64(c.state.TotalWeight) >= 0.7*float64(maxWeight)
}
