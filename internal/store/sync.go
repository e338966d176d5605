package store

import (
	"strings"
	"time"

	"github.com/aristath/convertbot/internal/domain"
	"github.com/shopspring/decimal"
)

// PriceFor looks up asset's USDT price, defaulting USDT itself to 1.0 and
// any other asset missing from priceMap to 0.0. This mirrors the original
// position-tracking module's own price lookup, which is a *different*
// default than the portfolio planner's ("missing price defaults to
// 1.0") — the planner is sizing a trade and would rather overestimate
// risk than divide by zero, while peak tracking here would rather treat
// an unpriceable asset as contributing nothing to equity than inflate it.
func PriceFor(asset string, priceMap map[string]float64) float64 {
	if asset == "USDT" {
		return 1.0
	}
	if p, ok := priceMap[asset]; ok {
		return p
	}
	return 0.0
}

// Equity sums state.Assets valued at priceMap.
func Equity(state *domain.PositionState, priceMap map[string]float64) float64 {
	total := 0.0
	for asset, amount := range state.Assets {
		amt, _ := amount.Float64()
		total += amt * PriceFor(asset, priceMap)
	}
	return total
}

// UpdatePeaks advances each held asset's peak price (monotonically, never
// decreasing) and the portfolio's peak equity, then stamps ts to now.
func UpdatePeaks(state *domain.PositionState, priceMap map[string]float64) {
	for asset, amount := range state.Assets {
		if !amount.IsPositive() {
			continue
		}
		price := PriceFor(asset, priceMap)
		if price <= 0 {
			continue
		}
		priceDec := decimal.NewFromFloat(price)
		if current, ok := state.Peaks[asset]; !ok || priceDec.GreaterThan(current) {
			state.Peaks[asset] = priceDec
		}
	}
	equityNow := decimal.NewFromFloat(Equity(state, priceMap))
	if equityNow.GreaterThan(state.PortfolioPeak) {
		state.PortfolioPeak = equityNow
	}
	state.TS = time.Now().UnixMilli()
}

// SyncFromBalances replaces previous's holdings with the actual balances
// read back from the exchange, then refreshes peaks. Zero and negative
// balances are dropped; asset symbols are upper-cased. Called at the end
// of the trade phase and after any guard-triggered liquidation so the
// durable state never drifts from what the exchange actually holds.
func SyncFromBalances(balances map[string]decimal.Decimal, priceMap map[string]float64, previous *domain.PositionState) *domain.PositionState {
	state := previous
	if state == nil {
		state = domain.NewPositionState()
	}
	state.Assets = make(map[string]decimal.Decimal, len(balances))
	for asset, amount := range balances {
		if amount.IsPositive() {
			state.Assets[strings.ToUpper(asset)] = amount
		}
	}
	UpdatePeaks(state, priceMap)
	return state
}
