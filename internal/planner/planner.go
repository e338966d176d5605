// Package planner implements the Portfolio Planner (C7): builds target
// allocations from ranked candidates, then diffs them against current
// holdings in a liquidation pass followed by an allocation pass. Ported
// line-for-line in spirit from original_source/src/core/portfolio.py's
// build_target_allocation/plan_rebalance, including its price-defaults-
// to-1.0-if-unknown quirk and its min/max-quote pool-shrinking loop.
package planner

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/aristath/convertbot/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Config carries the Planner's single tuning knob.
type Config struct {
	RebalanceThreshold float64 // default 0.08, see §4.7 step 3
}

// Planner implements the C7 allocation-building and rebalance-diffing logic.
type Planner struct {
	resolver domain.RouteResolver
	cfg      Config
	log      zerolog.Logger
}

// New builds a Planner.
func New(resolver domain.RouteResolver, cfg Config, log zerolog.Logger) *Planner {
	return &Planner{resolver: resolver, cfg: cfg, log: log.With().Str("component", "planner").Logger()}
}

type usableCandidate struct {
	candidate domain.Candidate
	route     domain.ConvertRoute
}

// BuildTargetAllocation implements §4.7 step 1: take the top 3 candidates,
// resolve a route from the held assets to each, then assign weights from
// domain.WeightScheme. If a candidate's quoteAmount would fall below its
// minQuote, it is dropped and the smaller pool's weights are recomputed;
// quoteAmount is capped at maxQuote when it would exceed it.
func (p *Planner) BuildTargetAllocation(ctx context.Context, candidates []domain.Candidate, totalEquity float64, fromAssets map[string]decimal.Decimal) []domain.TargetAllocation {
	top := candidates
	if len(top) > 3 {
		top = top[:3]
	}

	usable := make([]usableCandidate, 0, len(top))
	for _, c := range top {
		if c.Base == "" {
			continue
		}
		route, ok := p.resolver.Resolve(ctx, fromAssets, c.Base)
		if !ok {
			continue
		}
		usable = append(usable, usableCandidate{candidate: c, route: *route})
	}
	if len(usable) == 0 || totalEquity <= 0 {
		return nil
	}

	pool := usable
	for len(pool) > 0 {
		weights := domain.WeightScheme(len(pool))
		temp := make([]domain.TargetAllocation, 0, len(pool))
		removedIdx := -1

		for i, item := range pool {
			weight := weights[i]
			quoteAmount := decimal.NewFromFloat(totalEquity * weight)

			if item.candidate.MinQuote.IsPositive() && quoteAmount.LessThan(item.candidate.MinQuote) && len(pool) > 1 {
				removedIdx = i
				break
			}
			if item.candidate.MaxQuote.IsPositive() && quoteAmount.GreaterThan(item.candidate.MaxQuote) {
				quoteAmount = item.candidate.MaxQuote
			}

			candidate := item.candidate
			temp = append(temp, domain.TargetAllocation{
				Asset:           candidate.Base,
				Weight:          weight,
				QuoteAmount:     quoteAmount,
				Route:           item.route,
				MinQuote:        candidate.MinQuote,
				MaxQuote:        candidate.MaxQuote,
				SourceCandidate: &candidate,
			})
		}

		if removedIdx >= 0 {
			pool = append(append([]usableCandidate{}, pool[:removedIdx]...), pool[removedIdx+1:]...)
			continue
		}
		return temp
	}
	return nil
}

// PlanRebalance implements §4.7 steps 2-3.
func (p *Planner) PlanRebalance(ctx context.Context, holdings map[string]decimal.Decimal, priceMap map[string]float64, targets []domain.TargetAllocation) []domain.RebalanceAction {
	holdingsMap := make(map[string]decimal.Decimal, len(holdings))
	for asset, amount := range holdings {
		holdingsMap[strings.ToUpper(asset)] = amount
	}

	equity := totalEquity(holdingsMap, priceMap)
	if equity <= 0 {
		return nil
	}

	targeted := make(map[string]bool, len(targets))
	for _, t := range targets {
		targeted[strings.ToUpper(t.Asset)] = true
	}

	var actions []domain.RebalanceAction

	for _, asset := range sortedKeys(holdingsMap) {
		amount := holdingsMap[asset]
		if asset == "USDT" || targeted[asset] || !amount.IsPositive() {
			continue
		}
		route, ok := p.findRoute(ctx, asset, amount, "USDT")
		if !ok {
			continue
		}
		actions = append(actions, domain.RebalanceAction{
			FromAsset: asset, ToAsset: "USDT", Amount: amount, Route: route, Reason: "liquidation",
		})

		usdtNotional := amount.Mul(decimal.NewFromFloat(priceOf(priceMap, asset)))
		holdingsMap[asset] = decimal.Zero
		holdingsMap["USDT"] = holdingsMap["USDT"].Add(usdtNotional)
	}

	equity = totalEquity(holdingsMap, priceMap)
	if equity <= 0 {
		return actions
	}

	for _, target := range targets {
		asset := strings.ToUpper(target.Asset)
		price := priceOf(priceMap, asset)
		if price <= 0 {
			continue
		}
		priceDec := decimal.NewFromFloat(price)
		currentUnits := holdingsMap[asset]
		currentNotional := currentUnits.Mul(priceDec)
		diff := currentNotional.Sub(target.QuoteAmount)

		diffF, _ := diff.Float64()
		if math.Abs(diffF/equity) <= p.cfg.RebalanceThreshold {
			continue
		}

		if diff.IsPositive() {
			amountUnits := diff.Div(priceDec)
			route, ok := p.findRoute(ctx, asset, amountUnits, "USDT")
			if !ok || !amountUnits.IsPositive() {
				continue
			}
			actions = append(actions, domain.RebalanceAction{
				FromAsset: asset, ToAsset: "USDT", Amount: amountUnits, Route: route, Reason: "allocation",
			})
			holdingsMap[asset] = nonNegative(currentUnits.Sub(amountUnits))
			holdingsMap["USDT"] = holdingsMap["USDT"].Add(diff)
			continue
		}

		needNotional := diff.Neg()
		usdtAvailable := holdingsMap["USDT"]
		if !usdtAvailable.IsPositive() {
			continue
		}
		spend := decimal.Min(usdtAvailable, needNotional)
		if !spend.IsPositive() {
			continue
		}
		route, ok := p.findRoute(ctx, "USDT", spend, asset)
		if !ok {
			continue
		}
		actions = append(actions, domain.RebalanceAction{
			FromAsset: "USDT", ToAsset: asset, Amount: spend, Route: route, Reason: "allocation",
		})
		holdingsMap["USDT"] = nonNegative(usdtAvailable.Sub(spend))
		holdingsMap[asset] = holdingsMap[asset].Add(spend.Div(priceDec))
	}

	return actions
}

func (p *Planner) findRoute(ctx context.Context, from string, amount decimal.Decimal, to string) (domain.ConvertRoute, bool) {
	route, ok := p.resolver.Resolve(ctx, map[string]decimal.Decimal{from: amount}, to)
	if !ok || route == nil {
		return domain.ConvertRoute{}, false
	}
	return *route, true
}

// priceOf mirrors portfolio.py's price lookup: USDT is always 1.0, and any
// other asset missing from priceMap also defaults to 1.0 rather than 0 (a
// quirk of the original the spec doesn't override, so it is preserved).
func priceOf(priceMap map[string]float64, asset string) float64 {
	if asset == "USDT" {
		return 1.0
	}
	if p, ok := priceMap[asset]; ok {
		return p
	}
	return 1.0
}

func totalEquity(holdings map[string]decimal.Decimal, priceMap map[string]float64) float64 {
	total := 0.0
	for asset, amount := range holdings {
		amt, _ := amount.Float64()
		total += amt * priceOf(priceMap, asset)
	}
	return total
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
