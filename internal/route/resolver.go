// Package route implements the Route Resolver (C5): given a set of
// currently held assets and a target asset, finds the preferred
// ConvertRoute, preferring a direct pair over a two-leg hub route and
// memoizing results for the duration of a cycle. Grounded on the usage
// pattern in original_source/src/core/portfolio.py (route_exists /
// preferred_route called per held asset against USDT and then each
// configured hub in order) — the original doesn't ship the resolver's
// own implementation in the retrieved source, so the memoization and
// valuation tie-break are built fresh from §4.5.
package route

import (
	"context"
	"sync"

	"github.com/aristath/convertbot/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// exchangeInfoLookup is the subset of domain.ConvertGateway the resolver needs.
type exchangeInfoLookup interface {
	ExchangeInfo(ctx context.Context, from, to string) (*domain.ConvertRoute, error)
}

var _ domain.RouteResolver = (*Resolver)(nil)

// Resolver implements domain.RouteResolver over a Convert Gateway,
// memoizing exchangeInfo lookups for one cycle's worth of calls.
type Resolver struct {
	gw   exchangeInfoLookup
	hubs []string
	log  zerolog.Logger

	mu      sync.Mutex
	memo    map[string]*domain.ConvertRoute
	checked map[string]bool
}

// New builds a Resolver. hubs is the prioritized hub list, e.g.
// {"USDT", "USDC", "BUSD", "BTC"}.
func New(gw exchangeInfoLookup, hubs []string, log zerolog.Logger) *Resolver {
	return &Resolver{
		gw:      gw,
		hubs:    hubs,
		log:     log.With().Str("component", "route-resolver").Logger(),
		memo:    make(map[string]*domain.ConvertRoute),
		checked: make(map[string]bool),
	}
}

// ResetCycle clears the memoization tables. Call once at the start of
// every scheduler cycle.
func (r *Resolver) ResetCycle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memo = make(map[string]*domain.ConvertRoute)
	r.checked = make(map[string]bool)
}

// Resolve returns the preferred route from any asset in held to target.
// Direct pairs win; among direct candidates, the one with the largest
// spot valuation (held[asset]) wins. Otherwise a two-leg route through
// the first hub with both legs admissible is used.
func (r *Resolver) Resolve(ctx context.Context, held map[string]decimal.Decimal, target string) (*domain.ConvertRoute, bool) {
	var bestDirectAsset string
	bestValuation := decimal.Zero
	var bestDirectRoute *domain.ConvertRoute

	for asset, amount := range held {
		if asset == target || amount.LessThanOrEqual(decimal.Zero) {
			continue
		}
		if route, ok := r.directRoute(ctx, asset, target); ok {
			if bestDirectRoute == nil || amount.GreaterThan(bestValuation) {
				bestDirectAsset = asset
				bestValuation = amount
				bestDirectRoute = route
			}
		}
	}
	if bestDirectRoute != nil {
		r.log.Debug().Str("from", bestDirectAsset).Str("to", target).Msg("resolved direct route")
		return bestDirectRoute, true
	}

	for asset, amount := range held {
		if asset == target || amount.LessThanOrEqual(decimal.Zero) {
			continue
		}
		if route, ok := r.hubRoute(ctx, asset, target); ok {
			return route, true
		}
	}
	return nil, false
}

// RouteExists is the single-source variant of Resolve's resolution logic.
func (r *Resolver) RouteExists(ctx context.Context, from, to string) bool {
	if _, ok := r.directRoute(ctx, from, to); ok {
		return true
	}
	_, ok := r.hubRoute(ctx, from, to)
	return ok
}

func (r *Resolver) directRoute(ctx context.Context, from, to string) (*domain.ConvertRoute, bool) {
	step, ok := r.stepExists(ctx, from, to)
	if !ok {
		return nil, false
	}
	return &domain.ConvertRoute{Steps: []domain.RouteStep{step}}, true
}

func (r *Resolver) hubRoute(ctx context.Context, from, to string) (*domain.ConvertRoute, bool) {
	for _, hub := range r.hubs {
		if hub == from || hub == to {
			continue
		}
		leg1, ok := r.stepExists(ctx, from, hub)
		if !ok {
			continue
		}
		leg2, ok := r.stepExists(ctx, hub, to)
		if !ok {
			continue
		}
		route := &domain.ConvertRoute{Steps: []domain.RouteStep{leg1, leg2}}
		if route.Valid() {
			return route, true
		}
	}
	return nil, false
}

// stepExists checks (and memoizes) whether a single convertible leg
// from -> to exists, returning its RouteStep (with min/max quote bounds)
// when it does.
func (r *Resolver) stepExists(ctx context.Context, from, to string) (domain.RouteStep, bool) {
	key := from + "->" + to

	r.mu.Lock()
	if checked, ok := r.checked[key]; ok {
		route, exists := r.memo[key]
		r.mu.Unlock()
		if !checked || !exists {
			return domain.RouteStep{}, false
		}
		return route.Steps[0], true
	}
	r.mu.Unlock()

	route, err := r.gw.ExchangeInfo(ctx, from, to)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.checked[key] = true
	if err != nil || route == nil || len(route.Steps) == 0 {
		return domain.RouteStep{}, false
	}
	r.memo[key] = route
	return route.Steps[0], true
}
