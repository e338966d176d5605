// Package guard implements the hard stop-loss guard (C10): a 15%
// peak-to-trough stop, evaluated both per-asset and at the portfolio
// level, with the portfolio-level trigger superseding any per-asset
// triggers (it liquidates everything, not just the assets that
// individually tripped). Ported from original_source/src/core/guard.py's
// run_guard, which is itself a thin pass building RebalanceActions over
// internal/store.PositionState and handing them to the executor.
package guard

import (
	"context"
	"strings"

	"github.com/aristath/convertbot/internal/convert"
	"github.com/aristath/convertbot/internal/domain"
	"github.com/aristath/convertbot/internal/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type routeResolver interface {
	Resolve(ctx context.Context, held map[string]decimal.Decimal, target string) (*domain.ConvertRoute, bool)
}

type executor interface {
	Execute(ctx context.Context, action domain.RebalanceAction) convert.Outcome
}

type balanceReader interface {
	ReadAll(ctx context.Context, wallet domain.Wallet) (map[string]decimal.Decimal, error)
}

// Config carries the guard's one tuning knob.
type Config struct {
	StopRatio float64 // default 0.85 (a 15% peak-to-trough drop trips the guard)
	Wallet    domain.Wallet
}

// Guard evaluates and, when tripped, executes the hard stop.
type Guard struct {
	resolver  routeResolver
	exec      executor
	balances  balanceReader
	positions domain.PositionStore
	cfg       Config
	log       zerolog.Logger
}

// New builds a Guard.
func New(resolver routeResolver, exec executor, balances balanceReader, positions domain.PositionStore, cfg Config, log zerolog.Logger) *Guard {
	if cfg.StopRatio <= 0 {
		cfg.StopRatio = 0.85
	}
	return &Guard{resolver: resolver, exec: exec, balances: balances, positions: positions, cfg: cfg, log: log.With().Str("component", "guard").Logger()}
}

// Result summarizes one guard evaluation.
type Result struct {
	Triggered        bool
	TriggeredAssets  []string
	PortfolioTrigger bool
	Outcomes         []convert.Outcome
}

// Run evaluates the hard stop against state and priceMap (current USDT
// prices per held asset) and, if tripped, executes the liquidation and
// (outside dry-run) persists the resynced PositionState.
func (g *Guard) Run(ctx context.Context, state *domain.PositionState, priceMap map[string]float64, dryRun bool) (Result, error) {
	actions, triggeredAssets := g.assetTriggers(ctx, state, priceMap)

	portfolioTrigger := false
	equityNow := store.Equity(state, priceMap)
	if state.PortfolioPeak.IsPositive() {
		peakF, _ := state.PortfolioPeak.Float64()
		if equityNow <= peakF*g.cfg.StopRatio {
			portfolioTrigger = true
			actions, triggeredAssets = g.allHoldingsTriggers(ctx, state)
		}
	}

	if len(actions) == 0 {
		return Result{}, nil
	}

	g.log.Warn().Bool("portfolio_trigger", portfolioTrigger).Strs("assets", triggeredAssets).
		Msg("guard tripped, liquidating to USDT")

	outcomes := make([]convert.Outcome, 0, len(actions))
	for _, action := range actions {
		outcomes = append(outcomes, g.exec.Execute(ctx, action))
	}

	if !dryRun {
		balances, err := g.balances.ReadAll(ctx, g.cfg.Wallet)
		if err != nil {
			g.log.Error().Err(err).Msg("failed to resync balances after guard execution")
		} else {
			synced := store.SyncFromBalances(balances, priceMap, state)
			if err := g.positions.Save(synced); err != nil {
				g.log.Error().Err(err).Msg("failed to persist position state after guard execution")
			}
		}
	}

	return Result{
		Triggered:        true,
		TriggeredAssets:  triggeredAssets,
		PortfolioTrigger: portfolioTrigger,
		Outcomes:         outcomes,
	}, nil
}

// assetTriggers evaluates the per-asset 15%-off-peak stop.
func (g *Guard) assetTriggers(ctx context.Context, state *domain.PositionState, priceMap map[string]float64) ([]domain.RebalanceAction, []string) {
	var actions []domain.RebalanceAction
	var triggered []string

	for asset, amount := range state.Assets {
		if asset == "USDT" || !amount.IsPositive() {
			continue
		}
		peak, ok := state.Peaks[asset]
		if !ok || !peak.IsPositive() {
			continue
		}
		last := store.PriceFor(asset, priceMap)
		if last <= 0 {
			continue
		}
		peakF, _ := peak.Float64()
		if last > peakF*g.cfg.StopRatio {
			continue
		}

		route, ok := g.resolver.Resolve(ctx, map[string]decimal.Decimal{asset: amount}, "USDT")
		if !ok {
			continue
		}
		actions = append(actions, domain.RebalanceAction{
			FromAsset: asset, ToAsset: "USDT", Amount: amount, Route: *route, Reason: "guard",
		})
		triggered = append(triggered, asset)
	}
	return actions, triggered
}

// allHoldingsTriggers builds a full liquidation of every non-USDT
// holding, used once the portfolio-level trigger fires and supersedes
// whatever the per-asset pass found.
func (g *Guard) allHoldingsTriggers(ctx context.Context, state *domain.PositionState) ([]domain.RebalanceAction, []string) {
	var actions []domain.RebalanceAction
	var triggered []string

	for asset, amount := range state.Assets {
		if strings.EqualFold(asset, "USDT") || !amount.IsPositive() {
			continue
		}
		route, ok := g.resolver.Resolve(ctx, map[string]decimal.Decimal{asset: amount}, "USDT")
		if !ok {
			continue
		}
		actions = append(actions, domain.RebalanceAction{
			FromAsset: asset, ToAsset: "USDT", Amount: amount, Route: *route, Reason: "guard",
		})
		triggered = append(triggered, asset)
	}
	return actions, triggered
}
