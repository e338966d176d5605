package main

import (
	"context"
	"strings"

	"github.com/aristath/convertbot/internal/config"
	"github.com/aristath/convertbot/internal/domain"
	"github.com/aristath/convertbot/internal/guard"
	"github.com/aristath/convertbot/internal/marketdata"
	"github.com/aristath/convertbot/internal/store"
	"github.com/aristath/convertbot/internal/utils"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// usdtTickers fetches the full market and restricts it to pairs quoted in
// USDT, the shape ranking.Ranker.Rank expects from its caller.
func usdtTickers(ctx context.Context, md *marketdata.Gateway) (map[string]domain.Ticker24hr, error) {
	all, err := md.Ticker24hr(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Ticker24hr, len(all))
	for symbol, t := range all {
		if strings.HasSuffix(symbol, "USDT") {
			out[symbol] = t
		}
	}
	return out, nil
}

// priceMapFromTickers builds a {base asset -> last price} map from a
// USDT-quoted ticker set, for the planner/guard's price lookups.
func priceMapFromTickers(tickers map[string]domain.Ticker24hr) map[string]float64 {
	prices := make(map[string]float64, len(tickers))
	for symbol, t := range tickers {
		base := strings.TrimSuffix(symbol, "USDT")
		if base != "" {
			prices[base] = t.LastPrice
		}
	}
	return prices
}

// runPreAnalyze logs a read-only snapshot of current spot holdings and
// their convertibility, per §4's "emits a snapshot of holdings and their
// convertibility" — it never mutates PositionState (per §4.9, that only
// happens at end of trade phase or on a successful guard execution).
func runPreAnalyze(c phaseContext) error {
	defer utils.OperationTimer("pre_analyze", c.log)()
	ctx, log := c.ctx, c.log
	balances, err := container.Balances.ReadAll(ctx, domain.WalletSpot)
	if err != nil {
		return err
	}
	container.Resolver.ResetCycle()
	for asset, amount := range balances {
		if amount.LessThanOrEqual(decimal.Zero) || asset == "USDT" {
			continue
		}
		convertible := container.Resolver.RouteExists(ctx, asset, "USDT")
		log.Info().Str("asset", asset).Str("amount", amount.String()).Bool("convertible", convertible).Msg("pre-analyze holding")
	}
	return nil
}

// runAnalyze ranks the market and logs the shortlisted candidates. The
// trade phase re-derives its own ranking rather than consuming a file
// handed off by this phase, since `run --phase X` may be invoked as a
// separate OS process per phase (external cron deployment) with no
// shared memory between calls — only PositionState crosses phases.
func runAnalyze(c phaseContext) error {
	defer utils.OperationTimer("analyze", c.log)()
	ctx, log := c.ctx, c.log
	container.Resolver.ResetCycle()

	tickers, err := usdtTickers(ctx, container.MarketData)
	if err != nil {
		return err
	}
	held, err := container.Balances.ReadAll(ctx, domain.WalletSpot)
	if err != nil {
		return err
	}

	ranker := container.NewRanker(c.region.ScoreBias)
	result := ranker.Rank(ctx, tickers, held, nil)
	for _, cand := range result.Candidates {
		log.Info().Int("rank", cand.Rank).Str("base", cand.Base).Float64("score", cand.Score).Msg("analyze candidate")
	}
	return nil
}

// runTrade diffs target allocation against current holdings and executes
// the resulting RebalanceActions, then persists the post-trade position
// snapshot (the one PositionState mutation point besides guard, per §4.9).
func runTrade(c phaseContext) error {
	defer utils.OperationTimer("trade", c.log)()
	ctx, log := c.ctx, c.log
	container.Resolver.ResetCycle()

	tickers, err := usdtTickers(ctx, container.MarketData)
	if err != nil {
		return err
	}
	priceMap := priceMapFromTickers(tickers)

	held, err := container.Balances.ReadAll(ctx, domain.WalletSpot)
	if err != nil {
		return err
	}

	ranker := container.NewRanker(c.region.ScoreBias)
	ranked := ranker.Rank(ctx, tickers, held, nil)

	state := mustLoadState()
	equity := store.Equity(state, priceMap)
	targets := container.Planner.BuildTargetAllocation(ctx, ranked.Candidates, equity, held)
	actions := container.Planner.PlanRebalance(ctx, held, priceMap, targets)

	riskCfg := guard.RiskConfig{
		PauseThreshold:    container.Config.PauseThreshold,
		DrawdownThreshold: container.Config.DrawdownThreshold,
	}
	level, drawdown := guard.CheckRisk(equity, state.PortfolioPeak, riskCfg)
	switch level {
	case guard.LevelPause:
		log.Warn().Float64("drawdown", drawdown).Msg("risk-off pause threshold breached, skipping new allocation buys this cycle")
		actions = dropAllocationBuys(actions)
	case guard.LevelDrawdown:
		log.Warn().Float64("drawdown", drawdown).Msg("risk-off drawdown threshold breached, continuing to trade")
	}

	for _, action := range actions {
		outcome := container.Executor.Execute(ctx, action)
		log.Info().Str("from", action.FromAsset).Str("to", action.ToAsset).
			Bool("succeeded", outcome.Succeeded).Bool("skipped", outcome.Skipped).Str("reason", outcome.Reason).
			Msg("trade action executed")
	}

	if c.dryRun {
		return nil
	}
	refreshed, err := container.Balances.ReadAll(ctx, domain.WalletSpot)
	if err != nil {
		return err
	}
	synced := store.SyncFromBalances(refreshed, priceMap, state)
	return container.Positions.Save(synced)
}

// dropAllocationBuys removes new allocation purchases (spending USDT to
// acquire a ranked asset) while keeping liquidation and allocation-sell
// actions intact, per the pause tier's "skip new allocation buys" rule.
func dropAllocationBuys(actions []domain.RebalanceAction) []domain.RebalanceAction {
	out := make([]domain.RebalanceAction, 0, len(actions))
	for _, a := range actions {
		if a.FromAsset == "USDT" && a.Reason == "allocation" {
			continue
		}
		out = append(out, a)
	}
	return out
}

// runGuard checks drawdown against the durable peak and, on trigger,
// forces liquidation through the same Executor used by the trade phase.
func runGuard(c phaseContext) error {
	defer utils.OperationTimer("guard", c.log)()
	ctx := c.ctx
	tickers, err := usdtTickers(ctx, container.MarketData)
	if err != nil {
		return err
	}
	priceMap := priceMapFromTickers(tickers)

	state := mustLoadState()
	result, err := container.Guard.Run(ctx, state, priceMap, c.dryRun)
	if err != nil {
		return err
	}
	if result.Triggered {
		c.log.Warn().Strs("assets", result.TriggeredAssets).Bool("portfolio_trigger", result.PortfolioTrigger).Msg("guard triggered")
	}
	return nil
}

// mustLoadState loads PositionState, falling back to an empty state on
// any Load error (a missing state file is the expected first-run case,
// already handled inside FilePositionStore.Load).
func mustLoadState() *domain.PositionState {
	state, err := container.Positions.Load()
	if err != nil {
		return domain.NewPositionState()
	}
	return state
}

// phaseContext bundles the per-invocation values every phase needs.
type phaseContext struct {
	ctx    context.Context
	region config.RegionConfig
	dryRun bool
	log    zerolog.Logger
}
