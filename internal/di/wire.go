// Package di wires every component into a single Container using plain
// constructor injection, the same pattern the teacher's own internal/di
// package uses (no reflection-based framework, no struct tags) — only the
// wiring list is new, not the approach. Wire is the one place in this
// module allowed to know about every package's concrete constructor.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/convertbot/internal/backup"
	"github.com/aristath/convertbot/internal/balances"
	"github.com/aristath/convertbot/internal/binance"
	"github.com/aristath/convertbot/internal/config"
	"github.com/aristath/convertbot/internal/convert"
	"github.com/aristath/convertbot/internal/domain"
	"github.com/aristath/convertbot/internal/guard"
	"github.com/aristath/convertbot/internal/healthcheck"
	"github.com/aristath/convertbot/internal/httpapi"
	"github.com/aristath/convertbot/internal/marketdata"
	"github.com/aristath/convertbot/internal/planner"
	"github.com/aristath/convertbot/internal/ranking"
	"github.com/aristath/convertbot/internal/route"
	"github.com/aristath/convertbot/internal/scheduler"
	"github.com/aristath/convertbot/internal/store"
	"github.com/rs/zerolog"
)

// Container holds every wired component the CLI and scheduler phases need.
type Container struct {
	Config *config.Config

	BinanceClient *binance.Client
	MarketData    *marketdata.Gateway
	ConvertGW     *convert.Gateway
	Balances      *balances.Reader
	Resolver      *route.Resolver
	Planner       *planner.Planner
	Executor      *convert.Executor
	Guard         *guard.Guard

	LedgerDB  *store.DB
	Positions domain.PositionStore
	History   domain.HistoryStore

	Health *healthcheck.Checker
	Backup *backup.Service // nil when BackupConfig.Enabled is false

	Log zerolog.Logger
}

// Wire constructs every component from cfg and returns the assembled
// Container. Callers are responsible for calling Close when done, which
// releases the SQLite ledger connection.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	client := binance.New(cfg, log)

	midRef := marketdata.NewMidRefCache(30 * time.Second)
	md := marketdata.New(client, log, midRef)
	convertGW := convert.New(client, log)
	balanceReader := balances.New(client, log)
	resolver := route.New(convertGW, cfg.HubAssets, log)

	plan := planner.New(resolver, planner.Config{RebalanceThreshold: cfg.RebalanceThreshold}, log)

	dbPath := cfg.DataDir + "/ledger.db"
	ledgerDB, err := store.Open(store.Config{Path: dbPath, Profile: store.ProfileLedger})
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	history := store.NewSQLiteHistoryStore(ledgerDB)
	positions := store.NewFilePositionStore(cfg.DataDir + "/position_state.json")

	executor := convert.NewExecutor(convertGW, history, convert.ExecutorConfig{
		OrderPollInterval: time.Duration(cfg.OrderPollIntervalSec) * time.Second,
		OrderPollMax:      time.Duration(cfg.OrderPollMaxSec) * time.Second,
		DryRun:            cfg.DryRun,
		Wallet:            domain.WalletSpot,
	}, log)

	g := guard.New(resolver, executor, balanceReader, positions, guard.Config{
		StopRatio: cfg.GuardStopRatio,
		Wallet:    domain.WalletSpot,
	}, log)

	health := healthcheck.New(cfg.DataDir, log)

	backupSvc, err := backup.New(context.Background(), cfg.Backup, cfg.DataDir, cfg.Backup.AccessKeyID, cfg.Backup.SecretAccessKey, log)
	if err != nil {
		return nil, fmt.Errorf("wire backup service: %w", err)
	}

	return &Container{
		Config:        cfg,
		BinanceClient: client,
		MarketData:    md,
		ConvertGW:     convertGW,
		Balances:      balanceReader,
		Resolver:      resolver,
		Planner:       plan,
		Executor:      executor,
		Guard:         g,
		LedgerDB:      ledgerDB,
		Positions:     positions,
		History:       history,
		Health:        health,
		Backup:        backupSvc,
		Log:           log,
	}, nil
}

// Close releases the ledger database connection. Other components hold
// no closable resources of their own.
func (c *Container) Close() error {
	if c.LedgerDB != nil {
		return c.LedgerDB.Close()
	}
	return nil
}

// NewRanker builds a ranking.Ranker biased for one region's score
// multiplier. The Ranker holds no state across calls beyond its config,
// so building one fresh per cycle (rather than keeping a single shared
// instance in Container) is what lets each region apply its own bias.
func (c *Container) NewRanker(regionBias float64) *ranking.Ranker {
	cfg := ranking.Config{
		MinVolumeUSDT: c.Config.MinVolumeUSDT,
		MaxSpreadBps:  c.Config.MaxSpreadBps,
		TopK:          c.Config.TopK,
		ShortlistMult: c.Config.ShortlistMult,
		Weights: ranking.ScoreWeights{
			Edge:       c.Config.ScoringWeights.Edge,
			Liquidity:  c.Config.ScoringWeights.Liquidity,
			Momentum:   c.Config.ScoringWeights.Momentum,
			Spread:     c.Config.ScoringWeights.Spread,
			Volatility: c.Config.ScoringWeights.Volatility,
		},
		RegionBias: regionBias,
		QuoteAsset: "USDT",
		Model:      c.Config.ScoreModel,
	}
	return ranking.New(c.MarketData, c.Resolver, cfg, c.Log)
}

// NewScheduler builds a scheduler.Scheduler for region, wiring its four
// phase functions to the cycle runner in cmd/convertbot. The scheduler's
// per-cycle reset hook is tied to the shared Binance client so repeated
// cycles in one process (internal/scheduler.Daemon) never leak state
// across cycles.
func (c *Container) NewScheduler(region config.RegionConfig, phases map[string]scheduler.PhaseFunc) *scheduler.Scheduler {
	sched := scheduler.New(region, c.Config.JitterSec, phases, c.Log)
	sched.SetResetFunc(c.BinanceClient.ResetCycle)
	return sched
}

// NewHTTPServer builds the optional read-only status surface.
func (c *Container) NewHTTPServer() *httpapi.Server {
	return httpapi.New(httpapi.Config{
		Log:       c.Log,
		Positions: c.Positions,
		History:   c.History,
		Health:    c.Health,
		Port:      c.Config.HTTPPort,
		DevMode:   c.Config.DevMode,
	})
}
