// Package config provides configuration management functionality.
//
// This package handles loading configuration from environment variables
// (.env file) and process environment, following the Binance Convert
// bot's configuration table. There is no settings-database override layer:
// credentials and tuning parameters come only from the environment, read
// once at process startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/convertbot/internal/utils"
	"github.com/joho/godotenv"
)

// ScoringWeights holds the composite ranking model's term weights (C6).
type ScoringWeights struct {
	Edge       float64
	Liquidity  float64
	Momentum   float64
	Spread     float64
	Volatility float64
}

// Window is a UTC time-of-day window expressed as "HH:MM" boundaries.
type Window struct {
	From string // "HH:MM" UTC
	To   string // "HH:MM" UTC
}

// RegionConfig holds the per-region analyze/trade windows and scoring bias.
type RegionConfig struct {
	Name         string
	AnalyzeWindow Window
	TradeWindow   Window
	ScoreBias     float64
}

// Config holds application configuration.
type Config struct {
	// Credentials
	BinanceAPIKey    string
	BinanceAPISecret string

	// Endpoints
	APIBase        string
	MarketDataBase string

	// Signing / clock
	RecvWindowMS    int
	RecvWindowMaxMS int

	// Rate limiting
	QPS   float64
	Burst int

	// Retry policy
	BackoffBaseSec    float64
	BackoffMaxSec     float64
	BackoffMaxRetries int

	// Caching
	ExchangeInfoTTLSec int

	// Ranker tuning
	MinVolumeUSDT   float64
	MaxSpreadBps    float64
	TopK            int
	ShortlistMult   int
	ScoringWeights  ScoringWeights
	ScoreModel      string // "simple" or "composite", see §4.6
	HubAssets       []string

	// Regions
	Regions map[string]RegionConfig

	// Scheduler
	JitterSec int

	// SchedulerCron is the cron expression internal/scheduler.Daemon ticks
	// on when convertbot runs as a long-lived `serve` process instead of
	// being invoked per-phase by an external cron scheduler.
	SchedulerCron string

	// Execution
	DryRun bool

	// Guard thresholds
	PauseThreshold    float64 // severe risk-off trim, default 0.25
	DrawdownThreshold float64 // soft pre-guard warning, default 0.10
	GuardStopRatio    float64 // hard stop multiplier, default 0.85 (15% drawdown)

	// Cycle ceilings (quote_counter.py)
	MaxWeightPerCycle  int
	MaxRequestPerCycle int
	SoftRiskMaxRequest int

	// Order polling
	OrderPollIntervalSec int
	OrderPollMaxSec      int

	// Rebalance threshold
	RebalanceThreshold float64

	// Persistence
	DataDir string

	// Logging
	LogLevel string
	DevMode  bool

	// Optional status HTTP surface
	HTTPPort int

	// Optional S3 backup
	Backup BackupConfig
}

// BackupConfig holds optional S3-compatible backup settings.
type BackupConfig struct {
	Enabled         bool
	Bucket          string
	Region          string
	Prefix          string
	Interval        time.Duration
	AccessKeyID     string
	SecretAccessKey string
}

// Load reads configuration from environment variables.
//
// 1. Loads .env file if present (via godotenv; a missing file is not an error)
// 2. Reads environment variables with defaults per spec.md §6
// 3. Validates the result
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		BinanceAPIKey:    getEnv("BINANCE_API_KEY", ""),
		BinanceAPISecret: getEnv("BINANCE_API_SECRET", ""),

		APIBase:        getEnv("API_BASE", "https://api.binance.com"),
		MarketDataBase: getEnv("MARKETDATA_BASE", "https://api.binance.com"),

		RecvWindowMS:    getEnvAsInt("DEV3_RECV_WINDOW_MS", 5000),
		RecvWindowMaxMS: getEnvAsInt("DEV3_RECV_WINDOW_MAX_MS", 60000),

		QPS:   getEnvAsFloat("QPS", 8.0),
		Burst: getEnvAsInt("BURST", 16),

		BackoffBaseSec:    getEnvAsFloat("BACKOFF_BASE_S", 0.5),
		BackoffMaxSec:     getEnvAsFloat("BACKOFF_MAX_S", 30.0),
		BackoffMaxRetries: getEnvAsInt("BACKOFF_MAX_RETRIES", 5),

		ExchangeInfoTTLSec: getEnvAsInt("EXCHANGEINFO_TTL_SEC", 300),

		MinVolumeUSDT: getEnvAsFloat("MIN_VOLUME_USDT", 5_000_000),
		MaxSpreadBps:  getEnvAsFloat("MAX_SPREAD_BPS", 5.0),
		TopK:          getEnvAsInt("TOP_K", 5),
		ShortlistMult: getEnvAsInt("SHORTLIST_MULT", 2),
		ScoringWeights: ScoringWeights{
			Edge:       getEnvAsFloat("SCORING_WEIGHT_EDGE", 1.0),
			Liquidity:  getEnvAsFloat("SCORING_WEIGHT_LIQUIDITY", 0.1),
			Momentum:   getEnvAsFloat("SCORING_WEIGHT_MOMENTUM", 0.1),
			Spread:     getEnvAsFloat("SCORING_WEIGHT_SPREAD", 0.1),
			Volatility: getEnvAsFloat("SCORING_WEIGHT_VOLATILITY", 0.1),
		},
		ScoreModel: getEnv("SCORE_MODEL", "simple"),
		HubAssets:  getEnvAsCSV("HUB_ASSETS", []string{"USDT", "USDC", "BUSD", "BTC"}),

		JitterSec:     getEnvAsInt("JITTER_SEC", 30),
		SchedulerCron: getEnv("SCHEDULER_CRON", "*/5 * * * *"),

		DryRun: getEnvAsBool("DRY_RUN", true),

		PauseThreshold:    getEnvAsFloat("PAUSE_THRESHOLD", 0.25),
		DrawdownThreshold: getEnvAsFloat("DRAWDOWN_THRESHOLD", 0.10),
		GuardStopRatio:    getEnvAsFloat("GUARD_STOP_RATIO", 0.85),

		MaxWeightPerCycle:  getEnvAsInt("MAX_WEIGHT_PER_CYCLE", 10000),
		MaxRequestPerCycle: getEnvAsInt("MAX_PER_CYCLE", 20),
		SoftRiskMaxRequest: getEnvAsInt("SOFT_RISK_MAX_PER_CYCLE", 5),

		OrderPollIntervalSec: getEnvAsInt("ORDER_POLL_INTERVAL", 2),
		OrderPollMaxSec:      getEnvAsInt("ORDER_POLL_MAX_SEC", 60),

		RebalanceThreshold: getEnvAsFloat("REBALANCE_THRESHOLD", 0.08),

		DataDir: getEnv("CONVERTBOT_DATA_DIR", "./data"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		HTTPPort: getEnvAsInt("HTTP_PORT", 8090),

		Backup: BackupConfig{
			Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			Region:          getEnv("BACKUP_S3_REGION", "us-east-1"),
			Prefix:          getEnv("BACKUP_S3_PREFIX", "convertbot"),
			Interval:        time.Duration(getEnvAsInt("BACKUP_INTERVAL_MIN", 60)) * time.Minute,
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
		},
	}

	cfg.Regions = map[string]RegionConfig{
		"asia": {
			Name:          "asia",
			AnalyzeWindow: Window{From: getEnv("ASIA_ANALYZE_FROM", "00:00"), To: getEnv("ASIA_ANALYZE_TO", "02:00")},
			TradeWindow:   Window{From: getEnv("ASIA_TRADE_FROM", "02:00"), To: getEnv("ASIA_TRADE_TO", "04:00")},
			ScoreBias:     getEnvAsFloat("ASIA_SCORE_BIAS", 1.03),
		},
		"us": {
			Name:          "us",
			AnalyzeWindow: Window{From: getEnv("US_ANALYZE_FROM", "12:00"), To: getEnv("US_ANALYZE_TO", "14:00")},
			TradeWindow:   Window{From: getEnv("US_TRADE_FROM", "14:00"), To: getEnv("US_TRADE_TO", "16:00")},
			ScoreBias:     getEnvAsFloat("US_SCORE_BIAS", 1.05),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration for internal consistency.
func (c *Config) Validate() error {
	if c.RecvWindowMS <= 0 || c.RecvWindowMS > c.RecvWindowMaxMS {
		return fmt.Errorf("invalid DEV3_RECV_WINDOW_MS %d (max %d)", c.RecvWindowMS, c.RecvWindowMaxMS)
	}
	if c.RecvWindowMaxMS > 60000 {
		return fmt.Errorf("DEV3_RECV_WINDOW_MAX_MS must not exceed 60000, got %d", c.RecvWindowMaxMS)
	}
	if c.QPS <= 0 || c.Burst <= 0 {
		return fmt.Errorf("QPS and BURST must be positive, got QPS=%f BURST=%d", c.QPS, c.Burst)
	}
	if c.TopK <= 0 || c.ShortlistMult <= 0 {
		return fmt.Errorf("TOP_K and SHORTLIST_MULT must be positive")
	}
	if len(c.HubAssets) == 0 {
		return fmt.Errorf("HUB_ASSETS must not be empty")
	}
	return nil
}

// RegionOrDefault returns the named region's config, or a 1.0-biased
// anonymous region if unknown.
func (c *Config) RegionOrDefault(name string) RegionConfig {
	if r, ok := c.Regions[strings.ToLower(name)]; ok {
		return r
	}
	return RegionConfig{Name: name, ScoreBias: 1.0}
}

// ==========================================
// Helper Functions
// ==========================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsCSV(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := utils.ParseCSV(value)
	if len(parts) == 0 {
		return defaultValue
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.ToUpper(p)
	}
	return out
}
