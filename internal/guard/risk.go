package guard

import "github.com/shopspring/decimal"

// Level is the soft risk-off tier a portfolio currently sits in.
type Level int

const (
	LevelNormal   Level = 0
	LevelDrawdown Level = 1 // >= DrawdownThreshold off peak: warn, keep trading
	LevelPause    Level = 2 // >= PauseThreshold off peak: skip new allocation buys this cycle
)

// RiskConfig carries the two-tier soft guard's thresholds.
type RiskConfig struct {
	PauseThreshold    float64 // default 0.25
	DrawdownThreshold float64 // default 0.10
}

// CheckRisk classifies the current drawdown off peak equity into a
// Level. Ported from original_source/risk_off.py's check_risk, with one
// consolidation: the original tracked its own high-watermark file
// (portfolio_high.json) separately from position.py's PositionState.
// portfolio_peak, even though both are the same running max of equity —
// here there is only the one PositionState field, so CheckRisk takes the
// peak as a parameter instead of maintaining a second on-disk high.
func CheckRisk(equityNow float64, peak decimal.Decimal, cfg RiskConfig) (level Level, drawdown float64) {
	if equityNow <= 0 {
		return LevelNormal, 0
	}
	peakF, _ := peak.Float64()
	if peakF <= 0 {
		return LevelNormal, 0
	}
	drawdown = (peakF - equityNow) / peakF
	switch {
	case drawdown >= cfg.PauseThreshold:
		return LevelPause, drawdown
	case drawdown >= cfg.DrawdownThreshold:
		return LevelDrawdown, drawdown
	default:
		return LevelNormal, drawdown
	}
}
