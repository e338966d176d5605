// Package ranking implements the Ranker (C6): filter -> score -> shortlist
// -> route-filter -> rank pipeline over 24h ticker statistics. Grounded on
// original_source's scheduler/portfolio scoring pass and on
// gonum.org/v1/gonum/stat + github.com/markcheno/go-talib for the
// dispersion terms the pure-Python original computed with plain
// arithmetic — the Go rework exercises the example corpus's numerical
// libraries instead of hand-rolling variance/ATR.
package ranking

import (
	"math"

	"gonum.org/v1/gonum/stat"

	talib "github.com/markcheno/go-talib"
)

func clampPercent(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// simpleScore implements the first scoring model from §4.6:
//
//	liquidity = log10(max(quoteVolume, 0) + 1)
//	momentum  = 1 + clamp(change24hPercent, -50, 50) / 100
//	spreadPenalty = 1 + spreadBps / 10
//	score = max(0, liquidity * momentum / spreadPenalty) * regionBias
func simpleScore(quoteVolume, change24hPercent, spreadBps, regionBias float64) float64 {
	liquidity := math.Log10(math.Max(quoteVolume, 0) + 1)
	momentum := 1 + clampPercent(change24hPercent, -50, 50)/100
	spreadPenalty := 1 + spreadBps/10
	base := liquidity * momentum / spreadPenalty
	if base < 0 {
		base = 0
	}
	return base * regionBias
}

// compositeInputs carries the terms the composite Convert-pair model needs.
type compositeInputs struct {
	QuoteRatio float64
	MidRef     float64
	Liquidity  float64
	Momentum   float64
	SpreadBps  float64
	High       float64
	Low        float64
}

// compositeScore implements the alternative model from §4.6:
//
//	edge = (quoteRatio - midRef) / midRef
//	S = w_edge*edge + w_liq*liquidity + w_mom*momentum - w_spr*spread - w_vol*volatility
//
// volatility is (high-low)/midRef over the last two 1-minute candles, the
// spec's own formula; volatilityATR and volatilityStdDev below offer the
// talib/gonum alternatives the ranker logs alongside it for comparison.
func compositeScore(in compositeInputs, weights ScoreWeights) (score, edge, volatility float64) {
	if in.MidRef == 0 {
		return 0, 0, 0
	}
	edge = (in.QuoteRatio - in.MidRef) / in.MidRef
	volatility = (in.High - in.Low) / in.MidRef
	score = weights.Edge*edge +
		weights.Liquidity*in.Liquidity +
		weights.Momentum*in.Momentum -
		weights.Spread*(in.SpreadBps/10000) -
		weights.Volatility*volatility
	return score, edge, volatility
}

// ScoreWeights mirrors config.ScoringWeights without importing internal/config.
type ScoreWeights struct {
	Edge       float64
	Liquidity  float64
	Momentum   float64
	Spread     float64
	Volatility float64
}

// volatilityStdDev is a gonum-backed dispersion measure over recent closes,
// expressed as a fraction of the mean close. Used only for diagnostic
// scoring output, not as the primary volatility term (the spec's high-low
// formula is authoritative there).
func volatilityStdDev(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}
	mean := stat.Mean(closes, nil)
	if mean == 0 {
		return 0
	}
	return stat.StdDev(closes, nil) / mean
}

// volatilityATR computes Wilder's Average True Range over kline data via
// go-talib, normalized by the last close. Returned as an alternative
// volatility measure alongside the spec's high-low formula; the ranker
// logs both at debug level but only the high-low value feeds the
// composite score, per §4.6.
func volatilityATR(highs, lows, closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 0
	}
	atr := talib.Atr(highs, lows, closes, period)
	last := atr[len(atr)-1]
	lastClose := closes[len(closes)-1]
	if lastClose == 0 {
		return 0
	}
	return last / lastClose
}

func spreadBps(bid, ask float64) float64 {
	mid := (bid + ask) / 2
	if mid == 0 {
		return math.Inf(1)
	}
	return math.Abs(ask-bid) / mid * 10000
}
