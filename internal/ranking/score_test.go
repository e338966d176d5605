package ranking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimpleScoreMatchesWorkedExample(t *testing.T) {
	// A: qVol=10M, change=+5, spread=3bps, regionBias=1 (from §4.6 worked example)
	got := simpleScore(10_000_000, 5, 3, 1)
	want := math.Log10(10_000_001) * (1 + 0.05) / (1 + 0.3)
	assert.InDelta(t, want, got, 1e-9)
}

func TestSimpleScoreClampsExtremeMomentum(t *testing.T) {
	got := simpleScore(1_000_000, 500, 0, 1)
	want := math.Log10(1_000_001) * (1 + 0.5)
	assert.InDelta(t, want, got, 1e-9)
}

func TestSimpleScoreNeverNegative(t *testing.T) {
	got := simpleScore(0, -90, 1000, 1)
	assert.GreaterOrEqual(t, got, 0.0)
}

func TestSpreadBpsComputation(t *testing.T) {
	got := spreadBps(99, 101)
	assert.InDelta(t, 200.0, got, 1e-6)
}

func TestCompositeScoreEdgeSign(t *testing.T) {
	in := compositeInputs{QuoteRatio: 1.02, MidRef: 1.0, Liquidity: 1, Momentum: 1, SpreadBps: 5, High: 1.05, Low: 0.95}
	weights := ScoreWeights{Edge: 1, Liquidity: 0.1, Momentum: 0.1, Spread: 0.1, Volatility: 0.1}
	score, edge, vol := compositeScore(in, weights)
	assert.InDelta(t, 0.02, edge, 1e-9)
	assert.InDelta(t, 0.1, vol, 1e-9)
	assert.Greater(t, score, 0.0)
}

func TestVolatilityStdDevZeroForSingleSample(t *testing.T) {
	assert.Equal(t, 0.0, volatilityStdDev([]float64{100}))
}

func TestVolatilityATRRequiresEnoughSamples(t *testing.T) {
	assert.Equal(t, 0.0, volatilityATR([]float64{1, 2}, []float64{1, 2}, []float64{1, 2}, 14))
}
