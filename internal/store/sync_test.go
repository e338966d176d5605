package store

import (
	"testing"

	"github.com/aristath/convertbot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPriceForDefaultsMissingAssetToZero(t *testing.T) {
	assert.Equal(t, 1.0, PriceFor("USDT", nil))
	assert.Equal(t, 0.0, PriceFor("BTC", nil))
	assert.Equal(t, 65000.0, PriceFor("BTC", map[string]float64{"BTC": 65000}))
}

func TestEquitySumsAssetsAtPrice(t *testing.T) {
	state := &domain.PositionState{Assets: map[string]decimal.Decimal{
		"BTC":  decimal.NewFromFloat(1),
		"USDT": decimal.NewFromFloat(100),
	}}
	got := Equity(state, map[string]float64{"BTC": 65000})
	assert.InDelta(t, 65100, got, 1e-9)
}

func TestUpdatePeaksNeverDecreases(t *testing.T) {
	state := domain.NewPositionState()
	state.Assets["BTC"] = decimal.NewFromFloat(1)
	state.Peaks["BTC"] = decimal.NewFromFloat(70000)

	UpdatePeaks(state, map[string]float64{"BTC": 60000})
	assert.True(t, state.Peaks["BTC"].Equal(decimal.NewFromFloat(70000)))

	UpdatePeaks(state, map[string]float64{"BTC": 80000})
	assert.True(t, state.Peaks["BTC"].Equal(decimal.NewFromFloat(80000)))
}

func TestUpdatePeaksSkipsUnpricedAssets(t *testing.T) {
	state := domain.NewPositionState()
	state.Assets["XRP"] = decimal.NewFromFloat(100)

	UpdatePeaks(state, map[string]float64{})
	_, ok := state.Peaks["XRP"]
	assert.False(t, ok)
}

func TestUpdatePeaksAdvancesPortfolioPeak(t *testing.T) {
	state := domain.NewPositionState()
	state.Assets["BTC"] = decimal.NewFromFloat(1)
	state.PortfolioPeak = decimal.NewFromFloat(50000)

	UpdatePeaks(state, map[string]float64{"BTC": 65000})
	assert.True(t, state.PortfolioPeak.Equal(decimal.NewFromFloat(65000)))
}

func TestSyncFromBalancesDropsZeroAndNegative(t *testing.T) {
	balances := map[string]decimal.Decimal{
		"btc":  decimal.NewFromFloat(0.5),
		"usdt": decimal.Zero,
		"eth":  decimal.NewFromFloat(-1),
	}
	state := SyncFromBalances(balances, map[string]float64{"BTC": 65000}, nil)
	assert.Len(t, state.Assets, 1)
	assert.True(t, state.Assets["BTC"].Equal(decimal.NewFromFloat(0.5)))
}

func TestSyncFromBalancesPreservesPriorPeaks(t *testing.T) {
	prev := domain.NewPositionState()
	prev.Peaks["BTC"] = decimal.NewFromFloat(70000)

	balances := map[string]decimal.Decimal{"BTC": decimal.NewFromFloat(1)}
	state := SyncFromBalances(balances, map[string]float64{"BTC": 60000}, prev)
	assert.True(t, state.Peaks["BTC"].Equal(decimal.NewFromFloat(70000)))
}
