package guard

import (
	"context"
	"testing"

	"github.com/aristath/convertbot/internal/convert"
	"github.com/aristath/convertbot/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct{ allow map[string]bool }

func newFakeResolver() *fakeResolver { return &fakeResolver{allow: make(map[string]bool)} }

func (f *fakeResolver) Resolve(ctx context.Context, held map[string]decimal.Decimal, target string) (*domain.ConvertRoute, bool) {
	for from := range held {
		if f.allow[from+"->"+target] {
			return &domain.ConvertRoute{Steps: []domain.RouteStep{{FromAsset: from, ToAsset: target}}}, true
		}
	}
	return nil, false
}

type fakeExecutor struct{ executed []domain.RebalanceAction }

func (f *fakeExecutor) Execute(ctx context.Context, action domain.RebalanceAction) convert.Outcome {
	f.executed = append(f.executed, action)
	return convert.Outcome{Action: action, Succeeded: true}
}

type fakeBalances struct{ balances map[string]decimal.Decimal }

func (f *fakeBalances) ReadAll(ctx context.Context, wallet domain.Wallet) (map[string]decimal.Decimal, error) {
	return f.balances, nil
}

type fakePositions struct {
	saved *domain.PositionState
}

func (f *fakePositions) Load() (*domain.PositionState, error) { return domain.NewPositionState(), nil }
func (f *fakePositions) Save(state *domain.PositionState) error {
	f.saved = state
	return nil
}

func stateWith(asset string, amount, peak float64) *domain.PositionState {
	s := domain.NewPositionState()
	s.Assets[asset] = decimal.NewFromFloat(amount)
	s.Peaks[asset] = decimal.NewFromFloat(peak)
	return s
}

func TestRunNoTriggerWithinStopRatio(t *testing.T) {
	resolver := newFakeResolver()
	resolver.allow["BTC->USDT"] = true
	exec := &fakeExecutor{}
	g := New(resolver, exec, &fakeBalances{}, &fakePositions{}, Config{Wallet: domain.WalletSpot}, zerolog.Nop())

	state := stateWith("BTC", 1, 70000)
	result, err := g.Run(context.Background(), state, map[string]float64{"BTC": 65000}, false) // 65000 > 70000*0.85=59500
	require.NoError(t, err)
	assert.False(t, result.Triggered)
	assert.Empty(t, exec.executed)
}

func TestRunAssetTriggerLiquidatesSingleAsset(t *testing.T) {
	resolver := newFakeResolver()
	resolver.allow["BTC->USDT"] = true
	exec := &fakeExecutor{}
	positions := &fakePositions{}
	balances := &fakeBalances{balances: map[string]decimal.Decimal{"USDT": decimal.NewFromInt(100)}}
	g := New(resolver, exec, balances, positions, Config{Wallet: domain.WalletSpot}, zerolog.Nop())

	state := stateWith("BTC", 1, 70000)
	result, err := g.Run(context.Background(), state, map[string]float64{"BTC": 50000}, false) // 50000 <= 59500
	require.NoError(t, err)
	assert.True(t, result.Triggered)
	assert.False(t, result.PortfolioTrigger)
	require.Len(t, exec.executed, 1)
	assert.Equal(t, "BTC", exec.executed[0].FromAsset)
	assert.Equal(t, "guard", exec.executed[0].Reason)
	require.NotNil(t, positions.saved)
}

func TestRunPortfolioTriggerSupersedesAssetTriggers(t *testing.T) {
	resolver := newFakeResolver()
	resolver.allow["BTC->USDT"] = true
	resolver.allow["ETH->USDT"] = true
	exec := &fakeExecutor{}
	g := New(resolver, exec, &fakeBalances{}, &fakePositions{}, Config{Wallet: domain.WalletSpot}, zerolog.Nop())

	state := domain.NewPositionState()
	state.Assets["BTC"] = decimal.NewFromFloat(1)
	state.Assets["ETH"] = decimal.NewFromFloat(1000)
	state.Peaks["BTC"] = decimal.NewFromFloat(100000) // price below is 90% of peak, would not trigger alone
	state.Peaks["ETH"] = decimal.NewFromFloat(100)    // same, 90% of peak
	state.PortfolioPeak = decimal.NewFromFloat(300000) // portfolio was once much larger, so current equity is off by > 15% even though neither holding individually is

	prices := map[string]float64{"BTC": 90000, "ETH": 90}
	// equity = 90000 + 90000 = 180000 <= 300000*0.85=255000 -> portfolio trigger despite no asset trigger
	result, err := g.Run(context.Background(), state, prices, false)
	require.NoError(t, err)
	assert.True(t, result.Triggered)
	assert.True(t, result.PortfolioTrigger)
	assert.Len(t, exec.executed, 2)
}

func TestRunSkipsAssetsWithNoRoute(t *testing.T) {
	resolver := newFakeResolver() // nothing allowed
	exec := &fakeExecutor{}
	g := New(resolver, exec, &fakeBalances{}, &fakePositions{}, Config{Wallet: domain.WalletSpot}, zerolog.Nop())

	state := stateWith("BTC", 1, 70000)
	result, err := g.Run(context.Background(), state, map[string]float64{"BTC": 50000}, false)
	require.NoError(t, err)
	assert.False(t, result.Triggered)
	assert.Empty(t, exec.executed)
}

func TestRunDryRunSkipsPersistence(t *testing.T) {
	resolver := newFakeResolver()
	resolver.allow["BTC->USDT"] = true
	exec := &fakeExecutor{}
	positions := &fakePositions{}
	g := New(resolver, exec, &fakeBalances{}, positions, Config{Wallet: domain.WalletSpot}, zerolog.Nop())

	state := stateWith("BTC", 1, 70000)
	result, err := g.Run(context.Background(), state, map[string]float64{"BTC": 50000}, true)
	require.NoError(t, err)
	assert.True(t, result.Triggered)
	assert.Nil(t, positions.saved)
}
