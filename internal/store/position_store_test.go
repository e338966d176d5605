package store

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/aristath/convertbot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePositionStoreLoadMissingReturnsEmptyState(t *testing.T) {
	s := NewFilePositionStore(filepath.Join(t.TempDir(), "position.json"))
	state, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, state.Assets)
	assert.Empty(t, state.Peaks)
}

func TestFilePositionStoreSaveThenLoadRoundTrips(t *testing.T) {
	s := NewFilePositionStore(filepath.Join(t.TempDir(), "position.json"))

	state := &domain.PositionState{
		Assets:        map[string]decimal.Decimal{"BTC": decimal.NewFromFloat(0.5)},
		Peaks:         map[string]decimal.Decimal{"BTC": decimal.NewFromFloat(70000)},
		PortfolioPeak: decimal.NewFromFloat(35000),
		TS:            1700000000000,
	}
	require.NoError(t, s.Save(state))

	got, err := s.Load()
	require.NoError(t, err)
	assert.True(t, got.Assets["BTC"].Equal(decimal.NewFromFloat(0.5)))
	assert.True(t, got.Peaks["BTC"].Equal(decimal.NewFromFloat(70000)))
	assert.True(t, got.PortfolioPeak.Equal(decimal.NewFromFloat(35000)))
	assert.Equal(t, int64(1700000000000), got.TS)
}

func TestFilePositionStoreSaveLeavesNoTempOrLockFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "position.json")
	s := NewFilePositionStore(path)
	require.NoError(t, s.Save(domain.NewPositionState()))

	assert.NoFileExists(t, path+".lock")
	entries, err := filepath.Glob(filepath.Join(dir, "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFilePositionStoreSerializesConcurrentWriters(t *testing.T) {
	s := NewFilePositionStore(filepath.Join(t.TempDir(), "position.json"))

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st := domain.NewPositionState()
			st.TS = int64(i)
			errs[i] = s.Save(st)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	got, err := s.Load()
	require.NoError(t, err)
	assert.NotNil(t, got)
}
