package balances

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/convertbot/internal/binance"
	"github.com/aristath/convertbot/internal/config"
	"github.com/aristath/convertbot/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReader(t *testing.T, handler http.HandlerFunc) *Reader {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		BinanceAPIKey: "key", BinanceAPISecret: "secret",
		APIBase: server.URL, MarketDataBase: server.URL,
		RecvWindowMS: 5000, RecvWindowMaxMS: 60000,
		QPS: 50, Burst: 50, BackoffBaseSec: 0.01, BackoffMaxSec: 0.02, BackoffMaxRetries: 1,
		MaxWeightPerCycle: 100000, MaxRequestPerCycle: 1000, SoftRiskMaxRequest: 100,
	}
	client := binance.New(cfg, zerolog.Nop())
	client.ResetCycle()
	return New(client, zerolog.Nop())
}

func TestReadAllSpotFromBalancesArray(t *testing.T) {
	r := newTestReader(t, func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"balances": []interface{}{
				map[string]interface{}{"asset": "usdt", "free": "100.5", "locked": "0"},
				map[string]interface{}{"asset": "ETH", "free": "2.0", "locked": "1.0"},
			},
		})
	})

	out, err := r.ReadAll(context.Background(), domain.WalletSpot)
	require.NoError(t, err)
	assert.True(t, out["USDT"].Equal(decimal.NewFromFloat(100.5)))
	assert.True(t, out["ETH"].Equal(decimal.NewFromFloat(2.0)), "locked must not be added to free")
}

func TestReadAllFundingFallsBackToAmountField(t *testing.T) {
	r := newTestReader(t, func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode([]interface{}{
			map[string]interface{}{"asset": "BTC", "amount": "0.5"},
		})
	})

	out, err := r.ReadAll(context.Background(), domain.WalletFunding)
	require.NoError(t, err)
	assert.True(t, out["BTC"].Equal(decimal.NewFromFloat(0.5)))
}

func TestReadAllSkipsEntriesWithoutAsset(t *testing.T) {
	r := newTestReader(t, func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"balances": []interface{}{
				map[string]interface{}{"free": "5.0"},
				map[string]interface{}{"asset": "SOL", "free": "10.0"},
			},
		})
	})

	out, err := r.ReadAll(context.Background(), domain.WalletSpot)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Contains(t, out, "SOL")
}

func TestReadAllExcludesLeveragedTokens(t *testing.T) {
	r := newTestReader(t, func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"balances": []interface{}{
				map[string]interface{}{"asset": "BTCUP", "free": "10.0"},
				map[string]interface{}{"asset": "ETHBEAR", "free": "5.0"},
				map[string]interface{}{"asset": "BTC", "free": "1.0"},
			},
		})
	})

	out, err := r.ReadAll(context.Background(), domain.WalletSpot)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Contains(t, out, "BTC")
	assert.NotContains(t, out, "BTCUP")
	assert.NotContains(t, out, "ETHBEAR")
}
