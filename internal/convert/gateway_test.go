package convert

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/convertbot/internal/binance"
	"github.com/aristath/convertbot/internal/config"
	"github.com/aristath/convertbot/internal/domain"
	"github.com/aristath/convertbot/internal/xerr"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"context"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) (*Gateway, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	cfg := &config.Config{
		BinanceAPIKey:      "key",
		BinanceAPISecret:   "secret",
		APIBase:            server.URL,
		MarketDataBase:     server.URL,
		RecvWindowMS:       5000,
		RecvWindowMaxMS:    60000,
		QPS:                50,
		Burst:              50,
		BackoffBaseSec:     0.01,
		BackoffMaxSec:      0.02,
		BackoffMaxRetries:  1,
		ExchangeInfoTTLSec: 60,
		MaxWeightPerCycle:  100000,
		MaxRequestPerCycle: 1000,
		SoftRiskMaxRequest: 100,
	}
	client := binance.New(cfg, zerolog.Nop())
	client.ResetCycle()
	return New(client, zerolog.Nop()), server
}

func TestGetQuoteParsesResponse(t *testing.T) {
	gw, server := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"quoteId": "q-1", "ratio": "10.5", "inverseRatio": "0.0952",
			"fromAmount": "1.0", "toAmount": "10.5", "validTimestamp": float64(9999999999999),
		})
	})
	defer server.Close()

	quote, err := gw.GetQuote(context.Background(), "ETH", "USDT", decimal.NewFromFloat(1.0), domain.WalletSpot)
	require.NoError(t, err)
	assert.Equal(t, "q-1", quote.QuoteID)
	assert.True(t, quote.Ratio.Equal(decimal.NewFromFloat(10.5)))
}

func TestGetQuoteMissingQuoteIdIsBusinessRule(t *testing.T) {
	gw, server := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"})
	})
	defer server.Close()

	_, err := gw.GetQuote(context.Background(), "ETH", "USDT", decimal.NewFromFloat(1.0), domain.WalletSpot)
	require.Error(t, err)
	var te *xerr.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, xerr.KindBusinessRule, te.Kind)
}

func TestAcceptQuoteReturnsOrder(t *testing.T) {
	gw, server := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"orderId": "o-1", "orderStatus": "SUCCESS"})
	})
	defer server.Close()

	order, duplicate, err := gw.AcceptQuote(context.Background(), "q-1")
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.Equal(t, "o-1", order.OrderID)
	assert.Equal(t, domain.OrderSuccess, order.Status)
}

func TestAcceptQuoteSecondCallIsDuplicate(t *testing.T) {
	calls := 0
	gw, server := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]interface{}{"orderId": "o-1", "orderStatus": "SUCCESS"})
	})
	defer server.Close()

	_, _, err := gw.AcceptQuote(context.Background(), "q-dup")
	require.NoError(t, err)

	order, duplicate, err := gw.AcceptQuote(context.Background(), "q-dup")
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Nil(t, order)
	assert.Equal(t, 1, calls, "second accept must not hit the network")
}

func TestAcceptQuoteEmptyIdRejected(t *testing.T) {
	gw, server := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("must not reach network with empty quoteId")
	})
	defer server.Close()

	_, _, err := gw.AcceptQuote(context.Background(), "")
	require.Error(t, err)
	var te *xerr.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, xerr.KindConfigAuth, te.Kind)
}

func TestOrderStatusRequiresOneIdentifier(t *testing.T) {
	gw, server := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("must not reach network without an identifier")
	})
	defer server.Close()

	_, err := gw.OrderStatus(context.Background(), "", "")
	require.Error(t, err)
}

func TestExchangeInfoIsCachedAfterFirstCall(t *testing.T) {
	calls := 0
	gw, server := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"fromAssetMinAmount": "0.001", "fromAssetMaxAmount": "100",
		})
	})
	defer server.Close()

	route1, err := gw.ExchangeInfo(context.Background(), "ETH", "USDT")
	require.NoError(t, err)
	route2, err := gw.ExchangeInfo(context.Background(), "ETH", "USDT")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.True(t, route1.MinQuote().Equal(route2.MinQuote()))
}

func TestTradeFlowRejectsSpanOverThirtyOneDays(t *testing.T) {
	gw, server := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("must not reach network for an invalid span")
	})
	defer server.Close()

	const day = int64(24 * 60 * 60 * 1000)
	_, _, err := gw.TradeFlow(context.Background(), 0, 32*day, 100, "")
	require.Error(t, err)
}
