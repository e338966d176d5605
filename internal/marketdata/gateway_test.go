package marketdata

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	responses map[string]map[string]interface{}
	errs      map[string]error
	calls     []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{responses: map[string]map[string]interface{}{}, errs: map[string]error{}}
}

func (f *fakeClient) Unsigned(ctx context.Context, endpointKey, path string, params url.Values) (map[string]interface{}, error) {
	key := path
	if sym := params.Get("symbol"); sym != "" {
		key = path + ":" + sym
	}
	f.calls = append(f.calls, key)
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	return f.responses[key], nil
}

func testLogger() zerolog.Logger { return zerolog.Nop() }

func TestMidPricePrefersBookTicker(t *testing.T) {
	fc := newFakeClient()
	fc.responses["/api/v3/ticker/bookTicker:ETHUSDT"] = map[string]interface{}{
		"bidPrice": "100.0", "askPrice": "102.0",
	}
	g := New(fc, testLogger(), nil)

	price, ok := g.MidPrice(context.Background(), "ETHUSDT")
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromFloat(101.0)))
}

func TestMidPriceFallsBackToAvgPrice(t *testing.T) {
	fc := newFakeClient()
	fc.responses["/api/v3/ticker/bookTicker:ETHUSDT"] = map[string]interface{}{
		"bidPrice": "0", "askPrice": "0",
	}
	fc.responses["/api/v3/avgPrice:ETHUSDT"] = map[string]interface{}{"price": "101.5"}
	g := New(fc, testLogger(), nil)

	price, ok := g.MidPrice(context.Background(), "ETHUSDT")
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromFloat(101.5)))
}

func TestMidPriceNoPriceAvailable(t *testing.T) {
	fc := newFakeClient()
	g := New(fc, testLogger(), nil)

	_, ok := g.MidPrice(context.Background(), "NOPEUSDT")
	assert.False(t, ok)
}

func TestCrossMidPriceDirectPair(t *testing.T) {
	fc := newFakeClient()
	fc.responses["/api/v3/ticker/bookTicker:ETHBTC"] = map[string]interface{}{
		"bidPrice": "0.05", "askPrice": "0.06",
	}
	g := New(fc, testLogger(), nil)

	price, ok := g.CrossMidPrice(context.Background(), "ETH", "BTC", []string{"USDT", "BTC"})
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromFloat(0.055)))
}

func TestCrossMidPriceViaHub(t *testing.T) {
	fc := newFakeClient()
	fc.responses["/api/v3/ticker/bookTicker:ETHUSDT"] = map[string]interface{}{
		"bidPrice": "2000", "askPrice": "2000",
	}
	fc.responses["/api/v3/ticker/bookTicker:SOLUSDT"] = map[string]interface{}{
		"bidPrice": "100", "askPrice": "100",
	}
	g := New(fc, testLogger(), nil)

	price, ok := g.CrossMidPrice(context.Background(), "ETH", "SOL", []string{"USDT"})
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromInt(20)))
}

func TestMidRefCacheExpiresAndIsPopulatedByMidPrice(t *testing.T) {
	fc := newFakeClient()
	fc.responses["/api/v3/ticker/bookTicker:ETHUSDT"] = map[string]interface{}{
		"bidPrice": "100", "askPrice": "100",
	}
	ref := NewMidRefCache(10 * time.Millisecond)
	g := New(fc, testLogger(), ref)

	_, ok := g.MidPrice(context.Background(), "ETHUSDT")
	require.True(t, ok)

	cached, ok := ref.Get("ETHUSDT")
	require.True(t, ok)
	assert.True(t, cached.Equal(decimal.NewFromInt(100)))

	time.Sleep(20 * time.Millisecond)
	_, ok = ref.Get("ETHUSDT")
	assert.False(t, ok)
}
