package marketdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTicker24hrSingleObject(t *testing.T) {
	resp := map[string]interface{}{
		"symbol": "ETHUSDT", "quoteVolume": "123456.78",
		"priceChangePercent": "2.5", "lastPrice": "2000.0",
		"bidPrice": "1999.5", "askPrice": "2000.5",
	}
	out, err := parseTicker24hrResponse(resp)
	require.NoError(t, err)
	require.Contains(t, out, "ETHUSDT")
	assert.Equal(t, 2.5, out["ETHUSDT"].ChangePercent24h)
}

func TestParseTicker24hrWrappedArray(t *testing.T) {
	resp := map[string]interface{}{
		"result": []interface{}{
			map[string]interface{}{"symbol": "ETHUSDT", "quoteVolume": "1.0"},
			map[string]interface{}{"symbol": "BTCUSDT", "quoteVolume": "2.0"},
		},
	}
	out, err := parseTicker24hrResponse(resp)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Contains(t, out, "BTCUSDT")
}

func TestParseKlines(t *testing.T) {
	resp := map[string]interface{}{
		"result": []interface{}{
			[]interface{}{float64(1000), "100.0", "105.0", "95.0", "102.0", "50.0", float64(1060)},
		},
	}
	klines, err := parseKlines(resp)
	require.NoError(t, err)
	require.Len(t, klines, 1)
	assert.Equal(t, int64(1000), klines[0].OpenTime)
	assert.Equal(t, 105.0, klines[0].High)
	assert.Equal(t, int64(1060), klines[0].CloseTime)
}

func TestEncodeSymbolList(t *testing.T) {
	encoded, err := encodeSymbolList([]string{"ETHUSDT", "BTCUSDT"})
	require.NoError(t, err)
	assert.Equal(t, `["ETHUSDT","BTCUSDT"]`, encoded)
}
