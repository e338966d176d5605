package marketdata

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aristath/convertbot/internal/domain"
)

// encodeSymbolList builds the JSON-array-in-a-query-param form Binance
// expects for the multi-symbol ticker endpoint, e.g. ["ETHUSDT","BTCUSDT"].
func encodeSymbolList(symbols []string) (string, error) {
	b, err := json.Marshal(symbols)
	if err != nil {
		return "", fmt.Errorf("encode symbol list: %w", err)
	}
	return string(b), nil
}

// parseTicker24hrResponse normalizes the single-object, array, or
// {"result": [...]} shapes the client can hand back into a symbol-keyed map.
func parseTicker24hrResponse(resp map[string]interface{}) (map[string]domain.Ticker24hr, error) {
	out := make(map[string]domain.Ticker24hr)

	if result, ok := resp["result"]; ok {
		items, ok := result.([]interface{})
		if !ok {
			return nil, fmt.Errorf("unexpected ticker24hr result shape")
		}
		for _, item := range items {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			t := parseSingleTicker24hr(m)
			out[t.Symbol] = t
		}
		return out, nil
	}

	// Single-object response (one symbol requested).
	t := parseSingleTicker24hr(resp)
	if t.Symbol != "" {
		out[t.Symbol] = t
	}
	return out, nil
}

func parseSingleTicker24hr(m map[string]interface{}) domain.Ticker24hr {
	return domain.Ticker24hr{
		Symbol:           stringField(m, "symbol"),
		QuoteVolume:      floatField(m, "quoteVolume"),
		ChangePercent24h: floatField(m, "priceChangePercent"),
		LastPrice:        floatField(m, "lastPrice"),
		BidPrice:         floatField(m, "bidPrice"),
		AskPrice:         floatField(m, "askPrice"),
	}
}

// parseKlines parses the raw array-of-arrays kline response shape into
// typed candles: [openTime, open, high, low, close, volume, closeTime, ...].
func parseKlines(resp map[string]interface{}) ([]domain.Kline, error) {
	result, ok := resp["result"]
	if !ok {
		return nil, fmt.Errorf("unexpected klines response shape")
	}
	rows, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("klines result is not an array")
	}

	out := make([]domain.Kline, 0, len(rows))
	for _, row := range rows {
		cols, ok := row.([]interface{})
		if !ok || len(cols) < 7 {
			continue
		}
		out = append(out, domain.Kline{
			OpenTime:  int64Cell(cols[0]),
			Open:      floatCell(cols[1]),
			High:      floatCell(cols[2]),
			Low:       floatCell(cols[3]),
			Close:     floatCell(cols[4]),
			Volume:    floatCell(cols[5]),
			CloseTime: int64Cell(cols[6]),
		})
	}
	return out, nil
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func floatField(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case float64:
		return v
	default:
		return 0
	}
}

func floatCell(v interface{}) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case float64:
		return t
	default:
		return 0
	}
}

func int64Cell(v interface{}) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}
