// Package convert implements the signed Convert Gateway (C3) and the
// accept-and-poll execution state machine (C8) on top of the signed HTTP
// client. Grounded on original_source/src/core/convert_api.py for the
// five-endpoint shape and original_source/src/core/convert_middleware.py
// for the 8-decimal amount normalization and idempotency/re-quote
// behavior — reimplemented as explicit methods here rather than the
// original's import-time function-patching, per the Design Notes.
package convert

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/convertbot/internal/binance"
	"github.com/aristath/convertbot/internal/decimalx"
	"github.com/aristath/convertbot/internal/domain"
	"github.com/aristath/convertbot/internal/xerr"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var _ domain.ConvertGateway = (*Gateway)(nil)

// Gateway implements domain.ConvertGateway using the shared signed client.
type Gateway struct {
	client *binance.Client
	log    zerolog.Logger
}

// New builds a Gateway over client.
func New(client *binance.Client, log zerolog.Logger) *Gateway {
	return &Gateway{client: client, log: log.With().Str("component", "convert-gateway").Logger()}
}

// ExchangeInfo returns the convertible route for (from, to), consulting
// the TTL cache before issuing a signed request.
func (g *Gateway) ExchangeInfo(ctx context.Context, from, to string) (*domain.ConvertRoute, error) {
	if route, ok := g.client.Cache().Get(from, to); ok {
		return route, nil
	}

	resp, err := g.client.Signed(ctx, "convert.exchangeInfo", http.MethodGet, "/sapi/v1/convert/exchangeInfo",
		url.Values{"fromAsset": {from}, "toAsset": {to}}, 60000, false)
	if err != nil {
		return nil, err
	}

	route, err := parseExchangeInfo(from, to, resp)
	if err != nil {
		return nil, err
	}
	g.client.Cache().Put(from, to, route)
	return route, nil
}

// GetQuote requests a convert quote. fromAmount is floored to 8 decimal
// digits (round-toward-zero) before signing, per §4.3.
func (g *Gateway) GetQuote(ctx context.Context, from, to string, fromAmount decimal.Decimal, wallet domain.Wallet) (*domain.Quote, error) {
	floored := decimalx.FloorString8(fromAmount)
	if floored == "" || floored == "0" {
		return nil, xerr.New(xerr.KindBusinessRule, "", "fromAmount floors to zero at 8 decimals")
	}

	params := url.Values{
		"fromAsset":  {from},
		"toAsset":    {to},
		"fromAmount": {floored},
		"walletType": {string(wallet)},
	}

	resp, err := g.client.Signed(ctx, "convert.getQuote", http.MethodPost, "/sapi/v1/convert/getQuote", params, 60000, true)
	if err != nil {
		return nil, err
	}
	return parseQuote(from, to, wallet, resp)
}

// AcceptQuote accepts a previously issued quote. The idempotency shield
// guarantees a given quoteId hits the network at most once per process.
func (g *Gateway) AcceptQuote(ctx context.Context, quoteID string) (*domain.Order, bool, error) {
	if strings.TrimSpace(quoteID) == "" {
		return nil, false, xerr.New(xerr.KindConfigAuth, "", "acceptQuote: missing quoteId")
	}

	if g.client.Shield().CheckAndMark(quoteID) {
		g.log.Warn().Str("quote_id", quoteID).Msg("duplicate acceptQuote suppressed by idempotency shield")
		return nil, true, nil
	}

	resp, err := g.client.Signed(ctx, "convert.acceptQuote", http.MethodPost, "/sapi/v1/convert/acceptQuote",
		url.Values{"quoteId": {quoteID}}, 60000, true)
	if err != nil {
		return nil, false, err
	}

	order, err := parseOrder(quoteID, resp)
	if err != nil {
		return nil, false, err
	}
	if order.OrderID == "" {
		return nil, false, xerr.New(xerr.KindBusinessRule, "", "acceptQuote: no orderId in response")
	}
	return order, false, nil
}

// OrderStatus fetches the current order record for orderID or quoteID,
// at least one of which must be non-empty; orderID is used when both are.
func (g *Gateway) OrderStatus(ctx context.Context, orderID, quoteID string) (*domain.Order, error) {
	params := url.Values{}
	switch {
	case orderID != "":
		params.Set("orderId", orderID)
	case quoteID != "":
		params.Set("quoteId", quoteID)
	default:
		return nil, xerr.New(xerr.KindConfigAuth, "", "orderStatus: one of orderId/quoteId required")
	}

	resp, err := g.client.Signed(ctx, "convert.orderStatus", http.MethodGet, "/sapi/v1/convert/orderStatus", params, 60000, false)
	if err != nil {
		return nil, err
	}
	return parseOrder(quoteID, resp)
}

// TradeFlow returns Convert history between startMs and endMs (span must
// not exceed 31 days), paginated by cursor.
func (g *Gateway) TradeFlow(ctx context.Context, startMs, endMs int64, limit int, cursor string) ([]domain.ConvertHistoryRecord, string, error) {
	const maxSpanMs = 31 * 24 * 60 * 60 * 1000
	if endMs-startMs > maxSpanMs {
		return nil, "", xerr.New(xerr.KindClientRequest, "", "tradeFlow span exceeds 31 days")
	}

	params := url.Values{
		"startTime": {strconv.FormatInt(startMs, 10)},
		"endTime":   {strconv.FormatInt(endMs, 10)},
		"limit":     {strconv.Itoa(limit)},
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	resp, err := g.client.Signed(ctx, "convert.tradeFlow", http.MethodGet, "/sapi/v1/convert/tradeFlow", params, 60000, false)
	if err != nil {
		return nil, "", err
	}
	return parseTradeFlow(resp)
}

func parseExchangeInfo(from, to string, resp map[string]interface{}) (*domain.ConvertRoute, error) {
	min, _ := decimal.NewFromString(stringOr(resp, "fromAssetMinAmount", "0"))
	max, _ := decimal.NewFromString(stringOr(resp, "fromAssetMaxAmount", "0"))
	return &domain.ConvertRoute{
		Steps: []domain.RouteStep{{FromAsset: from, ToAsset: to, MinQuote: min, MaxQuote: max}},
	}, nil
}

func parseQuote(from, to string, wallet domain.Wallet, resp map[string]interface{}) (*domain.Quote, error) {
	quoteID := stringOr(resp, "quoteId", "")
	if quoteID == "" {
		return nil, xerr.New(xerr.KindBusinessRule, "", "getQuote: missing quoteId in response")
	}
	fromAmount, _ := decimal.NewFromString(stringOr(resp, "fromAmount", "0"))
	toAmount, _ := decimal.NewFromString(stringOr(resp, "toAmount", "0"))
	ratio, _ := decimal.NewFromString(stringOr(resp, "ratio", "0"))
	inverseRatio, _ := decimal.NewFromString(stringOr(resp, "inverseRatio", "0"))
	validTimestamp := int64Or(resp, "validTimestamp", time.Now().Add(10*time.Second).UnixMilli())

	return &domain.Quote{
		QuoteID:        quoteID,
		FromAsset:      from,
		ToAsset:        to,
		FromAmount:     fromAmount,
		ToAmount:       toAmount,
		Ratio:          ratio,
		InverseRatio:   inverseRatio,
		ValidTimestamp: validTimestamp,
		WalletType:     wallet,
	}, nil
}

func parseOrder(fallbackQuoteID string, resp map[string]interface{}) (*domain.Order, error) {
	orderID := stringOr(resp, "orderId", "")
	quoteID := stringOr(resp, "quoteId", fallbackQuoteID)
	status := parseOrderStatus(stringOr(resp, "orderStatus", ""))
	fromAmount, _ := decimal.NewFromString(stringOr(resp, "fromAmount", "0"))
	toAmount, _ := decimal.NewFromString(stringOr(resp, "toAmount", "0"))
	createTime := int64Or(resp, "createTime", 0)

	return &domain.Order{
		OrderID:    orderID,
		QuoteID:    quoteID,
		CreateTime: createTime,
		Status:     status,
		FromAmount: fromAmount,
		ToAmount:   toAmount,
	}, nil
}

func parseOrderStatus(raw string) domain.OrderStatus {
	switch strings.ToUpper(raw) {
	case "SUCCESS":
		return domain.OrderSuccess
	case "FAIL":
		return domain.OrderFail
	case "EXPIRED":
		return domain.OrderExpired
	case "CANCELED", "CANCELLED":
		return domain.OrderCanceled
	default:
		return domain.OrderProcess
	}
}

func parseTradeFlow(resp map[string]interface{}) ([]domain.ConvertHistoryRecord, string, error) {
	listRaw, ok := resp["list"]
	if !ok {
		listRaw, ok = resp["result"]
	}
	if !ok {
		return nil, "", fmt.Errorf("tradeFlow: unexpected response shape")
	}
	items, ok := listRaw.([]interface{})
	if !ok {
		return nil, "", fmt.Errorf("tradeFlow: list is not an array")
	}

	out := make([]domain.ConvertHistoryRecord, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, domain.ConvertHistoryRecord{
			QuoteID:      stringOr(m, "quoteId", ""),
			OrderID:      stringOr(m, "orderId", ""),
			FromToken:    stringOr(m, "fromAsset", ""),
			ToToken:      stringOr(m, "toAsset", ""),
			Ratio:        stringOr(m, "ratio", "0"),
			InverseRatio: stringOr(m, "inverseRatio", "0"),
			FromAmount:   stringOr(m, "fromAmount", "0"),
			ToAmount:     stringOr(m, "toAmount", "0"),
			Accepted:     true,
			Timestamp:    int64Or(m, "createTime", 0),
		})
	}

	nextCursor := stringOr(resp, "cursor", "")
	return out, nextCursor, nil
}

func stringOr(m map[string]interface{}, key, def string) string {
	if v, ok := m[key]; ok {
		switch t := v.(type) {
		case string:
			return t
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
	}
	return def
}

func int64Or(m map[string]interface{}, key string, def int64) int64 {
	if v, ok := m[key]; ok {
		switch t := v.(type) {
		case float64:
			return int64(t)
		case string:
			if n, err := strconv.ParseInt(t, 10, 64); err == nil {
				return n
			}
		}
	}
	return def
}
