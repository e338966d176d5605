// Package balances implements the Balance Reader (C4): a unified
// readAll(wallet) -> {asset: free} view over the Spot account endpoint
// (/api/v3/account) and the Funding asset endpoint
// (/sapi/v3/asset/getUserAsset). The wallet-unification shape (one
// ReadAll entry point dispatching on wallet) is grounded on
// original_source/src/core/balance.py's read_all(); the response
// parsing tolerates both the bare-list and the wrapped-list shapes
// Binance has used for these endpoints over time.
package balances

import (
	"context"
	"net/http"
	"net/url"

	"github.com/aristath/convertbot/internal/binance"
	"github.com/aristath/convertbot/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var _ domain.BalanceReader = (*Reader)(nil)

// Reader implements domain.BalanceReader over the signed account endpoints.
type Reader struct {
	client *binance.Client
	log    zerolog.Logger
}

// New builds a Reader.
func New(client *binance.Client, log zerolog.Logger) *Reader {
	return &Reader{client: client, log: log.With().Str("component", "balance-reader").Logger()}
}

// ReadAll returns {asset -> free} for the requested wallet. Locked
// amounts are intentionally not added, per §4.4's "available liquidity
// only" contract.
func (r *Reader) ReadAll(ctx context.Context, wallet domain.Wallet) (map[string]decimal.Decimal, error) {
	switch wallet {
	case domain.WalletFunding:
		return r.readFunding(ctx)
	default:
		return r.readSpot(ctx)
	}
}

func (r *Reader) readSpot(ctx context.Context) (map[string]decimal.Decimal, error) {
	resp, err := r.client.Signed(ctx, "account", http.MethodGet, "/api/v3/account", url.Values{}, 5000, false)
	if err != nil {
		return nil, err
	}
	return extractBalances(resp, []string{"balances"}, "free"), nil
}

func (r *Reader) readFunding(ctx context.Context) (map[string]decimal.Decimal, error) {
	resp, err := r.client.Signed(ctx, "funding.asset", http.MethodPost, "/sapi/v3/asset/getUserAsset",
		url.Values{"needBtcValuation": {"false"}}, 5000, true)
	if err != nil {
		return nil, err
	}
	return extractBalances(resp, []string{"assets"}, "free", "amount"), nil
}

// extractBalances normalizes the bare-list / wrapped-list response shapes
// into an {asset -> free} map. freeKeys is tried in order and the first
// key present in the item is used, even if its value is empty (the
// funding endpoint sometimes uses "amount" where "free" is absent).
func extractBalances(resp map[string]interface{}, wrapKeys []string, freeKeys ...string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)

	var items []interface{}
	if result, ok := resp["result"]; ok {
		items, _ = result.([]interface{})
	}
	if items == nil {
		for _, key := range wrapKeys {
			if raw, ok := resp[key]; ok {
				items, _ = raw.([]interface{})
				if items != nil {
					break
				}
			}
		}
	}

	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		raw, ok := m["asset"].(string)
		if !ok {
			continue
		}
		asset, ok := domain.NormalizeAsset(raw)
		if !ok {
			continue
		}

		var free decimal.Decimal
		for _, key := range freeKeys {
			if raw, ok := m[key]; ok {
				free = toDecimal(raw)
				break
			}
		}
		out[asset] = free
	}
	return out
}

func toDecimal(raw interface{}) decimal.Decimal {
	switch v := raw.(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(v)
	default:
		return decimal.Zero
	}
}
