package ranking

import (
	"context"
	"sort"
	"strings"

	"github.com/aristath/convertbot/internal/domain"
	"github.com/aristath/convertbot/internal/marketdata"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Config carries the Ranker's tuning knobs, narrowed from config.Config so
// tests can build one directly (same pattern as convert.ExecutorConfig).
type Config struct {
	MinVolumeUSDT float64
	MaxSpreadBps  float64
	TopK          int
	ShortlistMult int
	Weights       ScoreWeights
	RegionBias    float64
	QuoteAsset    string // e.g. "USDT", the denominator every ranked symbol trades against
	Model         string // "simple" or "composite"
}

// Rejections counts shortlist dropouts by reason, per §4.6 step 5.
type Rejections struct {
	LowVolume  int
	WideSpread int
	NoRoute    int
}

// Result is the output of one Rank call.
type Result struct {
	Candidates []domain.Candidate
	Rejections Rejections
}

// Ranker implements the C6 filter->score->shortlist->route-filter->rank
// pipeline. It takes marketdata and routing as narrow interfaces so it can
// be unit tested against fakes without standing up a full binance.Client.
type Ranker struct {
	md       marketDataLookup
	resolver routeLookup
	cfg      Config
	log      zerolog.Logger
}

type marketDataLookup interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error)
}

type routeLookup interface {
	RouteExists(ctx context.Context, from, to string) bool
}

// New builds a Ranker.
func New(md marketDataLookup, resolver routeLookup, cfg Config, log zerolog.Logger) *Ranker {
	if cfg.Model == "" {
		cfg.Model = "simple"
	}
	return &Ranker{md: md, resolver: resolver, cfg: cfg, log: log.With().Str("component", "ranker").Logger()}
}

type scored struct {
	ticker domain.Ticker24hr
	base   string
	score  float64
	edge   float64
	vol    float64
}

// Rank runs the full pipeline over tickers (already restricted to the
// configured quote asset by the caller) and the set of assets currently
// held (used by the route-filter step). midRefs optionally supplies last
// known mid-reference prices per symbol for the composite model; pass nil
// to force the simple model regardless of cfg.Model.
func (r *Ranker) Rank(ctx context.Context, tickers map[string]domain.Ticker24hr, held map[string]decimal.Decimal, midRefs *marketdata.MidRefCache) Result {
	var rejections Rejections
	candidates := make([]scored, 0, len(tickers))

	for symbol, t := range tickers {
		spread := spreadBps(t.BidPrice, t.AskPrice)
		if t.QuoteVolume < r.cfg.MinVolumeUSDT {
			rejections.LowVolume++
			continue
		}
		if spread > r.cfg.MaxSpreadBps {
			rejections.WideSpread++
			continue
		}

		base := baseAsset(symbol, r.cfg.QuoteAsset)
		sc := scored{ticker: t, base: base}

		if r.cfg.Model == "composite" && midRefs != nil {
			if midRef, ok := midRefs.Get(symbol); ok {
				klines, _ := r.md.Klines(ctx, symbol, "1m", 15)
				high, low := highLow(lastN(klines, 2))
				liquidity := simpleScore(t.QuoteVolume, 0, 0, 1) // liquidity term only, reuse log10 piece
				momentum := 1 + clampPercent(t.ChangePercent24h, -50, 50)/100
				s, edge, vol := compositeScore(compositeInputs{
					QuoteRatio: t.LastPrice,
					MidRef:     midRefToFloat(midRef),
					Liquidity:  liquidity,
					Momentum:   momentum,
					SpreadBps:  spread,
					High:       high,
					Low:        low,
				}, r.cfg.Weights)
				sc.score, sc.edge, sc.vol = s, edge, vol

				if highs, lows, closes := splitOHLC(klines); len(closes) >= 2 {
					r.log.Debug().Str("symbol", symbol).
						Float64("volatility_highlow", vol).
						Float64("volatility_stddev", volatilityStdDev(closes)).
						Float64("volatility_atr", volatilityATR(highs, lows, closes, 14)).
						Msg("composite volatility diagnostics")
				}

				candidates = append(candidates, sc)
				continue
			}
		}

		sc.score = simpleScore(t.QuoteVolume, t.ChangePercent24h, spread, r.cfg.RegionBias)
		candidates = append(candidates, sc)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	shortlistN := r.cfg.TopK * r.cfg.ShortlistMult
	if shortlistN > len(candidates) {
		shortlistN = len(candidates)
	}
	shortlist := candidates[:shortlistN]

	out := make([]domain.Candidate, 0, r.cfg.TopK)
	for _, c := range shortlist {
		if len(out) >= r.cfg.TopK {
			break
		}
		if !r.hasRoute(ctx, held, c.base) {
			rejections.NoRoute++
			continue
		}
		out = append(out, domain.Candidate{
			Rank:             len(out) + 1,
			Symbol:           c.ticker.Symbol,
			Base:             c.base,
			Score:            c.score,
			QuoteVolume24h:   c.ticker.QuoteVolume,
			Change24hPercent: c.ticker.ChangePercent24h,
			SpreadBps:        spreadBps(c.ticker.BidPrice, c.ticker.AskPrice),
			LastPrice:        c.ticker.LastPrice,
		})
	}

	r.log.Info().Int("ranked", len(out)).Int("low_volume", rejections.LowVolume).
		Int("wide_spread", rejections.WideSpread).Int("no_route", rejections.NoRoute).Msg("ranking cycle complete")

	return Result{Candidates: out, Rejections: rejections}
}

// hasRoute reports whether any held asset (or the quote asset itself, since
// the planner can always buy a candidate with quote-asset liquidity) can
// reach base.
func (r *Ranker) hasRoute(ctx context.Context, held map[string]decimal.Decimal, base string) bool {
	if r.resolver.RouteExists(ctx, r.cfg.QuoteAsset, base) {
		return true
	}
	for asset, amount := range held {
		if asset == base || amount.LessThanOrEqual(decimal.Zero) {
			continue
		}
		if r.resolver.RouteExists(ctx, asset, base) {
			return true
		}
	}
	return false
}

// baseAsset strips the configured quote suffix from a wire symbol, e.g.
// "SOLUSDT" with quote "USDT" -> "SOL".
func baseAsset(symbol, quote string) string {
	if strings.HasSuffix(symbol, quote) {
		return strings.TrimSuffix(symbol, quote)
	}
	return symbol
}

func lastN(klines []domain.Kline, n int) []domain.Kline {
	if len(klines) <= n {
		return klines
	}
	return klines[len(klines)-n:]
}

func splitOHLC(klines []domain.Kline) (highs, lows, closes []float64) {
	for _, k := range klines {
		highs = append(highs, k.High)
		lows = append(lows, k.Low)
		closes = append(closes, k.Close)
	}
	return highs, lows, closes
}

func highLow(klines []domain.Kline) (high, low float64) {
	if len(klines) == 0 {
		return 0, 0
	}
	high, low = klines[0].High, klines[0].Low
	for _, k := range klines[1:] {
		if k.High > high {
			high = k.High
		}
		if k.Low < low {
			low = k.Low
		}
	}
	return high, low
}

func midRefToFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
