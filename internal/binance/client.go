// Package binance implements the signed HTTP client (C1): HMAC-SHA256
// request signing, clock-skew detection/compensation, token-bucket rate
// limiting with per-endpoint weight accounting, a categorized retry
// policy, and the idempotency shield for acceptQuote. Grounded in the
// request-queue pattern of the Tradernet SDK client, reworked from a
// simple elapsed-time limiter into an actual token bucket and extended
// with the retry/backoff/weight-accounting behavior the original broker
// integration didn't need.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aristath/convertbot/internal/config"
	"github.com/aristath/convertbot/internal/domain"
	"github.com/aristath/convertbot/internal/xerr"
	"github.com/rs/zerolog"
)

// Client is the signed REST client shared by every gateway.
type Client struct {
	apiKey     string
	apiSecret  string
	apiBase    string
	mdBase     string
	httpClient *http.Client
	log        zerolog.Logger

	bucket  *TokenBucket
	fanout  chan struct{} // concurrency cap for per-symbol fan-out, QPS*2 in-flight
	cnt     counters
	shield  *idempotencyShield
	cache   *exchangeInfoCache

	clockOffsetMS atomic.Int64

	recvWindowMS    int
	recvWindowMaxMS int

	backoffBase       time.Duration
	backoffMax        time.Duration
	backoffMaxRetries int

	maxWeightPerCycle  int
	maxRequestPerCycle int
	softRiskMaxRequest int
}

// New builds a Client from application configuration.
func New(cfg *config.Config, log zerolog.Logger) *Client {
	qps := cfg.QPS
	burst := cfg.Burst
	c := &Client{
		apiKey:     cfg.BinanceAPIKey,
		apiSecret:  cfg.BinanceAPISecret,
		apiBase:    strings.TrimRight(cfg.APIBase, "/"),
		mdBase:     strings.TrimRight(cfg.MarketDataBase, "/"),
		httpClient: &http.Client{Timeout: 20 * time.Second},
		log:        log.With().Str("component", "binance-client").Logger(),

		bucket: NewTokenBucket(qps, burst),
		fanout: make(chan struct{}, int(math.Max(1, qps*2))),
		shield: newIdempotencyShield(),
		cache:  newExchangeInfoCache(time.Duration(cfg.ExchangeInfoTTLSec) * time.Second),

		recvWindowMS:    cfg.RecvWindowMS,
		recvWindowMaxMS: cfg.RecvWindowMaxMS,

		backoffBase:       time.Duration(cfg.BackoffBaseSec * float64(time.Second)),
		backoffMax:        time.Duration(cfg.BackoffMaxSec * float64(time.Second)),
		backoffMaxRetries: cfg.BackoffMaxRetries,

		maxWeightPerCycle:  cfg.MaxWeightPerCycle,
		maxRequestPerCycle: cfg.MaxRequestPerCycle,
		softRiskMaxRequest: cfg.SoftRiskMaxRequest,
	}
	return c
}

// ResetCycle clears the per-cycle request/weight counters and the
// idempotency shield. Must be called exactly once at the start of every
// scheduler cycle, so a long-lived process driving repeated cycles (see
// internal/scheduler.Daemon) never carries a prior cycle's accepted
// quoteIds into the next one.
func (c *Client) ResetCycle() {
	c.cnt.Reset()
	c.shield.Reset()
}

// CycleSnapshot returns the current cycle's counters for the end-of-cycle
// summary log line.
func (c *Client) CycleSnapshot() domain.QuoteCounters { return c.cnt.Snapshot() }

// Shield exposes the idempotency shield to the Convert Gateway.
func (c *Client) Shield() *idempotencyShield { return c.shield }

// Cache exposes the exchangeInfo TTL cache to the Convert Gateway.
func (c *Client) Cache() *exchangeInfoCache { return c.cache }

// AcquireFanout blocks until a fan-out slot is available (bounds
// concurrent per-symbol reads to QPS*2 in-flight requests, per §5) and
// returns a release function.
func (c *Client) AcquireFanout(ctx context.Context) (release func(), err error) {
	select {
	case c.fanout <- struct{}{}:
		return func() { <-c.fanout }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	}
}

// requestCapExceeded reports whether the cycle has exhausted its request
// budget, applying the soft-risk graduated throttle (drop cap to
// softRiskMaxRequest once cycle weight crosses 70% of maxWeightPerCycle).
func (c *Client) requestCapExceeded() bool {
	snap := c.cnt.Snapshot()
	requestCap := c.maxRequestPerCycle
	if c.cnt.SoftRisk(c.maxWeightPerCycle) {
		requestCap = c.softRiskMaxRequest
	}
	return snap.RequestCount >= requestCap || snap.TotalWeight >= c.maxWeightPerCycle
}

// Unsigned issues a GET request to the market-data base URL without
// signing, used by the Market Data Gateway (C2).
func (c *Client) Unsigned(ctx context.Context, endpointKey, path string, params url.Values) (map[string]interface{}, error) {
	return c.do(ctx, endpointKey, http.MethodGet, c.mdBase, path, params, false, false)
}

// Signed issues a signed GET or POST request to the trading API base URL,
// used by the Convert Gateway (C3) and Balance Reader (C4). When
// bodyEncoded is true, the signed parameters are placed in an
// application/x-www-form-urlencoded POST body (required for acceptQuote);
// otherwise they are placed in the query string.
func (c *Client) Signed(ctx context.Context, endpointKey, method, path string, params url.Values, recvWindowMS int, bodyEncoded bool) (map[string]interface{}, error) {
	return c.doSigned(ctx, endpointKey, method, path, params, recvWindowMS, bodyEncoded)
}

func (c *Client) doSigned(ctx context.Context, endpointKey, method, path string, params url.Values, recvWindowMS int, bodyEncoded bool) (map[string]interface{}, error) {
	if c.apiKey == "" || c.apiSecret == "" {
		return nil, xerr.New(xerr.KindConfigAuth, "", "missing API credentials")
	}
	if recvWindowMS <= 0 {
		recvWindowMS = c.recvWindowMS
	}
	if recvWindowMS > c.recvWindowMaxMS {
		recvWindowMS = c.recvWindowMaxMS
	}

	return c.doWithRetry(ctx, endpointKey, func() (map[string]interface{}, error) {
		signedParams := cloneValues(params)
		timestamp := time.Now().UnixMilli() + c.clockOffsetMS.Load()
		signedParams.Set("timestamp", strconv.FormatInt(timestamp, 10))
		signedParams.Set("recvWindow", strconv.Itoa(recvWindowMS))

		queryString := signedParams.Encode()
		signature := c.sign(queryString)
		signedParams.Set("signature", signature)

		var req *http.Request
		var err error
		if bodyEncoded && method == http.MethodPost {
			req, err = http.NewRequestWithContext(ctx, method, c.apiBase+path, strings.NewReader(signedParams.Encode()))
			if err == nil {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}
		} else {
			full := c.apiBase + path + "?" + signedParams.Encode()
			req, err = http.NewRequestWithContext(ctx, method, full, nil)
		}
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
		req.Header.Set("User-Agent", "convertbot/1.0")

		return c.send(req)
	})
}

func (c *Client) do(ctx context.Context, endpointKey, method, base, path string, params url.Values, signed, bodyEncoded bool) (map[string]interface{}, error) {
	return c.doWithRetry(ctx, endpointKey, func() (map[string]interface{}, error) {
		full := base + path
		if len(params) > 0 {
			full += "?" + params.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, method, full, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", "convertbot/1.0")
		return c.send(req)
	})
}

// doWithRetry applies the token bucket, the retry taxonomy (§4.1/§7) and
// weight accounting around a single request attempt function.
func (c *Client) doWithRetry(ctx context.Context, endpointKey string, attempt func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	if c.requestCapExceeded() {
		return nil, xerr.New(xerr.KindDailyLimit, "", "cycle request/weight budget exhausted")
	}

	var lastErr error
	for try := 0; try <= c.backoffMaxRetries; try++ {
		if err := c.bucket.Take(ctx); err != nil {
			return nil, err
		}

		c.cnt.Record(endpointKey)
		result, err := attempt()
		if err == nil {
			return result, nil
		}
		lastErr = err

		te, ok := err.(*xerr.Error)
		if !ok {
			return nil, err
		}

		switch te.Kind {
		case xerr.KindClockSkew:
			if serverErr := c.syncClockOffset(ctx); serverErr != nil {
				c.log.Warn().Err(serverErr).Msg("failed to resync clock offset after -1021")
			}
			if try >= 1 {
				// spec.md: fetch server time, update offset, retry once.
				return nil, err
			}
			continue
		case xerr.KindTransient:
			if try >= c.backoffMaxRetries {
				return nil, err
			}
			time.Sleep(c.backoffDelay(try))
			continue
		default:
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) backoffDelay(try int) time.Duration {
	base := float64(c.backoffBase) * math.Pow(2, float64(try))
	capped := math.Min(base, float64(c.backoffMax))
	jitter := capped * 0.25 * rand.Float64()
	return time.Duration(capped + jitter)
}

// syncClockOffset fetches server time and updates ClockOffset =
// serverTime - localTime, per the clock-skew recovery policy.
func (c *Client) syncClockOffset(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/api/v3/time", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var payload struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return err
	}
	localNow := time.Now().UnixMilli()
	c.clockOffsetMS.Store(payload.ServerTime - localNow)
	c.log.Info().Int64("offset_ms", payload.ServerTime-localNow).Msg("clock offset resynced")
	return nil
}

// send performs the HTTP round trip and classifies the outcome per the
// error taxonomy in §7, decoding a successful body into a generic map.
func (c *Client) send(req *http.Request) (map[string]interface{}, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindTransient, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindTransient, "", err)
	}

	if resp.StatusCode != http.StatusOK {
		if code, msg, ok := parseErrorBody(body); ok {
			return nil, xerr.FromExchangeCode(code, msg)
		}
		return nil, xerr.FromHTTPStatus(resp.StatusCode, truncate(string(body), 500))
	}

	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode response: %w (body: %s)", err, truncate(string(body), 200))
	}

	switch v := raw.(type) {
	case map[string]interface{}:
		if code, ok := v["code"]; ok {
			if codeNum, ok2 := code.(float64); ok2 && codeNum < 0 {
				msg, _ := v["msg"].(string)
				return nil, xerr.FromExchangeCode(strconv.Itoa(int(codeNum)), msg)
			}
		}
		return v, nil
	case []interface{}:
		return map[string]interface{}{"result": v}, nil
	default:
		return map[string]interface{}{"result": v}, nil
	}
}

func parseErrorBody(body []byte) (code, msg string, ok bool) {
	var payload struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", "", false
	}
	if payload.Code == 0 {
		return "", "", false
	}
	return strconv.Itoa(payload.Code), payload.Msg, true
}

// sign computes HMAC-SHA256(secret, queryString) hex-encoded.
func (c *Client) sign(queryString string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(queryString))
	return hex.EncodeToString(mac.Sum(nil))
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		cp := make([]string, len(vals))
		copy(cp, vals)
		out[k] = cp
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
