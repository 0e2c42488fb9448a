// Package provider implements the Polygon.io market-data client used by the
// backfill pipeline: sub-day aggregates over a UTC window and the single
// authoritative daily aggregate, both with retry, backoff, and rate-limit
// awareness.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"marketfill/internal/domain"
	"marketfill/internal/util"
)

const (
	defaultBaseURL     = "https://api.polygon.io/v2"
	defaultInterval    = 30 // minutes
	defaultMaxAttempts = 5
	defaultRetryBase   = 400 * time.Millisecond
	defaultRetryMax    = 3 * time.Second
)

// ProviderError is the terminal failure for one fetch: a transport or HTTP
// error that survived the client's retry budget, or a non-retryable 4xx.
// The orchestrator records it per request and never retries it again.
type ProviderError struct {
	Status int // last HTTP status, 0 for transport-level failures
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider request failed (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("provider request failed: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Options configures a Client. Zero values fall back to the documented
// defaults.
type Options struct {
	APIKey            string
	BaseURL           string        // default https://api.polygon.io/v2
	IntervalMinutes   int           // sub-day bar width, default 30
	Timeout           time.Duration // per network call, default 30s
	RequestsPerMinute int           // client-side budget, 0 disables
	MaxAttempts       int           // total attempts per operation, default 5
	RetryBaseDelay    time.Duration // default 400ms
	RetryMaxDelay     time.Duration // default 3s
}

// Client is a Polygon aggregates client. One Client is shared for a whole
// run: the embedded http.Client pools connections so no request pays a fresh
// handshake.
type Client struct {
	httpc       *http.Client
	baseURL     string
	apiKey      string
	interval    int
	limiter     *rate.Limiter
	maxAttempts int
	retryBase   time.Duration
	retryMax    time.Duration
	log         *slog.Logger
}

// NewClient creates a Client from opts.
func NewClient(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	interval := opts.IntervalMinutes
	if interval <= 0 {
		interval = defaultInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	retryBase := opts.RetryBaseDelay
	if retryBase <= 0 {
		retryBase = defaultRetryBase
	}
	retryMax := opts.RetryMaxDelay
	if retryMax <= 0 {
		retryMax = defaultRetryMax
	}

	var limiter *rate.Limiter
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), opts.RequestsPerMinute)
	}

	return &Client{
		httpc:       &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		apiKey:      opts.APIKey,
		interval:    interval,
		limiter:     limiter,
		maxAttempts: maxAttempts,
		retryBase:   retryBase,
		retryMax:    retryMax,
		log:         slog.Default().With("component", "provider"),
	}
}

// ---------------------------------------------------------------------------
// Wire format
// ---------------------------------------------------------------------------

// aggBar is one bar in a Polygon aggregates response. Volume is a float on
// the wire; it may carry a fractional component for some tickers.
type aggBar struct {
	T int64   `json:"t"` // start of interval, Unix ms UTC
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

type aggsResponse struct {
	Status  string   `json:"status"`
	Error   string   `json:"error"`
	Results []aggBar `json:"results"`
}

func (b aggBar) toBar() domain.Bar {
	return domain.Bar{
		Timestamp: time.UnixMilli(b.T).UTC(),
		Open:      b.O,
		High:      b.H,
		Low:       b.L,
		Close:     b.C,
		Volume:    int64(b.V),
	}
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// SubDayBars fetches fixed-interval aggregates for symbol over [from, to) in
// a single round trip. Callers pass the widened extended-hours window; the
// session slicing happens downstream in memory.
func (c *Client) SubDayBars(ctx context.Context, symbol string, from, to time.Time) ([]domain.Bar, error) {
	path := fmt.Sprintf("/aggs/ticker/%s/range/%d/minute/%d/%d",
		url.PathEscape(symbol), c.interval, from.UnixMilli(), to.UnixMilli())

	resp, err := c.getAggs(ctx, path, 1000)
	if err != nil {
		return nil, err
	}

	bars := make([]domain.Bar, 0, len(resp.Results))
	for _, r := range resp.Results {
		bars = append(bars, r.toBar())
	}
	return bars, nil
}

// DailyBar fetches the single authoritative daily aggregate for symbol on
// tradeDate. A nil bar with nil error means the market was closed that date.
func (c *Client) DailyBar(ctx context.Context, symbol string, tradeDate time.Time) (*domain.Bar, error) {
	dateStr := tradeDate.Format(domain.DateLayout)
	path := fmt.Sprintf("/aggs/ticker/%s/range/1/day/%s/%s", url.PathEscape(symbol), dateStr, dateStr)

	resp, err := c.getAggs(ctx, path, 1)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}

	bar := resp.Results[0].toBar()
	return &bar, nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// getAggs performs one aggregates request with the retry policy applied.
// Retryable: transport failures, HTTP 429, HTTP 5xx. Terminal: any other
// 4xx and malformed bodies. Exhausting the budget returns a *ProviderError.
func (c *Client) getAggs(ctx context.Context, path string, limit int) (*aggsResponse, error) {
	u := fmt.Sprintf("%s%s?adjusted=false&sort=asc&limit=%d&apiKey=%s",
		c.baseURL, path, limit, url.QueryEscape(c.apiKey))

	var out *aggsResponse
	var lastStatus int

	err := util.Retry(ctx, c.maxAttempts, c.retryBase, c.retryMax, func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return util.Permanent(err)
			}
		}

		resp, status, err := c.doOnce(ctx, u)
		lastStatus = status
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProviderError{Status: lastStatus, Err: err}
	}
	return out, nil
}

// doOnce performs a single HTTP attempt and classifies the outcome as
// retryable (plain error) or terminal (util.Permanent).
func (c *Client) doOnce(ctx context.Context, u string) (*aggsResponse, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, util.Permanent(err)
	}
	req.Header.Set("User-Agent", "marketfill/1.0")

	resp, err := c.httpc.Do(req)
	if err != nil {
		// Transport failure or timeout: retryable.
		return nil, 0, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		c.log.Debug("rate limited", "url", req.URL.Path)
		return nil, resp.StatusCode, errors.New("rate limited")
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("server error %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, util.Permanent(fmt.Errorf("client error %d", resp.StatusCode))
	}

	var body aggsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, resp.StatusCode, util.Permanent(fmt.Errorf("decoding response: %w", err))
	}
	if body.Status == "ERROR" {
		msg := body.Error
		if msg == "" {
			msg = "unknown API error"
		}
		return nil, resp.StatusCode, util.Permanent(fmt.Errorf("api error: %s", msg))
	}

	return &body, resp.StatusCode, nil
}
