// Package domain defines the value types shared across the backfill
// pipeline: requests, bars, persisted rows, and run summaries.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the canonical civil-date format used throughout the module.
const DateLayout = "2006-01-02"

// BackfillRequest identifies one (symbol, trade date) pair to backfill.
// Trade dates carry no time component; they are stored as midnight UTC and
// re-anchored in exchange time by the session package.
type BackfillRequest struct {
	Symbol    string
	TradeDate time.Time
}

// NewBackfillRequest builds a request with a normalized (trimmed, upper-cased)
// symbol and the trade date truncated to a civil date.
func NewBackfillRequest(symbol string, tradeDate time.Time) BackfillRequest {
	return BackfillRequest{
		Symbol:    strings.ToUpper(strings.TrimSpace(symbol)),
		TradeDate: CivilDate(tradeDate),
	}
}

// Key returns the dedup/identity key for the request.
func (r BackfillRequest) Key() string {
	return r.Symbol + ":" + r.TradeDate.Format(DateLayout)
}

func (r BackfillRequest) String() string { return r.Key() }

// CivilDate strips the time-of-day and location from t, returning midnight
// UTC on the same calendar date.
func CivilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Bar is one OHLCV aggregate over a fixed interval. Timestamp is the UTC
// start of the interval. Bars are read-only once returned by the fetch layer.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// BackfillRow is the persisted unit, keyed by (Symbol, TradeDate). Pointer
// fields are nil when the source data does not exist for that date (for
// example no premarket bars on a holiday-adjacent session).
type BackfillRow struct {
	Symbol    string
	TradeDate time.Time

	// Premarket session (04:00-09:30 ET).
	PreHigh *float64
	PreLow  *float64

	// Daily aggregate, the authoritative source for OHLC and volume.
	OpenPrice *float64
	HOD       *float64
	LOD       *float64

	// After-hours session (16:00-20:00 ET).
	AHHigh *float64
	AHLow  *float64

	// Regular-session shares, from the daily aggregate only.
	DayVolume *int64
}

// Key returns the primary key for the row.
func (r BackfillRow) Key() string {
	return r.Symbol + ":" + r.TradeDate.Format(DateLayout)
}

// RequestFailure records one request that failed during a run.
type RequestFailure struct {
	Request BackfillRequest
	Reason  string
}

// BatchFailure records a store write that failed for a whole batch. It is
// reported separately from per-request failures because it affects every row
// in the batch.
type BatchFailure struct {
	Rows   int
	Reason string
}

// RunSummary aggregates the outcome of one backfill run. It is built
// incrementally by the orchestrator and immutable once the run completes.
// It is returned to the caller only, never persisted.
type RunSummary struct {
	RunID       string
	Attempted   int // unique requests after dedup
	Succeeded   int
	Failed      int
	Skipped     int // market-closed dates contributing zero rows
	RowsWritten int
	Elapsed     time.Duration

	Failures      []RequestFailure
	BatchFailures []BatchFailure
}

// NewRunSummary returns an empty summary with a fresh run identifier.
func NewRunSummary() RunSummary {
	return RunSummary{RunID: uuid.NewString()}
}

// Float returns a pointer to v. Convenience for building rows and fixtures.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int64) *int64 { return &v }
