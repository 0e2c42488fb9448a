// Package backfill coordinates the full ingestion pipeline: it fans requests
// out to the provider under a concurrency limit, derives session metrics, and
// persists the results in batches.
package backfill

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"marketfill/internal/domain"
	"marketfill/internal/metrics"
	"marketfill/internal/session"
	"marketfill/internal/store"
)

const (
	// DefaultConcurrency bounds the number of in-flight requests.
	DefaultConcurrency = 12
	// DefaultBatchSize is the flush threshold for accumulated rows.
	DefaultBatchSize = 300
)

// Fetcher is the market-data surface the orchestrator needs: sub-day
// aggregates over a UTC window and the daily aggregate for a date.
type Fetcher interface {
	SubDayBars(ctx context.Context, symbol string, from, to time.Time) ([]domain.Bar, error)
	DailyBar(ctx context.Context, symbol string, tradeDate time.Time) (*domain.Bar, error)
}

// Orchestrator runs backfill passes. It owns all per-run state; the only
// state surviving a run is whatever the store persisted.
type Orchestrator struct {
	fetcher     Fetcher
	store       store.RowWriter
	concurrency int
	batchSize   int
	log         *slog.Logger
}

// New creates an Orchestrator. Non-positive concurrency or batchSize fall
// back to the defaults.
func New(fetcher Fetcher, rw store.RowWriter, concurrency, batchSize int) *Orchestrator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Orchestrator{
		fetcher:     fetcher,
		store:       rw,
		concurrency: concurrency,
		batchSize:   batchSize,
		log:         slog.Default().With("component", "backfill"),
	}
}

// outcome is the result of processing one request. A nil row with nil err
// means the market was closed for that date.
type outcome struct {
	req domain.BackfillRequest
	row *domain.BackfillRow
	err error
}

// Run processes the request list and returns a summary of the run. Requests
// are deduplicated by (symbol, trade date) before dispatch. Per-request
// failures and batch-level store failures are recorded in the summary and
// never abort the run. Cancelling ctx stops dispatching new requests, lets
// in-flight fetches finish or time out, flushes the accumulated batch, and
// returns a partial summary.
//
// The returned error is non-nil only when the store schema cannot be
// prepared before any work starts.
func (o *Orchestrator) Run(ctx context.Context, requests []domain.BackfillRequest) (domain.RunSummary, error) {
	summary := domain.NewRunSummary()
	start := time.Now()

	unique := dedupe(requests)
	summary.Attempted = len(unique)

	log := o.log.With("run", summary.RunID)
	log.Info("starting backfill",
		"requests", len(requests),
		"unique", len(unique),
		"concurrency", o.concurrency,
		"batchSize", o.batchSize,
	)

	if len(unique) == 0 {
		summary.Elapsed = time.Since(start)
		return summary, nil
	}

	if err := o.store.CreateSchema(ctx); err != nil {
		return summary, err
	}

	reqCh := make(chan domain.BackfillRequest)
	outCh := make(chan outcome)

	// Feeder: stops dispatching once ctx is cancelled.
	go func() {
		defer close(reqCh)
		for _, req := range unique {
			select {
			case <-ctx.Done():
				return
			case reqCh <- req:
			}
		}
	}()

	workers := min(o.concurrency, len(unique))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range reqCh {
				row, err := o.process(ctx, req)
				outCh <- outcome{req: req, row: row, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(outCh)
	}()

	// Collector: the single owner of the accumulating batch and its flush
	// trigger, so concurrent worker completions can never race a flush.
	batch := make([]domain.BackfillRow, 0, o.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		// The final flush must survive run cancellation: completed work is
		// never dropped silently.
		n, err := o.store.UpsertBatch(context.WithoutCancel(ctx), batch)
		if err != nil {
			log.Error("batch write failed", "rows", len(batch), "error", err)
			summary.BatchFailures = append(summary.BatchFailures, domain.BatchFailure{
				Rows:   len(batch),
				Reason: err.Error(),
			})
		} else {
			summary.RowsWritten += n
		}
		batch = batch[:0]
	}

	for out := range outCh {
		switch {
		case out.err != nil:
			log.Warn("request failed", "request", out.req.Key(), "error", out.err)
			summary.Failed++
			summary.Failures = append(summary.Failures, domain.RequestFailure{
				Request: out.req,
				Reason:  out.err.Error(),
			})
		case out.row == nil:
			log.Debug("no data for date", "request", out.req.Key())
			summary.Skipped++
		default:
			summary.Succeeded++
			batch = append(batch, *out.row)
			if len(batch) >= o.batchSize {
				flush()
			}
		}
	}
	flush()

	summary.Elapsed = time.Since(start)
	log.Info("backfill complete",
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"rowsWritten", summary.RowsWritten,
		"elapsed", summary.Elapsed.Round(time.Millisecond),
	)
	return summary, nil
}

// process fetches and derives one request. The sub-day and daily fetches run
// concurrently with each other.
func (o *Orchestrator) process(ctx context.Context, req domain.BackfillRequest) (*domain.BackfillRow, error) {
	window, err := session.Extended(req.TradeDate)
	if err != nil {
		return nil, err
	}

	var (
		subDay   []domain.Bar
		daily    *domain.Bar
		subErr   error
		dailyErr error
		wg       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		subDay, subErr = o.fetcher.SubDayBars(ctx, req.Symbol, window.Start, window.End)
	}()
	go func() {
		defer wg.Done()
		daily, dailyErr = o.fetcher.DailyBar(ctx, req.Symbol, req.TradeDate)
	}()
	wg.Wait()

	if subErr != nil {
		return nil, subErr
	}
	if dailyErr != nil {
		return nil, dailyErr
	}

	return metrics.Derive(req.Symbol, req.TradeDate, subDay, daily)
}

// dedupe collapses duplicate (symbol, trade date) pairs, preserving first
// occurrence order.
func dedupe(requests []domain.BackfillRequest) []domain.BackfillRequest {
	seen := make(map[string]struct{}, len(requests))
	unique := make([]domain.BackfillRequest, 0, len(requests))
	for _, req := range requests {
		key := req.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, req)
	}
	return unique
}
