// Package store persists derived backfill rows in a durable keyed table.
package store

import (
	"context"
	"fmt"
	"time"

	"marketfill/internal/domain"
)

// RowWriter is the write surface the orchestrator depends on.
type RowWriter interface {
	// CreateSchema ensures the backfill table exists.
	CreateSchema(ctx context.Context) error

	// UpsertBatch writes rows atomically: each row is inserted, or on
	// primary-key conflict has every non-key field overwritten (last write
	// wins, no partial merge). Returns the number of rows written.
	UpsertBatch(ctx context.Context, rows []domain.BackfillRow) (int, error)
}

// RowReader is the query surface exposed to external consumers polling the
// table.
type RowReader interface {
	// Row returns the persisted row for a key, or nil when absent.
	Row(ctx context.Context, symbol string, tradeDate time.Time) (*domain.BackfillRow, error)

	// Count returns the total number of persisted rows.
	Count(ctx context.Context) (int, error)

	// CountSymbols returns the number of distinct symbols.
	CountSymbols(ctx context.Context) (int, error)
}

// StoreError wraps a failed store operation. A failed batch write affects
// every row in the batch, so the orchestrator reports it separately from
// per-request failures.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
