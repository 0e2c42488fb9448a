package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketfill/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ RowWriter = (*SQLiteStore)(nil)
var _ RowReader = (*SQLiteStore)(nil)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS backfill_data (
    symbol      TEXT NOT NULL,
    trade_date  TEXT NOT NULL,
    pre_high    REAL,
    pre_low     REAL,
    open_price  REAL,
    hod         REAL,
    lod         REAL,
    ah_high     REAL,
    ah_low      REAL,
    day_volume  INTEGER,
    PRIMARY KEY (symbol, trade_date)
);`

const upsertSQL = `
INSERT INTO backfill_data
    (symbol, trade_date, pre_high, pre_low, open_price, hod, lod, ah_high, ah_low, day_volume)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (symbol, trade_date) DO UPDATE SET
    pre_high   = excluded.pre_high,
    pre_low    = excluded.pre_low,
    open_price = excluded.open_price,
    hod        = excluded.hod,
    lod        = excluded.lod,
    ah_high    = excluded.ah_high,
    ah_low     = excluded.ah_low,
    day_volume = excluded.day_volume;`

// SQLiteStore persists backfill rows in a SQLite database. WAL journal mode
// gives concurrent readers while the orchestrator is the single writer, and
// keeps a crashed batch from leaving rows with mixed old/new fields.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath with the
// pragmas the backfill workload needs.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA cache_size=-64000",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSchema creates the backfill table if it doesn't exist. Safe to call
// on every run.
func (s *SQLiteStore) CreateSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return &StoreError{Op: "create schema", Err: err}
	}
	return nil
}

// UpsertBatch writes rows inside one transaction. On conflict every non-key
// field is replaced with the incoming value; re-running a backfill therefore
// converges to the latest fetch instead of accumulating duplicates.
func (s *SQLiteStore) UpsertBatch(ctx context.Context, rows []domain.BackfillRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &StoreError{Op: "begin batch", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return 0, &StoreError{Op: "prepare upsert", Err: err}
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			row.Symbol,
			row.TradeDate.Format(domain.DateLayout),
			nullFloat(row.PreHigh),
			nullFloat(row.PreLow),
			nullFloat(row.OpenPrice),
			nullFloat(row.HOD),
			nullFloat(row.LOD),
			nullFloat(row.AHHigh),
			nullFloat(row.AHLow),
			nullInt(row.DayVolume),
		)
		if err != nil {
			return 0, &StoreError{Op: fmt.Sprintf("upsert %s", row.Key()), Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &StoreError{Op: "commit batch", Err: err}
	}
	return len(rows), nil
}

// Row returns the persisted row for (symbol, tradeDate), nil when absent.
func (s *SQLiteStore) Row(ctx context.Context, symbol string, tradeDate time.Time) (*domain.BackfillRow, error) {
	const q = `SELECT symbol, trade_date, pre_high, pre_low, open_price, hod, lod, ah_high, ah_low, day_volume
		FROM backfill_data WHERE symbol = ? AND trade_date = ?`

	row, err := scanRow(s.db.QueryRowContext(ctx, q, symbol, tradeDate.Format(domain.DateLayout)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "read row", Err: err}
	}
	return row, nil
}

// Count returns the total number of persisted rows.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM backfill_data").Scan(&n); err != nil {
		return 0, &StoreError{Op: "count rows", Err: err}
	}
	return n, nil
}

// CountSymbols returns the number of distinct symbols in the table.
func (s *SQLiteStore) CountSymbols(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT symbol) FROM backfill_data").Scan(&n); err != nil {
		return 0, &StoreError{Op: "count symbols", Err: err}
	}
	return n, nil
}

// PruneBefore deletes rows with a trade date strictly before cutoff and
// returns the number removed. Retention maintenance for long-lived tables.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM backfill_data WHERE trade_date < ?", cutoff.Format(domain.DateLayout))
	if err != nil {
		return 0, &StoreError{Op: "prune", Err: err}
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRow(sc scanner) (*domain.BackfillRow, error) {
	var (
		symbol, dateStr                 string
		preHigh, preLow, open, hod, lod sql.NullFloat64
		ahHigh, ahLow                   sql.NullFloat64
		dayVolume                       sql.NullInt64
	)
	err := sc.Scan(&symbol, &dateStr, &preHigh, &preLow, &open, &hod, &lod, &ahHigh, &ahLow, &dayVolume)
	if err != nil {
		return nil, err
	}

	tradeDate, err := time.Parse(domain.DateLayout, dateStr)
	if err != nil {
		return nil, fmt.Errorf("parsing trade_date %q: %w", dateStr, err)
	}

	return &domain.BackfillRow{
		Symbol:    symbol,
		TradeDate: tradeDate,
		PreHigh:   floatPtr(preHigh),
		PreLow:    floatPtr(preLow),
		OpenPrice: floatPtr(open),
		HOD:       floatPtr(hod),
		LOD:       floatPtr(lod),
		AHHigh:    floatPtr(ahHigh),
		AHLow:     floatPtr(ahLow),
		DayVolume: intPtr(dayVolume),
	}, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}
