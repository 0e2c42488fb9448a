package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"marketfill/internal/domain"
)

// rowRecord is the Parquet schema for exported backfill rows. Pointer fields
// map to optional columns so absent session bounds stay null in the snapshot.
type rowRecord struct {
	Symbol    string   `parquet:"symbol"`
	TradeDate string   `parquet:"trade_date"`
	PreHigh   *float64 `parquet:"pre_high,optional"`
	PreLow    *float64 `parquet:"pre_low,optional"`
	OpenPrice *float64 `parquet:"open_price,optional"`
	HOD       *float64 `parquet:"hod,optional"`
	LOD       *float64 `parquet:"lod,optional"`
	AHHigh    *float64 `parquet:"ah_high,optional"`
	AHLow     *float64 `parquet:"ah_low,optional"`
	DayVolume *int64   `parquet:"day_volume,optional"`
}

// ExportParquet writes a Parquet snapshot of the whole backfill table to
// path, ordered by (symbol, trade_date), and returns the number of rows
// exported. The snapshot is for analysis tooling; the SQLite table remains
// the source of truth.
func (s *SQLiteStore) ExportParquet(ctx context.Context, path string) (int, error) {
	const q = `SELECT symbol, trade_date, pre_high, pre_low, open_price, hod, lod, ah_high, ah_low, day_volume
		FROM backfill_data ORDER BY symbol, trade_date`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return 0, &StoreError{Op: "export query", Err: err}
	}
	defer rows.Close()

	var records []rowRecord
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return 0, &StoreError{Op: "export scan", Err: err}
		}
		records = append(records, rowRecord{
			Symbol:    row.Symbol,
			TradeDate: row.TradeDate.Format(domain.DateLayout),
			PreHigh:   row.PreHigh,
			PreLow:    row.PreLow,
			OpenPrice: row.OpenPrice,
			HOD:       row.HOD,
			LOD:       row.LOD,
			AHHigh:    row.AHHigh,
			AHLow:     row.AHLow,
			DayVolume: row.DayVolume,
		})
	}
	if err := rows.Err(); err != nil {
		return 0, &StoreError{Op: "export iterate", Err: err}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("creating export dir: %w", err)
		}
	}
	if err := parquet.WriteFile(path, records); err != nil {
		return 0, fmt.Errorf("writing parquet export: %w", err)
	}
	return len(records), nil
}
