// Package pairs reads and writes the symbol/date request files that feed the
// backfill engine.
package pairs

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"marketfill/internal/domain"
)

// ParseFile reads a CSV request file with header "symbol,trade_date" (ISO
// dates) and returns the validated request list. Malformed rows are logged
// and skipped rather than failing the whole file.
func ParseFile(path string, log *slog.Logger) ([]domain.BackfillRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pairs file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading pairs header: %w", err)
	}
	symbolIdx, dateIdx := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "symbol":
			symbolIdx = i
		case "trade_date":
			dateIdx = i
		}
	}
	if symbolIdx < 0 || dateIdx < 0 {
		return nil, fmt.Errorf("pairs file %s: header must contain symbol and trade_date columns", path)
	}

	var requests []domain.BackfillRequest
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn("skipping malformed row", "file", path, "line", line, "error", err)
			continue
		}
		if len(record) <= symbolIdx || len(record) <= dateIdx {
			log.Warn("skipping short row", "file", path, "line", line)
			continue
		}

		symbol := strings.TrimSpace(record[symbolIdx])
		dateStr := strings.TrimSpace(record[dateIdx])
		tradeDate, err := time.Parse(domain.DateLayout, dateStr)
		if err != nil {
			log.Warn("skipping row with invalid date", "file", path, "line", line, "date", dateStr)
			continue
		}
		if symbol == "" {
			log.Warn("skipping row with empty symbol", "file", path, "line", line)
			continue
		}

		requests = append(requests, domain.NewBackfillRequest(symbol, tradeDate))
	}

	log.Info("parsed request file", "file", path, "requests", len(requests))
	return requests, nil
}

// WriteSample creates a pairs file at path with the given symbols all on one
// trade date. Useful for trying the backfill end to end.
func WriteSample(path string, symbols []string, tradeDate time.Time) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating sample file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"symbol", "trade_date"}); err != nil {
		return err
	}
	for _, sym := range symbols {
		if err := w.Write([]string{strings.ToUpper(sym), tradeDate.Format(domain.DateLayout)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
