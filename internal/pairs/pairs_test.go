package pairs

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseFile(t *testing.T) {
	content := `symbol,trade_date
AAPL,2024-01-15
msft ,2024-01-16
BAD,not-a-date
,2024-01-17
GOOG,2024-01-18
`
	path := filepath.Join(t.TempDir(), "pairs.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	requests, err := ParseFile(path, discard())
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	if len(requests) != 3 {
		t.Fatalf("parsed %d requests, want 3 (bad rows skipped)", len(requests))
	}
	if requests[0].Symbol != "AAPL" {
		t.Errorf("first symbol = %q, want AAPL", requests[0].Symbol)
	}
	if requests[1].Symbol != "MSFT" {
		t.Errorf("second symbol = %q, want MSFT (normalized)", requests[1].Symbol)
	}
	want := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	if !requests[1].TradeDate.Equal(want) {
		t.Errorf("second trade date = %v, want %v", requests[1].TradeDate, want)
	}
}

func TestParseFileBadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.csv")
	if err := os.WriteFile(path, []byte("ticker,when\nAAPL,2024-01-15\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	if _, err := ParseFile(path, discard()); err == nil {
		t.Fatal("ParseFile should reject a file without symbol/trade_date columns")
	}
}

func TestWriteSampleRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.csv")
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	if err := WriteSample(path, []string{"aapl", "MSFT"}, date); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}

	requests, err := ParseFile(path, discard())
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("parsed %d requests, want 2", len(requests))
	}
	if requests[0].Key() != "AAPL:2024-01-15" {
		t.Errorf("first key = %q, want AAPL:2024-01-15", requests[0].Key())
	}
}
