package domain

import (
	"testing"
	"time"
)

func TestNewBackfillRequestNormalizes(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Date(2024, 1, 15, 14, 30, 0, 0, loc)

	req := NewBackfillRequest("  aapl ", ts)
	if req.Symbol != "AAPL" {
		t.Errorf("symbol = %q, want AAPL", req.Symbol)
	}
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if !req.TradeDate.Equal(want) {
		t.Errorf("trade date = %v, want %v", req.TradeDate, want)
	}
	if got := req.Key(); got != "AAPL:2024-01-15" {
		t.Errorf("key = %q", got)
	}
}

func TestCivilDate(t *testing.T) {
	in := time.Date(2024, 3, 11, 23, 59, 59, 1e8, time.FixedZone("X", -5*3600))
	got := CivilDate(in)
	want := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("CivilDate = %v, want %v", got, want)
	}
}

func TestNewRunSummaryHasRunID(t *testing.T) {
	a := NewRunSummary()
	b := NewRunSummary()
	if a.RunID == "" || b.RunID == "" {
		t.Fatal("run id must not be empty")
	}
	if a.RunID == b.RunID {
		t.Error("run ids should be unique per run")
	}
}
