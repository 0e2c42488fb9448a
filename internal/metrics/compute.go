// Package metrics derives per-day session statistics from raw bar data.
package metrics

import (
	"fmt"
	"time"

	"marketfill/internal/domain"
	"marketfill/internal/session"
)

// ValidationError reports a derived row that violates an invariant. It is
// scoped to one request; the orchestrator records it without aborting the run.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Detail)
}

// sessionFold accumulates the high/low envelope of bars in one session.
type sessionFold struct {
	high *float64
	low  *float64
}

func (f *sessionFold) add(b domain.Bar) {
	if f.high == nil || b.High > *f.high {
		h := b.High
		f.high = &h
	}
	if f.low == nil || b.Low < *f.low {
		l := b.Low
		f.low = &l
	}
}

// Derive computes the persisted row for one (symbol, trade date) pair from
// the extended-hours sub-day bars and the authoritative daily bar.
//
// Sub-day bars are partitioned into the premarket and after-hours windows
// (inclusive start, exclusive end); each window contributes its max high and
// min low, nil when the window holds no bars. The daily bar is the sole
// source for open, high of day, low of day, and regular-session volume.
//
// A nil daily bar means the market was closed that date: Derive returns
// (nil, nil) and the request contributes zero rows.
func Derive(symbol string, tradeDate time.Time, subDayBars []domain.Bar, dailyBar *domain.Bar) (*domain.BackfillRow, error) {
	if dailyBar == nil {
		return nil, nil
	}

	var pre, ah sessionFold
	for _, b := range subDayBars {
		kind, ok := session.Classify(b.Timestamp, tradeDate)
		if !ok {
			continue
		}
		switch kind {
		case session.Premarket:
			pre.add(b)
		case session.AfterHours:
			ah.add(b)
		}
		// Regular-session sub-day bars are ignored: the daily bar is
		// authoritative for OHLC and volume.
	}

	row := &domain.BackfillRow{
		Symbol:    symbol,
		TradeDate: domain.CivilDate(tradeDate),
		PreHigh:   pre.high,
		PreLow:    pre.low,
		AHHigh:    ah.high,
		AHLow:     ah.low,
		OpenPrice: domain.Float(dailyBar.Open),
		HOD:       domain.Float(dailyBar.High),
		LOD:       domain.Float(dailyBar.Low),
		DayVolume: domain.Int(dailyBar.Volume),
	}

	if err := validate(row); err != nil {
		return nil, err
	}
	return row, nil
}

// validate checks the row invariants: every present (high, low) pair ordered,
// volume non-negative, and present prices positive.
func validate(row *domain.BackfillRow) error {
	pairs := []struct {
		field     string
		high, low *float64
	}{
		{"pre_high/pre_low", row.PreHigh, row.PreLow},
		{"hod/lod", row.HOD, row.LOD},
		{"ah_high/ah_low", row.AHHigh, row.AHLow},
	}
	for _, p := range pairs {
		if p.high != nil && p.low != nil && *p.high < *p.low {
			return &ValidationError{
				Field:  p.field,
				Detail: fmt.Sprintf("high %g < low %g", *p.high, *p.low),
			}
		}
	}

	if row.DayVolume != nil && *row.DayVolume < 0 {
		return &ValidationError{
			Field:  "day_volume",
			Detail: fmt.Sprintf("negative volume %d", *row.DayVolume),
		}
	}

	prices := []struct {
		field string
		value *float64
	}{
		{"pre_high", row.PreHigh},
		{"pre_low", row.PreLow},
		{"open_price", row.OpenPrice},
		{"hod", row.HOD},
		{"lod", row.LOD},
		{"ah_high", row.AHHigh},
		{"ah_low", row.AHLow},
	}
	for _, p := range prices {
		if p.value != nil && *p.value <= 0 {
			return &ValidationError{
				Field:  p.field,
				Detail: fmt.Sprintf("non-positive price %g", *p.value),
			}
		}
	}

	return nil
}
