// Package session converts calendar dates and named trading sessions into
// absolute UTC time windows using the exchange's time zone rules.
package session

import (
	"fmt"
	"sync"
	"time"

	"marketfill/internal/domain"
)

// Kind names a trading session of the US equity day.
type Kind string

const (
	Premarket  Kind = "premarket"   // 04:00-09:30 ET
	Regular    Kind = "regular"     // 09:30-16:00 ET
	AfterHours Kind = "after_hours" // 16:00-20:00 ET
)

// Window is a half-open UTC interval [Start, End) for one session on one
// trade date. It must be recomputed per date: daylight-saving transitions
// change the UTC offset.
type Window struct {
	Kind  Kind
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window (inclusive start,
// exclusive end).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// localBounds holds session bounds as exchange-local wall-clock times.
type localBounds struct {
	startHour, startMin int
	endHour, endMin     int
}

var bounds = map[Kind]localBounds{
	Premarket:  {4, 0, 9, 30},
	Regular:    {9, 30, 16, 0},
	AfterHours: {16, 0, 20, 0},
}

var (
	exchangeTZOnce sync.Once
	exchangeTZ     *time.Location
	exchangeTZErr  error
)

// exchangeLocation returns the NYSE/Nasdaq time zone, loaded once.
func exchangeLocation() (*time.Location, error) {
	exchangeTZOnce.Do(func() {
		exchangeTZ, exchangeTZErr = time.LoadLocation("America/New_York")
	})
	if exchangeTZErr != nil {
		return nil, fmt.Errorf("loading exchange timezone: %w", exchangeTZErr)
	}
	return exchangeTZ, nil
}

// checkDate rejects dates outside the supported range: the Unix epoch through
// one year past the current date.
func checkDate(tradeDate time.Time) error {
	if tradeDate.Year() < 1970 {
		return fmt.Errorf("trade date %s before supported range", tradeDate.Format(domain.DateLayout))
	}
	if tradeDate.After(time.Now().AddDate(1, 0, 0)) {
		return fmt.Errorf("trade date %s after supported range", tradeDate.Format(domain.DateLayout))
	}
	return nil
}

// For converts a trade date and session kind into a UTC window. The local
// wall-clock bounds are resolved against the exchange time zone for that
// specific date, so a date in EST and a date in EDT produce different UTC
// offsets.
func For(tradeDate time.Time, kind Kind) (Window, error) {
	b, ok := bounds[kind]
	if !ok {
		return Window{}, fmt.Errorf("unknown session kind %q", kind)
	}
	if err := checkDate(tradeDate); err != nil {
		return Window{}, err
	}
	loc, err := exchangeLocation()
	if err != nil {
		return Window{}, err
	}

	y, m, d := tradeDate.Date()
	start := time.Date(y, m, d, b.startHour, b.startMin, 0, 0, loc)
	end := time.Date(y, m, d, b.endHour, b.endMin, 0, 0, loc)

	return Window{Kind: kind, Start: start.UTC(), End: end.UTC()}, nil
}

// Extended returns the full extended-hours window (04:00-20:00 ET) for a
// trade date. The fetch layer widens its single sub-day request to this
// window; slicing into sessions happens locally in memory.
func Extended(tradeDate time.Time) (Window, error) {
	pre, err := For(tradeDate, Premarket)
	if err != nil {
		return Window{}, err
	}
	ah, err := For(tradeDate, AfterHours)
	if err != nil {
		return Window{}, err
	}
	return Window{Start: pre.Start, End: ah.End}, nil
}

// Classify maps a bar timestamp to the session it belongs to on the given
// trade date. The second return is false for timestamps outside all sessions.
func Classify(ts time.Time, tradeDate time.Time) (Kind, bool) {
	for _, kind := range []Kind{Premarket, Regular, AfterHours} {
		w, err := For(tradeDate, kind)
		if err != nil {
			return "", false
		}
		if w.Contains(ts) {
			return kind, true
		}
	}
	return "", false
}
