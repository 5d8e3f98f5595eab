package domain

import (
	"fmt"
	"time"
)

// Period selects a retrospective time window.
type Period string

const (
	PeriodLastHour Period = "last_hour"
	PeriodLastDay  Period = "last_day"
)

// ParsePeriod validates a period token.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodLastHour, PeriodLastDay:
		return p, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// Bounds returns the half-open [start, end) window for the period relative
// to now, computed on the wall clock of loc.
//
//	last_hour: [start of previous hour, start of current hour)
//	last_day:  [yesterday 00:00, today 00:00)
func (p Period) Bounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	n := now.In(loc)
	switch p {
	case PeriodLastDay:
		end := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
		start := time.Date(n.Year(), n.Month(), n.Day()-1, 0, 0, 0, 0, loc)
		return start, end
	default:
		end := time.Date(n.Year(), n.Month(), n.Day(), n.Hour(), 0, 0, 0, loc)
		return end.Add(-time.Hour), end
	}
}

// FilterWindow keeps the reports whose local timestamp falls inside the
// period's window. An unparseable timestamp is a parsing failure; an empty
// result is StatusOutOfTimeRange.
func FilterWindow(raws []RawReport, period Period, now time.Time, loc *time.Location) ([]RawReport, error) {
	start, end := period.Bounds(now, loc)
	kept := make([]RawReport, 0, len(raws))
	for _, raw := range raws {
		v, err := lookup(raw, "surinkimo_data")
		if err != nil {
			return nil, Fail(StatusParsingFailure, fmt.Errorf("filter window: %w", err))
		}
		t, err := ParseLocalTime(v, loc)
		if err != nil {
			return nil, Fail(StatusParsingFailure, fmt.Errorf("filter window: %w", err))
		}
		if !t.Before(start) && t.Before(end) {
			kept = append(kept, raw)
		}
	}
	if len(kept) == 0 {
		return nil, Failf(StatusOutOfTimeRange, "no reports in %s window [%s, %s)",
			period, start.Format(LocalTimeLayout), end.Format(LocalTimeLayout))
	}
	return kept, nil
}
