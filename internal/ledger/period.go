// Package ledger aggregates personal ledger entries into per-category totals.
// Everything here is pure: no I/O, no clocks, safe to call on every render.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/agrimarket/internal/domain"
)

// Period selects which entries take part in an aggregation
type Period string

const (
	PeriodOverall Period = "overall"
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
)

// Periods lists the supported periods in display order.
var Periods = []Period{PeriodOverall, PeriodDaily, PeriodMonthly, PeriodYearly}

// ParsePeriod parses a period name, case-insensitively.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Periods {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown period %q", domain.ErrValidation, s)
}

// Contains reports whether a calendar date falls in the period around now.
// Dates are compared by their calendar fields; now is read in its own location.
func (p Period) Contains(date, now time.Time) bool {
	y, m, d := date.Date()
	ny, nm, nd := now.Date()

	switch p {
	case PeriodDaily:
		return y == ny && m == nm && d == nd
	case PeriodMonthly:
		return y == ny && m == nm
	case PeriodYearly:
		return y == ny
	default:
		return true
	}
}

// FilterByPeriod returns the entries whose record date falls in the period.
// The input slice is not modified.
func FilterByPeriod(entries []domain.LedgerEntry, period Period, now time.Time) []domain.LedgerEntry {
	out := make([]domain.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if period.Contains(e.RecordDate, now) {
			out = append(out, e)
		}
	}
	return out
}
