package dedup

import (
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/property-docs/internal/core/domain"
)

// PeriodMatchMode decides when two documents cover the "same period".
type PeriodMatchMode string

const (
	// PeriodOverlap treats intersecting ranges as the same period. Monthly invoices share a
	// month, indexation and renewal notices share exact bounds; overlap catches both.
	PeriodOverlap PeriodMatchMode = "overlap"
	PeriodExact   PeriodMatchMode = "exact"
)

func ParsePeriodMatchMode(raw string) (PeriodMatchMode, error) {
	switch mode := PeriodMatchMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "":
		return PeriodOverlap, nil
	case PeriodOverlap, PeriodExact:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown period match mode %q", raw)
	}
}

func periodsMatch(a, b *domain.Period, mode PeriodMatchMode) bool {
	if a == nil || b == nil || a.From.IsZero() || b.From.IsZero() {
		return false
	}
	aFrom, aTo := dayOf(a.From), dayOf(periodEnd(*a))
	bFrom, bTo := dayOf(b.From), dayOf(periodEnd(*b))

	if mode == PeriodExact {
		return aFrom.Equal(bFrom) && aTo.Equal(bTo)
	}
	return !aFrom.After(bTo) && !bFrom.After(aTo)
}

func periodEnd(p domain.Period) time.Time {
	if p.To.IsZero() {
		return p.From
	}
	return p.To
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
