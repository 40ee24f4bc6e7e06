/*
metrics.go - Derived read-only metrics

PURPOSE:
  Computes the metrics section of a report view: total, over-budget
  flag, entry count, average, and spending trend. Always derived fresh
  from the current entries at projection time; never cached state.

OVER-BUDGET vs THE GATE:
  IsOverBudget ignores budgetOverride. The override suppresses the
  GATE, not the informational flag; an admin-overridden report that
  exceeds its cap still reads as over budget. The asymmetry is
  intentional.

TREND:
  Entries are sorted by IncurredAt ascending (missing timestamps sort
  earliest), then the amounts of the last two entries are compared:
  increasing, decreasing, stable, or unknown when fewer than two exist.

SEE ALSO:
  - view.go: Composes metrics into the shaped view
  - gate.go: The enforcement counterpart of IsOverBudget
*/
package report

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// METRICS
// =============================================================================

type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
	TrendUnknown    Trend = "unknown"
)

type Metrics struct {
	TotalAmount  decimal.Decimal `json:"total_amount"`
	IsOverBudget bool            `json:"is_over_budget"`
	EntryCount   int             `json:"entry_count"`
	AverageEntry decimal.Decimal `json:"average_entry"`
	Trend        Trend           `json:"trend"`
}

// =============================================================================
// PROJECTION
// =============================================================================

// ProjectMetrics computes derived metrics from entries and the cap.
// Pure and deterministic: safe to recompute on every read.
func ProjectMetrics(entries []Entry, budgetCap decimal.Decimal) Metrics {
	total := sumEntries(entries)

	m := Metrics{
		TotalAmount:  total,
		IsOverBudget: total.GreaterThan(budgetCap),
		EntryCount:   len(entries),
		AverageEntry: decimal.Zero,
		Trend:        projectTrend(entries),
	}

	// Average over zero entries is defined as zero, not an error, to
	// keep the projection total.
	if len(entries) > 0 {
		m.AverageEntry = total.Div(decimal.NewFromInt(int64(len(entries))))
	}
	return m
}

func projectTrend(entries []Entry) Trend {
	if len(entries) < 2 {
		return TrendUnknown
	}

	ordered := cloneEntries(entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return incurredBefore(ordered[i], ordered[j])
	})

	last := ordered[len(ordered)-1].Amount
	prev := ordered[len(ordered)-2].Amount
	switch {
	case last.GreaterThan(prev):
		return TrendIncreasing
	case last.LessThan(prev):
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// incurredBefore orders entries chronologically; entries lacking a
// timestamp sort as earliest.
func incurredBefore(a, b Entry) bool {
	if a.IncurredAt == nil {
		return b.IncurredAt != nil
	}
	if b.IncurredAt == nil {
		return false
	}
	return a.IncurredAt.Before(*b.IncurredAt)
}
