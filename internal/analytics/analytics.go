// Package analytics derives budget status, category breakdowns and trend
// series from raw transactions. All currency arithmetic goes through
// shopspring/decimal; float64 never touches an amount.
package analytics

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/core"
)

// Granularity selects the bucket size of a trend series.
type Granularity string

const (
	ByDay   Granularity = "day"
	ByMonth Granularity = "month"
)

// WarningThreshold is the budget usage percentage at which a status turns
// into a warning.
var WarningThreshold = decimal.NewFromInt(80)

var (
	hundred = decimal.NewFromInt(100)

	ErrInvalidRange       = errors.New("analytics: end before start")
	ErrInvalidGranularity = errors.New("analytics: unknown granularity")
)

// BudgetStatus is the derived view of one budget over its current period
// window. Spent is recomputed from transactions on every query; it is
// never read from a persisted column.
type BudgetStatus struct {
	Budget     core.Budget     `json:"budget"`
	Spent      decimal.Decimal `json:"spent"`
	Remaining  decimal.Decimal `json:"remaining"`
	Percentage decimal.Decimal `json:"percentage"`
	OverBudget bool            `json:"over_budget"`
	Warning    bool            `json:"warning"`
}

// CategorySpending is one row of a category breakdown.
type CategorySpending struct {
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
}

// TrendPoint is one bucket of a trend series. Income and Expenses are both
// non-negative; Balance is income minus expenses.
type TrendPoint struct {
	Start    time.Time       `json:"start"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Balance  decimal.Decimal `json:"balance"`
}

// PeriodWindow returns the calendar window containing now for the budget's
// period, in now's location. The window tracks the calendar rather than the
// budget's start date: a monthly budget evaluated in April covers April
// regardless of when the budget was created. An unknown period falls back
// to the budget's own lifetime.
func PeriodWindow(b core.Budget, now time.Time) (start, end time.Time) {
	loc := now.Location()
	switch b.Period {
	case core.Daily:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		end = start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	case core.Weekly:
		// Weeks start on Monday.
		offset := (int(now.Weekday()) + 6) % 7
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -offset)
		end = start.AddDate(0, 0, 7).Add(-time.Nanosecond)
	case core.Monthly:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	case core.Yearly:
		start = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(1, 0, 0).Add(-time.Nanosecond)
	default:
		start = b.StartAt
		if b.EndAt != nil {
			end = *b.EndAt
		} else {
			end = now
		}
	}
	return start, end
}

// NewBudgetStatus computes the derived fields for a budget given the spent
// amount of its current window. Percentage is clamped to [0, 100]; spending
// beyond the limit still shows through OverBudget.
func NewBudgetStatus(b core.Budget, spent decimal.Decimal) BudgetStatus {
	pct := decimal.Zero
	if b.Limit.IsPositive() {
		pct = spent.Div(b.Limit).Mul(hundred)
	}
	if pct.IsNegative() {
		pct = decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		pct = hundred
	}

	over := spent.GreaterThan(b.Limit)
	return BudgetStatus{
		Budget:     b,
		Spent:      spent,
		Remaining:  b.Limit.Sub(spent),
		Percentage: pct,
		OverBudget: over,
		Warning:    !over && pct.GreaterThanOrEqual(WarningThreshold),
	}
}

// SpentInWindow sums the absolute value of expense transactions matching
// the budget's category inside [start, end].
func SpentInWindow(b core.Budget, txs []core.Transaction, start, end time.Time) decimal.Decimal {
	spent := decimal.Zero
	for _, t := range txs {
		if t.Category != b.Category || !t.Amount.IsNegative() {
			continue
		}
		if t.OccurredAt.Before(start) || t.OccurredAt.After(end) {
			continue
		}
		spent = spent.Add(t.Amount.Abs())
	}
	return spent
}

// CategoryBreakdown groups expense transactions by category, summing
// absolute values, with each category's share of total expenses. The result
// is sorted by amount descending, name ascending on ties. No expenses
// yields an empty slice.
func CategoryBreakdown(txs []core.Transaction) []CategorySpending {
	sums := make(map[string]decimal.Decimal)
	total := decimal.Zero
	for _, t := range txs {
		if !t.Amount.IsNegative() {
			continue
		}
		abs := t.Amount.Abs()
		sums[t.Category] = sums[t.Category].Add(abs)
		total = total.Add(abs)
	}
	if total.IsZero() {
		return nil
	}

	out := make([]CategorySpending, 0, len(sums))
	for category, amount := range sums {
		out = append(out, CategorySpending{
			Category:   category,
			Amount:     amount,
			Percentage: amount.Div(total).Mul(hundred),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// TrendSeries partitions [start, end] into contiguous buckets and sums
// income and expenses per bucket. Every calendar unit in the range appears
// in the result, zero-valued buckets included, so the series is dense.
func TrendSeries(txs []core.Transaction, start, end time.Time, g Granularity) ([]TrendPoint, error) {
	if end.Before(start) {
		return nil, ErrInvalidRange
	}

	var bucketStart func(time.Time) time.Time
	var next func(time.Time) time.Time
	switch g {
	case ByDay:
		bucketStart = func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		}
		next = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	case ByMonth:
		bucketStart = func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
		}
		next = func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	default:
		return nil, ErrInvalidGranularity
	}

	var points []TrendPoint
	index := make(map[time.Time]int)
	for cursor := bucketStart(start); !cursor.After(end); cursor = next(cursor) {
		index[cursor] = len(points)
		points = append(points, TrendPoint{Start: cursor})
	}

	for _, t := range txs {
		if t.OccurredAt.Before(start) || t.OccurredAt.After(end) {
			continue
		}
		i, ok := index[bucketStart(t.OccurredAt.In(start.Location()))]
		if !ok {
			continue
		}
		if t.Amount.IsPositive() {
			points[i].Income = points[i].Income.Add(t.Amount)
		} else {
			points[i].Expenses = points[i].Expenses.Add(t.Amount.Abs())
		}
	}
	for i := range points {
		points[i].Balance = points[i].Income.Sub(points[i].Expenses)
	}
	return points, nil
}
