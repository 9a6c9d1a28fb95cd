package analytics

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"moneta/internal/core"
)

// Reader is the slice of the store the engine queries. All methods must be
// safe for concurrent use.
type Reader interface {
	Budgets(ctx context.Context) ([]core.Budget, error)
	Transactions(ctx context.Context) ([]core.Transaction, error)
	TransactionsByDateRange(ctx context.Context, start, end time.Time) ([]core.Transaction, error)
}

// Engine computes derived views on top of a store reader.
type Engine struct {
	store Reader
}

func NewEngine(store Reader) *Engine {
	return &Engine{store: store}
}

// BudgetStatuses evaluates every budget over its current period window.
// Each budget's window query runs in its own goroutine; results keep the
// store's budget order.
func (e *Engine) BudgetStatuses(ctx context.Context, now time.Time) ([]BudgetStatus, error) {
	budgets, err := e.store.Budgets(ctx)
	if err != nil {
		return nil, err
	}
	if len(budgets) == 0 {
		return nil, nil
	}

	statuses := make([]BudgetStatus, len(budgets))
	g, ctx := errgroup.WithContext(ctx)
	for i, b := range budgets {
		g.Go(func() error {
			start, end := PeriodWindow(b, now)
			txs, err := e.store.TransactionsByDateRange(ctx, start, end)
			if err != nil {
				return err
			}
			statuses[i] = NewBudgetStatus(b, SpentInWindow(b, txs, start, end))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return statuses, nil
}

// Breakdown returns the category breakdown of expenses in [start, end].
func (e *Engine) Breakdown(ctx context.Context, start, end time.Time) ([]CategorySpending, error) {
	txs, err := e.store.TransactionsByDateRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return CategoryBreakdown(txs), nil
}

// Trend returns the dense trend series for [start, end].
func (e *Engine) Trend(ctx context.Context, start, end time.Time, g Granularity) ([]TrendPoint, error) {
	txs, err := e.store.TransactionsByDateRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return TrendSeries(txs, start, end, g)
}
