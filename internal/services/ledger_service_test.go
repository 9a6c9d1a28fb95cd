package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/analytics"
	"moneta/internal/backup"
	"moneta/internal/core"
	"moneta/internal/impexp"
	"moneta/internal/keyvault"
	"moneta/internal/storage"
)

func newTestService(t *testing.T) *LedgerService {
	t.Helper()
	dir := t.TempDir()
	store := storage.New(filepath.Join(dir, "ledger.db"), keyvault.New(keyvault.NewMemoryStore()), nil)
	codec := backup.NewCodec(store, "linux", nil)
	svc := NewLedgerService(store, codec, nil, filepath.Join(dir, "backups"))
	if err := svc.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestCreateAndRestoreBackup(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddTransaction(ctx, core.Transaction{
		Amount:      decimal.RequireFromString("-45.50"),
		Description: "groceries",
		Category:    "Food",
		OccurredAt:  time.Now(),
	}); err != nil {
		t.Fatalf("AddTransaction() error = %v", err)
	}

	path, err := svc.CreateBackup(ctx, "passphrase")
	if err != nil {
		t.Fatalf("CreateBackup() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("bundle file missing: %v", err)
	}

	// Restore into a fresh service.
	target := newTestService(t)
	if err := target.RestoreBackup(ctx, path, "passphrase"); err != nil {
		t.Fatalf("RestoreBackup() error = %v", err)
	}
	txs, err := target.Transactions(ctx)
	if err != nil {
		t.Fatalf("Transactions() error = %v", err)
	}
	if len(txs) != 1 || txs[0].Description != "groceries" {
		t.Fatalf("restored transactions = %+v", txs)
	}

	if err := target.RestoreBackup(ctx, path, "wrong"); !errors.Is(err, backup.ErrWrongPassphrase) {
		t.Fatalf("RestoreBackup() with wrong passphrase error = %v", err)
	}
}

func TestImportCSVAllOrNothing(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	bad := `Date,Description,Amount,Category,Merchant,Notes
2026-04-02,valid,-1.00,,,
not-a-date,broken,-2.00,,,
`
	report, err := svc.ImportCSV(ctx, strings.NewReader(bad))
	if !errors.Is(err, impexp.ErrPartialImport) {
		t.Fatalf("ImportCSV() error = %v, want ErrPartialImport", err)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("report errors = %v", report.Errors)
	}

	// Nothing from the failed batch is applied.
	txs, err := svc.Transactions(ctx)
	if err != nil {
		t.Fatalf("Transactions() error = %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("failed import applied %d transactions", len(txs))
	}

	// A description over the domain cap must be reported as a row error,
	// not slip through parsing and fail mid-insert after earlier rows
	// already landed.
	overlong := "Date,Description,Amount,Category,Merchant,Notes\n" +
		"2026-04-02,first,-1.00,,,\n" +
		"2026-04-03," + strings.Repeat("x", core.MaxDescriptionLen+10) + ",-2.00,,,\n"
	report, err = svc.ImportCSV(ctx, strings.NewReader(overlong))
	if !errors.Is(err, impexp.ErrPartialImport) {
		t.Fatalf("ImportCSV() with overlong description error = %v, want ErrPartialImport", err)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("report errors = %v, want one", report.Errors)
	}
	txs, err = svc.Transactions(ctx)
	if err != nil {
		t.Fatalf("Transactions() error = %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("failed import applied %d transactions", len(txs))
	}

	good := `Date,Description,Amount,Category,Merchant,Notes
2026-04-02,groceries,-12.00,Food,,
2026-04-03,salary,1500.00,Salary,,
`
	if _, err := svc.ImportCSV(ctx, strings.NewReader(good)); err != nil {
		t.Fatalf("ImportCSV() error = %v", err)
	}
	txs, err = svc.Transactions(ctx)
	if err != nil {
		t.Fatalf("Transactions() error = %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txs))
	}
}

func TestExportCSV(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddTransaction(ctx, core.Transaction{
		Amount:      decimal.RequireFromString("-12.00"),
		Description: "groceries",
		Category:    "Food",
		OccurredAt:  time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("AddTransaction() error = %v", err)
	}

	var buf bytes.Buffer
	if err := svc.ExportCSV(ctx, &buf); err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}
	if !strings.Contains(buf.String(), "2026-04-02,groceries,-12.00,Food,,") {
		t.Fatalf("export output = %q", buf.String())
	}
}

func TestBudgetStatusThroughService(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := svc.AddBudget(ctx, core.Budget{
		Category: "Food",
		Limit:    decimal.NewFromInt(100),
		Period:   core.Monthly,
		StartAt:  now.AddDate(0, -1, 0),
	}); err != nil {
		t.Fatalf("AddBudget() error = %v", err)
	}
	if _, err := svc.AddTransaction(ctx, core.Transaction{
		Amount:      decimal.RequireFromString("-45.50"),
		Description: "groceries",
		Category:    "Food",
		OccurredAt:  now,
	}); err != nil {
		t.Fatalf("AddTransaction() error = %v", err)
	}

	statuses, err := svc.BudgetStatuses(ctx, now)
	if err != nil {
		t.Fatalf("BudgetStatuses() error = %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("got %d statuses, want 1", len(statuses))
	}
	if !statuses[0].Spent.Equal(decimal.RequireFromString("45.50")) {
		t.Errorf("Spent = %s, want 45.50", statuses[0].Spent)
	}

	breakdown, err := svc.CategoryBreakdown(ctx, now.AddDate(0, 0, -1), now.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("CategoryBreakdown() error = %v", err)
	}
	if len(breakdown) != 1 || breakdown[0].Category != "Food" {
		t.Fatalf("breakdown = %+v", breakdown)
	}

	trend, err := svc.TrendSeries(ctx, now.AddDate(0, 0, -2), now, analytics.ByDay)
	if err != nil {
		t.Fatalf("TrendSeries() error = %v", err)
	}
	if len(trend) != 3 {
		t.Fatalf("got %d trend buckets, want 3", len(trend))
	}
}

func TestEraseAllThroughService(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddTransaction(ctx, core.Transaction{
		Amount:      decimal.RequireFromString("-5.00"),
		Description: "coffee",
		OccurredAt:  time.Now(),
	}); err != nil {
		t.Fatalf("AddTransaction() error = %v", err)
	}
	if err := svc.EraseAll(ctx); err != nil {
		t.Fatalf("EraseAll() error = %v", err)
	}
	if _, err := svc.Transactions(ctx); !errors.Is(err, keyvault.ErrKeyUnavailable) {
		t.Fatalf("Transactions() after erase error = %v, want ErrKeyUnavailable", err)
	}
}
