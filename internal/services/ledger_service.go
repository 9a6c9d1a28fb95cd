// Package services wires the store, analytics engine, backup codec and
// AMQP client into the single facade the presentation layer talks to. The
// facade owns no business rules of its own; it sequences the components
// and keeps network hand-off strictly best-effort.
package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"moneta/internal/amqp"
	"moneta/internal/analytics"
	"moneta/internal/backup"
	"moneta/internal/core"
	"moneta/internal/impexp"
	"moneta/internal/storage"
)

// LedgerService orchestrates ledger operations across the encrypted store,
// the analytics engine, the backup codec and the AMQP hand-off queue.
type LedgerService struct {
	store      *storage.Store
	engine     *analytics.Engine
	codec      *backup.Codec
	amqpClient *amqp.Client
	backupDir  string
}

func NewLedgerService(store *storage.Store, codec *backup.Codec, amqpClient *amqp.Client, backupDir string) *LedgerService {
	return &LedgerService{
		store:      store,
		engine:     analytics.NewEngine(store),
		codec:      codec,
		amqpClient: amqpClient,
		backupDir:  backupDir,
	}
}

func (s *LedgerService) Initialize(ctx context.Context) error {
	return s.store.Initialize(ctx)
}

// Transactions

func (s *LedgerService) AddTransaction(ctx context.Context, t core.Transaction) (string, error) {
	return s.store.InsertTransaction(ctx, t)
}

func (s *LedgerService) Transactions(ctx context.Context) ([]core.Transaction, error) {
	return s.store.Transactions(ctx)
}

func (s *LedgerService) TransactionsByDateRange(ctx context.Context, start, end time.Time) ([]core.Transaction, error) {
	return s.store.TransactionsByDateRange(ctx, start, end)
}

func (s *LedgerService) TransactionsByCategory(ctx context.Context, category string) ([]core.Transaction, error) {
	return s.store.TransactionsByCategory(ctx, category)
}

func (s *LedgerService) UpdateTransaction(ctx context.Context, id string, p storage.TransactionPatch) error {
	return s.store.UpdateTransaction(ctx, id, p)
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	return s.store.DeleteTransaction(ctx, id)
}

// Accounts

func (s *LedgerService) AddAccount(ctx context.Context, a core.Account) (string, error) {
	return s.store.InsertAccount(ctx, a)
}

func (s *LedgerService) Accounts(ctx context.Context) ([]core.Account, error) {
	return s.store.Accounts(ctx)
}

func (s *LedgerService) UpdateAccount(ctx context.Context, id string, p storage.AccountPatch) error {
	return s.store.UpdateAccount(ctx, id, p)
}

func (s *LedgerService) DeleteAccount(ctx context.Context, id string) error {
	return s.store.DeleteAccount(ctx, id)
}

// Budgets

func (s *LedgerService) AddBudget(ctx context.Context, b core.Budget) (string, error) {
	return s.store.InsertBudget(ctx, b)
}

func (s *LedgerService) Budgets(ctx context.Context) ([]core.Budget, error) {
	return s.store.Budgets(ctx)
}

func (s *LedgerService) UpdateBudget(ctx context.Context, id string, p storage.BudgetPatch) error {
	return s.store.UpdateBudget(ctx, id, p)
}

func (s *LedgerService) DeleteBudget(ctx context.Context, id string) error {
	return s.store.DeleteBudget(ctx, id)
}

// Categories

func (s *LedgerService) AddCategory(ctx context.Context, c core.Category) (string, error) {
	return s.store.InsertCategory(ctx, c)
}

func (s *LedgerService) Categories(ctx context.Context) ([]core.Category, error) {
	return s.store.Categories(ctx)
}

func (s *LedgerService) UpdateCategory(ctx context.Context, id string, p storage.CategoryPatch) error {
	return s.store.UpdateCategory(ctx, id, p)
}

func (s *LedgerService) DeleteCategory(ctx context.Context, id string) error {
	return s.store.DeleteCategory(ctx, id)
}

// Analytics

func (s *LedgerService) BudgetStatuses(ctx context.Context, now time.Time) ([]analytics.BudgetStatus, error) {
	return s.engine.BudgetStatuses(ctx, now)
}

func (s *LedgerService) CategoryBreakdown(ctx context.Context, start, end time.Time) ([]analytics.CategorySpending, error) {
	return s.engine.Breakdown(ctx, start, end)
}

func (s *LedgerService) TrendSeries(ctx context.Context, start, end time.Time, g analytics.Granularity) ([]analytics.TrendPoint, error) {
	return s.engine.Trend(ctx, start, end, g)
}

// Backup

// CreateBackup seals a bundle, writes it to the backup directory and
// announces it on the hand-off queue. The announce step is best-effort: a
// dead broker never loses a backup, the bundle is already on disk.
func (s *LedgerService) CreateBackup(ctx context.Context, passphrase string) (string, error) {
	bundle, err := s.codec.Create(ctx, passphrase)
	if err != nil {
		return "", err
	}

	raw, err := bundle.Marshal()
	if err != nil {
		return "", fmt.Errorf("encode bundle: %w", err)
	}

	if err := os.MkdirAll(s.backupDir, 0700); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}
	path := filepath.Join(s.backupDir,
		fmt.Sprintf("moneta-backup-%s.json", time.Now().UTC().Format("20060102-150405")))
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return "", fmt.Errorf("write bundle: %w", err)
	}

	if err := s.publishBackupCreated(ctx, path, bundle.Checksum); err != nil {
		slog.ErrorContext(ctx, "Failed to publish backup message",
			"path", path, "error", err)
		// Don't fail the request, the bundle is saved locally.
	}

	return path, nil
}

// RestoreBackup reads a bundle file and replaces the ledger contents.
func (s *LedgerService) RestoreBackup(ctx context.Context, path, passphrase string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read bundle: %w", err)
	}
	bundle, err := backup.UnmarshalBundle(raw)
	if err != nil {
		return err
	}
	return s.codec.Restore(ctx, bundle, passphrase)
}

func (s *LedgerService) publishBackupCreated(ctx context.Context, path, checksum string) error {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping backup message")
		return nil
	}
	return s.amqpClient.PublishBackupCreated(ctx, path, checksum)
}

// Import/export

func (s *LedgerService) ExportCSV(ctx context.Context, w io.Writer) error {
	txs, err := s.store.Transactions(ctx)
	if err != nil {
		return err
	}
	return impexp.Export(w, txs)
}

// ImportCSV parses the file and applies the batch only when every row is
// valid. On any row error nothing is written and the report is returned so
// the caller can surface all problems at once.
func (s *LedgerService) ImportCSV(ctx context.Context, r io.Reader) (impexp.Report, error) {
	report, err := impexp.Import(r)
	if err != nil {
		return report, err
	}
	if len(report.Errors) > 0 {
		return report, impexp.ErrPartialImport
	}

	// One database transaction for the whole batch: an insert failure rolls
	// back every row, never leaving a prefix of the file applied.
	if _, err := s.store.InsertTransactions(ctx, report.Transactions); err != nil {
		return report, fmt.Errorf("apply imported transactions: %w", err)
	}
	return report, nil
}

// EraseAll wipes the ledger and destroys the master key.
func (s *LedgerService) EraseAll(ctx context.Context) error {
	return s.store.EraseAll(ctx)
}

// Close closes both storage and AMQP connections.
func (s *LedgerService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}

	return nil
}
