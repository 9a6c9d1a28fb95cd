// Package storage is the encrypted ledger store.
//
// Every entity is persisted as one row in a single records table: the
// payload is the entity's JSON sealed with AES-256-GCM under the master
// key, and the only plaintext columns are the projection the indexed
// queries need (kind, occurrence date, category label, account reference).
// The master key is fetched from the keyvault per crypto operation and
// wiped afterwards; it is never cached in the store.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"moneta/internal/core"
	"moneta/internal/crypto"
	"moneta/internal/keyvault"
	"moneta/internal/log"
)

const (
	kindTransaction = "transaction"
	kindAccount     = "account"
	kindBudget      = "budget"
	kindCategory    = "category"
)

var (
	// ErrStoreUninitialized is returned by every operation invoked before
	// Initialize has completed successfully.
	ErrStoreUninitialized = errors.New("storage: store not initialized")

	// ErrNotFound is returned by updates addressing an unknown identifier.
	ErrNotFound = errors.New("storage: record not found")

	// ErrIO wraps storage-medium failures. The triggering operation may be
	// retried by the caller; the store never retries on its own.
	ErrIO = errors.New("storage: io failure")

	// ErrDuplicateName is returned when inserting a category whose name is
	// already taken.
	ErrDuplicateName = errors.New("storage: name already exists")
)

// Store is the encrypted, queryable persistence layer for the four entity
// kinds. All mutations are serialized through a single writer lock; reads
// may proceed concurrently with other reads.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	vault  *keyvault.Vault
	path   string
	logger *log.Logger

	initialized bool
	erased      bool
}

func New(path string, vault *keyvault.Vault, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default(log.ComponentStorage)
	}
	return &Store{path: path, vault: vault, logger: logger}
}

// Initialize obtains the master key, opens or creates the encrypted
// database and ensures the schema. Calling it twice is a no-op.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	// Touching the vault first both verifies the secret store is reachable
	// and mints the key on a fresh install.
	key, err := s.vault.MasterKey()
	if err != nil {
		return err
	}
	crypto.Wipe(key)

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return ioErr("create db directory", err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return ioErr("open sqlite database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return ioErr("ping database", err)
	}
	if err := runMigrations(s.path); err != nil {
		db.Close()
		return ioErr("run migrations", err)
	}

	s.db = db
	s.initialized = true
	s.erased = false

	s.logger.InfoContext(ctx, "Ledger store initialized", "path", s.path)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// ready is checked under the caller's lock. After EraseAll the master key
// is gone, so KeyUnavailable takes precedence over the uninitialized state.
func (s *Store) ready() error {
	if s.erased {
		return keyvault.ErrKeyUnavailable
	}
	if !s.initialized {
		return ErrStoreUninitialized
	}
	return nil
}

// withKey runs fn with the master key and wipes the key afterwards.
func (s *Store) withKey(fn func(key []byte) error) error {
	key, err := s.vault.MasterKey()
	if err != nil {
		return err
	}
	defer crypto.Wipe(key)
	return fn(key)
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}

func ioErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrIO, err)
}

// row is the plaintext projection stored next to the sealed payload.
type row struct {
	id         string
	kind       string
	occurredAt sql.NullInt64
	category   sql.NullString
	accountID  sql.NullString
	createdAt  int64
	updatedAt  int64
}

func sealPayload(key []byte, entity any) ([]byte, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	blob, err := crypto.Seal(key, raw)
	if err != nil {
		return nil, fmt.Errorf("seal payload: %w", err)
	}
	return blob, nil
}

func openPayload(key, blob []byte, entity any) error {
	raw, err := crypto.Open(key, blob)
	if err != nil {
		return ioErr("decrypt record", err)
	}
	if err := json.Unmarshal(raw, entity); err != nil {
		return ioErr("decode record", err)
	}
	return nil
}

const insertSQL = `
	INSERT INTO records (id, kind, occurred_at, category, account_id, payload, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (s *Store) insertRow(ctx context.Context, r row, payload []byte) error {
	_, err := s.db.ExecContext(ctx, insertSQL,
		r.id, r.kind, r.occurredAt, r.category, r.accountID, payload, r.createdAt, r.updatedAt)
	if err != nil {
		return ioErr("insert "+r.kind, err)
	}
	return nil
}

// InsertTransaction assigns an identifier and timestamps, then writes the
// sealed record atomically. The identifier is returned.
func (s *Store) InsertTransaction(ctx context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return "", err
	}

	id, err := newID()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	t.ID, t.CreatedAt, t.UpdatedAt = id, now, now

	err = s.withKey(func(key []byte) error {
		payload, err := sealPayload(key, t)
		if err != nil {
			return err
		}
		return s.insertRow(ctx, row{
			id:         id,
			kind:       kindTransaction,
			occurredAt: sql.NullInt64{Int64: t.OccurredAt.UnixMilli(), Valid: true},
			category:   sql.NullString{String: t.Category, Valid: t.Category != ""},
			accountID:  sql.NullString{String: t.AccountID, Valid: t.AccountID != ""},
			createdAt:  now.UnixMilli(),
			updatedAt:  now.UnixMilli(),
		}, payload)
	})
	if err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "Transaction saved", "id", id, "category", t.Category)
	return id, nil
}

// InsertTransactions writes a batch inside one database transaction:
// either every record lands or none does. The whole batch is validated up
// front, so a single bad record rejects the batch before anything is
// written.
func (s *Store) InsertTransactions(ctx context.Context, txs []core.Transaction) ([]string, error) {
	for _, t := range txs {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(txs))
	err := s.withKey(func(key []byte) error {
		dbTx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return ioErr("begin batch insert", err)
		}
		defer dbTx.Rollback()

		stmt, err := dbTx.PrepareContext(ctx, insertSQL)
		if err != nil {
			return ioErr("prepare batch insert", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, t := range txs {
			id, err := newID()
			if err != nil {
				return err
			}
			t.ID, t.CreatedAt, t.UpdatedAt = id, now, now

			payload, err := sealPayload(key, t)
			if err != nil {
				return err
			}
			_, err = stmt.ExecContext(ctx,
				id, kindTransaction,
				sql.NullInt64{Int64: t.OccurredAt.UnixMilli(), Valid: true},
				sql.NullString{String: t.Category, Valid: t.Category != ""},
				sql.NullString{String: t.AccountID, Valid: t.AccountID != ""},
				payload, now.UnixMilli(), now.UnixMilli())
			if err != nil {
				return ioErr("insert transaction", err)
			}
			ids = append(ids, id)
		}

		if err := dbTx.Commit(); err != nil {
			return ioErr("commit batch insert", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Transaction batch saved", "count", len(ids))
	return ids, nil
}

func (s *Store) InsertAccount(ctx context.Context, a core.Account) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return "", err
	}

	id, err := newID()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	a.ID, a.CreatedAt, a.UpdatedAt = id, now, now

	err = s.withKey(func(key []byte) error {
		payload, err := sealPayload(key, a)
		if err != nil {
			return err
		}
		return s.insertRow(ctx, row{
			id:        id,
			kind:      kindAccount,
			createdAt: now.UnixMilli(),
			updatedAt: now.UnixMilli(),
		}, payload)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) InsertBudget(ctx context.Context, b core.Budget) (string, error) {
	if err := b.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return "", err
	}

	id, err := newID()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	b.ID, b.CreatedAt, b.UpdatedAt = id, now, now

	err = s.withKey(func(key []byte) error {
		payload, err := sealPayload(key, b)
		if err != nil {
			return err
		}
		return s.insertRow(ctx, row{
			id:        id,
			kind:      kindBudget,
			category:  sql.NullString{String: b.Category, Valid: true},
			createdAt: now.UnixMilli(),
			updatedAt: now.UnixMilli(),
		}, payload)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// InsertCategory enforces name uniqueness via the plaintext label column.
func (s *Store) InsertCategory(ctx context.Context, c core.Category) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return "", err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE kind = ? AND category = ?`,
		kindCategory, c.Name).Scan(&count)
	if err != nil {
		return "", ioErr("check category name", err)
	}
	if count > 0 {
		return "", fmt.Errorf("%w: category %q", ErrDuplicateName, c.Name)
	}

	id, err := newID()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	c.ID, c.CreatedAt, c.UpdatedAt = id, now, now

	err = s.withKey(func(key []byte) error {
		payload, err := sealPayload(key, c)
		if err != nil {
			return err
		}
		return s.insertRow(ctx, row{
			id:        id,
			kind:      kindCategory,
			category:  sql.NullString{String: c.Name, Valid: true},
			createdAt: now.UnixMilli(),
			updatedAt: now.UnixMilli(),
		}, payload)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Transactions returns every transaction ordered by descending occurrence
// date.
func (s *Store) Transactions(ctx context.Context) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.queryTransactions(ctx,
		`SELECT payload FROM records WHERE kind = ?
		 ORDER BY occurred_at DESC, created_at DESC, id DESC`, kindTransaction)
}

// TransactionsByDateRange returns transactions whose occurrence date falls
// in [start, end], newest first.
func (s *Store) TransactionsByDateRange(ctx context.Context, start, end time.Time) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.queryTransactions(ctx,
		`SELECT payload FROM records WHERE kind = ? AND occurred_at >= ? AND occurred_at <= ?
		 ORDER BY occurred_at DESC, created_at DESC, id DESC`,
		kindTransaction, start.UnixMilli(), end.UnixMilli())
}

// TransactionsByCategory returns transactions with the given category
// label, newest first.
func (s *Store) TransactionsByCategory(ctx context.Context, category string) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.queryTransactions(ctx,
		`SELECT payload FROM records WHERE kind = ? AND category = ?
		 ORDER BY occurred_at DESC, created_at DESC, id DESC`,
		kindTransaction, category)
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	var out []core.Transaction
	err := s.withKey(func(key []byte) error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return ioErr("query transactions", err)
		}
		defer rows.Close()
		for rows.Next() {
			var payload []byte
			if err := rows.Scan(&payload); err != nil {
				return ioErr("scan transaction", err)
			}
			var t core.Transaction
			if err := openPayload(key, payload, &t); err != nil {
				return err
			}
			out = append(out, t)
		}
		if err := rows.Err(); err != nil {
			return ioErr("iterate transactions", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Accounts(ctx context.Context) ([]core.Account, error) {
	return queryKind[core.Account](ctx, s, kindAccount)
}

func (s *Store) Budgets(ctx context.Context) ([]core.Budget, error) {
	return queryKind[core.Budget](ctx, s, kindBudget)
}

func (s *Store) Categories(ctx context.Context) ([]core.Category, error) {
	return queryKind[core.Category](ctx, s, kindCategory)
}

func queryKind[T any](ctx context.Context, s *Store, kind string) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	var out []T
	err := s.withKey(func(key []byte) error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT payload FROM records WHERE kind = ? ORDER BY created_at, id`, kind)
		if err != nil {
			return ioErr("query "+kind, err)
		}
		defer rows.Close()
		for rows.Next() {
			var payload []byte
			if err := rows.Scan(&payload); err != nil {
				return ioErr("scan "+kind, err)
			}
			var entity T
			if err := openPayload(key, payload, &entity); err != nil {
				return err
			}
			out = append(out, entity)
		}
		if err := rows.Err(); err != nil {
			return ioErr("iterate "+kind, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Snapshot reads a consistent full copy of the ledger for the backup codec.
func (s *Store) Snapshot(ctx context.Context) (core.Snapshot, error) {
	var snap core.Snapshot

	transactions, err := s.Transactions(ctx)
	if err != nil {
		return snap, err
	}
	accounts, err := s.Accounts(ctx)
	if err != nil {
		return snap, err
	}
	budgets, err := s.Budgets(ctx)
	if err != nil {
		return snap, err
	}
	categories, err := s.Categories(ctx)
	if err != nil {
		return snap, err
	}

	snap.Transactions = transactions
	snap.Accounts = accounts
	snap.Budgets = budgets
	snap.Categories = categories
	return snap, nil
}

// RestoreSnapshot replaces the store contents with the snapshot inside a
// single database transaction: existing records are cleared and every
// snapshot record inserted, or the ledger is left untouched.
func (s *Store) RestoreSnapshot(ctx context.Context, snap core.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	return s.withKey(func(key []byte) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return ioErr("begin restore", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
			return ioErr("clear records for restore", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO records
			(id, kind, occurred_at, category, account_id, payload, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return ioErr("prepare restore", err)
		}
		defer stmt.Close()

		write := func(r row, entity any) error {
			payload, err := sealPayload(key, entity)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx,
				r.id, r.kind, r.occurredAt, r.category, r.accountID, payload,
				r.createdAt, r.updatedAt); err != nil {
				return ioErr("restore "+r.kind, err)
			}
			return nil
		}

		now := time.Now().UTC()
		for _, t := range snap.Transactions {
			if err := restoreStamp(&t.ID, &t.CreatedAt, &t.UpdatedAt, now); err != nil {
				return err
			}
			if err := write(row{
				id:         t.ID,
				kind:       kindTransaction,
				occurredAt: sql.NullInt64{Int64: t.OccurredAt.UnixMilli(), Valid: true},
				category:   sql.NullString{String: t.Category, Valid: t.Category != ""},
				accountID:  sql.NullString{String: t.AccountID, Valid: t.AccountID != ""},
				createdAt:  t.CreatedAt.UnixMilli(),
				updatedAt:  t.UpdatedAt.UnixMilli(),
			}, t); err != nil {
				return err
			}
		}
		for _, a := range snap.Accounts {
			if err := restoreStamp(&a.ID, &a.CreatedAt, &a.UpdatedAt, now); err != nil {
				return err
			}
			if err := write(row{
				id:        a.ID,
				kind:      kindAccount,
				createdAt: a.CreatedAt.UnixMilli(),
				updatedAt: a.UpdatedAt.UnixMilli(),
			}, a); err != nil {
				return err
			}
		}
		for _, b := range snap.Budgets {
			if err := restoreStamp(&b.ID, &b.CreatedAt, &b.UpdatedAt, now); err != nil {
				return err
			}
			if err := write(row{
				id:        b.ID,
				kind:      kindBudget,
				category:  sql.NullString{String: b.Category, Valid: true},
				createdAt: b.CreatedAt.UnixMilli(),
				updatedAt: b.UpdatedAt.UnixMilli(),
			}, b); err != nil {
				return err
			}
		}
		for _, c := range snap.Categories {
			if err := restoreStamp(&c.ID, &c.CreatedAt, &c.UpdatedAt, now); err != nil {
				return err
			}
			if err := write(row{
				id:        c.ID,
				kind:      kindCategory,
				category:  sql.NullString{String: c.Name, Valid: true},
				createdAt: c.CreatedAt.UnixMilli(),
				updatedAt: c.UpdatedAt.UnixMilli(),
			}, c); err != nil {
				return err
			}
		}

		if err := tx.Commit(); err != nil {
			return ioErr("commit restore", err)
		}

		s.logger.InfoContext(ctx, "Snapshot restored", "records", snap.Len())
		return nil
	})
}

// restoreStamp fills identifiers and timestamps missing from imported
// records (a bundle produced by an older exporter may omit them).
func restoreStamp(id *string, createdAt, updatedAt *time.Time, now time.Time) error {
	if *id == "" {
		fresh, err := newID()
		if err != nil {
			return err
		}
		*id = fresh
	}
	if createdAt.IsZero() {
		*createdAt = now
	}
	if updatedAt.IsZero() {
		*updatedAt = now
	}
	return nil
}

// EraseAll deletes every record of every kind and destroys the master key.
// Leftover ciphertext anywhere (old backups of the database file included)
// is unrecoverable afterwards. Safe to call on an already-empty store.
func (s *Store) EraseAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
			return ioErr("erase records", err)
		}
	}
	if err := s.vault.EraseMasterKey(); err != nil {
		return err
	}

	s.erased = true
	s.initialized = false
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}

	s.logger.InfoContext(ctx, "Ledger erased, master key destroyed")
	return nil
}
