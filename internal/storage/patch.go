package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/core"
)

// Patches carry optional replacements for the mutable fields of each
// entity. Nil fields are left untouched. Updates re-validate the patched
// entity before sealing it back, so a patch can never persist an invalid
// record.
type (
	TransactionPatch struct {
		Amount      *decimal.Decimal
		Description *string
		Category    *string
		OccurredAt  *time.Time
		AccountID   *string
		Merchant    *string
		Notes       *string
		ReceiptPath *string
	}

	AccountPatch struct {
		Name     *string
		Type     *core.AccountType
		Balance  *decimal.Decimal
		Currency *string
	}

	BudgetPatch struct {
		Category *string
		Limit    *decimal.Decimal
		Period   *core.Period
		StartAt  *time.Time
		EndAt    **time.Time
	}

	CategoryPatch struct {
		Name  *string
		Icon  *string
		Color *string
		Kind  *core.CategoryKind
	}
)

func (s *Store) UpdateTransaction(ctx context.Context, id string, p TransactionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	return s.withKey(func(key []byte) error {
		var t core.Transaction
		if err := s.loadRecord(ctx, key, kindTransaction, id, &t); err != nil {
			return err
		}

		if p.Amount != nil {
			t.Amount = *p.Amount
		}
		if p.Description != nil {
			t.Description = *p.Description
		}
		if p.Category != nil {
			t.Category = *p.Category
		}
		if p.OccurredAt != nil {
			t.OccurredAt = *p.OccurredAt
		}
		if p.AccountID != nil {
			t.AccountID = *p.AccountID
		}
		if p.Merchant != nil {
			t.Merchant = *p.Merchant
		}
		if p.Notes != nil {
			t.Notes = *p.Notes
		}
		if p.ReceiptPath != nil {
			t.ReceiptPath = *p.ReceiptPath
		}
		if err := t.Validate(); err != nil {
			return err
		}
		t.UpdatedAt = time.Now().UTC()

		return s.storeRecord(ctx, key, id, t, row{
			kind:       kindTransaction,
			occurredAt: sql.NullInt64{Int64: t.OccurredAt.UnixMilli(), Valid: true},
			category:   sql.NullString{String: t.Category, Valid: t.Category != ""},
			accountID:  sql.NullString{String: t.AccountID, Valid: t.AccountID != ""},
			updatedAt:  t.UpdatedAt.UnixMilli(),
		})
	})
}

func (s *Store) UpdateAccount(ctx context.Context, id string, p AccountPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	return s.withKey(func(key []byte) error {
		var a core.Account
		if err := s.loadRecord(ctx, key, kindAccount, id, &a); err != nil {
			return err
		}

		if p.Name != nil {
			a.Name = *p.Name
		}
		if p.Type != nil {
			a.Type = *p.Type
		}
		if p.Balance != nil {
			a.Balance = *p.Balance
		}
		if p.Currency != nil {
			a.Currency = *p.Currency
		}
		if err := a.Validate(); err != nil {
			return err
		}
		a.UpdatedAt = time.Now().UTC()

		return s.storeRecord(ctx, key, id, a, row{
			kind:      kindAccount,
			updatedAt: a.UpdatedAt.UnixMilli(),
		})
	})
}

func (s *Store) UpdateBudget(ctx context.Context, id string, p BudgetPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	return s.withKey(func(key []byte) error {
		var b core.Budget
		if err := s.loadRecord(ctx, key, kindBudget, id, &b); err != nil {
			return err
		}

		if p.Category != nil {
			b.Category = *p.Category
		}
		if p.Limit != nil {
			b.Limit = *p.Limit
		}
		if p.Period != nil {
			b.Period = *p.Period
		}
		if p.StartAt != nil {
			b.StartAt = *p.StartAt
		}
		if p.EndAt != nil {
			b.EndAt = *p.EndAt
		}
		if err := b.Validate(); err != nil {
			return err
		}
		b.UpdatedAt = time.Now().UTC()

		return s.storeRecord(ctx, key, id, b, row{
			kind:      kindBudget,
			category:  sql.NullString{String: b.Category, Valid: true},
			updatedAt: b.UpdatedAt.UnixMilli(),
		})
	})
}

func (s *Store) UpdateCategory(ctx context.Context, id string, p CategoryPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	return s.withKey(func(key []byte) error {
		var c core.Category
		if err := s.loadRecord(ctx, key, kindCategory, id, &c); err != nil {
			return err
		}

		if p.Name != nil && *p.Name != c.Name {
			var count int
			err := s.db.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM records WHERE kind = ? AND category = ? AND id != ?`,
				kindCategory, *p.Name, id).Scan(&count)
			if err != nil {
				return ioErr("check category name", err)
			}
			if count > 0 {
				return fmt.Errorf("%w: category %q", ErrDuplicateName, *p.Name)
			}
			c.Name = *p.Name
		}
		if p.Icon != nil {
			c.Icon = *p.Icon
		}
		if p.Color != nil {
			c.Color = *p.Color
		}
		if p.Kind != nil {
			c.Kind = *p.Kind
		}
		if err := c.Validate(); err != nil {
			return err
		}
		c.UpdatedAt = time.Now().UTC()

		return s.storeRecord(ctx, key, id, c, row{
			kind:      kindCategory,
			category:  sql.NullString{String: c.Name, Valid: true},
			updatedAt: c.UpdatedAt.UnixMilli(),
		})
	})
}

// DeleteRecord removes a single record of the given kind.
func (s *Store) deleteRecord(ctx context.Context, kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE kind = ? AND id = ?`, kind, id)
	if err != nil {
		return ioErr("delete "+kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ioErr("delete "+kind, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	return s.deleteRecord(ctx, kindTransaction, id)
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	return s.deleteRecord(ctx, kindAccount, id)
}

func (s *Store) DeleteBudget(ctx context.Context, id string) error {
	return s.deleteRecord(ctx, kindBudget, id)
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	return s.deleteRecord(ctx, kindCategory, id)
}

// loadRecord fetches and decrypts one record by kind and id.
func (s *Store) loadRecord(ctx context.Context, key []byte, kind, id string, entity any) error {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM records WHERE kind = ? AND id = ?`, kind, id).
		Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	if err != nil {
		return ioErr("load "+kind, err)
	}
	return openPayload(key, payload, entity)
}

// storeRecord seals the patched entity and rewrites the row in place,
// refreshing the projection columns alongside the payload.
func (s *Store) storeRecord(ctx context.Context, key []byte, id string, entity any, r row) error {
	payload, err := sealPayload(key, entity)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE records
		SET occurred_at = ?, category = ?, account_id = ?, payload = ?, updated_at = ?
		WHERE kind = ? AND id = ?`,
		r.occurredAt, r.category, r.accountID, payload, r.updatedAt, r.kind, id)
	if err != nil {
		return ioErr("update "+r.kind, err)
	}
	return nil
}
