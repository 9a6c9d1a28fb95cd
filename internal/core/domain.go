package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

const (
	Checking   AccountType = "checking"
	Savings    AccountType = "savings"
	Credit     AccountType = "credit"
	Investment AccountType = "investment"
	Cash       AccountType = "cash"
)

const (
	Income  CategoryKind = "income"
	Expense CategoryKind = "expense"
)

// MaxDescriptionLen bounds free-text fields across the whole store.
const MaxDescriptionLen = 200

type (
	// Period is the calendar cycle a budget is evaluated over.
	Period string

	AccountType  string
	CategoryKind string

	// Transaction is a single ledger movement. Negative amounts are
	// expenses, positive amounts are income; zero is never valid.
	Transaction struct {
		ID          string          `json:"id"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
		Category    string          `json:"category"`
		OccurredAt  time.Time       `json:"occurred_at"`
		AccountID   string          `json:"account_id"`
		Merchant    string          `json:"merchant,omitempty"`
		Notes       string          `json:"notes,omitempty"`
		ReceiptPath string          `json:"receipt_path,omitempty"`
		CreatedAt   time.Time       `json:"created_at"`
		UpdatedAt   time.Time       `json:"updated_at"`
	}

	Account struct {
		ID           string          `json:"id"`
		Name         string          `json:"name"`
		Type         AccountType     `json:"type"`
		Balance      decimal.Decimal `json:"balance"`
		Currency     string          `json:"currency"`
		ConnectionID string          `json:"connection_id,omitempty"`
		LastSyncedAt *time.Time      `json:"last_synced_at,omitempty"`
		Linked       bool            `json:"linked"`
		CreatedAt    time.Time       `json:"created_at"`
		UpdatedAt    time.Time       `json:"updated_at"`
	}

	// Budget carries no persisted "spent" figure: spending against the
	// limit is recomputed from transactions on every status query.
	Budget struct {
		ID        string          `json:"id"`
		Category  string          `json:"category"`
		Limit     decimal.Decimal `json:"limit"`
		Period    Period          `json:"period"`
		StartAt   time.Time       `json:"start_at"`
		EndAt     *time.Time      `json:"end_at,omitempty"`
		CreatedAt time.Time       `json:"created_at"`
		UpdatedAt time.Time       `json:"updated_at"`
	}

	Category struct {
		ID        string       `json:"id"`
		Name      string       `json:"name"`
		Icon      string       `json:"icon,omitempty"`
		Color     string       `json:"color,omitempty"`
		Kind      CategoryKind `json:"kind"`
		CreatedAt time.Time    `json:"created_at"`
		UpdatedAt time.Time    `json:"updated_at"`
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrEmptyCategory      = errors.New("empty category")
	ErrEmptyName          = errors.New("empty name")
	ErrMissingCurrency    = errors.New("missing currency code")
	ErrInvalidAccountType = errors.New("invalid account type")
	ErrInvalidPeriod      = errors.New("invalid period")
	ErrInvalidLimit       = errors.New("budget limit must be positive")
	ErrInvalidKind        = errors.New("invalid category kind")
)

// ParsePeriod parses a Period from its lowercase name.
func ParsePeriod(s string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case Daily:
		return Daily, nil
	case Weekly:
		return Weekly, nil
	case Monthly:
		return Monthly, nil
	case Yearly:
		return Yearly, nil
	default:
		return "", ErrInvalidPeriod
	}
}

func (p Period) Valid() bool {
	switch p {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

func (t AccountType) Valid() bool {
	switch t {
	case Checking, Savings, Credit, Investment, Cash:
		return true
	}
	return false
}

func (k CategoryKind) Valid() bool {
	return k == Income || k == Expense
}

func (t Transaction) Validate() error {
	if t.Amount.IsZero() {
		return ErrInvalidAmount
	}
	desc := strings.TrimSpace(t.Description)
	if desc == "" {
		return ErrEmptyDescription
	}
	if len(desc) > MaxDescriptionLen {
		return errors.New("description too long (max 200 characters)")
	}
	if t.OccurredAt.IsZero() {
		return errors.New("occurrence date cannot be zero")
	}
	return nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if !a.Type.Valid() {
		return ErrInvalidAccountType
	}
	if strings.TrimSpace(a.Currency) == "" {
		return ErrMissingCurrency
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	if !b.Limit.IsPositive() {
		return ErrInvalidLimit
	}
	if !b.Period.Valid() {
		return ErrInvalidPeriod
	}
	if b.StartAt.IsZero() {
		return errors.New("start date cannot be zero")
	}
	if b.EndAt != nil && b.EndAt.Before(b.StartAt) {
		return errors.New("end date must be after start date")
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if !c.Kind.Valid() {
		return ErrInvalidKind
	}
	return nil
}
