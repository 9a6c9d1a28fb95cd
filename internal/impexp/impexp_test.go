package impexp

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/core"
)

func TestSanitizeField(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"formula equals", "=SUM(A1:A2)", "SUM(A1:A2)"},
		{"formula plus", "+1+2", "1+2"},
		{"formula minus", "-2+3", "2+3"},
		{"formula at", "@cmd", "cmd"},
		{"leading tab", "\t=HYPERLINK(...)", "HYPERLINK(...)"},
		{"control chars dropped", "caf\x00e\x1b", "cafe"},
		{"plain text untouched", "weekly groceries", "weekly groceries"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeField(tt.in); got != tt.want {
				t.Errorf("SanitizeField(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeFieldTruncates(t *testing.T) {
	long := strings.Repeat("ä", MaxFieldLen+50)
	got := SanitizeField(long)
	if n := len([]rune(got)); n != MaxFieldLen {
		t.Fatalf("sanitized length = %d runes, want %d", n, MaxFieldLen)
	}
}

func TestExportFormat(t *testing.T) {
	txs := []core.Transaction{
		{
			Amount:      decimal.RequireFromString("-45.5"),
			Description: "weekly groceries",
			Category:    "Food",
			Merchant:    "Esselunga",
			OccurredAt:  time.Date(2026, 4, 2, 15, 30, 0, 0, time.UTC),
		},
		{
			Amount:      decimal.RequireFromString("1500"),
			Description: "=SUM(A1:A2)",
			Category:    "Salary",
			OccurredAt:  time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	if err := Export(&buf, txs); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[0] != "Date,Description,Amount,Category,Merchant,Notes" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "2026-04-02,weekly groceries,-45.50,Food,Esselunga," {
		t.Errorf("row 1 = %q", lines[1])
	}
	// The formula trigger is stripped on export too.
	if lines[2] != "2026-04-01,SUM(A1:A2),1500.00,Salary,," {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestImportRoundTrip(t *testing.T) {
	txs := []core.Transaction{
		{
			Amount:      decimal.RequireFromString("-45.50"),
			Description: "weekly groceries",
			Category:    "Food",
			Merchant:    "Esselunga",
			Notes:       "card",
			OccurredAt:  time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	if err := Export(&buf, txs); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	report, err := Import(&buf)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("Import() errors = %v", report.Errors)
	}
	if len(report.Transactions) != 1 {
		t.Fatalf("got %d transactions, want 1", len(report.Transactions))
	}

	got := report.Transactions[0]
	if !got.Amount.Equal(txs[0].Amount) {
		t.Errorf("Amount = %s, want %s", got.Amount, txs[0].Amount)
	}
	if got.Description != txs[0].Description {
		t.Errorf("Description = %q, want %q", got.Description, txs[0].Description)
	}
	if !got.OccurredAt.Equal(txs[0].OccurredAt) {
		t.Errorf("OccurredAt = %v, want %v", got.OccurredAt, txs[0].OccurredAt)
	}
	if got.Notes != "card" {
		t.Errorf("Notes = %q, want card", got.Notes)
	}
}

func TestImportDateFormats(t *testing.T) {
	in := `Date,Description,Amount,Category,Merchant,Notes
2026-04-02,iso date,-1.00,,,
02/04/2026,slash date,-2.00,,,
2/4/2026,short slash date,-3.00,,,
02-04-2026,dash date,-4.00,,,
`
	report, err := Import(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("Import() errors = %v", report.Errors)
	}
	want := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	for _, tx := range report.Transactions {
		if !tx.OccurredAt.Equal(want) {
			t.Errorf("%s: OccurredAt = %v, want %v", tx.Description, tx.OccurredAt, want)
		}
	}
}

func TestImportCollectsRowErrors(t *testing.T) {
	in := `Date,Description,Amount,Category,Merchant,Notes
2026-04-02,valid,-1.00,,,
not-a-date,bad date,-2.00,,,
2026-04-03,zero amount,0,,,
2026-04-04,,missing description,-5.00,,
`
	report, err := Import(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(report.Transactions) != 1 {
		t.Fatalf("got %d parsed transactions, want 1", len(report.Transactions))
	}
	if len(report.Errors) != 3 {
		t.Fatalf("got %d row errors, want 3: %v", len(report.Errors), report.Errors)
	}

	if report.Errors[0].Row != 3 {
		t.Errorf("first error row = %d, want 3", report.Errors[0].Row)
	}
	if !errors.Is(report.Errors[1].Err, core.ErrInvalidAmount) {
		t.Errorf("zero-amount error = %v, want ErrInvalidAmount", report.Errors[1].Err)
	}
}

func TestImportRejectsOverlongDescription(t *testing.T) {
	// Descriptions between the domain cap and the sanitizer cap must fail
	// at parse time, not later at insert time.
	long := strings.Repeat("x", core.MaxDescriptionLen+10)
	in := "Date,Description,Amount,Category,Merchant,Notes\n" +
		"2026-04-02," + long + ",-1.00,,,\n"

	report, err := Import(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(report.Transactions) != 0 {
		t.Fatalf("overlong description parsed into %d transactions", len(report.Transactions))
	}
	if len(report.Errors) != 1 || report.Errors[0].Row != 2 {
		t.Fatalf("report errors = %v, want one error on row 2", report.Errors)
	}
}

func TestImportWithoutHeader(t *testing.T) {
	report, err := Import(strings.NewReader("2026-04-02,groceries,-12.00,Food,,\n"))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(report.Transactions) != 1 || len(report.Errors) != 0 {
		t.Fatalf("report = %+v, want one clean transaction", report)
	}
}

func TestImportEmpty(t *testing.T) {
	report, err := Import(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(report.Transactions) != 0 || len(report.Errors) != 0 {
		t.Fatalf("report = %+v, want empty", report)
	}
}

func TestImportSanitizesFields(t *testing.T) {
	in := "Date,Description,Amount,Category,Merchant,Notes\n" +
		`2026-04-02,"=SUM(A1:A2)",-1.00,"@cmd","+acme","-note"` + "\n"
	report, err := Import(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("Import() errors = %v", report.Errors)
	}
	tx := report.Transactions[0]
	if tx.Description != "SUM(A1:A2)" || tx.Category != "cmd" || tx.Merchant != "acme" || tx.Notes != "note" {
		t.Errorf("sanitized fields = %q %q %q %q", tx.Description, tx.Category, tx.Merchant, tx.Notes)
	}
}
