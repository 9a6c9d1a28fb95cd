// Package impexp reads and writes the human-portable CSV form of the
// ledger. Text fields are sanitized on both directions so a crafted
// description can never become a live spreadsheet formula.
package impexp

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"moneta/internal/core"
)

// MaxFieldLen bounds sanitized text fields in runes.
const MaxFieldLen = 256

var header = []string{"Date", "Description", "Amount", "Category", "Merchant", "Notes"}

// ErrPartialImport reports that at least one row failed to parse. The
// import is all-or-nothing: no row of a failed batch is applied.
var ErrPartialImport = errors.New("impexp: import aborted, some rows invalid")

// RowError ties a parse failure to its 1-based row number in the file.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Report is the outcome of parsing an import file.
type Report struct {
	Transactions []core.Transaction
	Errors       []RowError
}

// SanitizeField neutralizes spreadsheet formula injection and strips
// control characters. Leading formula triggers (= + - @ and tab) are
// removed, every control rune is dropped, and the result is truncated to
// MaxFieldLen runes. Applied to text fields only; amounts keep their sign.
func SanitizeField(s string) string {
	s = strings.TrimLeft(s, "=+-@\t")
	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if n >= MaxFieldLen {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// Export writes transactions as CSV with the fixed header row. Dates are
// formatted 2006-01-02 and amounts with exactly two fraction digits.
func Export(w io.Writer, txs []core.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, t := range txs {
		record := []string{
			t.OccurredAt.Format("2006-01-02"),
			SanitizeField(t.Description),
			t.Amount.StringFixed(2),
			SanitizeField(t.Category),
			SanitizeField(t.Merchant),
			SanitizeField(t.Notes),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}
	return nil
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2/1/2006", "02-01-2006"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Import parses a CSV export back into transactions. Rows that fail to
// parse are collected into the report instead of aborting the scan, so the
// caller can show every problem at once; the batch must only be applied
// when the report carries no errors.
func Import(r io.Reader) (Report, error) {
	var report Report

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	first, err := cr.Read()
	if err == io.EOF {
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("read header: %w", err)
	}
	rowNum := 1
	// A file without the header row is accepted; the first line is then
	// data and goes through the normal row parser.
	if !isHeader(first) {
		if tx, err := parseRow(first); err != nil {
			report.Errors = append(report.Errors, RowError{Row: rowNum, Err: err})
		} else {
			report.Transactions = append(report.Transactions, tx)
		}
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			report.Errors = append(report.Errors, RowError{Row: rowNum, Err: err})
			continue
		}
		if tx, err := parseRow(record); err != nil {
			report.Errors = append(report.Errors, RowError{Row: rowNum, Err: err})
		} else {
			report.Transactions = append(report.Transactions, tx)
		}
	}
	return report, nil
}

func isHeader(record []string) bool {
	if len(record) < len(header) {
		return false
	}
	for i, want := range header {
		if !strings.EqualFold(strings.TrimSpace(record[i]), want) {
			return false
		}
	}
	return true
}

func parseRow(record []string) (core.Transaction, error) {
	var t core.Transaction
	if len(record) < 3 {
		return t, fmt.Errorf("need at least date, description and amount, got %d fields", len(record))
	}

	occurredAt, err := parseDate(record[0])
	if err != nil {
		return t, err
	}

	amount, err := core.ParseAmount(record[2])
	if err != nil {
		return t, err
	}

	t.OccurredAt = occurredAt
	t.Description = SanitizeField(record[1])
	t.Amount = amount
	if len(record) > 3 {
		t.Category = SanitizeField(record[3])
	}
	if len(record) > 4 {
		t.Merchant = SanitizeField(record[4])
	}
	if len(record) > 5 {
		t.Notes = SanitizeField(record[5])
	}

	// Full domain validation here, so every constraint the store would
	// reject on insert already lands in the per-row report and a clean
	// report guarantees the whole batch is insertable.
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}
