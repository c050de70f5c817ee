// Package schema validates raw batches and decodes them into records.
package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/tollwatch/internal/domain"
)

// dateLayouts are tried in order when parsing posting and transaction dates.
var dateLayouts = []string{
	domain.DateLayout,
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"01-02-2006",
	"1/2/06",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
	time.RFC3339,
	"02-Jan-2006",
	"Jan 2, 2006",
}

// Validate checks a batch without modifying it.
// Missing columns are reported before an empty batch, and an empty batch
// before any cell-level type error.
func Validate(table *domain.Table) error {
	_, err := decode(table, false)
	return err
}

// Decode validates a batch and returns one record per row with the input
// fields parsed. Derived fields are left at their zero values.
func Decode(table *domain.Table) ([]*domain.Record, error) {
	return decode(table, true)
}

func decode(table *domain.Table, build bool) ([]*domain.Record, error) {
	if missing := MissingColumns(table); len(missing) > 0 {
		return nil, &domain.ValidationError{
			Kind:    domain.KindMissingColumns,
			Columns: missing,
		}
	}
	if table.Len() == 0 {
		return nil, &domain.ValidationError{Kind: domain.KindEmptyBatch}
	}

	var records []*domain.Record
	if build {
		records = make([]*domain.Record, 0, table.Len())
	}

	for i, row := range table.Rows {
		line := i + 1

		posting, err := ParseDate(row[domain.ColPostingDate])
		if err != nil {
			return nil, typeError(domain.ColPostingDate, line, err)
		}
		txDate, err := ParseDate(row[domain.ColTransactionDate])
		if err != nil {
			return nil, typeError(domain.ColTransactionDate, line, err)
		}
		amount, err := ParseAmount(row[domain.ColAmount])
		if err != nil {
			return nil, typeError(domain.ColAmount, line, err)
		}

		if !build {
			continue
		}
		records = append(records, &domain.Record{
			PostingDate:     posting,
			TransactionDate: txDate,
			IdentityTag:     strings.TrimSpace(row[domain.ColIdentityTag]),
			Agency:          strings.TrimSpace(row[domain.ColAgency]),
			ExitTime:        strings.TrimSpace(row[domain.ColExitTime]),
			ExitPlaza:       strings.TrimSpace(row[domain.ColExitPlaza]),
			Amount:          amount,
		})
	}

	return records, nil
}

// MissingColumns returns every required column absent from the table header,
// in canonical order.
func MissingColumns(table *domain.Table) []string {
	var missing []string
	for _, col := range domain.RequiredColumns {
		if table == nil || !table.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	return missing
}

func typeError(column string, row int, err error) *domain.ValidationError {
	return &domain.ValidationError{
		Kind:   domain.KindTypeError,
		Column: column,
		Row:    row,
		Detail: err.Error(),
	}
}

// ParseDate parses a calendar date in any of the accepted layouts and
// truncates it to midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date", s)
}

// ParseAmount parses a signed currency value. Currency symbols, thousands
// separators and accounting parentheses are accepted.
func ParseAmount(s string) (float64, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	// "-$1.50" leaves "-1.50"; "$-1.50" leaves the same.

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("cannot parse %q as a number", raw)
	}
	if negative {
		v = -v
	}
	return v, nil
}
