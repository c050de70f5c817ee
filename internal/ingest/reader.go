// Package ingest turns uploaded files into scored, stored batches.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/opensource-finance/tollwatch/internal/domain"
)

// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// SupportedExtensions lists the accepted upload extensions.
var SupportedExtensions = []string{".csv", ".xlsx"}

// headerAliases maps alternate column names seen in agency exports.
var headerAliases = map[string]string{
	"tag_plate_number": domain.ColIdentityTag,
	"tag_plate":        domain.ColIdentityTag,
	"tag_number":       domain.ColIdentityTag,
	"plate_number":     domain.ColIdentityTag,
	"identity":         domain.ColIdentityTag,
}

// Supported reports whether the file extension can be read.
func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// ReadTable parses an uploaded file into a row-oriented table, choosing the
// reader by extension.
func ReadTable(name string, data []byte) (*domain.Table, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return ReadCSV(bytes.NewReader(data))
	case ".xlsx":
		return ReadXLSX(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// ReadCSV reads a CSV document whose first record is the header.
func ReadCSV(r io.Reader) (*domain.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return buildTable(records), nil
}

// ReadXLSX reads the first worksheet that has a header row.
func ReadXLSX(r io.Reader) (*domain.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		if len(rows) > 0 {
			return buildTable(rows), nil
		}
	}
	return &domain.Table{}, nil
}

// NormalizeHeader lowercases a column name, joins words with underscores
// and resolves known aliases.
func NormalizeHeader(h string) string {
	var b strings.Builder
	sep := false
	for _, c := range strings.ToLower(strings.TrimSpace(h)) {
		if c >= 'a' && c <= 'z' || c >= '0' && c <= '9' {
			if sep && b.Len() > 0 {
				b.WriteByte('_')
			}
			sep = false
			b.WriteRune(c)
			continue
		}
		sep = true
	}
	out := b.String()
	if alias, ok := headerAliases[out]; ok {
		return alias
	}
	return out
}

func buildTable(records [][]string) *domain.Table {
	if len(records) == 0 {
		return &domain.Table{}
	}

	columns := make([]string, len(records[0]))
	for i, h := range records[0] {
		columns[i] = NormalizeHeader(h)
	}

	table := &domain.Table{Columns: columns}
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := make(domain.Row, len(columns))
		for i, col := range columns {
			if col == "" {
				continue
			}
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
