// Package export writes annotated batches as flat tables.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/opensource-finance/tollwatch/internal/domain"
)

// Columns is the header of an exported batch: every input column followed
// by the derived ones.
var Columns = append(append([]string(nil), domain.RequiredColumns...),
	"exit_hour",
	"daily_transaction_count",
	"risk_score",
	"status",
	"category",
	"severity",
	"id",
	"is_anomaly",
	"reasons",
)

// Row flattens a record in Columns order.
func Row(r *domain.Record) []string {
	anomaly := "0"
	if r.IsAnomaly() {
		anomaly = "1"
	}
	return []string{
		r.PostingDate.Format(domain.DateLayout),
		r.TransactionDate.Format(domain.DateLayout),
		r.IdentityTag,
		r.Agency,
		r.ExitTime,
		r.ExitPlaza,
		strconv.FormatFloat(r.Amount, 'f', -1, 64),
		strconv.Itoa(r.ExitHour),
		strconv.Itoa(r.DailyTransactionCount),
		strconv.Itoa(r.RiskScore),
		string(r.Status),
		string(r.Category),
		string(r.Severity),
		r.ID,
		anomaly,
		strings.Join(r.Reasons, ";"),
	}
}

// WriteCSV writes the header and one line per record.
func WriteCSV(w io.Writer, records []*domain.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(Row(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FileExporter writes each batch to "<dir>/transaction_<period>_processed.csv".
type FileExporter struct {
	dir string
}

// NewFileExporter creates the export directory if needed.
func NewFileExporter(dir string) (*FileExporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	return &FileExporter{dir: dir}, nil
}

// Name identifies the exporter in logs and metrics.
func (e *FileExporter) Name() string { return "csv" }

// Path returns the file a batch is exported to.
func (e *FileExporter) Path(batch *domain.Batch) string {
	token := batch.Period.Token()
	if token == "_" {
		token = batch.ID
	}
	return filepath.Join(e.dir, "transaction_"+token+"_processed.csv")
}

// Export writes the batch atomically, replacing any earlier export for the
// same period.
func (e *FileExporter) Export(ctx context.Context, batch *domain.Batch) error {
	path := e.Path(batch)
	tmp, err := os.CreateTemp(e.dir, ".export-*")
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, batch.Records); err != nil {
		tmp.Close()
		return fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish export: %w", err)
	}
	return nil
}
