// Package warehouse loads annotated batches into the BigQuery dashboard table.
package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/option"

	"github.com/opensource-finance/tollwatch/internal/domain"
)

// Row is one line of the dashboard table.
type Row struct {
	ID                    string     `bigquery:"id" json:"id"`
	BatchID               string     `bigquery:"batch_id" json:"batch_id"`
	PostingDate           civil.Date `bigquery:"posting_date" json:"posting_date"`
	TransactionDate       civil.Date `bigquery:"transaction_date" json:"transaction_date"`
	IdentityTag           string     `bigquery:"identity_tag" json:"identity_tag"`
	Agency                string     `bigquery:"agency" json:"agency"`
	ExitTime              string     `bigquery:"exit_time" json:"exit_time"`
	ExitPlaza             string     `bigquery:"exit_plaza" json:"exit_plaza"`
	Amount                float64    `bigquery:"amount" json:"amount"`
	ExitHour              int64      `bigquery:"exit_hour" json:"exit_hour"`
	DailyTransactionCount int64      `bigquery:"daily_transaction_count" json:"daily_transaction_count"`
	RiskScore             int64      `bigquery:"risk_score" json:"risk_score"`
	Status                string     `bigquery:"status" json:"status"`
	Category              string     `bigquery:"category" json:"category"`
	Severity              string     `bigquery:"severity" json:"severity"`
	IsAnomaly             int64      `bigquery:"is_anomaly" json:"is_anomaly"`
	Reasons               string     `bigquery:"reasons" json:"reasons"`
	ProcessedAt           time.Time  `bigquery:"processed_ts" json:"processed_ts"`
}

// NewRow flattens a record of a batch.
func NewRow(batch *domain.Batch, r *domain.Record) Row {
	anomaly := int64(0)
	if r.IsAnomaly() {
		anomaly = 1
	}
	return Row{
		ID:                    r.ID,
		BatchID:               batch.ID,
		PostingDate:           civil.DateOf(r.PostingDate),
		TransactionDate:       civil.DateOf(r.TransactionDate),
		IdentityTag:           r.IdentityTag,
		Agency:                r.Agency,
		ExitTime:              r.ExitTime,
		ExitPlaza:             r.ExitPlaza,
		Amount:                r.Amount,
		ExitHour:              int64(r.ExitHour),
		DailyTransactionCount: int64(r.DailyTransactionCount),
		RiskScore:             int64(r.RiskScore),
		Status:                string(r.Status),
		Category:              string(r.Category),
		Severity:              string(r.Severity),
		IsAnomaly:             anomaly,
		Reasons:               strings.Join(r.Reasons, ";"),
		ProcessedAt:           batch.ProcessedAt,
	}
}

// EncodeNDJSON writes one JSON object per record.
func EncodeNDJSON(w io.Writer, batch *domain.Batch) error {
	enc := json.NewEncoder(w)
	for _, r := range batch.Records {
		if err := enc.Encode(NewRow(batch, r)); err != nil {
			return fmt.Errorf("encode row %s: %w", r.ID, err)
		}
	}
	return nil
}

// BigQueryExporter replaces the dashboard table with each new batch.
type BigQueryExporter struct {
	client  *bigquery.Client
	dataset string
	table   string
	schema  bigquery.Schema
}

// NewBigQueryExporter opens a client for the configured project.
func NewBigQueryExporter(ctx context.Context, cfg domain.WarehouseConfig) (*BigQueryExporter, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("warehouse project id is required")
	}

	schema, err := bigquery.InferSchema(Row{})
	if err != nil {
		return nil, fmt.Errorf("infer warehouse schema: %w", err)
	}

	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}
	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}

	return &BigQueryExporter{
		client:  client,
		dataset: cfg.Dataset,
		table:   cfg.Table,
		schema:  schema,
	}, nil
}

// Name identifies the exporter in logs and metrics.
func (e *BigQueryExporter) Name() string { return "bigquery" }

// Export runs a load job with WRITE_TRUNCATE so the table holds exactly the
// current batch.
func (e *BigQueryExporter) Export(ctx context.Context, batch *domain.Batch) error {
	var buf bytes.Buffer
	if err := EncodeNDJSON(&buf, batch); err != nil {
		return err
	}

	src := bigquery.NewReaderSource(&buf)
	src.SourceFormat = bigquery.JSON
	src.Schema = e.schema

	loader := e.client.Dataset(e.dataset).Table(e.table).LoaderFrom(src)
	loader.WriteDisposition = bigquery.WriteTruncate
	loader.CreateDisposition = bigquery.CreateIfNeeded

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("start load job: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for load job %s: %w", job.ID(), err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("load job %s failed: %w", job.ID(), err)
	}

	slog.Info("batch loaded into warehouse",
		"batch_id", batch.ID,
		"table", e.dataset+"."+e.table,
		"rows", len(batch.Records),
		"job_id", job.ID(),
	)
	return nil
}

// Close releases the client.
func (e *BigQueryExporter) Close() error {
	return e.client.Close()
}
