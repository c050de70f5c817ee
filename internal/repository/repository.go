// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/tollwatch/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrNoBatch      = errors.New("no batch has been processed")
)

// DefaultListLimit caps list queries when the caller passes no limit.
const DefaultListLimit = 1000

const anomalyPredicate = "status IN ('Flagged', 'Investigating')"

const transactionColumns = `
	id, posting_date, transaction_date, identity_tag, agency, exit_time, exit_plaza,
	amount, exit_hour, daily_transaction_count, risk_score, status, category, severity, reasons`

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	return Open(context.Background(), cfg)
}

// Open creates a repository and runs migrations.
func Open(ctx context.Context, cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(ctx, cfg)
	case "postgres":
		db, err = openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{db: db, driver: cfg.Driver}
	if err := repo.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) migrate(ctx context.Context) error {
	for _, schema := range AllSchemas() {
		for _, stmt := range strings.Split(schema, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := r.db.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReplaceBatch swaps the stored batch for a new one in a single transaction.
// On any failure the previous batch stays current.
func (r *SQLRepository) ReplaceBatch(ctx context.Context, batch *domain.Batch) (err error) {
	if batch == nil || batch.ID == "" {
		return fmt.Errorf("%w: batch id is required", ErrInvalidInput)
	}

	summary, err := json.Marshal(batch.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM toll_transactions"); err != nil {
		return fmt.Errorf("clear transactions: %w", err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM batches"); err != nil {
		return fmt.Errorf("clear batches: %w", err)
	}

	_, err = tx.ExecContext(ctx, r.rebind(`
		INSERT INTO batches (
			id, source, period_year, period_month, period_source, processed_at,
			amount_percentile, amount_threshold, row_count, summary
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		batch.ID, batch.Source,
		batch.Period.Year, batch.Period.Month, string(batch.Period.Source),
		batch.ProcessedAt.UTC().Format(time.RFC3339Nano),
		batch.Stats.AmountPercentile, batch.Stats.AmountThreshold, batch.Stats.Rows,
		string(summary),
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO toll_transactions (
			batch_id, seq,`+transactionColumns+`
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range batch.Records {
		_, err = stmt.ExecContext(ctx,
			batch.ID, i,
			rec.ID,
			rec.PostingDate.Format(domain.DateLayout),
			rec.TransactionDate.Format(domain.DateLayout),
			rec.IdentityTag, rec.Agency, rec.ExitTime, rec.ExitPlaza,
			rec.Amount, rec.ExitHour, rec.DailyTransactionCount, rec.RiskScore,
			string(rec.Status), string(rec.Category), string(rec.Severity),
			strings.Join(rec.Reasons, ";"),
		)
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", rec.ID, err)
		}
	}

	return tx.Commit()
}

// CurrentBatch returns the stored batch header without records.
func (r *SQLRepository) CurrentBatch(ctx context.Context) (*domain.Batch, error) {
	query := `
		SELECT id, source, period_year, period_month, period_source, processed_at,
			   amount_percentile, amount_threshold, row_count, summary
		FROM batches
		LIMIT 1
	`

	var b domain.Batch
	var periodSource, processedAt, summary string
	err := r.db.QueryRowContext(ctx, query).Scan(
		&b.ID, &b.Source,
		&b.Period.Year, &b.Period.Month, &periodSource, &processedAt,
		&b.Stats.AmountPercentile, &b.Stats.AmountThreshold, &b.Stats.Rows,
		&summary,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoBatch
	}
	if err != nil {
		return nil, err
	}

	b.Period.Source = domain.PeriodSource(periodSource)
	if b.ProcessedAt, err = time.Parse(time.RFC3339Nano, processedAt); err != nil {
		return nil, fmt.Errorf("decode processed_at: %w", err)
	}
	if err := json.Unmarshal([]byte(summary), &b.Summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &b, nil
}

// GetTransaction retrieves one record of the current batch.
func (r *SQLRepository) GetTransaction(ctx context.Context, id string) (*domain.Record, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}

	query := `SELECT ` + transactionColumns + ` FROM toll_transactions WHERE id = ?`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListTransactions returns records newest transaction date first.
func (r *SQLRepository) ListTransactions(ctx context.Context, limit int) ([]*domain.Record, error) {
	query := `SELECT ` + transactionColumns + `
		FROM toll_transactions
		ORDER BY transaction_date DESC, seq ASC
		LIMIT ?`
	return r.queryRecords(ctx, query, normalizeLimit(limit))
}

// ListAlerts returns Flagged and Investigating records newest first.
func (r *SQLRepository) ListAlerts(ctx context.Context, limit int) ([]*domain.Record, error) {
	query := `SELECT ` + transactionColumns + `
		FROM toll_transactions
		WHERE ` + anomalyPredicate + `
		ORDER BY transaction_date DESC, risk_score DESC, seq ASC
		LIMIT ?`
	return r.queryRecords(ctx, query, normalizeLimit(limit))
}

// Metrics computes the dashboard cards relative to now.
func (r *SQLRepository) Metrics(ctx context.Context, now time.Time) (*domain.DashboardMetrics, error) {
	year := now.Format("2006")
	month := now.Format("01")

	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN ` + anomalyPredicate + ` THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN ` + anomalyPredicate + ` THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN ` + anomalyPredicate + ` AND substr(transaction_date, 1, 4) = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN ` + anomalyPredicate + ` AND substr(transaction_date, 1, 4) = ? AND substr(transaction_date, 6, 2) = ? THEN 1 ELSE 0 END), 0)
		FROM toll_transactions
	`

	var m domain.DashboardMetrics
	err := r.db.QueryRowContext(ctx, r.rebind(query), year, year, month).Scan(
		&m.TotalTransactions,
		&m.TotalFlagged,
		&m.FlaggedAmount,
		&m.AlertsYTD,
		&m.AlertsCurrentMonth,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CategoryCounts counts records per category, most frequent first.
func (r *SQLRepository) CategoryCounts(ctx context.Context) ([]domain.LabelCount, error) {
	return r.labelCounts(ctx, "category")
}

// SeverityCounts counts records per severity, most frequent first.
func (r *SQLRepository) SeverityCounts(ctx context.Context) ([]domain.LabelCount, error) {
	return r.labelCounts(ctx, "severity")
}

func (r *SQLRepository) labelCounts(ctx context.Context, column string) ([]domain.LabelCount, error) {
	query := `SELECT ` + column + `, COUNT(*) AS n
		FROM toll_transactions
		GROUP BY ` + column + `
		ORDER BY n DESC, ` + column + ` ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := []domain.LabelCount{}
	for rows.Next() {
		var c domain.LabelCount
		if err := rows.Scan(&c.Label, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// MonthlyCounts returns the most recent months of activity, oldest first.
func (r *SQLRepository) MonthlyCounts(ctx context.Context, months int) ([]domain.MonthlyCount, error) {
	if months <= 0 {
		months = 12
	}

	query := `
		SELECT
			substr(transaction_date, 1, 7) AS ym,
			COUNT(*),
			COALESCE(SUM(CASE WHEN ` + anomalyPredicate + ` THEN 1 ELSE 0 END), 0)
		FROM toll_transactions
		GROUP BY substr(transaction_date, 1, 7)
		ORDER BY ym DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), months)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MonthlyCount
	for rows.Next() {
		var ym string
		var c domain.MonthlyCount
		if err := rows.Scan(&ym, &c.TotalTransactions, &c.FraudAlerts); err != nil {
			return nil, err
		}
		t, err := time.Parse("2006-01", ym)
		if err != nil {
			return nil, fmt.Errorf("decode month %q: %w", ym, err)
		}
		c.Month = t.Format("Jan 2006")
		c.Year = t.Year()
		c.MonthNum = int(t.Month())
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if out == nil {
		out = []domain.MonthlyCount{}
	}
	return out, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) queryRecords(ctx context.Context, query string, args ...any) ([]*domain.Record, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*domain.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*domain.Record, error) {
	var rec domain.Record
	var posting, txDate, status, category, severity, reasons string

	err := s.Scan(
		&rec.ID, &posting, &txDate,
		&rec.IdentityTag, &rec.Agency, &rec.ExitTime, &rec.ExitPlaza,
		&rec.Amount, &rec.ExitHour, &rec.DailyTransactionCount, &rec.RiskScore,
		&status, &category, &severity, &reasons,
	)
	if err != nil {
		return nil, err
	}

	if rec.PostingDate, err = time.Parse(domain.DateLayout, posting); err != nil {
		return nil, fmt.Errorf("decode posting_date: %w", err)
	}
	if rec.TransactionDate, err = time.Parse(domain.DateLayout, txDate); err != nil {
		return nil, fmt.Errorf("decode transaction_date: %w", err)
	}
	rec.Status = domain.Status(status)
	rec.Category = domain.Category(category)
	rec.Severity = domain.Severity(severity)
	if reasons != "" {
		rec.Reasons = strings.Split(reasons, ";")
	}
	return &rec, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
