// Package domain defines the core types and interfaces for tollwatch.
package domain

import (
	"context"
	"io"
	"time"
)

// Repository persists the current batch and answers dashboard queries over it.
type Repository interface {
	// ReplaceBatch atomically swaps the stored batch for a new one.
	ReplaceBatch(ctx context.Context, batch *Batch) error

	// CurrentBatch returns the stored batch header (no records).
	CurrentBatch(ctx context.Context) (*Batch, error)

	GetTransaction(ctx context.Context, id string) (*Record, error)
	ListTransactions(ctx context.Context, limit int) ([]*Record, error)
	ListAlerts(ctx context.Context, limit int) ([]*Record, error)

	// Dashboard aggregations
	Metrics(ctx context.Context, now time.Time) (*DashboardMetrics, error)
	CategoryCounts(ctx context.Context) ([]LabelCount, error)
	SeverityCounts(ctx context.Context) ([]LabelCount, error)
	MonthlyCounts(ctx context.Context, months int) ([]MonthlyCount, error)

	Ping(ctx context.Context) error
	Close() error
}

// DashboardMetrics feeds the dashboard summary cards.
type DashboardMetrics struct {
	TotalTransactions  int     `json:"total_transactions"`
	TotalFlagged       int     `json:"total_flagged"`
	FlaggedAmount      float64 `json:"total_amount"`
	AlertsYTD          int     `json:"total_alerts_ytd"`
	AlertsCurrentMonth int     `json:"detected_frauds_current_month"`
}

// LabelCount is one bar of a categorical chart.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// MonthlyCount is one bar of the monthly activity chart.
type MonthlyCount struct {
	Month             string `json:"month"` // e.g. "Apr 2025"
	Year              int    `json:"year"`
	MonthNum          int    `json:"month_num"`
	TotalTransactions int    `json:"total_transactions"`
	FraudAlerts       int    `json:"fraud_alerts"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `envconfig:"DRIVER" default:"sqlite"`

	SQLitePath string `envconfig:"SQLITE_PATH" default:"./tollwatch.db"`

	PostgresHost     string `envconfig:"POSTGRES_HOST"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT"`
	PostgresUser     string `envconfig:"POSTGRES_USER"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD"`
	PostgresDB       string `envconfig:"POSTGRES_DB"`
	PostgresSSLMode  string `envconfig:"POSTGRES_SSLMODE"`

	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME"`
}

// ObjectStore moves raw files in and out of bucket-style storage.
type ObjectStore interface {
	Upload(ctx context.Context, name string, r io.Reader, contentType string) error
	Download(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Exporter hands an annotated batch to a downstream sink.
type Exporter interface {
	Export(ctx context.Context, batch *Batch) error
}
