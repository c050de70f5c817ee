package repository

// Schema definitions for the current-batch store.
// Compatible with both SQLite and PostgreSQL. Dates are stored as ISO-8601
// text so year/month extraction works with substr on either driver.

const schemaBatches = `
CREATE TABLE IF NOT EXISTS batches (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    period_year TEXT NOT NULL,
    period_month TEXT NOT NULL,
    period_source TEXT NOT NULL,
    processed_at TEXT NOT NULL,
    amount_percentile REAL NOT NULL,
    amount_threshold REAL NOT NULL,
    row_count INTEGER NOT NULL,
    summary TEXT NOT NULL
);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS toll_transactions (
    id TEXT PRIMARY KEY,
    batch_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    posting_date TEXT NOT NULL,
    transaction_date TEXT NOT NULL,
    identity_tag TEXT NOT NULL,
    agency TEXT NOT NULL,
    exit_time TEXT NOT NULL,
    exit_plaza TEXT NOT NULL,
    amount REAL NOT NULL,
    exit_hour INTEGER NOT NULL,
    daily_transaction_count INTEGER NOT NULL,
    risk_score INTEGER NOT NULL,
    status TEXT NOT NULL,
    category TEXT NOT NULL,
    severity TEXT NOT NULL,
    reasons TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_toll_transactions_date ON toll_transactions(transaction_date);
CREATE INDEX IF NOT EXISTS idx_toll_transactions_status ON toll_transactions(status);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaBatches,
		schemaTransactions,
	}
}
