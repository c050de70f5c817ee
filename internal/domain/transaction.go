package domain

import (
	"time"
)

// Required input columns for every batch, in canonical order.
const (
	ColPostingDate     = "posting_date"
	ColTransactionDate = "transaction_date"
	ColIdentityTag     = "identity_tag"
	ColAgency          = "agency"
	ColExitTime        = "exit_time"
	ColExitPlaza       = "exit_plaza"
	ColAmount          = "amount"
)

// RequiredColumns lists the columns a batch must carry.
var RequiredColumns = []string{
	ColPostingDate,
	ColTransactionDate,
	ColIdentityTag,
	ColAgency,
	ColExitTime,
	ColExitPlaza,
	ColAmount,
}

// DateLayout is the canonical rendering of posting and transaction dates.
const DateLayout = "2006-01-02"

// Table is a row-oriented batch as handed over by the ingestion boundary.
// Every row is keyed by normalized column name.
type Table struct {
	Columns []string
	Rows    []Row
}

// Row is one raw input row.
type Row map[string]string

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether the table header contains name.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Record is one toll transaction flowing through the risk pipeline.
// Input fields are set once by the decoder; derived fields are filled by
// the feature, scoring, classification and identifier stages.
type Record struct {
	// Inputs
	PostingDate     time.Time `json:"postingDate"`
	TransactionDate time.Time `json:"transactionDate"`
	IdentityTag     string    `json:"identityTag"`
	Agency          string    `json:"agency"`
	ExitTime        string    `json:"exitTime"`
	ExitPlaza       string    `json:"exitPlaza"`
	Amount          float64   `json:"amount"`

	// Features
	ExitHour              int `json:"exitHour"`
	DailyTransactionCount int `json:"dailyTransactionCount"`

	// Scoring and labels
	RiskScore int      `json:"riskScore"`
	Reasons   []string `json:"reasons,omitempty"`
	Status    Status   `json:"status"`
	Category  Category `json:"category"`
	Severity  Severity `json:"severity"`

	ID string `json:"id"`
}

// DayKey is the grouping key used for per-identity daily counts.
func (r *Record) DayKey() string {
	return r.IdentityTag + "|" + r.TransactionDate.Format(DateLayout)
}

// IsAnomaly reports whether the record sits above the Normal tier.
func (r *Record) IsAnomaly() bool {
	return r.Status == StatusFlagged || r.Status == StatusInvestigating
}

// Status is the investigation tier derived from the risk score.
type Status string

const (
	StatusNormal        Status = "Normal"
	StatusFlagged       Status = "Flagged"
	StatusInvestigating Status = "Investigating"
)

// Rank orders statuses Normal < Flagged < Investigating.
func (s Status) Rank() int {
	switch s {
	case StatusFlagged:
		return 1
	case StatusInvestigating:
		return 2
	default:
		return 0
	}
}

// Severity is the alert severity derived from the risk score.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// Rank orders severities Low < Medium < High.
func (s Severity) Rank() int {
	switch s {
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	default:
		return 0
	}
}

// Category is the fraud pattern assigned to a record.
type Category string

const (
	CategoryNormal          Category = "Normal"
	CategoryRefund          Category = "Refund"
	CategoryTollEvasion     Category = "ToEvasion"
	CategoryAccountTakeover Category = "AccountTakeover"
)
