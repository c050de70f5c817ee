package domain

import (
	"time"
)

// Batch is one processed upload. The most recent batch is the "current"
// state of the system; a new batch replaces it wholesale.
type Batch struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Period      Period     `json:"period"`
	ProcessedAt time.Time  `json:"processedAt"`
	Stats       BatchStats `json:"stats"`
	Summary     Summary    `json:"summary"`
	Records     []*Record  `json:"-"`
}

// BatchStats holds the batch-wide aggregates computed before any row is scored.
type BatchStats struct {
	Rows             int     `json:"rows"`
	AmountPercentile float64 `json:"amountPercentile"`
	AmountThreshold  float64 `json:"amountThreshold"`
}

// Summary is the dashboard view of a processed batch.
type Summary struct {
	TotalTransactions         int       `json:"total_transactions"`
	NormalTransactions        int       `json:"normal_transactions"`
	FlaggedTransactions       int       `json:"flagged_transactions"`
	InvestigatingTransactions int       `json:"investigating_transactions"`
	FlaggedAmount             float64   `json:"flagged_amount"`
	AgencyCount               int       `json:"agency_count"`
	Agencies                  []string  `json:"agencies"`
	DateRange                 DateRange `json:"date_range"`
}

// DateRange is the min/max transaction date in a batch.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// CountByStatus returns the number of rows with the given status.
func (s Summary) CountByStatus(status Status) int {
	switch status {
	case StatusFlagged:
		return s.FlaggedTransactions
	case StatusInvestigating:
		return s.InvestigatingTransactions
	default:
		return s.NormalTransactions
	}
}

// PeriodSource says which filename rule produced a Period.
type PeriodSource string

const (
	PeriodNumeric      PeriodSource = "numeric"
	PeriodTransaction  PeriodSource = "transaction_phrase"
	PeriodLeadingMonth PeriodSource = "leading_month"
	PeriodFallback     PeriodSource = "fallback"
)

// Period is the {year}_{month} token inferred from a file name.
type Period struct {
	Year   string       `json:"year"`
	Month  string       `json:"month"`
	Source PeriodSource `json:"source"`
}

// Token renders the period as "{year}_{month}".
func (p Period) Token() string {
	return p.Year + "_" + p.Month
}

// Fallback reports whether the period came from the processing clock
// rather than from the file name.
func (p Period) Fallback() bool {
	return p.Source == PeriodFallback
}

// BatchEvent is published on the event bus once a batch has been processed.
type BatchEvent struct {
	BatchID     string    `json:"batchId"`
	Source      string    `json:"source"`
	Period      string    `json:"period"`
	ProcessedAt time.Time `json:"processedAt"`
	Summary     Summary   `json:"summary"`
}

// RejectionEvent is published when a batch fails validation or processing.
type RejectionEvent struct {
	Source string `json:"source"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

// AlertEvent is published for every Investigating record of a batch.
type AlertEvent struct {
	BatchID     string   `json:"batchId"`
	RecordID    string   `json:"recordId"`
	IdentityTag string   `json:"identityTag"`
	Agency      string   `json:"agency"`
	Amount      float64  `json:"amount"`
	RiskScore   int      `json:"riskScore"`
	Category    Category `json:"category"`
	Reasons     []string `json:"reasons,omitempty"`
}

// FileEvent announces a raw file that landed in the object store.
type FileEvent struct {
	Object       string `json:"object"`
	OriginalName string `json:"originalName"`
	Period       string `json:"period"`
	Fallback     bool   `json:"fallback"`
}
