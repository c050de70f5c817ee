// Package classify assigns status, severity and category labels to scored records.
//
// Each label is produced by a Ladder: an initial label followed by ordered
// steps. Every step whose predicate holds overwrites the label, so the last
// matching step wins. Category therefore reports the latest applicable
// pattern, not the most severe one.
package classify

import (
	"github.com/opensource-finance/tollwatch/internal/domain"
)

// Default score thresholds.
const (
	DefaultFlagThreshold        = 50
	DefaultInvestigateThreshold = 80
)

// Step is one (predicate, label) pair of a ladder.
type Step[L any] struct {
	Name  string
	When  func(r *domain.Record) bool
	Label L
}

// Ladder applies steps in order with overwrite semantics.
type Ladder[L any] struct {
	Initial L
	Steps   []Step[L]
}

// Apply returns the label of the last step whose predicate holds, or Initial.
func (l Ladder[L]) Apply(r *domain.Record) L {
	label := l.Initial
	for _, s := range l.Steps {
		if s.When(r) {
			label = s.Label
		}
	}
	return label
}

// Classifier holds the three label ladders.
type Classifier struct {
	FlagThreshold        int
	InvestigateThreshold int

	Status   Ladder[domain.Status]
	Severity Ladder[domain.Severity]
	Category Ladder[domain.Category]
}

// NewClassifier creates a classifier with the default thresholds.
func NewClassifier() *Classifier {
	return NewClassifierWithThresholds(DefaultFlagThreshold, DefaultInvestigateThreshold)
}

// NewClassifierWithThresholds creates a classifier for the given score
// thresholds. flag must not exceed investigate for tiers to stay monotonic.
func NewClassifierWithThresholds(flag, investigate int) *Classifier {
	atLeast := func(n int) func(*domain.Record) bool {
		return func(r *domain.Record) bool { return r.RiskScore >= n }
	}

	return &Classifier{
		FlagThreshold:        flag,
		InvestigateThreshold: investigate,
		Status: Ladder[domain.Status]{
			Initial: domain.StatusNormal,
			Steps: []Step[domain.Status]{
				{Name: "flag", When: atLeast(flag), Label: domain.StatusFlagged},
				{Name: "investigate", When: atLeast(investigate), Label: domain.StatusInvestigating},
			},
		},
		Severity: Ladder[domain.Severity]{
			Initial: domain.SeverityLow,
			Steps: []Step[domain.Severity]{
				{Name: "medium", When: atLeast(flag), Label: domain.SeverityMedium},
				{Name: "high", When: atLeast(investigate), Label: domain.SeverityHigh},
			},
		},
		Category: Ladder[domain.Category]{
			Initial: domain.CategoryNormal,
			Steps: []Step[domain.Category]{
				{Name: "refund", When: func(r *domain.Record) bool { return r.Amount < 0 }, Label: domain.CategoryRefund},
				{Name: "evasion", When: func(r *domain.Record) bool { return r.DailyTransactionCount > 5 }, Label: domain.CategoryTollEvasion},
				{Name: "takeover", When: atLeast(investigate), Label: domain.CategoryAccountTakeover},
			},
		},
	}
}

// Classify sets Status, Severity and Category on r from its score and inputs.
func (c *Classifier) Classify(r *domain.Record) {
	r.Status = c.Status.Apply(r)
	r.Severity = c.Severity.Apply(r)
	r.Category = c.Category.Apply(r)
}

// ClassifyAll classifies every record in place.
func (c *Classifier) ClassifyAll(records []*domain.Record) {
	for _, r := range records {
		c.Classify(r)
	}
}

// ShouldAlert reports whether a classified record warrants an alert event.
func ShouldAlert(r *domain.Record) bool {
	return r.Status == domain.StatusInvestigating
}
