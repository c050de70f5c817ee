package classify

import (
	"testing"

	"github.com/opensource-finance/tollwatch/internal/domain"
)

func TestClassifier(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name     string
		record   domain.Record
		status   domain.Status
		severity domain.Severity
		category domain.Category
	}{
		{"Clean", domain.Record{Amount: 3, DailyTransactionCount: 1, RiskScore: 0},
			domain.StatusNormal, domain.SeverityLow, domain.CategoryNormal},
		{"JustBelowFlag", domain.Record{Amount: 3, DailyTransactionCount: 1, RiskScore: 49},
			domain.StatusNormal, domain.SeverityLow, domain.CategoryNormal},
		{"AtFlag", domain.Record{Amount: 3, DailyTransactionCount: 1, RiskScore: 50},
			domain.StatusFlagged, domain.SeverityMedium, domain.CategoryNormal},
		{"JustBelowInvestigate", domain.Record{Amount: 3, DailyTransactionCount: 1, RiskScore: 79},
			domain.StatusFlagged, domain.SeverityMedium, domain.CategoryNormal},
		{"AtInvestigate", domain.Record{Amount: 3, DailyTransactionCount: 1, RiskScore: 80},
			domain.StatusInvestigating, domain.SeverityHigh, domain.CategoryAccountTakeover},
		{"Refund", domain.Record{Amount: -2, DailyTransactionCount: 1, RiskScore: 25},
			domain.StatusNormal, domain.SeverityLow, domain.CategoryRefund},
		{"EvasionOverridesRefund", domain.Record{Amount: -2, DailyTransactionCount: 6, RiskScore: 40},
			domain.StatusNormal, domain.SeverityLow, domain.CategoryTollEvasion},
		{"TakeoverOverridesAll", domain.Record{Amount: -10, DailyTransactionCount: 6, RiskScore: 85},
			domain.StatusInvestigating, domain.SeverityHigh, domain.CategoryAccountTakeover},
		{"UnclampedScore", domain.Record{Amount: 1, DailyTransactionCount: 1, RiskScore: 250},
			domain.StatusInvestigating, domain.SeverityHigh, domain.CategoryAccountTakeover},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.record
			c.Classify(&r)

			if r.Status != tt.status {
				t.Errorf("expected status %s, got %s", tt.status, r.Status)
			}
			if r.Severity != tt.severity {
				t.Errorf("expected severity %s, got %s", tt.severity, r.Severity)
			}
			if r.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, r.Category)
			}
		})
	}
}

func TestTiersMonotonicInScore(t *testing.T) {
	c := NewClassifier()

	var prev *domain.Record
	for score := 0; score <= 120; score++ {
		r := &domain.Record{RiskScore: score, Amount: 1, DailyTransactionCount: 1}
		c.Classify(r)

		if prev != nil {
			if r.Status.Rank() < prev.Status.Rank() {
				t.Fatalf("status dropped from %s to %s at score %d", prev.Status, r.Status, score)
			}
			if r.Severity.Rank() < prev.Severity.Rank() {
				t.Fatalf("severity dropped from %s to %s at score %d", prev.Severity, r.Severity, score)
			}
		}
		prev = r
	}
}

func TestLadderLastMatchWins(t *testing.T) {
	l := Ladder[string]{
		Initial: "none",
		Steps: []Step[string]{
			{Name: "a", When: func(*domain.Record) bool { return true }, Label: "a"},
			{Name: "b", When: func(*domain.Record) bool { return false }, Label: "b"},
			{Name: "c", When: func(*domain.Record) bool { return true }, Label: "c"},
			{Name: "d", When: func(*domain.Record) bool { return false }, Label: "d"},
		},
	}

	if got := l.Apply(&domain.Record{}); got != "c" {
		t.Errorf("expected c, got %s", got)
	}
	if got := (Ladder[string]{Initial: "none"}).Apply(&domain.Record{}); got != "none" {
		t.Errorf("expected initial label, got %s", got)
	}
}

func TestCustomThresholds(t *testing.T) {
	c := NewClassifierWithThresholds(30, 60)

	r := &domain.Record{RiskScore: 60, Amount: 1, DailyTransactionCount: 1}
	c.Classify(r)

	if r.Status != domain.StatusInvestigating || r.Category != domain.CategoryAccountTakeover {
		t.Errorf("expected Investigating/AccountTakeover, got %s/%s", r.Status, r.Category)
	}
	if !ShouldAlert(r) {
		t.Error("investigating record should alert")
	}
}
