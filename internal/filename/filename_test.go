package filename

import (
	"testing"
	"time"

	"github.com/opensource-finance/tollwatch/internal/domain"
)

func fixedClock() time.Time {
	return time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC)
}

func TestNormalize(t *testing.T) {
	n := &Normalizer{Now: fixedClock}

	tests := []struct {
		name   string
		year   string
		month  string
		source domain.PeriodSource
	}{
		{"Transactions April 2025.csv", "2025", "apr", domain.PeriodTransaction},
		{"Transaction July 2025 1 thru 30.csv", "2025", "jul", domain.PeriodTransaction},
		{"data_2024_01.csv", "2024", "01", domain.PeriodNumeric},
		{"transactions_202403.xlsx", "2024", "03", domain.PeriodNumeric},
		{"export-2023-11.csv", "2023", "11", domain.PeriodNumeric},
		{"September 2024 statement.csv", "2024", "sep", domain.PeriodLeadingMonth},
		{"SEPT 2024.csv", "2024", "sep", domain.PeriodLeadingMonth},
		{"/uploads/inbox/Transactions Dec 2022.csv", "2022", "dec", domain.PeriodTransaction},
		{"transaction may 2025.csv", "2025", "may", domain.PeriodTransaction},
		{"statement.csv", "2026", "october", domain.PeriodFallback},
		{"Transactions Smarch 2025.csv", "2026", "october", domain.PeriodFallback},
		{"april 2025 transactions smarch 2024.csv", "2026", "october", domain.PeriodFallback},
		{"report 2025.csv", "2026", "october", domain.PeriodFallback},
		{"", "2026", "october", domain.PeriodFallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := n.Normalize(tt.name)

			if p.Year != tt.year || p.Month != tt.month {
				t.Errorf("expected (%s, %s), got (%s, %s)", tt.year, tt.month, p.Year, p.Month)
			}
			if p.Source != tt.source {
				t.Errorf("expected source %s, got %s", tt.source, p.Source)
			}
			if p.Fallback() != (tt.source == domain.PeriodFallback) {
				t.Errorf("fallback flag mismatch for %s", tt.source)
			}
		})
	}
}

func TestNormalizeFallbackUsesWallClock(t *testing.T) {
	before := time.Now()
	p := Normalize("no-date-here.csv")

	if !p.Fallback() {
		t.Fatal("expected fallback period")
	}
	if p.Year != before.Format("2006") && p.Year != time.Now().Format("2006") {
		t.Errorf("expected current year, got %s", p.Year)
	}
}

func TestMonthToken(t *testing.T) {
	for in, want := range map[string]string{"January": "jan", "sept": "sep", "MAY": "may", "dec": "dec"} {
		got, ok := MonthToken(in)
		if !ok || got != want {
			t.Errorf("MonthToken(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := MonthToken("smarch"); ok {
		t.Error("expected unknown month")
	}
}

func TestTargetName(t *testing.T) {
	p := domain.Period{Year: "2025", Month: "apr", Source: domain.PeriodTransaction}
	if got := TargetName(p, ".CSV"); got != "transaction_2025_apr.csv" {
		t.Errorf("unexpected target name %q", got)
	}
}
