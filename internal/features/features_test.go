package features

import (
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/tollwatch/internal/domain"
)

func record(tag string, day int, exit string) *domain.Record {
	return &domain.Record{
		IdentityTag:     tag,
		TransactionDate: time.Date(2025, time.April, day, 0, 0, 0, 0, time.UTC),
		ExitTime:        exit,
	}
}

func TestExtract(t *testing.T) {
	t.Run("DailyCountsPerGroup", func(t *testing.T) {
		records := []*domain.Record{
			record("A", 1, "08:00:00"),
			record("A", 1, "09:00:00"),
			record("A", 1, "10:00:00"),
			record("A", 2, "10:00:00"),
			record("B", 1, "10:00:00"),
			record("B", 1, "11:00:00"),
		}

		if err := Extract(records); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []int{3, 3, 3, 1, 2, 2}
		for i, r := range records {
			if r.DailyTransactionCount != want[i] {
				t.Errorf("row %d: expected count %d, got %d", i, want[i], r.DailyTransactionCount)
			}
		}

		groups := make(map[string]int)
		for _, r := range records {
			groups[r.DayKey()]++
		}
		for _, r := range records {
			if r.DailyTransactionCount != groups[r.DayKey()] {
				t.Errorf("%s: count %d does not match group size %d", r.DayKey(), r.DailyTransactionCount, groups[r.DayKey()])
			}
		}
	})

	t.Run("ExitHour", func(t *testing.T) {
		records := []*domain.Record{record("A", 1, "23:59:59"), record("A", 1, "4:10 am")}

		if err := Extract(records); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if records[0].ExitHour != 23 {
			t.Errorf("expected hour 23, got %d", records[0].ExitHour)
		}
		if records[1].ExitHour != 4 {
			t.Errorf("expected hour 4, got %d", records[1].ExitHour)
		}
	})

	t.Run("BadExitTimeIsProcessingError", func(t *testing.T) {
		records := []*domain.Record{record("A", 1, "08:00"), record("A", 1, "later")}

		err := Extract(records)

		var pErr *domain.ProcessingError
		if !errors.As(err, &pErr) {
			t.Fatalf("expected ProcessingError, got %v", err)
		}
		if pErr.Stage != StageName || pErr.Row != 2 {
			t.Errorf("expected stage %s row 2, got %s row %d", StageName, pErr.Stage, pErr.Row)
		}
	})
}

func TestParseExitHour(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"00:15:00", 0},
		{"14:32", 14},
		{"2:05 PM", 14},
		{"12:30:00 am", 0},
		{"2025-04-01 22:10:00", 22},
		{"04/01/2025 03:00:00", 3},
		{"7", 7},
	}

	for _, tt := range tests {
		got, err := ParseExitHour(tt.in)
		if err != nil {
			t.Errorf("ParseExitHour(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseExitHour(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "24", "noon", "25:00"} {
		if _, err := ParseExitHour(bad); err == nil {
			t.Errorf("ParseExitHour(%q): expected error", bad)
		}
	}
}
