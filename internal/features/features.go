// Package features derives the per-row context scoring depends on.
package features

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/tollwatch/internal/domain"
)

// StageName identifies this stage in ProcessingError.
const StageName = "features"

var exitTimeLayouts = []string{
	"15:04:05",
	"15:04",
	"3:04:05 PM",
	"3:04 PM",
	"3:04:05PM",
	"3:04PM",
	"15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
}

// Extract fills ExitHour and DailyTransactionCount on every record.
// Daily counts are relative to the batch: each record receives the size of
// its (identity, transaction date) group.
func Extract(records []*domain.Record) error {
	counts := make(map[string]int, len(records))
	for i, r := range records {
		hour, err := ParseExitHour(r.ExitTime)
		if err != nil {
			return &domain.ProcessingError{Stage: StageName, Row: i + 1, Err: err}
		}
		r.ExitHour = hour
		counts[r.DayKey()]++
	}

	for _, r := range records {
		r.DailyTransactionCount = counts[r.DayKey()]
	}
	return nil
}

// ParseExitHour returns the hour of day (0-23) of an exit timestamp.
// Bare integers are taken as an hour.
func ParseExitHour(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty exit time")
	}

	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 23 {
			return 0, fmt.Errorf("exit hour %d out of range", n)
		}
		return n, nil
	}

	upper := strings.ToUpper(s)
	for _, layout := range exitTimeLayouts {
		if t, err := time.Parse(layout, upper); err == nil {
			return t.Hour(), nil
		}
	}
	return 0, fmt.Errorf("cannot parse exit time %q", s)
}
