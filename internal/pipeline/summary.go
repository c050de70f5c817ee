package pipeline

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/tollwatch/internal/domain"
)

// Summarize builds the dashboard summary of an annotated batch.
// FlaggedAmount sums amounts over Flagged and Investigating rows.
func Summarize(records []*domain.Record) domain.Summary {
	s := domain.Summary{TotalTransactions: len(records), Agencies: []string{}}

	flagged := decimal.Zero
	agencies := make(map[string]struct{})
	var first, last string

	for _, r := range records {
		switch r.Status {
		case domain.StatusFlagged:
			s.FlaggedTransactions++
		case domain.StatusInvestigating:
			s.InvestigatingTransactions++
		default:
			s.NormalTransactions++
		}
		if r.IsAnomaly() {
			flagged = flagged.Add(decimal.NewFromFloat(r.Amount))
		}

		agencies[r.Agency] = struct{}{}

		day := r.TransactionDate.Format(domain.DateLayout)
		if first == "" || day < first {
			first = day
		}
		if last == "" || day > last {
			last = day
		}
	}

	s.FlaggedAmount = flagged.InexactFloat64()
	for a := range agencies {
		s.Agencies = append(s.Agencies, a)
	}
	sort.Strings(s.Agencies)
	s.AgencyCount = len(s.Agencies)
	s.DateRange = domain.DateRange{Start: first, End: last}
	return s
}
