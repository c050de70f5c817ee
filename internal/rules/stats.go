package rules

import (
	"math"
	"sort"

	"github.com/opensource-finance/tollwatch/internal/domain"
)

// DefaultAmountPercentile is the quantile used for the high-amount threshold.
const DefaultAmountPercentile = 0.95

// ComputeStats computes the batch-wide aggregates in a single pass over the
// records. It must run before any record is scored.
func ComputeStats(records []*domain.Record, percentile float64) domain.BatchStats {
	amounts := make([]float64, len(records))
	for i, r := range records {
		amounts[i] = r.Amount
	}
	return domain.BatchStats{
		Rows:             len(records),
		AmountPercentile: percentile,
		AmountThreshold:  Percentile(amounts, percentile),
	}
}

// Percentile returns the q-quantile (0..1) of values using linear
// interpolation between closest ranks. The input is not modified.
func Percentile(values []float64, q float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[n-1]
	}

	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
