package rules

import "github.com/opensource-finance/tollwatch/internal/domain"

// Rule IDs, also reported as row reasons.
const (
	RuleHighAmount     = "high_amount"
	RuleUnusualHour    = "unusual_hour"
	RuleNegativeAmount = "negative_amount"
	RuleHighFrequency  = "high_frequency"
)

// DefaultRules returns the four toll risk heuristics. Their points sum to 90.
func DefaultRules() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:          RuleHighAmount,
			Name:        "High amount",
			Description: "Amount above the batch percentile threshold",
			Expression:  "amount > amount_threshold",
			Points:      30,
			Enabled:     true,
		},
		{
			ID:          RuleUnusualHour,
			Name:        "Unusual hour",
			Description: "Exit before 05:00",
			// exit_hour > 23 never holds for a parsed hour; kept for parity.
			Expression: "exit_hour < 5 || exit_hour > 23",
			Points:     20,
			Enabled:    true,
		},
		{
			ID:          RuleNegativeAmount,
			Name:        "Negative amount",
			Description: "Refund or reversal",
			Expression:  "amount < 0.0",
			Points:      25,
			Enabled:     true,
		},
		{
			ID:          RuleHighFrequency,
			Name:        "High frequency",
			Description: "More than five transactions for the identity on the same day",
			Expression:  "daily_transaction_count > 5",
			Points:      15,
			Enabled:     true,
		},
	}
}

// MaxScore is the sum of points over the enabled rules.
func MaxScore(configs []*domain.RuleConfig) int {
	total := 0
	for _, c := range configs {
		if c.Enabled {
			total += c.Points
		}
	}
	return total
}
