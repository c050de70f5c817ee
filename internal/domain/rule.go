package domain

// RuleConfig defines one additive risk rule.
type RuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// CEL expression evaluated per row; must return bool.
	Expression string `json:"expression"`

	// Points added to the row's risk score when the expression holds.
	Points int `json:"points"`

	Enabled bool `json:"enabled"`
}

