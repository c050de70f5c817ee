// Package rules provides the CEL-Go based risk scoring engine.
package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/tollwatch/internal/domain"
)

// StageName identifies this stage in ProcessingError.
const StageName = "scoring"

// Engine scores records with an ordered set of additive CEL rules.
type Engine struct {
	mu    sync.RWMutex
	env   *cel.Env
	rules []*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a scoring engine with no rules loaded.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("amount_threshold", cel.DoubleType),
		cel.Variable("exit_hour", cel.IntType),
		cel.Variable("daily_transaction_count", cel.IntType),
		cel.Variable("identity_tag", cel.StringType),
		cel.Variable("agency", cel.StringType),
		cel.Variable("exit_plaza", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{env: env}, nil
}

// NewDefaultEngine creates an engine loaded with DefaultRules.
func NewDefaultEngine() (*Engine, error) {
	e, err := NewEngine()
	if err != nil {
		return nil, err
	}
	if err := e.LoadRules(DefaultRules()); err != nil {
		return nil, err
	}
	return e, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}
	_, err := e.compileRule(cfg)
	return err
}

// LoadRules replaces the loaded rules. Disabled rules are skipped; the
// order of configs is the order reasons are reported in.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	compiled := make([]*CompiledRule, 0, len(configs))
	seen := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		if seen[cfg.ID] {
			return fmt.Errorf("duplicate rule id %s", cfg.ID)
		}
		seen[cfg.ID] = true

		c, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		compiled = append(compiled, c)
	}

	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// GetLoadedRules returns the currently loaded rule configurations in order.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.RuleConfig, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r.Config)
	}
	return out
}

// Score sets RiskScore and Reasons on every record. Stats must have been
// computed over the same batch beforehand.
func (e *Engine) Score(ctx context.Context, records []*domain.Record, stats domain.BatchStats) error {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}

		score, reasons, err := evaluate(rules, activation(r, stats))
		if err != nil {
			return &domain.ProcessingError{Stage: StageName, Row: i + 1, Err: err}
		}
		r.RiskScore = score
		r.Reasons = reasons
	}
	return nil
}

// ScoreRecord evaluates a single record against the batch stats.
func (e *Engine) ScoreRecord(r *domain.Record, stats domain.BatchStats) (int, []string, error) {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()
	return evaluate(rules, activation(r, stats))
}

func activation(r *domain.Record, stats domain.BatchStats) map[string]any {
	return map[string]any{
		"amount":                  r.Amount,
		"amount_threshold":        stats.AmountThreshold,
		"exit_hour":               int64(r.ExitHour),
		"daily_transaction_count": int64(r.DailyTransactionCount),
		"identity_tag":            r.IdentityTag,
		"agency":                  r.Agency,
		"exit_plaza":              r.ExitPlaza,
	}
}

// evaluate sums the points of every rule that holds. Each rule contributes
// at most once.
func evaluate(rules []*CompiledRule, vars map[string]any) (int, []string, error) {
	score := 0
	var reasons []string
	for _, rule := range rules {
		out, _, err := rule.Program.Eval(vars)
		if err != nil {
			return 0, nil, fmt.Errorf("rule %s: %w", rule.Config.ID, err)
		}
		hit, ok := out.(types.Bool)
		if !ok {
			return 0, nil, fmt.Errorf("rule %s: non-bool result %v", rule.Config.ID, out)
		}
		if hit {
			score += rule.Config.Points
			reasons = append(reasons, rule.Config.ID)
		}
	}
	return score, reasons, nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	if cfg.Points < 0 {
		return nil, fmt.Errorf("rule %s: points must be non-negative, got %d", cfg.ID, cfg.Points)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
