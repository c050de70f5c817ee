package rules

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/opensource-finance/tollwatch/internal/domain"
)

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}

	engine, err = NewDefaultEngine()
	if err != nil {
		t.Fatalf("failed to create default engine: %v", err)
	}
	if engine.RulesCount() != 4 {
		t.Errorf("expected 4 rules, got %d", engine.RulesCount())
	}
	if MaxScore(DefaultRules()) != 90 {
		t.Errorf("expected max score 90, got %d", MaxScore(DefaultRules()))
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine()

	tests := []struct {
		name string
		rule *domain.RuleConfig
	}{
		{"BadSyntax", &domain.RuleConfig{ID: "bad", Expression: "this is not valid CEL !!!", Enabled: true}},
		{"NonBool", &domain.RuleConfig{ID: "num", Expression: "amount * 2.0", Enabled: true}},
		{"UnknownVariable", &domain.RuleConfig{ID: "var", Expression: "balance > 1.0", Enabled: true}},
		{"NegativePoints", &domain.RuleConfig{ID: "neg", Expression: "amount > 1.0", Points: -5, Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := engine.ValidateRule(tt.rule); err == nil {
				t.Error("expected validation error")
			}
			if err := engine.LoadRules([]*domain.RuleConfig{tt.rule}); err == nil {
				t.Error("expected load error")
			}
		})
	}

	t.Run("DuplicateID", func(t *testing.T) {
		dup := []*domain.RuleConfig{
			{ID: "x", Expression: "amount > 1.0", Enabled: true},
			{ID: "x", Expression: "amount < 1.0", Enabled: true},
		}
		if err := engine.LoadRules(dup); err == nil {
			t.Error("expected duplicate id error")
		}
	})
}

func TestLoadRulesSkipsDisabled(t *testing.T) {
	engine, _ := NewEngine()

	configs := DefaultRules()
	configs[1].Enabled = false

	if err := engine.LoadRules(configs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.RulesCount() != 3 {
		t.Errorf("expected 3 rules, got %d", engine.RulesCount())
	}
	for _, r := range engine.GetLoadedRules() {
		if r.ID == RuleUnusualHour {
			t.Error("disabled rule should not be loaded")
		}
	}
}

func TestScoreRecord(t *testing.T) {
	engine, err := NewDefaultEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	stats := domain.BatchStats{AmountThreshold: 100}

	tests := []struct {
		name    string
		record  domain.Record
		score   int
		reasons []string
	}{
		{"Clean", domain.Record{Amount: 5, ExitHour: 12, DailyTransactionCount: 1}, 0, nil},
		{"HighAmount", domain.Record{Amount: 150, ExitHour: 12, DailyTransactionCount: 1}, 30, []string{RuleHighAmount}},
		{"AtThresholdDoesNotFire", domain.Record{Amount: 100, ExitHour: 12, DailyTransactionCount: 1}, 0, nil},
		{"EarlyHour", domain.Record{Amount: 5, ExitHour: 4, DailyTransactionCount: 1}, 20, []string{RuleUnusualHour}},
		{"HourFiveIsNormal", domain.Record{Amount: 5, ExitHour: 5, DailyTransactionCount: 1}, 0, nil},
		{"HourTwentyThreeIsNormal", domain.Record{Amount: 5, ExitHour: 23, DailyTransactionCount: 1}, 0, nil},
		{"Negative", domain.Record{Amount: -10, ExitHour: 12, DailyTransactionCount: 1}, 25, []string{RuleNegativeAmount}},
		{"CountFiveIsNormal", domain.Record{Amount: 5, ExitHour: 12, DailyTransactionCount: 5}, 0, nil},
		{"CountSix", domain.Record{Amount: 5, ExitHour: 12, DailyTransactionCount: 6}, 15, []string{RuleHighFrequency}},
		{"NegativeEarlyFrequent", domain.Record{Amount: -10, ExitHour: 2, DailyTransactionCount: 6}, 60,
			[]string{RuleUnusualHour, RuleNegativeAmount, RuleHighFrequency}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.record
			score, reasons, err := engine.ScoreRecord(&r, stats)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if score != tt.score {
				t.Errorf("expected score %d, got %d", tt.score, score)
			}
			if len(reasons) != len(tt.reasons) {
				t.Fatalf("expected reasons %v, got %v", tt.reasons, reasons)
			}
			for i := range reasons {
				if reasons[i] != tt.reasons[i] {
					t.Errorf("reason %d: expected %s, got %s", i, tt.reasons[i], reasons[i])
				}
			}
		})
	}
}

func TestScoreIsSumOfTriggeredRules(t *testing.T) {
	engine, _ := NewDefaultEngine()

	points := make(map[string]int)
	for _, r := range DefaultRules() {
		points[r.ID] = r.Points
	}

	var records []*domain.Record
	for _, amount := range []float64{-20, -1, 0, 3, 50, 500} {
		for _, hour := range []int{0, 4, 5, 12, 23} {
			for _, count := range []int{1, 5, 6, 9} {
				records = append(records, &domain.Record{Amount: amount, ExitHour: hour, DailyTransactionCount: count})
			}
		}
	}
	stats := ComputeStats(records, DefaultAmountPercentile)

	if err := engine.Score(context.Background(), records, stats); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, r := range records {
		if r.RiskScore < 0 || r.RiskScore > 90 {
			t.Errorf("row %d: score %d out of [0, 90]", i, r.RiskScore)
		}

		want := 0
		if r.Amount > stats.AmountThreshold {
			want += 30
		}
		if r.ExitHour < 5 || r.ExitHour > 23 {
			want += 20
		}
		if r.Amount < 0 {
			want += 25
		}
		if r.DailyTransactionCount > 5 {
			want += 15
		}
		if r.RiskScore != want {
			t.Errorf("row %d: expected score %d, got %d", i, want, r.RiskScore)
		}

		sum := 0
		for _, id := range r.Reasons {
			sum += points[id]
		}
		if sum != r.RiskScore {
			t.Errorf("row %d: reasons %v sum to %d, score is %d", i, r.Reasons, sum, r.RiskScore)
		}
	}
}

func TestThresholdIsBatchRelative(t *testing.T) {
	engine, _ := NewDefaultEngine()

	build := func(base float64) []*domain.Record {
		records := make([]*domain.Record, 0, 20)
		for i := 0; i < 19; i++ {
			records = append(records, &domain.Record{Amount: base, ExitHour: 12, DailyTransactionCount: 1})
		}
		return append(records, &domain.Record{Amount: 10, ExitHour: 12, DailyTransactionCount: 1})
	}

	cheap := build(1.0)
	pricey := build(100.0)

	for _, batch := range [][]*domain.Record{cheap, pricey} {
		if err := engine.Score(context.Background(), batch, ComputeStats(batch, DefaultAmountPercentile)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if probe := cheap[19]; probe.RiskScore != 30 {
		t.Errorf("probe in low-amount batch: expected 30, got %d", probe.RiskScore)
	}
	if probe := pricey[19]; probe.RiskScore != 0 {
		t.Errorf("probe in high-amount batch: expected 0, got %d", probe.RiskScore)
	}
}

func TestScoreCancelled(t *testing.T) {
	engine, _ := NewDefaultEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := engine.Score(ctx, []*domain.Record{{Amount: 1}}, domain.BatchStats{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		q      float64
		want   float64
	}{
		{"Empty", nil, 0.95, 0},
		{"Single", []float64{7}, 0.95, 7},
		{"Median", []float64{3, 1, 2}, 0.5, 2},
		{"Interpolated", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"P95", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}, 0.95, 19.05},
		{"Max", []float64{5, 1}, 1, 5},
		{"Min", []float64{5, 1}, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.values, tt.q)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}

	t.Run("InputUnchanged", func(t *testing.T) {
		values := []float64{3, 1, 2}
		Percentile(values, 0.5)
		if values[0] != 3 || values[1] != 1 {
			t.Error("input slice was reordered")
		}
	})
}
