// Package pipeline runs a raw batch through validation, feature extraction,
// scoring, classification and identifier assignment.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/tollwatch/internal/classify"
	"github.com/opensource-finance/tollwatch/internal/domain"
	"github.com/opensource-finance/tollwatch/internal/features"
	"github.com/opensource-finance/tollwatch/internal/ident"
	"github.com/opensource-finance/tollwatch/internal/rules"
	"github.com/opensource-finance/tollwatch/internal/schema"
)

var tracer = otel.Tracer("tollwatch-pipeline")

// Observer receives batch outcomes. Implementations must not block.
type Observer interface {
	BatchProcessed(batch *domain.Batch, elapsed time.Duration)
	BatchRejected(kind string)
}

// Pipeline processes one batch at a time. A Pipeline holds no per-batch
// state and may be reused across batches.
type Pipeline struct {
	engine     *rules.Engine
	classifier *classify.Classifier
	percentile float64
	observer   Observer
	now        func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver registers an observer for batch outcomes.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithPercentile overrides the high-amount quantile.
func WithPercentile(q float64) Option {
	return func(p *Pipeline) { p.percentile = q }
}

// WithClock overrides the processing timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline around a loaded engine and a classifier.
func New(engine *rules.Engine, classifier *classify.Classifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		engine:     engine,
		classifier: classifier,
		percentile: rules.DefaultAmountPercentile,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewDefault creates a pipeline with the built-in rules and thresholds.
func NewDefault(opts ...Option) (*Pipeline, error) {
	engine, err := rules.NewDefaultEngine()
	if err != nil {
		return nil, err
	}
	return New(engine, classify.NewClassifier(), opts...), nil
}

// FromConfig creates a pipeline with the built-in rules and configured thresholds.
func FromConfig(cfg domain.ScoringConfig, opts ...Option) (*Pipeline, error) {
	engine, err := rules.NewDefaultEngine()
	if err != nil {
		return nil, err
	}
	classifier := classify.NewClassifierWithThresholds(cfg.FlagThreshold, cfg.InvestigateThreshold)
	opts = append([]Option{WithPercentile(cfg.AmountPercentile)}, opts...)
	return New(engine, classifier, opts...), nil
}

// Process validates and annotates a batch. A *domain.ValidationError means
// the batch was rejected before any row was scored; a *domain.ProcessingError
// means an unexpected failure, and no partial result is returned.
func (p *Pipeline) Process(ctx context.Context, table *domain.Table) (batch *domain.Batch, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "pipeline.Process",
		trace.WithAttributes(attribute.Int("batch.rows", table.Len())),
	)
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			batch = nil
			err = &domain.ProcessingError{Stage: "pipeline", Err: fmt.Errorf("panic: %v", rec)}
			slog.Error("pipeline panic", "error", rec, "stack", string(debug.Stack()))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			p.reject(err)
		}
	}()

	records, err := schema.Decode(table)
	if err != nil {
		return nil, err
	}

	if err := features.Extract(records); err != nil {
		return nil, err
	}

	// Batch statistics must be complete before any row is scored.
	stats := rules.ComputeStats(records, p.percentile)
	if err := p.engine.Score(ctx, records, stats); err != nil {
		var pErr *domain.ProcessingError
		if errors.As(err, &pErr) {
			return nil, err
		}
		return nil, &domain.ProcessingError{Stage: rules.StageName, Err: err}
	}

	p.classifier.ClassifyAll(records)

	gen := ident.NewGenerator(len(records))
	for i, r := range records {
		id, err := gen.Next()
		if err != nil {
			return nil, &domain.ProcessingError{Stage: "ident", Row: i + 1, Err: err}
		}
		r.ID = id
	}

	batch = &domain.Batch{
		ID:          uuid.New().String(),
		ProcessedAt: p.now().UTC(),
		Stats:       stats,
		Summary:     Summarize(records),
		Records:     records,
	}

	span.SetAttributes(
		attribute.String("batch.id", batch.ID),
		attribute.Float64("batch.amount_threshold", stats.AmountThreshold),
		attribute.Int("batch.flagged", batch.Summary.FlaggedTransactions),
		attribute.Int("batch.investigating", batch.Summary.InvestigatingTransactions),
	)
	if p.observer != nil {
		p.observer.BatchProcessed(batch, time.Since(start))
	}
	return batch, nil
}

func (p *Pipeline) reject(err error) {
	if p.observer == nil {
		return
	}
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		p.observer.BatchRejected(string(vErr.Kind))
		return
	}
	p.observer.BatchRejected("processing_error")
}
