package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/tollwatch/internal/bus"
	"github.com/opensource-finance/tollwatch/internal/cache"
	"github.com/opensource-finance/tollwatch/internal/classify"
	"github.com/opensource-finance/tollwatch/internal/domain"
	"github.com/opensource-finance/tollwatch/internal/filename"
	"github.com/opensource-finance/tollwatch/internal/pipeline"
)

var tracer = otel.Tracer("tollwatch-ingest")

// ErrUnreadable wraps failures to parse an uploaded file into a table.
var ErrUnreadable = errors.New("unreadable file")

// RejectUnreadable is the rejection kind for files that could not be parsed.
const RejectUnreadable = "unreadable"

// Recorder receives ingest outcomes that happen outside the pipeline.
type Recorder interface {
	FilenameResolved(p domain.Period)
	ExportFailed(exporter string)
	BatchRejected(kind string)
}

// NamedExporter is an exporter that can be told apart in logs and metrics.
type NamedExporter interface {
	domain.Exporter
	Name() string
}

// Service turns uploaded files into the current batch.
type Service struct {
	pipeline   *pipeline.Pipeline
	normalizer *filename.Normalizer
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	exporters  []NamedExporter
	recorder   Recorder
	cacheTTL   time.Duration
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCache stores the current summary and invalidates derived views.
func WithCache(c domain.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithBus publishes batch, rejection and alert events.
func WithBus(b domain.EventBus) Option {
	return func(s *Service) { s.bus = b }
}

// WithExporters mirrors each persisted batch to downstream sinks.
func WithExporters(e ...NamedExporter) Option {
	return func(s *Service) { s.exporters = append(s.exporters, e...) }
}

// WithRecorder registers a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithNormalizer overrides the filename normalizer.
func WithNormalizer(n *filename.Normalizer) Option {
	return func(s *Service) { s.normalizer = n }
}

// WithClock overrides the clock used for dashboard metrics.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an ingestion service. repo may be nil for dry runs.
func NewService(p *pipeline.Pipeline, repo domain.Repository, opts ...Option) *Service {
	s := &Service{
		pipeline:   p,
		normalizer: filename.NewNormalizer(),
		repo:       repo,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest reads an uploaded file and processes it as the new current batch.
func (s *Service) Ingest(ctx context.Context, name string, data []byte) (*domain.Batch, error) {
	table, err := ReadTable(name, data)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrUnreadable, err)
		if s.recorder != nil {
			s.recorder.BatchRejected(RejectUnreadable)
		}
		s.publishRejection(ctx, name, RejectUnreadable, err)
		return nil, err
	}
	return s.IngestTable(ctx, name, table)
}

// IngestTable processes an already parsed table. On success the batch is
// persisted, exported, cached and announced; on rejection no stored state
// changes.
func (s *Service) IngestTable(ctx context.Context, name string, table *domain.Table) (*domain.Batch, error) {
	ctx, span := tracer.Start(ctx, "ingest.IngestTable",
		trace.WithAttributes(attribute.String("ingest.source", name)),
	)
	defer span.End()

	period := s.normalizer.Normalize(name)
	if s.recorder != nil {
		s.recorder.FilenameResolved(period)
	}

	batch, err := s.pipeline.Process(ctx, table)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch rejected")
		s.logRejection(name, err)
		s.publishRejection(ctx, name, rejectionKind(err), err)
		return nil, err
	}

	batch.Source = filepath.Base(name)
	batch.Period = period

	if s.repo != nil {
		if err := s.repo.ReplaceBatch(ctx, batch); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "persist failed")
			return nil, fmt.Errorf("persist batch %s: %w", batch.ID, err)
		}
	}

	s.export(ctx, batch)
	s.refreshCache(ctx, batch)
	s.announce(ctx, batch)

	slog.Info("batch ingested",
		"batch_id", batch.ID,
		"source", batch.Source,
		"period", period.Token(),
		"period_fallback", period.Fallback(),
		"rows", batch.Summary.TotalTransactions,
		"flagged", batch.Summary.FlaggedTransactions,
		"investigating", batch.Summary.InvestigatingTransactions,
	)
	return batch, nil
}

func (s *Service) export(ctx context.Context, batch *domain.Batch) {
	for _, e := range s.exporters {
		if err := e.Export(ctx, batch); err != nil {
			slog.Error("export failed",
				"exporter", e.Name(),
				"batch_id", batch.ID,
				"error", err,
			)
			if s.recorder != nil {
				s.recorder.ExportFailed(e.Name())
			}
		}
	}
}

func (s *Service) refreshCache(ctx context.Context, batch *domain.Batch) {
	if s.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, domain.CacheKeySummary, batch.Summary, s.cacheTTL); err != nil {
		slog.Warn("failed to cache summary", "batch_id", batch.ID, "error", err)
	}
	if err := s.cache.Delete(ctx, domain.CacheKeyMetrics); err != nil {
		slog.Warn("failed to invalidate metrics", "batch_id", batch.ID, "error", err)
	}
}

func (s *Service) announce(ctx context.Context, batch *domain.Batch) {
	if s.bus == nil {
		return
	}

	ev := domain.BatchEvent{
		BatchID:     batch.ID,
		Source:      batch.Source,
		Period:      batch.Period.Token(),
		ProcessedAt: batch.ProcessedAt,
		Summary:     batch.Summary,
	}
	if err := bus.PublishJSON(ctx, s.bus, domain.TopicBatchProcessed, ev); err != nil {
		slog.Error("failed to publish batch event", "batch_id", batch.ID, "error", err)
	}

	for _, r := range batch.Records {
		if !classify.ShouldAlert(r) {
			continue
		}
		alert := domain.AlertEvent{
			BatchID:     batch.ID,
			RecordID:    r.ID,
			IdentityTag: r.IdentityTag,
			Agency:      r.Agency,
			Amount:      r.Amount,
			RiskScore:   r.RiskScore,
			Category:    r.Category,
			Reasons:     r.Reasons,
		}
		if err := bus.PublishJSON(ctx, s.bus, domain.TopicAlert, alert); err != nil {
			slog.Error("failed to publish alert", "record_id", r.ID, "error", err)
		}
	}
}

func (s *Service) publishRejection(ctx context.Context, name, kind string, err error) {
	if s.bus == nil {
		return
	}
	ev := domain.RejectionEvent{Source: filepath.Base(name), Kind: kind, Error: publicMessage(err)}
	if pubErr := bus.PublishJSON(ctx, s.bus, domain.TopicBatchRejected, ev); pubErr != nil {
		slog.Error("failed to publish rejection", "source", name, "error", pubErr)
	}
}

func (s *Service) logRejection(name string, err error) {
	var pErr *domain.ProcessingError
	if errors.As(err, &pErr) {
		slog.Error("batch processing failed",
			"source", name,
			"stage", pErr.Stage,
			"row", pErr.Row,
			"error", pErr.Err,
		)
		return
	}
	slog.Warn("batch rejected", "source", name, "error", err)
}

// CurrentSummary returns the summary of the current batch, preferring the cache.
func (s *Service) CurrentSummary(ctx context.Context) (domain.Summary, error) {
	var summary domain.Summary
	if s.cache != nil {
		if ok, err := cache.GetJSON(ctx, s.cache, domain.CacheKeySummary, &summary); err == nil && ok {
			return summary, nil
		}
	}
	if s.repo == nil {
		return summary, fmt.Errorf("no repository configured")
	}

	batch, err := s.repo.CurrentBatch(ctx)
	if err != nil {
		return summary, err
	}
	if s.cache != nil {
		_ = cache.SetJSON(ctx, s.cache, domain.CacheKeySummary, batch.Summary, s.cacheTTL)
	}
	return batch.Summary, nil
}

// DashboardMetrics returns the dashboard cards, preferring the cache.
func (s *Service) DashboardMetrics(ctx context.Context) (*domain.DashboardMetrics, error) {
	var m domain.DashboardMetrics
	if s.cache != nil {
		if ok, err := cache.GetJSON(ctx, s.cache, domain.CacheKeyMetrics, &m); err == nil && ok {
			return &m, nil
		}
	}
	if s.repo == nil {
		return nil, fmt.Errorf("no repository configured")
	}

	metrics, err := s.repo.Metrics(ctx, s.now())
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = cache.SetJSON(ctx, s.cache, domain.CacheKeyMetrics, metrics, s.cacheTTL)
	}
	return metrics, nil
}

func rejectionKind(err error) string {
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		return string(vErr.Kind)
	}
	return "processing_error"
}

// publicMessage hides internal detail of processing failures.
func publicMessage(err error) string {
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Error()
	}
	if errors.Is(err, ErrUnreadable) {
		return err.Error()
	}
	return "internal processing error"
}
