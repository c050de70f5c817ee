// Package metrics exposes Prometheus collectors for batch processing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/tollwatch/internal/domain"
)

const namespace = "tollwatch"

// Metrics holds the batch, row and intake collectors.
type Metrics struct {
	registry *prometheus.Registry

	batchesTotal      *prometheus.CounterVec
	batchDuration     prometheus.Histogram
	rowsScored        prometheus.Counter
	rowsByStatus      *prometheus.CounterVec
	riskScore         prometheus.Histogram
	filenamePeriods   *prometheus.CounterVec
	exportFailures    *prometheus.CounterVec
	httpRequestsTotal *prometheus.CounterVec
}

// New creates collectors registered on a fresh registry that also carries
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		batchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "batches_total",
				Help:      "Batches handled, by result",
			},
			[]string{"result"},
		),
		batchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "batch_duration_seconds",
				Help:      "Time to process one batch",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
		),
		rowsScored: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "rows_scored_total",
				Help:      "Rows scored across all batches",
			},
		),
		rowsByStatus: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "rows_by_status_total",
				Help:      "Scored rows by status tier",
			},
			[]string{"status"},
		),
		riskScore: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "risk_score",
				Help:      "Distribution of row risk scores",
				Buckets:   prometheus.LinearBuckets(0, 10, 10),
			},
		),
		filenamePeriods: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "intake",
				Name:      "filename_periods_total",
				Help:      "File name periods resolved, by rule",
			},
			[]string{"source"},
		),
		exportFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "export",
				Name:      "failures_total",
				Help:      "Failed batch exports, by exporter",
			},
			[]string{"exporter"},
		),
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "http_requests_total",
				Help:      "HTTP requests, by route and status",
			},
			[]string{"method", "route", "status"},
		),
	}
}

// BatchProcessed records a successfully annotated batch.
func (m *Metrics) BatchProcessed(batch *domain.Batch, elapsed time.Duration) {
	m.batchesTotal.WithLabelValues("processed").Inc()
	m.batchDuration.Observe(elapsed.Seconds())
	m.rowsScored.Add(float64(len(batch.Records)))
	for _, r := range batch.Records {
		m.rowsByStatus.WithLabelValues(string(r.Status)).Inc()
		m.riskScore.Observe(float64(r.RiskScore))
	}
}

// BatchRejected records a batch that failed validation or processing.
func (m *Metrics) BatchRejected(kind string) {
	m.batchesTotal.WithLabelValues(kind).Inc()
}

// FilenameResolved records which rule produced a file's period.
func (m *Metrics) FilenameResolved(p domain.Period) {
	m.filenamePeriods.WithLabelValues(string(p.Source)).Inc()
}

// ExportFailed records a failed export.
func (m *Metrics) ExportFailed(exporter string) {
	m.exportFailures.WithLabelValues(exporter).Inc()
}

// RequestServed records one HTTP response.
func (m *Metrics) RequestServed(method, route string, status int) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
