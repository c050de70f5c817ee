package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/opensource-finance/tollwatch/internal/domain"
)

func TestBatchCollectors(t *testing.T) {
	m := New()

	batch := &domain.Batch{Records: []*domain.Record{
		{RiskScore: 0, Status: domain.StatusNormal},
		{RiskScore: 60, Status: domain.StatusFlagged},
		{RiskScore: 90, Status: domain.StatusInvestigating},
	}}
	m.BatchProcessed(batch, 20*time.Millisecond)
	m.BatchRejected("empty_batch")
	m.FilenameResolved(domain.Period{Source: domain.PeriodFallback})
	m.ExportFailed("bigquery")

	if got := testutil.ToFloat64(m.batchesTotal.WithLabelValues("processed")); got != 1 {
		t.Errorf("expected 1 processed batch, got %f", got)
	}
	if got := testutil.ToFloat64(m.batchesTotal.WithLabelValues("empty_batch")); got != 1 {
		t.Errorf("expected 1 rejected batch, got %f", got)
	}
	if got := testutil.ToFloat64(m.rowsScored); got != 3 {
		t.Errorf("expected 3 rows scored, got %f", got)
	}
	if got := testutil.ToFloat64(m.rowsByStatus.WithLabelValues("Flagged")); got != 1 {
		t.Errorf("expected 1 flagged row, got %f", got)
	}
	if got := testutil.ToFloat64(m.filenamePeriods.WithLabelValues("fallback")); got != 1 {
		t.Errorf("expected 1 fallback, got %f", got)
	}
	if got := testutil.ToFloat64(m.exportFailures.WithLabelValues("bigquery")); got != 1 {
		t.Errorf("expected 1 export failure, got %f", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RequestServed(http.MethodGet, "/health", http.StatusOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `tollwatch_api_http_requests_total{method="GET",route="/health",status="200"} 1`) {
		t.Error("expected request counter in exposition output")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected runtime collectors in exposition output")
	}
}
