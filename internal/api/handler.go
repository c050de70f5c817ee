// Package api provides the HTTP API for the tollwatch dashboard.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/tollwatch/internal/domain"
	"github.com/opensource-finance/tollwatch/internal/filename"
	"github.com/opensource-finance/tollwatch/internal/ingest"
	"github.com/opensource-finance/tollwatch/internal/repository"
)

const (
	defaultAlertLimit = 100
	monthlyChartSpan  = 12
)

// Handler contains HTTP handlers for the API.
type Handler struct {
	svc        *ingest.Service
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	normalizer *filename.Normalizer
	maxUpload  int64
	version    string
}

// NewHandler creates a new Handler. maxUploadMB caps multipart uploads.
func NewHandler(deps Deps, maxUploadMB int64, version string) *Handler {
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	return &Handler{
		svc:        deps.Service,
		repo:       deps.Repo,
		cache:      deps.Cache,
		bus:        deps.Bus,
		normalizer: filename.NewNormalizer(),
		maxUpload:  maxUploadMB << 20,
		version:    version,
	}
}

// multipartOverhead is the body allowance beyond the file size limit.
const multipartOverhead = 64 << 10

// UploadResponse is returned for an accepted batch.
type UploadResponse struct {
	Message string         `json:"message"`
	BatchID string         `json:"batchId"`
	Source  string         `json:"source"`
	Period  string         `json:"period"`
	Summary domain.Summary `json:"summary"`
}

// Upload handles POST /api/upload with a multipart "file" field.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	// The limit applies to the file itself; the body may carry multipart
	// boundaries and part headers on top of it.
	bodyLimit := h.maxUpload + multipartOverhead
	if r.ContentLength > bodyLimit {
		writeTooLarge(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeTooLarge(w)
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid multipart form: " + err.Error(),
		})
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "missing file field",
		})
		return
	}
	defer file.Close()

	if header.Size > h.maxUpload {
		writeTooLarge(w)
		return
	}

	name := filepath.Base(header.Filename)
	if !ingest.Supported(name) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "only .csv and .xlsx files are accepted",
		})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to read upload",
		})
		return
	}

	batch, err := h.svc.Ingest(r.Context(), name, data)
	if err != nil {
		h.writeIngestError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Message: "File processed successfully",
		BatchID: batch.ID,
		Source:  batch.Source,
		Period:  batch.Period.Token(),
		Summary: batch.Summary,
	})
}

func (h *Handler) writeIngestError(w http.ResponseWriter, err error) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":      vErr.Error(),
			"validation": vErr,
		})
	case errors.Is(err, ingest.ErrUnreadable):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	default:
		slog.Error("upload failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal processing error",
		})
	}
}

// ListTransactions handles GET /api/transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, repository.DefaultListLimit)
	if !ok {
		return
	}

	records, err := h.repo.ListTransactions(r.Context(), limit)
	if err != nil {
		h.writeRepoError(w, "list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  records,
		"count": len(records),
	})
}

// ListAlerts handles GET /api/transactions/alerts.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultAlertLimit)
	if !ok {
		return
	}

	records, err := h.repo.ListAlerts(r.Context(), limit)
	if err != nil {
		h.writeRepoError(w, "list alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  records,
		"count": len(records),
	})
}

// GetTransaction handles GET /api/transactions/{id}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction ID is required",
		})
		return
	}

	record, err := h.repo.GetTransaction(r.Context(), id)
	if err != nil {
		h.writeRepoError(w, "get transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// Summary handles GET /api/summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.CurrentSummary(r.Context())
	if err != nil {
		h.writeRepoError(w, "load summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// DashboardMetrics handles GET /api/metrics.
func (h *Handler) DashboardMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.DashboardMetrics(r.Context())
	if err != nil {
		h.writeRepoError(w, "load metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// CategoryChart handles GET /api/charts/category.
func (h *Handler) CategoryChart(w http.ResponseWriter, r *http.Request) {
	data, err := h.repo.CategoryCounts(r.Context())
	if err != nil {
		h.writeRepoError(w, "load category chart", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": data})
}

// SeverityChart handles GET /api/charts/severity.
func (h *Handler) SeverityChart(w http.ResponseWriter, r *http.Request) {
	data, err := h.repo.SeverityCounts(r.Context())
	if err != nil {
		h.writeRepoError(w, "load severity chart", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": data})
}

// MonthlyChart handles GET /api/charts/monthly. Months run oldest first.
func (h *Handler) MonthlyChart(w http.ResponseWriter, r *http.Request) {
	data, err := h.repo.MonthlyCounts(r.Context(), monthlyChartSpan)
	if err != nil {
		h.writeRepoError(w, "load monthly chart", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": data})
}

// NormalizeResponse describes the period resolved from a file name.
type NormalizeResponse struct {
	Name     string        `json:"name"`
	Period   string        `json:"period"`
	Fallback bool          `json:"fallback"`
	Target   string        `json:"target"`
	Resolved domain.Period `json:"resolved"`
}

// NormalizeFilename handles GET /api/filenames/normalize?name=.
func (h *Handler) NormalizeFilename(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name query parameter is required",
		})
		return
	}

	p := h.normalizer.Normalize(name)
	writeJSON(w, http.StatusOK, NormalizeResponse{
		Name:     name,
		Period:   p.Token(),
		Fallback: p.Fallback(),
		Target:   filename.TargetName(p, filepath.Ext(name)),
		Resolved: p,
	})
}

// Health handles GET /health and reports each backing component.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			return
		}
		checks[name] = "ok"
	}

	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(r.Context()) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(r.Context()) })
	}
	if h.bus != nil {
		check("bus", func() error { return h.bus.Ping(r.Context()) })
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	})
}

// Ready handles GET /ready. The service is ready once the repository answers.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
		})
		return
	}
	if err := h.repo.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func (h *Handler) writeRepoError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
	case errors.Is(err, repository.ErrNoBatch):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no batch has been processed yet",
		})
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	default:
		slog.Error(op+" failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to " + op,
		})
	}
}

// parseLimit reads the optional "limit" query parameter.
func parseLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "limit must be a positive integer",
		})
		return 0, false
	}
	return n, true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeTooLarge(w http.ResponseWriter) {
	writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
		"error": "file exceeds upload limit",
	})
}
