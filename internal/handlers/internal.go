package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fabriqly/api/internal/platform/httpx"
	"github.com/fabriqly/api/internal/services"
)

// InternalWorkflowHandlers exposes scheduler-invoked maintenance endpoints.
// Callers are Cloud Scheduler / Cloud Tasks jobs authenticated by the OIDC
// middleware mounted on the /internal group.
type InternalWorkflowHandlers struct {
	disputes   services.DisputeService
	dispatcher services.OutboxDispatcher

	sweepBatchSize int
	drainBatchSize int
}

// NewInternalWorkflowHandlers constructs the internal workflow handler set.
func NewInternalWorkflowHandlers(disputes services.DisputeService, dispatcher services.OutboxDispatcher, sweepBatchSize, drainBatchSize int) *InternalWorkflowHandlers {
	return &InternalWorkflowHandlers{
		disputes:       disputes,
		dispatcher:     dispatcher,
		sweepBatchSize: sweepBatchSize,
		drainBatchSize: drainBatchSize,
	}
}

// Routes registers the internal workflow endpoints beneath /internal.
func (h *InternalWorkflowHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/workflow:sweep", h.sweep)
	r.Post("/workflow:drain", h.drain)
}

func (h *InternalWorkflowHandlers) sweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.disputes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "dispute service not available", http.StatusServiceUnavailable))
		return
	}

	batchSize, err := parseBatchSize(r, h.sweepBatchSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.disputes.SweepOverdue(ctx, batchSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "overdue dispute sweep failed", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"scanned":   result.Scanned,
		"escalated": result.Escalated,
		"swept_at":  formatTime(result.SweptAt),
	})
}

func (h *InternalWorkflowHandlers) drain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.dispatcher == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "outbox dispatcher not available", http.StatusServiceUnavailable))
		return
	}

	batchSize, err := parseBatchSize(r, h.drainBatchSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.dispatcher.Drain(ctx, batchSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "outbox drain failed", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"scanned":    result.Scanned,
		"dispatched": result.Dispatched,
		"failed":     result.Failed,
	})
}

func parseBatchSize(r *http.Request, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("batch_size"))
	if raw == "" {
		return fallback, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil || size <= 0 {
		return 0, errors.New("batch_size must be a positive integer")
	}
	return size, nil
}
