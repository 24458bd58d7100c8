package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"docflow/apps/ingestion/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// List serves GET /jobs/failed.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobs, err := h.service.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list failed jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []Job{}
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": jobs,
		"meta": map[string]int{"count": len(jobs)},
	})
}

// Count serves GET /jobs/failed/count.
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := h.service.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count failed jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": map[string]int{"count": count},
	})
}

// Retry serves POST /jobs/{id}/retry.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	slog.InfoContext(ctx, "retrying failed job", "id", id)

	if err := h.service.Retry(ctx, id); err != nil {
		slog.ErrorContext(ctx, "failed to retry job", "id", id, "error", err)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.writeError(ctx, w, "NOT_FOUND", "Job not found", http.StatusNotFound)
		case errors.Is(err, ErrPublishTimeout):
			h.writeError(ctx, w, "UNAVAILABLE", err.Error(), http.StatusServiceUnavailable)
		default:
			h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": "job retried"})
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	h.writeJSON(ctx, w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	})
}
