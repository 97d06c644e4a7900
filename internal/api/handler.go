package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kestrel-soc/kestrel/internal/domain"
	"github.com/kestrel-soc/kestrel/internal/feedback"
	"github.com/kestrel-soc/kestrel/internal/triage"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	processor *triage.Processor
	feedback  *feedback.Pipeline
	store     domain.RecordStore
	cache     domain.Cache
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(processor *triage.Processor, fb *feedback.Pipeline, store domain.RecordStore, cache domain.Cache, version string) *Handler {
	return &Handler{
		processor: processor,
		feedback:  fb,
		store:     store,
		cache:     cache,
		version:   version,
	}
}

// ScoreResponse is the response for POST /score.
type ScoreResponse struct {
	*domain.ExplanationRecord
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Score handles POST /score requests: it runs the full triage
// pipeline synchronously and returns the persisted explanation.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req domain.ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.AlertID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "alertId is required",
		})
		return
	}
	if len(req.Alert) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "alert payload is required",
		})
		return
	}

	rec, err := h.processor.Process(ctx, req.AlertID, req.Alert)
	if err != nil {
		h.writeError(w, req.AlertID, err)
		return
	}

	resp := ScoreResponse{ExplanationRecord: rec}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// GetExplanation retrieves a stored explanation record by alert ID.
func (h *Handler) GetExplanation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	alertID := chi.URLParam(r, "alertID")

	if alertID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "alert id is required",
		})
		return
	}

	rec, err := h.processor.Explanation(ctx, alertID)
	if err != nil {
		h.writeError(w, alertID, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// SubmitFeedback handles POST /feedback requests. Accepted feedback
// returns 202; the record is durable before the response is written.
func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	rec, err := h.feedback.Submit(ctx, req)
	if err != nil {
		h.writeError(w, req.AlertID, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": true,
		"feedback": rec,
	})
}

// ListFeedback returns all feedback records for one alert, oldest
// first.
func (h *Handler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	alertID := chi.URLParam(r, "alertID")

	if alertID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "alert id is required",
		})
		return
	}

	records, err := h.store.ListFeedback(ctx, alertID)
	if err != nil {
		h.writeError(w, alertID, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alertId":  alertID,
		"feedback": records,
		"count":    len(records),
	})
}

// GetFeatureMap exposes the loaded feature schema so operators can
// verify which map version the process scores with.
func (h *Handler) GetFeatureMap(w http.ResponseWriter, r *http.Request) {
	fm := h.processor.FeatureMap()

	writeJSON(w, http.StatusOK, map[string]any{
		"version":  fm.Version(),
		"features": fm.Features(),
		"count":    fm.Len(),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// writeError maps pipeline errors onto HTTP status codes. Dimension
// mismatches are 422 because the request was well-formed but cannot
// be scored by the loaded model.
func (h *Handler) writeError(w http.ResponseWriter, alertID string, err error) {
	var dim *domain.DimensionError
	switch {
	case errors.As(err, &dim):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": dim.Error(),
		})
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "record not found",
		})
	case errors.Is(err, domain.ErrModelUnavailable), errors.Is(err, domain.ErrStoreUnavailable):
		slog.Error("request failed", "alert_id", alertID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": err.Error(),
		})
	default:
		slog.Error("request failed", "alert_id", alertID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
