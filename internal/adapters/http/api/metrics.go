package api

import (
	"context"
	"net/http"

	"github.com/okian/crowdpulse/internal/domain/model"
)

// MetricsDependencies exposes the computed live metrics for an event.
type MetricsDependencies interface {
	Timeline(ctx context.Context, eventID string) (model.TimelineResult, error)
	LineEstimate(ctx context.Context, eventID string) (model.LineEstimate, error)
	LatestSnapshot(ctx context.Context, eventID string) (model.Snapshot, error)
}

// MetricsHandler serves timeline, line and snapshot reads.
type MetricsHandler struct {
	deps MetricsDependencies
}

// NewMetricsHandler creates a new metrics handler.
func NewMetricsHandler(deps MetricsDependencies) *MetricsHandler {
	return &MetricsHandler{deps: deps}
}

// HandleTimeline handles GET /events/{id}/timeline requests.
func (h *MetricsHandler) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	const op = "api.timeline"
	res, err := h.deps.Timeline(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleLine handles GET /events/{id}/line requests.
func (h *MetricsHandler) HandleLine(w http.ResponseWriter, r *http.Request) {
	const op = "api.line"
	res, err := h.deps.LineEstimate(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleSnapshot handles GET /events/{id}/snapshot requests: the last
// snapshot the recompute pipeline published.
func (h *MetricsHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	const op = "api.snapshot"
	snap, err := h.deps.LatestSnapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
