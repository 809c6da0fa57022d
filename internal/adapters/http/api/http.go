// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/okian/crowdpulse/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EventDependencies
	FeedbackDependencies
	MetricsDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	eventsHandler   *EventsHandler
	feedbackHandler *FeedbackHandler
	metricsHandler  *MetricsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		eventsHandler:   NewEventsHandler(deps),
		feedbackHandler: NewFeedbackHandler(deps),
		metricsHandler:  NewMetricsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	mux.HandleFunc("GET /events", MetricsMiddleware(s.eventsHandler.HandleListEvents, "events"))
	mux.HandleFunc("GET /events/{id}", MetricsMiddleware(s.eventsHandler.HandleGetEvent, "event"))
	mux.HandleFunc("POST /events/{id}/feedback", MetricsMiddleware(s.feedbackHandler.HandlePostFeedback, "feedback"))
	mux.HandleFunc("GET /events/{id}/timeline", MetricsMiddleware(s.metricsHandler.HandleTimeline, "timeline"))
	mux.HandleFunc("GET /events/{id}/line", MetricsMiddleware(s.metricsHandler.HandleLine, "line"))
	mux.HandleFunc("GET /events/{id}/snapshot", MetricsMiddleware(s.metricsHandler.HandleSnapshot, "snapshot"))
}

type capacityPayload struct {
	DeadMax   int `json:"dead_max"`
	ChillMax  int `json:"chill_max"`
	PackedMax int `json:"packed_max"`
	PeakMax   int `json:"peak_max"`
}

// eventPayload is the wire shape of an event, both directions.
type eventPayload struct {
	ID       string           `json:"id,omitempty"`
	Name     string           `json:"name"`
	Type     string           `json:"type"`
	EndTime  string           `json:"end_time"`
	Capacity *capacityPayload `json:"capacity,omitempty"`
}

func (p eventPayload) toModel() (model.Event, error) {
	end, err := time.Parse(time.RFC3339, p.EndTime)
	if err != nil {
		return model.Event{}, errInvalidTime("end_time")
	}
	ev := model.Event{ID: p.ID, Name: p.Name, Type: p.Type, EndTime: end}
	if p.Capacity != nil {
		ev.Capacity = &model.CapacityProfile{
			DeadMax:   p.Capacity.DeadMax,
			ChillMax:  p.Capacity.ChillMax,
			PackedMax: p.Capacity.PackedMax,
			PeakMax:   p.Capacity.PeakMax,
		}
	}
	return ev, nil
}

func eventView(ev model.Event) eventPayload {
	p := eventPayload{
		ID:      ev.ID,
		Name:    ev.Name,
		Type:    ev.Type,
		EndTime: ev.EndTime.UTC().Format(time.RFC3339),
	}
	if ev.Capacity != nil {
		p.Capacity = &capacityPayload{
			DeadMax:   ev.Capacity.DeadMax,
			ChillMax:  ev.Capacity.ChillMax,
			PackedMax: ev.Capacity.PackedMax,
			PeakMax:   ev.Capacity.PeakMax,
		}
	}
	return p
}

type ackResponse struct {
	Status     string `json:"status"`
	FeedbackID string `json:"feedback_id"`
	Duplicate  bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// respondError writes err with the status its kind maps to.
func respondError(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	writeError(w, status, code, err)
}

var errEmptyBody = errors.New("empty request body")

// decodeJSON reads a single JSON object, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}
