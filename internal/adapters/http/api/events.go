package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/crowdpulse/internal/domain/model"
)

// EventDependencies defines the interface for event registration.
type EventDependencies interface {
	RegisterEvent(ctx context.Context, ev model.Event) (model.Event, error)
	GetEvent(ctx context.Context, eventID string) (model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandlePostEvent handles POST /events requests.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	var req eventPayload
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	ev, err := req.toModel()
	if err != nil {
		respondError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	ev, err = h.deps.RegisterEvent(r.Context(), ev)
	if err != nil {
		respondError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, eventView(ev))
}

// HandleListEvents handles GET /events requests.
func (h *EventsHandler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_events"
	events, err := h.deps.ListEvents(r.Context())
	if err != nil {
		respondError(w, Wrap(op, err))
		return
	}
	out := make([]eventPayload, 0, len(events))
	for _, ev := range events {
		out = append(out, eventView(ev))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetEvent handles GET /events/{id} requests.
func (h *EventsHandler) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_event"
	ev, err := h.deps.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, eventView(ev))
}

func errInvalidTime(field string) error {
	return fmt.Errorf("invalid %s; must be RFC3339", field)
}
