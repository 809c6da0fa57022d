package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/crowdpulse/internal/domain/model"
)

// FeedbackDependencies defines the interface for feedback intake.
type FeedbackDependencies interface {
	SubmitFeedback(ctx context.Context, fb model.Feedback) (model.FeedbackReceipt, error)
}

// feedbackRequest mirrors the OpenAPI schema for POST /events/{id}/feedback.
type feedbackRequest struct {
	FeedbackID  string   `json:"feedback_id"`
	TS          string   `json:"ts"`
	Vibe        *int     `json:"vibe"`
	Crowd       string   `json:"crowd"`
	LineMinutes *float64 `json:"line_minutes"`
	IsInside    bool     `json:"is_inside"`
}

func (f feedbackRequest) toModel(eventID string) (model.Feedback, error) {
	fb := model.Feedback{
		ID:          f.FeedbackID,
		EventID:     eventID,
		Vibe:        f.Vibe,
		LineMinutes: f.LineMinutes,
		IsInside:    f.IsInside,
	}
	if f.TS != "" {
		ts, err := time.Parse(time.RFC3339, f.TS)
		if err != nil {
			return model.Feedback{}, errInvalidTime("ts")
		}
		fb.Timestamp = ts
	}
	crowd, err := model.ParseCrowdLevel(f.Crowd)
	if err != nil {
		return model.Feedback{}, err
	}
	fb.Crowd = crowd
	return fb, nil
}

// FeedbackHandler handles feedback submissions.
type FeedbackHandler struct {
	deps FeedbackDependencies
}

// NewFeedbackHandler creates a new feedback handler.
func NewFeedbackHandler(deps FeedbackDependencies) *FeedbackHandler {
	return &FeedbackHandler{deps: deps}
}

// HandlePostFeedback handles POST /events/{id}/feedback requests.
// New reports are 202, repeated feedback ids 200.
func (h *FeedbackHandler) HandlePostFeedback(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_feedback"
	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	fb, err := req.toModel(r.PathValue("id"))
	if err != nil {
		respondError(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	receipt, err := h.deps.SubmitFeedback(r.Context(), fb)
	if err != nil {
		respondError(w, Wrap(op, err))
		return
	}
	if receipt.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", FeedbackID: receipt.FeedbackID, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", FeedbackID: receipt.FeedbackID})
}
