// Package repository holds registered events and their feedback.
package repository

import (
	"context"
	"time"

	"github.com/okian/crowdpulse/internal/domain/model"
)

// Store provides read/write access to events and feedback.
type Store interface {
	// PutEvent registers an event or replaces an existing registration.
	PutEvent(ctx context.Context, ev model.Event) error

	// GetEvent returns ErrNotFound if the event is unknown.
	GetEvent(ctx context.Context, eventID string) (model.Event, error)

	// ListEvents returns all events ordered by id.
	ListEvents(ctx context.Context) ([]model.Event, error)

	// AppendFeedback stores fb under fb.EventID. Durable stores return
	// ErrDuplicate when fb.ID is already stored for the event.
	// Returns ErrNotFound if the event is unknown.
	AppendFeedback(ctx context.Context, fb model.Feedback) error

	// Feedback returns a copy of the event's feedback with Timestamp >= since.
	// A zero since returns everything held. Order is not guaranteed.
	Feedback(ctx context.Context, eventID string, since time.Time) ([]model.Feedback, error)

	// Prune drops feedback older than cutoff and reports how many were dropped.
	Prune(ctx context.Context, cutoff time.Time) (int, error)

	// Count returns the number of feedback records held.
	Count(ctx context.Context) int

	Close() error
}
