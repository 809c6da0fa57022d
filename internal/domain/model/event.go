package model

import (
	"fmt"
	"strings"
	"time"
)

// EventTypePub selects the pub line-label bands; every other type uses the
// club/venue bands.
const EventTypePub = "pub"

// Event is a live social event feedback is collected for.
type Event struct {
	ID       string
	Name     string
	Type     string
	EndTime  time.Time
	Capacity *CapacityProfile
}

// Validate checks the fields the metrics pipeline relies on. A nil capacity
// profile is allowed; a present one must be valid.
func (e *Event) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if e.EndTime.IsZero() {
		return fmt.Errorf("%w: missing end time", ErrInvalidEvent)
	}
	if e.Capacity != nil {
		if err := e.Capacity.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
		}
	}
	return nil
}

// LiveAt reports whether the event still accepts recomputation at now: up to
// grace past its end time.
func (e *Event) LiveAt(now time.Time, grace time.Duration) bool {
	return !now.After(e.EndTime.Add(grace))
}
