// Package transition detects stage changes between successive recomputes of
// an event.
package transition

import (
	"sync"
	"time"

	"github.com/okian/crowdpulse/internal/domain/model"
)

// Transition is emitted when an event's stage differs from the last one
// observed. From is empty for the first observation.
type Transition struct {
	EventID string               `json:"event_id"`
	From    model.Stage          `json:"from"`
	To      model.Stage          `json:"to"`
	At      time.Time            `json:"at"`
	Result  model.TimelineResult `json:"result"`
}

// Initial reports whether t is the first stage seen for the event.
func (t Transition) Initial() bool {
	return t.From == ""
}

// Outcome classifies an observation.
type Outcome int

const (
	// Unchanged means the stage matches the last observation.
	Unchanged Outcome = iota
	// Changed means the stage differs, or the event was not tracked yet.
	Changed
	// Stale means the result was computed before the last accepted one and
	// was ignored.
	Stale
)

// Tracker remembers the last stage per event. It is safe for concurrent use.
type Tracker struct {
	mu   sync.Mutex
	last map[string]observation
}

type observation struct {
	stage model.Stage
	at    time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]observation)}
}

// Observe records res for eventID. On Changed it also returns the transition;
// the first observation of an event is a transition from "". Results whose
// ComputedAt is before the last accepted one are Stale and leave the tracker
// untouched.
func (t *Tracker) Observe(eventID string, res model.TimelineResult) (Transition, Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, seen := t.last[eventID]
	if seen && res.ComputedAt.Before(prev.at) {
		return Transition{}, Stale
	}
	t.last[eventID] = observation{stage: res.Stage, at: res.ComputedAt}
	if seen && prev.stage == res.Stage {
		return Transition{}, Unchanged
	}
	return Transition{
		EventID: eventID,
		From:    prev.stage,
		To:      res.Stage,
		At:      res.ComputedAt,
		Result:  res,
	}, Changed
}

// Stage returns the last stage seen for eventID.
func (t *Tracker) Stage(eventID string) (model.Stage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	obs, ok := t.last[eventID]
	return obs.stage, ok
}

// Forget drops eventID, e.g. once it has left its live window.
func (t *Tracker) Forget(eventID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, eventID)
}

// Len returns the number of tracked events.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}
