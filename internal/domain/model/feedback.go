// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// CrowdLevel is the coarse occupancy an attendee reports.
type CrowdLevel string

// Crowd levels, lowest to highest. The zero value means "not reported".
const (
	CrowdUnknown   CrowdLevel = ""
	CrowdDead      CrowdLevel = "DEAD"
	CrowdChill     CrowdLevel = "CHILL"
	CrowdPacked    CrowdLevel = "PACKED"
	CrowdTooPacked CrowdLevel = "TOO_PACKED"
)

// Valid reports whether c is one of the four reportable levels.
func (c CrowdLevel) Valid() bool {
	switch c {
	case CrowdDead, CrowdChill, CrowdPacked, CrowdTooPacked:
		return true
	}
	return false
}

// ParseCrowdLevel accepts the wire names case-insensitively; "" is CrowdUnknown.
func ParseCrowdLevel(s string) (CrowdLevel, error) {
	c := CrowdLevel(strings.ToUpper(strings.TrimSpace(s)))
	if c == CrowdUnknown || c.Valid() {
		return c, nil
	}
	return CrowdUnknown, fmt.Errorf("%w: unknown crowd level %q", ErrInvalidFeedback, s)
}

// Vibe bounds.
const (
	MinVibe = 0
	MaxVibe = 100
)

// Feedback is one anonymous attendee report. Optional signals are nil/empty
// when the attendee skipped them.
type Feedback struct {
	ID          string
	EventID     string
	Timestamp   time.Time
	Vibe        *int
	Crowd       CrowdLevel
	LineMinutes *float64
	IsInside    bool
}

// Validate checks field ranges. It does not check that the event exists.
func (f *Feedback) Validate() error {
	if f.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidFeedback)
	}
	if f.Vibe != nil && (*f.Vibe < MinVibe || *f.Vibe > MaxVibe) {
		return fmt.Errorf("%w: vibe %d outside [%d,%d]", ErrInvalidFeedback, *f.Vibe, MinVibe, MaxVibe)
	}
	if f.Crowd != CrowdUnknown && !f.Crowd.Valid() {
		return fmt.Errorf("%w: unknown crowd level %q", ErrInvalidFeedback, f.Crowd)
	}
	if f.LineMinutes != nil && *f.LineMinutes < 0 {
		return fmt.Errorf("%w: negative line minutes", ErrInvalidFeedback)
	}
	return nil
}

// MaxClockSkew is how far past the receive time a report may be dated.
const MaxClockSkew = time.Minute

// ValidateAt runs Validate and rejects reports dated more than MaxClockSkew
// after now.
func (f *Feedback) ValidateAt(now time.Time) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if f.Timestamp.After(now.Add(MaxClockSkew)) {
		return fmt.Errorf("%w: timestamp %s is in the future", ErrInvalidFeedback, f.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// HasSignal reports whether the record carries at least one metric.
func (f *Feedback) HasSignal() bool {
	return f.Vibe != nil || f.Crowd != CrowdUnknown || f.LineMinutes != nil
}

// FeedbackReceipt acknowledges a submission. Duplicate is set when the
// FeedbackID was already stored for the event.
type FeedbackReceipt struct {
	FeedbackID string
	Duplicate  bool
}
