package model

import "time"

// Stage is the lifecycle phase of an event.
type Stage string

// Stages.
const (
	StageWarm  Stage = "WARM"
	StagePeak  Stage = "PEAK"
	StageDying Stage = "DYING"
	StageEnded Stage = "ENDED"
)

// Movement is the inferred net attendee flow.
type Movement string

// Movements.
const (
	MovementArriving Movement = "ARRIVING"
	MovementStaying  Movement = "STAYING"
	MovementLeaving  Movement = "LEAVING"
)

// TimelineResult is the staged status of an event at ComputedAt.
type TimelineResult struct {
	Stage         Stage      `json:"stage"`
	Position      float64    `json:"position"`
	VibeNow       *float64   `json:"vibe_now,omitempty"`
	CrowdNow      CrowdLevel `json:"crowd_now,omitempty"`
	CrowdNumeric  float64    `json:"crowd_numeric"`
	CompositeNow  float64    `json:"composite_now"`
	Movement      Movement   `json:"movement"`
	FeedbackCount int        `json:"feedback_count"`
	ComputedAt    time.Time  `json:"computed_at"`
}

// Empty reports whether the result is the no-signal state.
func (r *TimelineResult) Empty() bool {
	return r.FeedbackCount == 0
}

// LineLabelUnknown is returned when no recent line reports exist.
const LineLabelUnknown = "UNKNOWN"

// LineEstimate is the robust wait-time estimate in whole minutes.
type LineEstimate struct {
	Estimate   *int      `json:"estimate"`
	Label      string    `json:"label"`
	Count      int       `json:"count"`
	ComputedAt time.Time `json:"computed_at"`
}

// Snapshot bundles both computations for one event at one instant.
type Snapshot struct {
	EventID  string         `json:"event_id"`
	Timeline TimelineResult `json:"timeline"`
	Line     LineEstimate   `json:"line"`
}
