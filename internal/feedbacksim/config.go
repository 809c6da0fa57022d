// Package feedbacksim replays a scripted crowd curve against a running
// crowdpulse service and reads back what the service made of it.
package feedbacksim

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL       string        // Base URL of the service
	EventID       string        // Event to register; generated when empty
	EventType     string        // "pub" or a venue type
	Reports       int           // Number of distinct reports to submit
	DuplicateRate float64       // Fraction of reports resubmitted with the same id
	Span          time.Duration // How far back the curve starts
	EndsIn        time.Duration // Event end time relative to now
	Workers       int           // Number of concurrent submitters
	Timeout       time.Duration // HTTP request timeout
	Settle        time.Duration // Wait before reading results back
	Seed          uint64        // Seed for the report generator
	OutputFile    string        // Where to write the generated reports, if set
	Verbose       bool          // Enable per-request logging
}

// EventRequest is the body of POST /events.
type EventRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	EndTime string `json:"end_time"`
}

// Report is one simulated attendee submission.
type Report struct {
	FeedbackID  string   `json:"feedback_id"`
	TS          string   `json:"ts"`
	Vibe        *int     `json:"vibe,omitempty"`
	Crowd       string   `json:"crowd,omitempty"`
	LineMinutes *float64 `json:"line_minutes,omitempty"`
	IsInside    bool     `json:"is_inside"`
}

// AckResponse represents the response from feedback submission.
type AckResponse struct {
	Status     string `json:"status"`
	FeedbackID string `json:"feedback_id"`
	Duplicate  bool   `json:"duplicate"`
}

// Timeline is the subset of the timeline response the tool reports.
type Timeline struct {
	Stage         string   `json:"stage"`
	Position      float64  `json:"position"`
	VibeNow       *float64 `json:"vibe_now"`
	CrowdNow      string   `json:"crowd_now"`
	Movement      string   `json:"movement"`
	FeedbackCount int      `json:"feedback_count"`
}

// LineEstimate is the line response.
type LineEstimate struct {
	Estimate *int   `json:"estimate"`
	Label    string `json:"label"`
	Count    int    `json:"count"`
}

// Stats holds run statistics.
type Stats struct {
	ReportsGenerated  int
	ReportsSubmitted  int
	ReportsAccepted   int
	ReportsDuplicate  int
	ReportsFailed     int
	DuplicatesPlanned int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}

// Result is what the service reported after the run.
type Result struct {
	EventID  string
	Timeline Timeline
	Line     LineEstimate
	Stats    Stats
}
