package livemetrics

import (
	"math"
	"time"
)

// Decay constants, in minutes.
const (
	timelineDecayMinutes = 12.0
	lineDecayMinutes     = 10.0

	// Line reports made from inside the venue are discounted.
	insideLineFactor = 0.6
)

// TimelineWeight is the freshness weight of a report in the timeline
// composite: exp(-minutesAgo/12).
func TimelineWeight(minutesAgo float64) float64 {
	return math.Exp(-minutesAgo / timelineDecayMinutes)
}

// LineWeight is the freshness weight of a line report:
// exp(-minutesAgo/10), scaled by 0.6 for reports from inside.
func LineWeight(minutesAgo float64, inside bool) float64 {
	w := math.Exp(-minutesAgo / lineDecayMinutes)
	if inside {
		w *= insideLineFactor
	}
	return w
}

// minutesAgo is the non-negative age of ts at now.
func minutesAgo(now, ts time.Time) float64 {
	m := now.Sub(ts).Minutes()
	if m < 0 {
		return 0
	}
	return m
}
