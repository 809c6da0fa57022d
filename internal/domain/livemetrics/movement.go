package livemetrics

import (
	"math"
	"time"

	"github.com/okian/crowdpulse/internal/domain/model"
)

// Movement heuristics.
const (
	movementWindow      = 10 * time.Minute
	minMovementFeedback = 3
	lineReportedFloor   = 5.0
	significantLine     = 10.0
	crowdedFloor        = 50.0
	emptyingCrowd       = 40.0
	risingTrend         = 3.0
	fallingTrendFloor   = -5.0
	stableTrendBand     = 5.0
)

type movementTrace struct {
	lines           int
	avgLine         float64
	hasLine         bool
	crowded         bool
	significantLine bool
}

// DetermineMovement infers net crowd flow from recent line reports, the
// composite trend, and the current crowd score. With fewer than three
// reports in the timeline window it always returns STAYING.
func DetermineMovement(now time.Time, feedback []model.Feedback, crowdNow, trend float64, feedbackCount int) model.Movement {
	m, _ := determineMovement(now, feedback, crowdNow, trend, feedbackCount)
	return m
}

func determineMovement(now time.Time, feedback []model.Feedback, crowdNow, trend float64, feedbackCount int) (model.Movement, movementTrace) {
	var tr movementTrace
	if feedbackCount < minMovementFeedback {
		return model.MovementStaying, tr
	}

	start := now.Add(-movementWindow)
	var sum float64
	for i := range feedback {
		f := &feedback[i]
		if f.LineMinutes == nil || f.Timestamp.Before(start) {
			continue
		}
		tr.lines++
		sum += *f.LineMinutes
		if *f.LineMinutes > lineReportedFloor {
			tr.hasLine = true
		}
	}
	if tr.lines > 0 {
		tr.avgLine = sum / float64(tr.lines)
	}
	tr.crowded = crowdNow >= crowdedFloor
	tr.significantLine = tr.avgLine > significantLine

	switch {
	case tr.significantLine && (trend > risingTrend || tr.crowded):
		return model.MovementArriving, tr
	case !tr.hasLine && crowdNow < emptyingCrowd && trend < fallingTrendFloor:
		return model.MovementLeaving, tr
	case (tr.crowded && tr.avgLine <= significantLine) || math.Abs(trend) <= stableTrendBand:
		return model.MovementStaying, tr
	case trend > risingTrend:
		return model.MovementArriving, tr
	case trend < fallingTrendFloor:
		return model.MovementLeaving, tr
	default:
		return model.MovementStaying, tr
	}
}
