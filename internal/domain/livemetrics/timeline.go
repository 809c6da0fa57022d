package livemetrics

import (
	"time"

	"github.com/okian/crowdpulse/internal/domain/model"
)

// Rolling windows.
const (
	timelineWindow = 30 * time.Minute
	trendWindow    = 15 * time.Minute
	endedGrace     = 30 * time.Minute
)

// Composite blend.
const (
	vibeShare  = 0.6
	crowdShare = 0.4
)

// Stage thresholds and position gauges.
const (
	peakFloor          = 65.0
	peakTrendFloor     = -10.0
	warmFloor          = 50.0
	dyingCeiling       = 35.0
	fallingTrend       = -15.0
	peakPositionBase   = 60.0
	peakPositionSlope  = 0.8
	peakPositionMax    = 85.0
	warmPositionBase   = 25.0
	warmPositionSlope  = 2.0
	warmPositionMax    = 55.0
	dyingPosition      = 90.0
	endedPosition      = 100.0
	busyWindowSize     = 5
	rampUpPrevFraction = 0.5
)

// composite is the freshness-weighted blend over one window. Missing vibe or
// crowd signal contributes 0 to score.
type composite struct {
	vibe     float64
	crowd    float64
	score    float64
	hasVibe  bool
	hasCrowd bool
}

func compositeOf(now time.Time, records []model.Feedback, scorer crowdScorer) composite {
	var vibeSum, vibeW, crowdSum, crowdW float64
	for i := range records {
		f := &records[i]
		w := TimelineWeight(minutesAgo(now, f.Timestamp))
		if f.Vibe != nil {
			vibeSum += w * float64(*f.Vibe)
			vibeW += w
		}
		if v, ok := scorer.score(f.Crowd); ok {
			crowdSum += w * v
			crowdW += w
		}
	}
	var c composite
	if vibeW > 0 {
		c.vibe = vibeSum / vibeW
		c.hasVibe = true
	}
	if crowdW > 0 {
		c.crowd = crowdSum / crowdW
		c.hasCrowd = true
	}
	c.score = vibeShare*c.vibe + crowdShare*c.crowd
	return c
}

// timelineTrace carries intermediate quantities for debug tracing only.
type timelineTrace struct {
	recent30        int
	recent15        int
	prev15          int
	profileUsed     bool
	compositeRecent float64
	compositePrev   float64
	trend           float64
	rule            string
	movement        movementTrace
}

// ComputeTimeline classifies the event's lifecycle stage at now from the
// full feedback history. An empty 30 minute window yields the no-signal
// result: WARM at position 0 with FeedbackCount 0.
func ComputeTimeline(now time.Time, feedback []model.Feedback, profile *model.CapacityProfile, end time.Time) model.TimelineResult {
	res, _ := computeTimeline(now, feedback, profile, end)
	return res
}

func computeTimeline(now time.Time, feedback []model.Feedback, profile *model.CapacityProfile, end time.Time) (model.TimelineResult, timelineTrace) {
	start30 := now.Add(-timelineWindow)
	start15 := now.Add(-trendWindow)

	var recent30, recent15, prev15 []model.Feedback
	for i := range feedback {
		ts := feedback[i].Timestamp
		if ts.Before(start30) {
			continue
		}
		recent30 = append(recent30, feedback[i])
		if ts.Before(start15) {
			prev15 = append(prev15, feedback[i])
		} else {
			recent15 = append(recent15, feedback[i])
		}
	}

	scorer := newCrowdScorer(profile)
	tr := timelineTrace{
		recent30:    len(recent30),
		recent15:    len(recent15),
		prev15:      len(prev15),
		profileUsed: scorer.usesProfile(),
	}

	if len(recent30) == 0 {
		tr.rule = "empty"
		return model.TimelineResult{
			Stage:      model.StageWarm,
			Position:   0,
			Movement:   model.MovementStaying,
			ComputedAt: now,
		}, tr
	}

	cur := compositeOf(now, recent30, scorer)

	switch {
	case len(recent15) > 0 && len(prev15) > 0:
		tr.compositeRecent = compositeOf(now, recent15, scorer).score
		tr.compositePrev = compositeOf(now, prev15, scorer).score
		tr.trend = tr.compositeRecent - tr.compositePrev
	case len(recent15) > 0:
		// Reports only in the last 15 minutes: assume the event is ramping up
		// from half its current level.
		tr.compositeRecent = compositeOf(now, recent15, scorer).score
		tr.trend = tr.compositeRecent - rampUpPrevFraction*cur.score
	case len(prev15) > 0:
		// A pause in reporting is not a downturn.
		tr.compositePrev = compositeOf(now, prev15, scorer).score
		tr.trend = 0
	}

	var movement model.Movement
	movement, tr.movement = determineMovement(now, feedback, cur.crowd, tr.trend, len(recent30))

	var stage model.Stage
	var position float64
	stage, position, tr.rule = classifyStage(now, end, cur.score, tr.trend, movement, len(recent30))

	res := model.TimelineResult{
		Stage:         stage,
		Position:      position,
		CrowdNumeric:  cur.crowd,
		CompositeNow:  cur.score,
		Movement:      movement,
		FeedbackCount: len(recent30),
		ComputedAt:    now,
	}
	if cur.hasVibe {
		v := cur.vibe
		res.VibeNow = &v
	}
	if cur.hasCrowd {
		res.CrowdNow = crowdLabel(cur.crowd)
	}
	return res, tr
}

// classifyStage applies the stage rules in order; the first match wins.
func classifyStage(now, end time.Time, score, trend float64, movement model.Movement, count int) (model.Stage, float64, string) {
	minFeedback := 1
	if count >= busyWindowSize {
		minFeedback = 2
	}

	switch {
	case now.After(end.Add(endedGrace)) || count < minFeedback:
		return model.StageEnded, endedPosition, "ended"
	case score >= peakFloor && trend >= peakTrendFloor:
		return model.StagePeak, clamp(peakPositionBase+(score-peakFloor)*peakPositionSlope, peakPositionBase, peakPositionMax), "peak"
	case score >= warmFloor && score < peakFloor:
		return model.StageWarm, clamp(warmPositionBase+(score-warmFloor)*warmPositionSlope, warmPositionBase, warmPositionMax), "warm"
	case score < dyingCeiling || (score < warmFloor && trend < fallingTrend && movement == model.MovementLeaving):
		return model.StageDying, dyingPosition, "dying"
	default:
		return model.StageWarm, warmPositionBase, "warm-default"
	}
}
