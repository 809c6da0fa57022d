package livemetrics

import "github.com/okian/crowdpulse/internal/domain/model"

// maxCrowdScore caps normalized crowd scores; reports above peak capacity
// may exceed 100.
const maxCrowdScore = 120

// fallbackCrowdScores is used when no usable capacity profile exists.
var fallbackCrowdScores = map[model.CrowdLevel]float64{
	model.CrowdDead:      10,
	model.CrowdChill:     40,
	model.CrowdPacked:    75,
	model.CrowdTooPacked: 95,
}

// Crowd label bands over the numeric crowd score.
const (
	tooPackedFloor = 80
	packedFloor    = 55
	chillFloor     = 25
)

// NormalizeCrowd maps a crowd level to a score on [0,120] using the midpoint
// of the level's headcount band relative to the profile's peak. It reports
// false when the level is absent, the profile is nil, or PeakMax <= 0.
func NormalizeCrowd(level model.CrowdLevel, profile *model.CapacityProfile) (float64, bool) {
	if profile == nil || profile.PeakMax <= 0 {
		return 0, false
	}
	lo, hi, ok := profile.Band(level)
	if !ok {
		return 0, false
	}
	estimate := float64(lo+hi) / 2
	return clamp(100*estimate/float64(profile.PeakMax), 0, maxCrowdScore), true
}

// crowdScorer scores crowd reports for one evaluation, either against a
// validated profile or the fallback table.
type crowdScorer struct {
	profile *model.CapacityProfile
}

// newCrowdScorer drops profiles that fail validation so a degenerate
// profile degrades to the fallback table instead of skewing the composite.
func newCrowdScorer(profile *model.CapacityProfile) crowdScorer {
	if profile != nil && profile.Validate() != nil {
		profile = nil
	}
	return crowdScorer{profile: profile}
}

func (s crowdScorer) usesProfile() bool { return s.profile != nil }

func (s crowdScorer) score(level model.CrowdLevel) (float64, bool) {
	if s.profile != nil {
		return NormalizeCrowd(level, s.profile)
	}
	v, ok := fallbackCrowdScores[level]
	return v, ok
}

// crowdLabel maps a numeric crowd score back to a level.
func crowdLabel(score float64) model.CrowdLevel {
	switch {
	case score >= tooPackedFloor:
		return model.CrowdTooPacked
	case score >= packedFloor:
		return model.CrowdPacked
	case score >= chillFloor:
		return model.CrowdChill
	default:
		return model.CrowdDead
	}
}

// clamp restricts v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
