package feedbacksim

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Curve phases as fractions of the span.
const (
	rampEnd  = 0.4
	peakEnd  = 0.7
	rampLow  = 0.2
	drainLow = 0.25
)

// Signal ranges.
const (
	vibeBase       = 25.0
	vibeRange      = 65.0
	vibeJitter     = 8.0
	lineMax        = 30.0
	lineJitter     = 3.0
	insideShare    = 0.6
	skipSignalRate = 0.15
)

// Intensity returns the scripted crowd level in [0,1] at fraction f of the
// span: a linear ramp, a plateau, then a linear drain.
func Intensity(f float64) float64 {
	f = math.Max(0, math.Min(1, f))
	switch {
	case f < rampEnd:
		return rampLow + (1-rampLow)*f/rampEnd
	case f < peakEnd:
		return 1
	default:
		return 1 - (1-drainLow)*(f-peakEnd)/(1-peakEnd)
	}
}

// crowdFor buckets an intensity into a crowd level name.
func crowdFor(intensity float64) string {
	switch {
	case intensity < 0.3:
		return "DEAD"
	case intensity < 0.6:
		return "CHILL"
	case intensity < 0.9:
		return "PACKED"
	default:
		return "TOO_PACKED"
	}
}

// Generate builds the reports for one run. Timestamps follow the curve's
// density between now-span and now; a DuplicateRate share of reports is
// appended again unchanged.
func Generate(cfg *Config, now time.Time) []Report {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	start := now.Add(-cfg.Span)

	reports := make([]Report, 0, cfg.Reports)
	for len(reports) < cfg.Reports {
		// Rejection sampling against the curve gives peak-heavy timestamps.
		f := rng.Float64()
		if rng.Float64() > Intensity(f) {
			continue
		}
		reports = append(reports, generateReport(rng, start.Add(time.Duration(f*float64(cfg.Span))), Intensity(f)))
	}

	dups := int(math.Round(float64(len(reports)) * cfg.DuplicateRate))
	for i := 0; i < dups; i++ {
		reports = append(reports, reports[rng.IntN(cfg.Reports)])
	}
	return reports
}

func generateReport(rng *rand.Rand, ts time.Time, intensity float64) Report {
	r := Report{
		FeedbackID: uuid.NewString(),
		TS:         ts.UTC().Format(time.RFC3339),
		IsInside:   rng.Float64() < insideShare,
	}
	if rng.Float64() >= skipSignalRate {
		v := int(math.Round(clamp(vibeBase+vibeRange*intensity+vibeJitter*rng.NormFloat64(), 0, 100)))
		r.Vibe = &v
	}
	if rng.Float64() >= skipSignalRate {
		r.Crowd = crowdFor(intensity)
	}
	if !r.IsInside || rng.Float64() < skipSignalRate {
		line := math.Round(clamp(lineMax*intensity+lineJitter*rng.NormFloat64(), 0, math.MaxFloat64)*10) / 10
		r.LineMinutes = &line
	}
	return r
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
