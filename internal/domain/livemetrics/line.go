package livemetrics

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/okian/crowdpulse/internal/domain/model"
)

const (
	lineWindow       = 20 * time.Minute
	lineTrimFraction = 0.1
	lineLabelCooked  = "Cooked"
)

type lineBand struct {
	max   int
	label string
}

var (
	pubLineBands = []lineBand{
		{5, "No line"},
		{10, "Short"},
		{20, "Normal"},
		{35, "Long"},
	}
	venueLineBands = []lineBand{
		{5, "Walk-in"},
		{15, "Short"},
		{30, "Normal"},
		{50, "Long"},
	}
)

type weightedLine struct {
	minutes float64
	weight  float64
}

type lineTrace struct {
	reports     int
	kept        int
	totalWeight float64
	median      float64
}

// ComputeLineEstimate returns the weighted median of line reports from the
// last 20 minutes after trimming 10% of the weight mass from each tail,
// rounded to the minute and labelled for the event type.
func ComputeLineEstimate(now time.Time, feedback []model.Feedback, eventType string) model.LineEstimate {
	res, _ := computeLineEstimate(now, feedback, eventType)
	return res
}

func computeLineEstimate(now time.Time, feedback []model.Feedback, eventType string) (model.LineEstimate, lineTrace) {
	var tr lineTrace
	start := now.Add(-lineWindow)

	items := make([]weightedLine, 0, len(feedback))
	for i := range feedback {
		f := &feedback[i]
		if f.LineMinutes == nil || *f.LineMinutes < 0 || f.Timestamp.Before(start) {
			continue
		}
		w := LineWeight(minutesAgo(now, f.Timestamp), f.IsInside)
		items = append(items, weightedLine{minutes: *f.LineMinutes, weight: w})
		tr.totalWeight += w
	}
	tr.reports = len(items)
	if len(items) == 0 {
		return model.LineEstimate{Label: model.LineLabelUnknown, ComputedAt: now}, tr
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].minutes < items[j].minutes })

	kept := trimWeightTails(items, tr.totalWeight, lineTrimFraction)
	tr.kept = len(kept)
	tr.median = weightedMedian(kept)

	est := int(math.Round(tr.median))
	return model.LineEstimate{
		Estimate:   &est,
		Label:      lineLabel(est, eventType),
		Count:      len(items),
		ComputedAt: now,
	}, tr
}

// trimWeightTails drops records from both ends of a sorted slice while the
// dropped weight stays within fraction of the total. If nothing survives,
// the smallest record is kept.
func trimWeightTails(items []weightedLine, total, fraction float64) []weightedLine {
	cut := total * fraction

	lo, acc := 0, 0.0
	for lo < len(items) && acc+items[lo].weight <= cut {
		acc += items[lo].weight
		lo++
	}
	hi := len(items)
	acc = 0
	for hi > lo && acc+items[hi-1].weight <= cut {
		acc += items[hi-1].weight
		hi--
	}
	if lo >= hi {
		return items[:1]
	}
	return items[lo:hi]
}

// weightedMedian returns the first value whose cumulative weight reaches half
// the total.
func weightedMedian(items []weightedLine) float64 {
	var total float64
	for _, it := range items {
		total += it.weight
	}
	half := total / 2
	var acc float64
	for _, it := range items {
		acc += it.weight
		if acc >= half {
			return it.minutes
		}
	}
	return items[len(items)-1].minutes
}

func lineLabel(minutes int, eventType string) string {
	bands := venueLineBands
	if strings.EqualFold(strings.TrimSpace(eventType), model.EventTypePub) {
		bands = pubLineBands
	}
	for _, b := range bands {
		if minutes <= b.max {
			return b.label
		}
	}
	return lineLabelCooked
}
