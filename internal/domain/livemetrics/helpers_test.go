package livemetrics

import (
	"time"

	"github.com/okian/crowdpulse/internal/domain/model"
)

var testNow = time.Date(2026, 6, 12, 22, 0, 0, 0, time.UTC)

type fbOpt func(*model.Feedback)

func vibe(v int) fbOpt { return func(f *model.Feedback) { f.Vibe = &v } }

func crowd(c model.CrowdLevel) fbOpt { return func(f *model.Feedback) { f.Crowd = c } }

func line(m float64) fbOpt { return func(f *model.Feedback) { f.LineMinutes = &m } }

func inside() fbOpt { return func(f *model.Feedback) { f.IsInside = true } }

// fb builds a record stamped ago before testNow.
func fb(ago time.Duration, opts ...fbOpt) model.Feedback {
	f := model.Feedback{Timestamp: testNow.Add(-ago)}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

func repeat(n int, f model.Feedback) []model.Feedback {
	out := make([]model.Feedback, n)
	for i := range out {
		out[i] = f
	}
	return out
}

func testProfile() *model.CapacityProfile {
	return &model.CapacityProfile{DeadMax: 20, ChillMax: 50, PackedMax: 100, PeakMax: 150}
}
