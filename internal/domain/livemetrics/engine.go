package livemetrics

import (
	"context"
	"time"

	"github.com/okian/crowdpulse/internal/domain/model"
	"github.com/okian/crowdpulse/pkg/logger"
)

// Lookback is the age of the oldest feedback any computation reads. Callers
// may load only feedback newer than now-Lookback.
const Lookback = timelineWindow

// EndedGrace is how long after its end time an event keeps being evaluated.
const EndedGrace = endedGrace

// Engine evaluates the metrics functions against a single captured "now"
// per call. It holds configuration only and is safe for concurrent use.
type Engine struct {
	clock   func() time.Time
	logger  logger.Logger
	tracing bool
}

// New creates an Engine using the wall clock and a discarding logger unless
// overridden.
func New(opts ...Option) *Engine {
	e := &Engine{
		clock:   time.Now,
		logger:  logger.Nop(),
		tracing: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.clock()
}

// Timeline computes the staged timeline at the engine's current time.
func (e *Engine) Timeline(ctx context.Context, feedback []model.Feedback, profile *model.CapacityProfile, end time.Time) model.TimelineResult {
	return e.timelineAt(ctx, e.clock(), feedback, profile, end)
}

// LineEstimate computes the line estimate at the engine's current time.
func (e *Engine) LineEstimate(ctx context.Context, feedback []model.Feedback, eventType string) model.LineEstimate {
	return e.lineAt(ctx, e.clock(), feedback, eventType)
}

// Snapshot computes both metrics for ev against one captured timestamp.
func (e *Engine) Snapshot(ctx context.Context, ev *model.Event, feedback []model.Feedback) model.Snapshot {
	now := e.clock()
	return model.Snapshot{
		EventID:  ev.ID,
		Timeline: e.timelineAt(ctx, now, feedback, ev.Capacity, ev.EndTime),
		Line:     e.lineAt(ctx, now, feedback, ev.Type),
	}
}

func (e *Engine) timelineAt(ctx context.Context, now time.Time, feedback []model.Feedback, profile *model.CapacityProfile, end time.Time) model.TimelineResult {
	res, tr := computeTimeline(now, feedback, profile, end)
	if e.tracing {
		fields := []logger.Field{
			logger.Time("now", now),
			logger.Int("input", len(feedback)),
			logger.Int("recent30m", tr.recent30),
			logger.Int("recent15m", tr.recent15),
			logger.Int("prev15m", tr.prev15),
			logger.Bool("profileUsed", tr.profileUsed),
			logger.Float64("crowdNumeric", res.CrowdNumeric),
			logger.Float64("compositeNow", res.CompositeNow),
			logger.Float64("compositeRecent", tr.compositeRecent),
			logger.Float64("compositePrev", tr.compositePrev),
			logger.Float64("trend", tr.trend),
			logger.Int("recentLines", tr.movement.lines),
			logger.Float64("avgLine", tr.movement.avgLine),
			logger.String("movement", string(res.Movement)),
			logger.String("rule", tr.rule),
			logger.String("stage", string(res.Stage)),
			logger.Float64("position", res.Position),
		}
		if res.VibeNow != nil {
			fields = append(fields, logger.Float64("vibeNow", *res.VibeNow))
		}
		e.logger.Debug(ctx, "timeline computed", fields...)
	}
	return res
}

func (e *Engine) lineAt(ctx context.Context, now time.Time, feedback []model.Feedback, eventType string) model.LineEstimate {
	res, tr := computeLineEstimate(now, feedback, eventType)
	if e.tracing {
		e.logger.Debug(ctx, "line estimate computed",
			logger.Time("now", now),
			logger.String("eventType", eventType),
			logger.Int("reports", tr.reports),
			logger.Int("kept", tr.kept),
			logger.Float64("totalWeight", tr.totalWeight),
			logger.Float64("median", tr.median),
			logger.String("label", res.Label),
		)
	}
	return res
}
