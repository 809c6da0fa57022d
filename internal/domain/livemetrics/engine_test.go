package livemetrics_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/okian/crowdpulse/internal/domain/livemetrics"
	"github.com/okian/crowdpulse/internal/domain/model"
	"github.com/okian/crowdpulse/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEngine(t *testing.T) {
	Convey("Given an engine with a fixed clock", t, func() {
		now := time.Date(2026, 6, 12, 23, 30, 0, 0, time.UTC)
		calls := 0
		clock := func() time.Time {
			calls++
			return now
		}
		v := 80
		lm := 12.0
		feedback := []model.Feedback{
			{Timestamp: now.Add(-2 * time.Minute), Vibe: &v, Crowd: model.CrowdPacked, LineMinutes: &lm},
		}
		profile, err := model.NewCapacityProfile(20, 50, 100, 150)
		So(err, ShouldBeNil)
		ev := &model.Event{ID: "ev-1", Type: model.EventTypePub, EndTime: now.Add(time.Hour), Capacity: profile}
		ctx := context.Background()

		Convey("When computing a timeline", func() {
			e := livemetrics.New(livemetrics.WithClock(clock))
			got := e.Timeline(ctx, feedback, profile, ev.EndTime)

			Convey("Then it matches the pure function at the captured time", func() {
				So(got, ShouldResemble, livemetrics.ComputeTimeline(now, feedback, profile, ev.EndTime))
				So(got.Stage, ShouldEqual, model.StagePeak)
			})
		})

		Convey("When computing a snapshot", func() {
			e := livemetrics.New(livemetrics.WithClock(clock))
			snap := e.Snapshot(ctx, ev, feedback)

			Convey("Then both metrics share a single captured now", func() {
				So(calls, ShouldEqual, 1)
				So(snap.EventID, ShouldEqual, "ev-1")
				So(snap.Timeline.ComputedAt, ShouldEqual, now)
				So(snap.Line.ComputedAt, ShouldEqual, now)
				So(*snap.Line.Estimate, ShouldEqual, 12)
				So(snap.Line.Label, ShouldEqual, "Normal")
			})
		})

		Convey("When tracing at debug level", func() {
			var buf bytes.Buffer
			e := livemetrics.New(
				livemetrics.WithClock(clock),
				livemetrics.WithLogger(logger.NewWithWriter(&buf, slog.LevelDebug)),
			)
			e.Timeline(ctx, feedback, profile, ev.EndTime)
			e.LineEstimate(ctx, feedback, ev.Type)

			Convey("Then the intermediate quantities are logged", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, "timeline computed")
				So(out, ShouldContainSubstring, "trend=")
				So(out, ShouldContainSubstring, "compositeNow=")
				So(out, ShouldContainSubstring, "line estimate computed")
				So(out, ShouldContainSubstring, "kept=1")
			})
		})

		Convey("When tracing is disabled or the logger is above debug", func() {
			var off, info bytes.Buffer
			livemetrics.New(
				livemetrics.WithClock(clock),
				livemetrics.WithTracing(false),
				livemetrics.WithLogger(logger.NewWithWriter(&off, slog.LevelDebug)),
			).Timeline(ctx, feedback, profile, ev.EndTime)
			livemetrics.New(
				livemetrics.WithClock(clock),
				livemetrics.WithLogger(logger.NewWithWriter(&info, slog.LevelInfo)),
			).Timeline(ctx, feedback, profile, ev.EndTime)

			Convey("Then nothing is written", func() {
				So(off.Len(), ShouldEqual, 0)
				So(info.Len(), ShouldEqual, 0)
			})
		})

		Convey("When two engines evaluate at the same instant", func() {
			a := livemetrics.New(livemetrics.WithClock(clock)).LineEstimate(ctx, feedback, ev.Type)
			b := livemetrics.New(livemetrics.WithClock(clock)).LineEstimate(ctx, feedback, ev.Type)
			So(a, ShouldResemble, b)
		})
	})
}
