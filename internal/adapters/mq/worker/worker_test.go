package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/crowdpulse/internal/adapters/mq/queue"
	worker "github.com/okian/crowdpulse/internal/adapters/mq/worker"
	"github.com/okian/crowdpulse/internal/domain/livemetrics"
	model "github.com/okian/crowdpulse/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

var workerNow = time.Date(2025, 6, 6, 23, 0, 0, 0, time.UTC)

type mockSource struct {
	mu        sync.Mutex
	events    map[string]model.Event
	feedback  map[string][]model.Feedback
	feedErr   error
	lastSince time.Time
}

func newMockSource() *mockSource {
	return &mockSource{
		events:   make(map[string]model.Event),
		feedback: make(map[string][]model.Feedback),
	}
}

func (m *mockSource) GetEvent(_ context.Context, id string) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return model.Event{}, errors.New("not found")
	}
	return ev, nil
}

func (m *mockSource) Feedback(_ context.Context, id string, since time.Time) ([]model.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSince = since
	if m.feedErr != nil {
		return nil, m.feedErr
	}
	return append([]model.Feedback(nil), m.feedback[id]...), nil
}

type recordingSink struct {
	mu    sync.Mutex
	snaps []model.Snapshot
	err   error
	got   chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{got: make(chan struct{}, 16)}
}

func (s *recordingSink) HandleSnapshot(_ context.Context, _ model.Event, snap model.Snapshot) error {
	s.mu.Lock()
	s.snaps = append(s.snaps, snap)
	s.mu.Unlock()
	s.got <- struct{}{}
	return s.err
}

func (s *recordingSink) wait() bool {
	select {
	case <-s.got:
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}

func vibeFeedback(eventID string, ago time.Duration, vibe int) model.Feedback {
	return model.Feedback{EventID: eventID, Timestamp: workerNow.Add(-ago), Vibe: &vibe, Crowd: model.CrowdPacked}
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool wired to a real engine", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		src := newMockSource()
		sink := newRecordingSink()
		engine := livemetrics.New(livemetrics.WithClock(func() time.Time { return workerNow }))

		src.events["ev-1"] = model.Event{ID: "ev-1", Type: model.EventTypePub, EndTime: workerNow.Add(time.Hour)}
		for i := 0; i < 6; i++ {
			src.feedback["ev-1"] = append(src.feedback["ev-1"], vibeFeedback("ev-1", time.Duration(i)*time.Minute, 80))
		}

		pool := worker.NewPool(2, q, src, engine, sink)
		convey.So(pool.Size(), convey.ShouldEqual, 2)
		pool.Start(ctx)

		convey.Convey("When a job is enqueued", func() {
			convey.So(q.Enqueue(ctx, "ev-1"), convey.ShouldBeNil)
			convey.So(sink.wait(), convey.ShouldBeTrue)

			convey.Convey("Then the sink receives the computed snapshot", func() {
				sink.mu.Lock()
				defer sink.mu.Unlock()
				convey.So(len(sink.snaps), convey.ShouldEqual, 1)
				snap := sink.snaps[0]
				convey.So(snap.EventID, convey.ShouldEqual, "ev-1")
				convey.So(snap.Timeline.FeedbackCount, convey.ShouldEqual, 6)
				convey.So(snap.Timeline.ComputedAt.Equal(workerNow), convey.ShouldBeTrue)
			})

			convey.Convey("Then feedback is loaded from the lookback window", func() {
				src.mu.Lock()
				defer src.mu.Unlock()
				convey.So(src.lastSince.Equal(workerNow.Add(-livemetrics.Lookback)), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the event is unknown", func() {
			convey.So(q.Enqueue(ctx, "missing"), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, "ev-1"), convey.ShouldBeNil)

			convey.Convey("Then the worker keeps going", func() {
				convey.So(sink.wait(), convey.ShouldBeTrue)
				sink.mu.Lock()
				defer sink.mu.Unlock()
				convey.So(sink.snaps[0].EventID, convey.ShouldEqual, "ev-1")
			})
		})

		convey.Convey("When shutting down", func() {
			convey.So(q.Enqueue(ctx, "ev-1"), convey.ShouldBeNil)
			err := pool.Shutdown(context.Background())

			convey.Convey("Then pending jobs drain and the queue is closed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
				sink.mu.Lock()
				defer sink.mu.Unlock()
				convey.So(len(sink.snaps), convey.ShouldEqual, 1)
			})
		})
	})
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a single worker whose feedback load fails", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		src := newMockSource()
		src.events["ev-1"] = model.Event{ID: "ev-1", EndTime: workerNow}
		src.feedErr = errors.New("disk gone")
		sink := newRecordingSink()

		w := worker.NewInMemoryWorker(q, src, livemetrics.New(), sink, worker.WithName("w-test"))
		go w.Run(ctx)

		convey.So(q.Enqueue(ctx, "ev-1"), convey.ShouldBeNil)

		convey.Convey("Then nothing reaches the sink", func() {
			convey.So(sink.wait(), convey.ShouldBeFalse)
		})

		convey.Convey("Then shutdown returns promptly", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a SinkFunc", t, func() {
		called := false
		var s worker.Sink = worker.SinkFunc(func(context.Context, model.Event, model.Snapshot) error {
			called = true
			return nil
		})
		convey.So(s.HandleSnapshot(context.Background(), model.Event{}, model.Snapshot{}), convey.ShouldBeNil)
		convey.So(called, convey.ShouldBeTrue)
	})
}
