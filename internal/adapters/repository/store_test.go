package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/crowdpulse/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var storeNow = time.Date(2025, 6, 6, 23, 0, 0, 0, time.UTC)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func testEvent(id string) model.Event {
	return model.Event{
		ID:       id,
		Name:     "Friday session",
		Type:     model.EventTypePub,
		EndTime:  storeNow.Add(2 * time.Hour),
		Capacity: &model.CapacityProfile{DeadMax: 20, ChillMax: 60, PackedMax: 120, PeakMax: 160},
	}
}

func feedbackAt(eventID, id string, ago time.Duration) model.Feedback {
	return model.Feedback{
		ID:          id,
		EventID:     eventID,
		Timestamp:   storeNow.Add(-ago),
		Vibe:        intPtr(70),
		Crowd:       model.CrowdPacked,
		LineMinutes: floatPtr(12.5),
		IsInside:    true,
	}
}

// storeContract runs the behaviour both Store implementations share.
func storeContract(newStore func() Store) {
	ctx := context.Background()

	Convey("When an event is registered", func() {
		s := newStore()
		Reset(func() { _ = s.Close() })

		So(s.PutEvent(ctx, testEvent("ev-1")), ShouldBeNil)

		Convey("Then it can be read back with its capacity profile", func() {
			ev, err := s.GetEvent(ctx, "ev-1")
			So(err, ShouldBeNil)
			So(ev.Name, ShouldEqual, "Friday session")
			So(ev.EndTime.Equal(storeNow.Add(2*time.Hour)), ShouldBeTrue)
			So(ev.Capacity, ShouldNotBeNil)
			So(*ev.Capacity, ShouldResemble, model.CapacityProfile{DeadMax: 20, ChillMax: 60, PackedMax: 120, PeakMax: 160})
		})

		Convey("Then re-registering replaces the event", func() {
			ev := testEvent("ev-1")
			ev.Name = "Renamed"
			ev.Capacity = nil
			So(s.PutEvent(ctx, ev), ShouldBeNil)

			got, err := s.GetEvent(ctx, "ev-1")
			So(err, ShouldBeNil)
			So(got.Name, ShouldEqual, "Renamed")
			So(got.Capacity, ShouldBeNil)
		})

		Convey("Then events are listed by id", func() {
			So(s.PutEvent(ctx, testEvent("ev-0")), ShouldBeNil)
			events, err := s.ListEvents(ctx)
			So(err, ShouldBeNil)
			So(len(events), ShouldEqual, 2)
			So(events[0].ID, ShouldEqual, "ev-0")
			So(events[1].ID, ShouldEqual, "ev-1")
		})

		Convey("Then feedback round-trips including optional fields", func() {
			full := feedbackAt("ev-1", "fb-1", 5*time.Minute)
			bare := model.Feedback{ID: "fb-2", EventID: "ev-1", Timestamp: storeNow.Add(-time.Minute)}
			So(s.AppendFeedback(ctx, full), ShouldBeNil)
			So(s.AppendFeedback(ctx, bare), ShouldBeNil)

			got, err := s.Feedback(ctx, "ev-1", time.Time{})
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 2)
			So(s.Count(ctx), ShouldEqual, 2)

			byID := map[string]model.Feedback{}
			for _, fb := range got {
				byID[fb.ID] = fb
			}
			So(*byID["fb-1"].Vibe, ShouldEqual, 70)
			So(*byID["fb-1"].LineMinutes, ShouldEqual, 12.5)
			So(byID["fb-1"].Crowd, ShouldEqual, model.CrowdPacked)
			So(byID["fb-1"].IsInside, ShouldBeTrue)
			So(byID["fb-1"].Timestamp.Equal(full.Timestamp), ShouldBeTrue)
			So(byID["fb-2"].Vibe, ShouldBeNil)
			So(byID["fb-2"].LineMinutes, ShouldBeNil)
			So(byID["fb-2"].Crowd, ShouldEqual, model.CrowdUnknown)
		})

		Convey("Then Feedback filters by since", func() {
			So(s.AppendFeedback(ctx, feedbackAt("ev-1", "old", 40*time.Minute)), ShouldBeNil)
			So(s.AppendFeedback(ctx, feedbackAt("ev-1", "new", 10*time.Minute)), ShouldBeNil)

			got, err := s.Feedback(ctx, "ev-1", storeNow.Add(-30*time.Minute))
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 1)
			So(got[0].ID, ShouldEqual, "new")
		})

		Convey("Then the returned slice is a copy", func() {
			So(s.AppendFeedback(ctx, feedbackAt("ev-1", "fb-1", time.Minute)), ShouldBeNil)
			got, _ := s.Feedback(ctx, "ev-1", time.Time{})
			got[0].ID = "mutated"

			again, _ := s.Feedback(ctx, "ev-1", time.Time{})
			So(again[0].ID, ShouldEqual, "fb-1")
		})

		Convey("Then Prune drops feedback older than the cutoff", func() {
			So(s.AppendFeedback(ctx, feedbackAt("ev-1", "old", 3*time.Hour)), ShouldBeNil)
			So(s.AppendFeedback(ctx, feedbackAt("ev-1", "new", time.Minute)), ShouldBeNil)

			n, err := s.Prune(ctx, storeNow.Add(-time.Hour))
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			So(s.Count(ctx), ShouldEqual, 1)
		})
	})

	Convey("When the event is unknown", func() {
		s := newStore()
		Reset(func() { _ = s.Close() })

		_, err := s.GetEvent(ctx, "nope")
		So(errors.Is(err, ErrNotFound), ShouldBeTrue)

		err = s.AppendFeedback(ctx, feedbackAt("nope", "fb", time.Minute))
		So(errors.Is(err, ErrNotFound), ShouldBeTrue)

		_, err = s.Feedback(ctx, "nope", time.Time{})
		So(errors.Is(err, ErrNotFound), ShouldBeTrue)
	})

	Convey("When the event id is empty", func() {
		s := newStore()
		Reset(func() { _ = s.Close() })

		err := s.PutEvent(ctx, model.Event{})
		So(errors.Is(err, ErrInvalidEvent), ShouldBeTrue)
	})
}

func TestMemoryStore(t *testing.T) {
	Convey("Given a sharded memory store", t, func() {
		storeContract(func() Store {
			return NewMemoryStore(context.Background(),
				WithShardCount(4),
				WithRetention(0),
				WithClock(func() time.Time { return storeNow }))
		})
	})

	Convey("Given a memory store with retention", t, func() {
		ctx := context.Background()
		s := NewMemoryStore(ctx,
			WithRetention(time.Hour),
			WithClock(func() time.Time { return storeNow }))
		defer s.Close()
		So(s.PutEvent(ctx, testEvent("ev-1")), ShouldBeNil)

		Convey("When feedback past retention exists and a new report arrives", func() {
			So(s.AppendFeedback(ctx, feedbackAt("ev-1", "stale", 90*time.Minute)), ShouldBeNil)
			So(s.AppendFeedback(ctx, feedbackAt("ev-1", "fresh", time.Minute)), ShouldBeNil)

			Convey("Then the stale report has been pruned", func() {
				got, err := s.Feedback(ctx, "ev-1", time.Time{})
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 1)
				So(got[0].ID, ShouldEqual, "fresh")
				So(s.Count(ctx), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a closed memory store", t, func() {
		ctx := context.Background()
		s := NewMemoryStore(ctx)
		So(s.PutEvent(ctx, testEvent("ev-1")), ShouldBeNil)
		So(s.Close(), ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("Then writes fail and reads still work", func() {
			So(errors.Is(s.AppendFeedback(ctx, feedbackAt("ev-1", "fb", 0)), ErrClosed), ShouldBeTrue)
			_, err := s.GetEvent(ctx, "ev-1")
			So(err, ShouldBeNil)
		})
	})

	Convey("Given concurrent writers across events", t, func() {
		ctx := context.Background()
		s := NewMemoryStore(ctx, WithShardCount(8), WithRetention(0))
		defer s.Close()

		events := []string{"a", "b", "c", "d"}
		for _, id := range events {
			So(s.PutEvent(ctx, testEvent(id)), ShouldBeNil)
		}

		var wg sync.WaitGroup
		for _, id := range events {
			for w := 0; w < 4; w++ {
				wg.Add(1)
				go func(eventID string) {
					defer wg.Done()
					for i := 0; i < 50; i++ {
						_ = s.AppendFeedback(ctx, feedbackAt(eventID, "fb", time.Minute))
						_, _ = s.Feedback(ctx, eventID, time.Time{})
					}
				}(id)
			}
		}
		wg.Wait()

		So(s.Count(ctx), ShouldEqual, len(events)*4*50)
		got, err := s.Feedback(ctx, "a", time.Time{})
		So(err, ShouldBeNil)
		So(len(got), ShouldEqual, 200)
	})
}

func TestSQLiteStore(t *testing.T) {
	Convey("Given a SQLite store on a temp file", t, func() {
		dir := t.TempDir()
		n := 0
		storeContract(func() Store {
			n++
			s, err := NewSQLiteStore(context.Background(), filepath.Join(dir, fmt.Sprintf("crowd-%d.db", n)))
			So(err, ShouldBeNil)
			return s
		})
	})

	Convey("Given a SQLite store holding a feedback id", t, func() {
		ctx := context.Background()
		s, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "dup.db"))
		So(err, ShouldBeNil)
		defer s.Close()
		So(s.PutEvent(ctx, testEvent("ev-1")), ShouldBeNil)
		So(s.PutEvent(ctx, testEvent("ev-2")), ShouldBeNil)
		So(s.AppendFeedback(ctx, feedbackAt("ev-1", "fb-1", time.Minute)), ShouldBeNil)

		Convey("When the same id is appended again", func() {
			err := s.AppendFeedback(ctx, feedbackAt("ev-1", "fb-1", 30*time.Second))

			Convey("Then it is reported as a duplicate and stored once", func() {
				So(errors.Is(err, ErrDuplicate), ShouldBeTrue)
				So(s.Count(ctx), ShouldEqual, 1)
			})
		})

		Convey("When the id is reused for another event", func() {
			err := s.AppendFeedback(ctx, feedbackAt("ev-2", "fb-1", time.Minute))

			Convey("Then it is stored", func() {
				So(err, ShouldBeNil)
				So(s.Count(ctx), ShouldEqual, 2)
			})
		})
	})

	Convey("Given a SQLite file reopened after close", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "durable.db")

		s, err := NewSQLiteStore(ctx, path)
		So(err, ShouldBeNil)
		So(s.PutEvent(ctx, testEvent("ev-1")), ShouldBeNil)
		So(s.AppendFeedback(ctx, feedbackAt("ev-1", "fb-1", time.Minute)), ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		reopened, err := NewSQLiteStore(ctx, path)
		So(err, ShouldBeNil)
		defer reopened.Close()

		Convey("Then events and feedback survive", func() {
			_, err := reopened.GetEvent(ctx, "ev-1")
			So(err, ShouldBeNil)
			So(reopened.Count(ctx), ShouldEqual, 1)
		})
	})
}
