package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/crowdpulse/internal/adapters/http/api"
	"github.com/okian/crowdpulse/internal/adapters/publish"
	"github.com/okian/crowdpulse/internal/adapters/repository"
	"github.com/okian/crowdpulse/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var apiNow = time.Date(2025, 6, 6, 23, 0, 0, 0, time.UTC)

type mockDependencies struct {
	events    map[string]model.Event
	submitted []model.Feedback
	seen      map[string]bool
	closed    map[string]bool
	snapshots map[string]model.Snapshot
	failList  error
}

func newMockDependencies() *mockDependencies {
	return &mockDependencies{
		events:    make(map[string]model.Event),
		seen:      make(map[string]bool),
		closed:    make(map[string]bool),
		snapshots: make(map[string]model.Snapshot),
	}
}

func (m *mockDependencies) RegisterEvent(_ context.Context, ev model.Event) (model.Event, error) {
	if ev.ID == "" {
		ev.ID = "generated"
	}
	if err := ev.Validate(); err != nil {
		return model.Event{}, err
	}
	m.events[ev.ID] = ev
	return ev, nil
}

func (m *mockDependencies) GetEvent(_ context.Context, id string) (model.Event, error) {
	ev, ok := m.events[id]
	if !ok {
		return model.Event{}, fmt.Errorf("%w: %s", repository.ErrNotFound, id)
	}
	return ev, nil
}

func (m *mockDependencies) ListEvents(context.Context) ([]model.Event, error) {
	if m.failList != nil {
		return nil, m.failList
	}
	out := make([]model.Event, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev)
	}
	return out, nil
}

func (m *mockDependencies) SubmitFeedback(ctx context.Context, fb model.Feedback) (model.FeedbackReceipt, error) {
	if fb.ID == "" {
		fb.ID = "fb-generated"
	}
	if fb.Timestamp.IsZero() {
		fb.Timestamp = apiNow
	}
	if err := fb.Validate(); err != nil {
		return model.FeedbackReceipt{}, err
	}
	if _, err := m.GetEvent(ctx, fb.EventID); err != nil {
		return model.FeedbackReceipt{}, err
	}
	if m.closed[fb.EventID] {
		return model.FeedbackReceipt{}, fmt.Errorf("%w: %s", model.ErrEventClosed, fb.EventID)
	}
	if m.seen[fb.ID] {
		return model.FeedbackReceipt{FeedbackID: fb.ID, Duplicate: true}, nil
	}
	m.seen[fb.ID] = true
	m.submitted = append(m.submitted, fb)
	return model.FeedbackReceipt{FeedbackID: fb.ID}, nil
}

func (m *mockDependencies) Timeline(ctx context.Context, id string) (model.TimelineResult, error) {
	if _, err := m.GetEvent(ctx, id); err != nil {
		return model.TimelineResult{}, err
	}
	return model.TimelineResult{Stage: model.StagePeak, Position: 0.5, Movement: model.MovementStaying, FeedbackCount: 4, ComputedAt: apiNow}, nil
}

func (m *mockDependencies) LineEstimate(ctx context.Context, id string) (model.LineEstimate, error) {
	if _, err := m.GetEvent(ctx, id); err != nil {
		return model.LineEstimate{}, err
	}
	return model.LineEstimate{Label: model.LineLabelUnknown, ComputedAt: apiNow}, nil
}

func (m *mockDependencies) LatestSnapshot(ctx context.Context, id string) (model.Snapshot, error) {
	if _, err := m.GetEvent(ctx, id); err != nil {
		return model.Snapshot{}, err
	}
	snap, ok := m.snapshots[id]
	if !ok {
		return model.Snapshot{}, fmt.Errorf("%w: %s", publish.ErrNoSnapshot, id)
	}
	return snap, nil
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps *mockDependencies) *http.ServeMux {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true, "workerCount": 4}})
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(newMockDependencies())

		Convey("Then the health endpoint serves Prometheus metrics", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/plain")
		})

		Convey("Then the stats endpoint returns the provider's stats", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["started"], ShouldEqual, true)
		})

		Convey("Then unknown paths are not found", func() {
			w := do(mux, http.MethodGet, "/unknown", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then the wrong method is rejected", func() {
			w := do(mux, http.MethodDelete, "/events", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestEventsHandler(t *testing.T) {
	Convey("Given an API server", t, func() {
		deps := newMockDependencies()
		mux := newMux(deps)

		Convey("When a valid event is posted", func() {
			w := do(mux, http.MethodPost, "/events",
				`{"id":"ev-1","name":"Quiz","type":"pub","end_time":"2025-06-07T01:00:00Z","capacity":{"dead_max":10,"chill_max":40,"packed_max":80,"peak_max":120}}`)

			Convey("Then it is created", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				body := decode(w)
				So(body["id"], ShouldEqual, "ev-1")
				So(body["end_time"], ShouldEqual, "2025-06-07T01:00:00Z")
				So(deps.events["ev-1"].Capacity.PeakMax, ShouldEqual, 120)
			})

			Convey("Then it can be fetched and listed", func() {
				w := do(mux, http.MethodGet, "/events/ev-1", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["name"], ShouldEqual, "Quiz")

				w = do(mux, http.MethodGet, "/events", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var list []map[string]interface{}
				So(json.Unmarshal(w.Body.Bytes(), &list), ShouldBeNil)
				So(len(list), ShouldEqual, 1)
			})
		})

		Convey("When the end time is not RFC3339", func() {
			w := do(mux, http.MethodPost, "/events", `{"name":"Quiz","type":"pub","end_time":"tonight"}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["message"], ShouldContainSubstring, "end_time")
			})
		})

		Convey("When the capacity profile is not increasing", func() {
			w := do(mux, http.MethodPost, "/events",
				`{"name":"Quiz","type":"pub","end_time":"2025-06-07T01:00:00Z","capacity":{"dead_max":50,"chill_max":40,"packed_max":80,"peak_max":120}}`)

			Convey("Then the domain validation error maps to 400", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "bad_request")
			})
		})

		Convey("When the body has unknown fields", func() {
			w := do(mux, http.MethodPost, "/events", `{"name":"Quiz","venue":"x"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When an unknown event is fetched", func() {
			w := do(mux, http.MethodGet, "/events/missing", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decode(w)["code"], ShouldEqual, "not_found")
		})

		Convey("When listing fails upstream", func() {
			deps.failList = fmt.Errorf("disk gone")
			w := do(mux, http.MethodGet, "/events", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestFeedbackHandler(t *testing.T) {
	Convey("Given an API server with a live and a closed event", t, func() {
		deps := newMockDependencies()
		deps.events["live"] = model.Event{ID: "live", Type: model.EventTypePub, EndTime: apiNow.Add(time.Hour)}
		deps.events["done"] = model.Event{ID: "done", Type: model.EventTypePub, EndTime: apiNow.Add(-time.Hour)}
		deps.closed["done"] = true
		mux := newMux(deps)

		Convey("When a report is submitted", func() {
			w := do(mux, http.MethodPost, "/events/live/feedback",
				`{"feedback_id":"fb-1","ts":"2025-06-06T22:55:00Z","vibe":72,"crowd":"packed","line_minutes":8.5,"is_inside":true}`)

			Convey("Then it is accepted and decoded", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(decode(w)["status"], ShouldEqual, "accepted")
				So(len(deps.submitted), ShouldEqual, 1)
				fb := deps.submitted[0]
				So(fb.EventID, ShouldEqual, "live")
				So(*fb.Vibe, ShouldEqual, 72)
				So(fb.Crowd, ShouldEqual, model.CrowdPacked)
				So(*fb.LineMinutes, ShouldEqual, 8.5)
				So(fb.IsInside, ShouldBeTrue)
				So(fb.Timestamp.Equal(apiNow.Add(-5*time.Minute)), ShouldBeTrue)
			})

			Convey("Then resubmitting the same id is a duplicate", func() {
				w := do(mux, http.MethodPost, "/events/live/feedback", `{"feedback_id":"fb-1","vibe":10}`)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["duplicate"], ShouldEqual, true)
			})
		})

		Convey("When a report only carries a crowd level", func() {
			w := do(mux, http.MethodPost, "/events/live/feedback", `{"crowd":"DEAD"}`)

			Convey("Then the missing signals stay unset", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(deps.submitted[0].Vibe, ShouldBeNil)
				So(deps.submitted[0].LineMinutes, ShouldBeNil)
				So(decode(w)["feedback_id"], ShouldEqual, "fb-generated")
			})
		})

		Convey("When a report is invalid", func() {
			cases := []struct {
				name string
				body string
			}{
				{"empty body", ``},
				{"bad json", `{"vibe":`},
				{"vibe out of range", `{"vibe":101}`},
				{"unknown crowd", `{"crowd":"HEAVING"}`},
				{"negative line", `{"line_minutes":-1}`},
				{"bad timestamp", `{"ts":"yesterday"}`},
			}
			for _, tc := range cases {
				w := do(mux, http.MethodPost, "/events/live/feedback", tc.body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
			So(len(deps.submitted), ShouldEqual, 0)
		})

		Convey("When the event is unknown", func() {
			w := do(mux, http.MethodPost, "/events/nope/feedback", `{"vibe":50}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the event is closed", func() {
			w := do(mux, http.MethodPost, "/events/done/feedback", `{"vibe":50}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(decode(w)["code"], ShouldEqual, "event_closed")
		})
	})
}

func TestMetricsHandler(t *testing.T) {
	Convey("Given an API server with one event", t, func() {
		deps := newMockDependencies()
		deps.events["ev-1"] = model.Event{ID: "ev-1", EndTime: apiNow.Add(time.Hour)}
		mux := newMux(deps)

		Convey("Then the timeline is served as JSON", func() {
			w := do(mux, http.MethodGet, "/events/ev-1/timeline", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(body["stage"], ShouldEqual, "PEAK")
			So(body["position"], ShouldEqual, 0.5)
			So(body["feedback_count"], ShouldEqual, 4.0)
		})

		Convey("Then the line estimate has a null estimate without reports", func() {
			w := do(mux, http.MethodGet, "/events/ev-1/line", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(body["label"], ShouldEqual, "UNKNOWN")
			est, present := body["estimate"]
			So(present, ShouldBeTrue)
			So(est, ShouldBeNil)
		})

		Convey("Then a missing snapshot is not found", func() {
			w := do(mux, http.MethodGet, "/events/ev-1/snapshot", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then a published snapshot is returned", func() {
			deps.snapshots["ev-1"] = model.Snapshot{EventID: "ev-1", Timeline: model.TimelineResult{Stage: model.StageDying}}
			w := do(mux, http.MethodGet, "/events/ev-1/snapshot", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["event_id"], ShouldEqual, "ev-1")
		})

		Convey("Then reads for an unknown event are not found", func() {
			So(do(mux, http.MethodGet, "/events/x/timeline", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodGet, "/events/x/line", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}
