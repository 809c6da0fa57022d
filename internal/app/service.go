// Package service wires the store, recompute pipeline, metrics engine and
// publishers behind the operations the HTTP API needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	eventqueue "github.com/okian/crowdpulse/internal/adapters/mq/queue"
	workerpool "github.com/okian/crowdpulse/internal/adapters/mq/worker"
	"github.com/okian/crowdpulse/internal/adapters/publish"
	"github.com/okian/crowdpulse/internal/adapters/repository"
	"github.com/okian/crowdpulse/internal/domain/dedupe"
	"github.com/okian/crowdpulse/internal/domain/livemetrics"
	"github.com/okian/crowdpulse/internal/domain/model"
	"github.com/okian/crowdpulse/internal/domain/transition"
	"github.com/okian/crowdpulse/pkg/logger"
	"github.com/okian/crowdpulse/pkg/metrics"
)

// Service implements the API dependencies for live event metrics.
type Service struct {
	mu sync.RWMutex

	store      repository.Store
	deduper    dedupe.Deduper
	queue      *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool
	engine     *livemetrics.Engine
	tracker    *transition.Tracker
	publisher  *publish.Fanout

	workerCount  int
	queueSize    int
	dedupeSize   int
	shardCount   int
	pollInterval time.Duration
	retention    time.Duration
	traceEngine  bool
	clock        func() time.Time

	started  bool
	stopped  bool
	cancel   context.CancelFunc
	stopPoll context.CancelFunc
	pollWG   sync.WaitGroup

	logger logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:  runtime.NumCPU() * 2,
		queueSize:    10_000,
		dedupeSize:   500_000,
		shardCount:   16,
		pollInterval: 30 * time.Second,
		retention:    2 * time.Hour,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.GetOrNop().Named("service")
	}
	if s.publisher == nil {
		s.publisher = publish.NewFanout(
			publish.WithSnapshotSink(publish.NewMemorySnapshotSink()),
			publish.WithNotifier(publish.NewLogNotifier(s.logger)),
		)
	}
	s.engine = livemetrics.New(
		livemetrics.WithClock(s.clock),
		livemetrics.WithLogger(s.logger.Named("livemetrics")),
		livemetrics.WithTracing(s.traceEngine),
	)
	s.tracker = transition.NewTracker()
	return s
}

// Start initializes the pipeline and starts the workers and the poll loop.
// A service is single-use: Stop closes the store and publishers, so Start
// after Stop returns ErrStopped.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.stopped {
		return ErrStopped
	}
	s.logger.Info(ctx, "starting crowdpulse service...")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	if s.store == nil {
		s.store = repository.NewMemoryStore(runCtx,
			repository.WithShardCount(s.shardCount),
			repository.WithRetention(s.retention),
			repository.WithClock(s.clock),
		)
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithClock(s.clock),
	)
	s.workerPool = workerpool.NewPool(s.workerCount, s.queue, s.store, s.engine,
		workerpool.SinkFunc(s.HandleSnapshot))
	s.workerPool.Start(runCtx)

	pollCtx, stopPoll := context.WithCancel(runCtx)
	s.stopPoll = stopPoll
	s.pollWG.Add(1)
	go s.pollLoop(pollCtx)

	s.started = true
	s.logger.Info(ctx, "crowdpulse service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
		logger.Duration("poll_interval", s.pollInterval),
	)
	return nil
}

// Stop drains the recompute queue and releases the store and publishers.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.stopped = true
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping crowdpulse service...")

	s.stopPoll()
	s.pollWG.Wait()

	var errs []error
	if err := s.workerPool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.cancel()

	if err := s.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.logger.Info(ctx, "crowdpulse service stopped")
	return errors.Join(errs...)
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// RegisterEvent validates ev and stores it, assigning an id if missing.
// Registering an existing id replaces its metadata and keeps its feedback.
func (s *Service) RegisterEvent(ctx context.Context, ev model.Event) (model.Event, error) {
	if err := s.ready(); err != nil {
		return model.Event{}, err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if err := ev.Validate(); err != nil {
		return model.Event{}, err
	}
	if err := s.store.PutEvent(ctx, ev); err != nil {
		return model.Event{}, fmt.Errorf("register event %s: %w", ev.ID, err)
	}

	s.logger.Info(ctx, "event registered",
		logger.String("event_id", ev.ID),
		logger.String("type", ev.Type),
		logger.Time("end_time", ev.EndTime))
	return ev, nil
}

// GetEvent returns a registered event.
func (s *Service) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	if err := s.ready(); err != nil {
		return model.Event{}, err
	}
	return s.store.GetEvent(ctx, eventID)
}

// ListEvents returns all registered events ordered by id.
func (s *Service) ListEvents(ctx context.Context) ([]model.Event, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx)
}

// SubmitFeedback validates and stores one report, then schedules a
// recompute. A repeated FeedbackID for the same event is acknowledged but
// not stored again.
func (s *Service) SubmitFeedback(ctx context.Context, fb model.Feedback) (model.FeedbackReceipt, error) {
	if err := s.ready(); err != nil {
		return model.FeedbackReceipt{}, err
	}

	now := s.clock()
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.Timestamp.IsZero() {
		fb.Timestamp = now
	}
	if err := fb.ValidateAt(now); err != nil {
		metrics.RecordFeedbackRejected("invalid")
		return model.FeedbackReceipt{}, err
	}

	ev, err := s.store.GetEvent(ctx, fb.EventID)
	if err != nil {
		metrics.RecordFeedbackRejected("unknown_event")
		return model.FeedbackReceipt{}, err
	}
	if !ev.LiveAt(now, livemetrics.EndedGrace) {
		metrics.RecordFeedbackRejected("event_closed")
		return model.FeedbackReceipt{}, fmt.Errorf("%w: %s", model.ErrEventClosed, ev.ID)
	}

	key := dedupe.Key(fb.EventID, fb.ID)
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordFeedbackDuplicate()
		s.logger.Debug(ctx, "duplicate feedback skipped",
			logger.String("event_id", fb.EventID),
			logger.String("feedback_id", fb.ID))
		return model.FeedbackReceipt{FeedbackID: fb.ID, Duplicate: true}, nil
	}

	if err := s.store.AppendFeedback(ctx, fb); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			metrics.RecordFeedbackDuplicate()
			return model.FeedbackReceipt{FeedbackID: fb.ID, Duplicate: true}, nil
		}
		s.deduper.Unrecord(ctx, key)
		metrics.RecordErrorByComponent("service", "append_feedback")
		return model.FeedbackReceipt{}, fmt.Errorf("store feedback: %w", err)
	}
	metrics.RecordFeedbackReceived()

	if err := s.queue.Enqueue(ctx, fb.EventID); err != nil {
		// The poll loop picks the event up on its next tick.
		s.logger.Warn(ctx, "recompute not scheduled",
			logger.String("event_id", fb.EventID),
			logger.Error(err))
	}
	return model.FeedbackReceipt{FeedbackID: fb.ID}, nil
}

// Timeline computes the event's timeline on demand.
func (s *Service) Timeline(ctx context.Context, eventID string) (model.TimelineResult, error) {
	ev, feedback, err := s.load(ctx, eventID)
	if err != nil {
		return model.TimelineResult{}, err
	}
	return s.engine.Timeline(ctx, feedback, ev.Capacity, ev.EndTime), nil
}

// LineEstimate computes the event's line estimate on demand.
func (s *Service) LineEstimate(ctx context.Context, eventID string) (model.LineEstimate, error) {
	ev, feedback, err := s.load(ctx, eventID)
	if err != nil {
		return model.LineEstimate{}, err
	}
	return s.engine.LineEstimate(ctx, feedback, ev.Type), nil
}

// LatestSnapshot returns the last snapshot the recompute pipeline published.
func (s *Service) LatestSnapshot(ctx context.Context, eventID string) (model.Snapshot, error) {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return model.Snapshot{}, err
	}
	return s.publisher.Snapshot(ctx, eventID)
}

func (s *Service) load(ctx context.Context, eventID string) (model.Event, []model.Feedback, error) {
	if err := s.ready(); err != nil {
		return model.Event{}, nil, err
	}
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return model.Event{}, nil, err
	}
	feedback, err := s.store.Feedback(ctx, eventID, s.clock().Add(-livemetrics.Lookback))
	if err != nil {
		return model.Event{}, nil, err
	}
	return ev, feedback, nil
}

// HandleSnapshot receives every snapshot the workers compute: it updates
// per-event gauges, emits a transition when the stage changed and publishes
// the snapshot. Snapshots computed before the last one handled are dropped.
func (s *Service) HandleSnapshot(ctx context.Context, ev model.Event, snap model.Snapshot) error {
	t, outcome := s.tracker.Observe(ev.ID, snap.Timeline)
	if outcome == transition.Stale {
		s.logger.Debug(ctx, "stale snapshot dropped",
			logger.String("event_id", ev.ID),
			logger.Time("computed_at", snap.Timeline.ComputedAt))
		return nil
	}

	line := -1.0
	if snap.Line.Estimate != nil {
		line = float64(*snap.Line.Estimate)
	}
	metrics.UpdateEventSnapshot(ev.ID, snap.Timeline.Position, snap.Timeline.CompositeNow, line)

	var errs []error
	if outcome == transition.Changed {
		from := string(t.From)
		if t.Initial() {
			from = "NONE"
		}
		metrics.RecordStageTransition(from, string(t.To))
		if err := s.publisher.Notify(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.publisher.PublishSnapshot(ctx, snap); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) pollLoop(ctx context.Context) {
	defer s.pollWG.Done()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PollOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error(ctx, "poll failed", logger.Error(err))
			}
		}
	}
}

// PollOnce schedules a recompute for every live event, forgets events that
// have left their live window and prunes expired feedback. It returns the
// number of recomputes scheduled.
func (s *Service) PollOnce(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}

	now := s.clock()
	scheduled, live := 0, 0
	for _, ev := range events {
		if !ev.LiveAt(now, livemetrics.EndedGrace) {
			if _, tracked := s.tracker.Stage(ev.ID); tracked {
				s.tracker.Forget(ev.ID)
				metrics.ForgetEvent(ev.ID)
			}
			continue
		}
		live++
		if err := s.queue.Enqueue(ctx, ev.ID); err != nil {
			s.logger.Warn(ctx, "poll enqueue failed",
				logger.String("event_id", ev.ID),
				logger.Error(err))
			continue
		}
		scheduled++
	}
	metrics.UpdateRegisteredEvents(len(events))
	metrics.UpdateActiveEvents(live)

	if s.retention > 0 {
		if _, err := s.store.Prune(ctx, now.Add(-s.retention)); err != nil {
			return scheduled, fmt.Errorf("prune feedback: %w", err)
		}
	}
	return scheduled, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":      s.started,
		"workerCount":  s.workerCount,
		"queueSize":    s.queueSize,
		"dedupeSize":   s.dedupeSize,
		"pollInterval": s.pollInterval.String(),
	}
	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["feedbackRecords"] = s.store.Count(ctx)
		stats["dedupeEntries"] = s.deduper.Size()
		stats["trackedEvents"] = s.tracker.Len()
		metrics.UpdateQueueSize(s.queue.Len(ctx))
		metrics.UpdateRepositoryRecordsTotal(s.store.Count(ctx))
	}
	return stats
}
