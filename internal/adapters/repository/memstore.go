package repository

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/crowdpulse/internal/domain/model"
	"github.com/okian/crowdpulse/pkg/metrics"
)

// MemoryStore is a sharded, in-memory Store. Each event lives in exactly one
// shard chosen by hashing its id, so writers for different events rarely
// contend.
type MemoryStore struct {
	shards     []*shard
	shardCount int
	retention  time.Duration
	now        func() time.Time

	records atomic.Int64
	closed  atomic.Bool

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
}

var _ Store = (*MemoryStore)(nil)

type shard struct {
	mu     sync.RWMutex
	events map[string]*eventRecord
}

type eventRecord struct {
	event    model.Event
	feedback []model.Feedback
}

// NewMemoryStore constructs a sharded store and starts its metrics updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		shardCount:            defaultShardCount,
		retention:             defaultRetention,
		now:                   time.Now,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{events: make(map[string]*eventRecord)}
	}

	s.stopChan = make(chan struct{})
	metrics.UpdateRepositoryShardCount(s.shardCount)
	s.startMetricsUpdater(ctx)

	return s
}

func (s *MemoryStore) shardFor(eventID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(eventID))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// PutEvent implements Store.PutEvent. Feedback already stored for the event is kept.
func (s *MemoryStore) PutEvent(_ context.Context, ev model.Event) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if ev.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidEvent)
	}
	ev = cloneEvent(ev)

	sh := s.shardFor(ev.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if rec, ok := sh.events[ev.ID]; ok {
		rec.event = ev
		return nil
	}
	sh.events[ev.ID] = &eventRecord{event: ev}
	return nil
}

// GetEvent implements Store.GetEvent.
func (s *MemoryStore) GetEvent(_ context.Context, eventID string) (model.Event, error) {
	sh := s.shardFor(eventID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	rec, ok := sh.events[eventID]
	if !ok {
		return model.Event{}, fmt.Errorf("%w: %s", ErrNotFound, eventID)
	}
	return cloneEvent(rec.event), nil
}

// ListEvents implements Store.ListEvents.
func (s *MemoryStore) ListEvents(_ context.Context) ([]model.Event, error) {
	var out []model.Event
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, rec := range sh.events {
			out = append(out, cloneEvent(rec.event))
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AppendFeedback implements Store.AppendFeedback. When retention is set, the
// event's expired feedback is dropped in the same critical section.
func (s *MemoryStore) AppendFeedback(_ context.Context, fb model.Feedback) error {
	if s.closed.Load() {
		return ErrClosed
	}
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	sh := s.shardFor(fb.EventID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.events[fb.EventID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, fb.EventID)
	}
	rec.feedback = append(rec.feedback, fb)
	s.records.Add(1)

	if s.retention > 0 {
		if dropped := rec.pruneBefore(s.now().Add(-s.retention)); dropped > 0 {
			s.records.Add(-int64(dropped))
			metrics.RecordRepositoryPruned(dropped)
		}
	}
	return nil
}

// Feedback implements Store.Feedback.
func (s *MemoryStore) Feedback(_ context.Context, eventID string, since time.Time) ([]model.Feedback, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	sh := s.shardFor(eventID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	rec, ok := sh.events[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, eventID)
	}
	out := make([]model.Feedback, 0, len(rec.feedback))
	for _, fb := range rec.feedback {
		if since.IsZero() || !fb.Timestamp.Before(since) {
			out = append(out, fb)
		}
	}
	return out, nil
}

// Prune implements Store.Prune.
func (s *MemoryStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, rec := range sh.events {
			total += rec.pruneBefore(cutoff)
		}
		sh.mu.Unlock()
	}
	if total > 0 {
		s.records.Add(-int64(total))
		metrics.RecordRepositoryPruned(total)
	}
	return total, nil
}

// Count implements Store.Count.
func (s *MemoryStore) Count(_ context.Context) int {
	return int(s.records.Load())
}

// Close stops the metrics updater. Reads keep working after Close.
func (s *MemoryStore) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.stopChan)
	}
	s.wg.Wait()
	return nil
}

// pruneBefore filters in place and returns how many items were removed.
func (r *eventRecord) pruneBefore(cutoff time.Time) int {
	kept := r.feedback[:0]
	for _, fb := range r.feedback {
		if !fb.Timestamp.Before(cutoff) {
			kept = append(kept, fb)
		}
	}
	dropped := len(r.feedback) - len(kept)
	clear(r.feedback[len(kept):])
	r.feedback = kept
	return dropped
}

func cloneEvent(ev model.Event) model.Event {
	if ev.Capacity != nil {
		c := *ev.Capacity
		ev.Capacity = &c
	}
	return ev
}

// startMetricsUpdater starts a background goroutine that updates repository metrics.
func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *MemoryStore) updateMetrics() {
	for i, sh := range s.shards {
		sh.mu.RLock()
		n := 0
		for _, rec := range sh.events {
			n += len(rec.feedback)
		}
		sh.mu.RUnlock()
		metrics.UpdateRepositoryRecordsPerShard(fmt.Sprintf("shard_%d", i), n)
	}
	metrics.UpdateRepositoryRecordsTotal(s.Count(context.Background()))
}
