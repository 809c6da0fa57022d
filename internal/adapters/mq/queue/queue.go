// Package queue carries recompute jobs from the feedback path and the poll
// loop to the worker pool.
//
// Jobs are coalesced per event: while a job for an event is pending, further
// enqueues for it are absorbed, since one recompute reads all feedback.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/crowdpulse/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Job asks for one event's metrics to be recomputed.
type Job struct {
	EventID    string
	EnqueuedAt time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue schedules a recompute. It never blocks: a full queue returns
	// ErrQueueFull and a closed one ErrQueueClosed.
	Enqueue(ctx context.Context, eventID string) error

	// Dequeue returns a channel of jobs. The channel is closed when the queue
	// is closed and drained, or when ctx is done.
	Dequeue(ctx context.Context) <-chan Job

	// Len returns the current number of pending jobs.
	Len(ctx context.Context) int

	// Close stops accepting jobs. Pending jobs are still delivered.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]struct{}
	closed  bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}

	q.jobs = make(chan Job, q.capacity)
	q.pending = make(map[string]struct{}, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Enqueue implements Queue.Enqueue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, eventID string) error {
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrQueueClosed
	}
	if _, ok := q.pending[eventID]; ok {
		return nil
	}

	select {
	case q.jobs <- Job{EventID: eventID, EnqueuedAt: q.now()}:
		q.pending[eventID] = struct{}{}
		metrics.RecordQueueEnqueue()
		q.updateSizeMetrics()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrQueueFull
	}
}

// Dequeue implements Queue.Dequeue. Each call starts a forwarder, so every
// worker should call it once.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Job {
	out := make(chan Job)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case job, ok := <-q.jobs:
				if !ok {
					return
				}
				q.release(job.EventID)
				metrics.RecordQueueDequeue()
				metrics.RecordQueueProcessingLatency(float64(q.now().Sub(job.EnqueuedAt).Microseconds()) / 1000)
				select {
				case out <- job:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (q *InMemoryQueue) release(eventID string) {
	q.mu.Lock()
	delete(q.pending, eventID)
	q.updateSizeMetrics()
	q.mu.Unlock()
}

// updateSizeMetrics must be called with mu held.
func (q *InMemoryQueue) updateSizeMetrics() {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Len implements Queue.Len.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.jobs)
}

// Close implements Queue.Close.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
