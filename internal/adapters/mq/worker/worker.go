// Package worker runs recompute jobs: load an event's recent feedback, run
// the metrics engine, and hand the snapshot on.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/crowdpulse/internal/adapters/mq/queue"
	"github.com/okian/crowdpulse/internal/domain/livemetrics"
	"github.com/okian/crowdpulse/internal/domain/model"
	"github.com/okian/crowdpulse/pkg/logger"
	"github.com/okian/crowdpulse/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Source loads what a recompute reads.
type Source interface {
	GetEvent(ctx context.Context, eventID string) (model.Event, error)
	Feedback(ctx context.Context, eventID string, since time.Time) ([]model.Feedback, error)
}

// Computer turns feedback into a snapshot.
type Computer interface {
	Now() time.Time
	Snapshot(ctx context.Context, ev *model.Event, feedback []model.Feedback) model.Snapshot
}

// Sink receives every computed snapshot.
type Sink interface {
	HandleSnapshot(ctx context.Context, ev model.Event, snap model.Snapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev model.Event, snap model.Snapshot) error

// HandleSnapshot implements Sink.
func (f SinkFunc) HandleSnapshot(ctx context.Context, ev model.Event, snap model.Snapshot) error {
	return f(ctx, ev, snap)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes recompute jobs.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	source   Source
	computer Computer
	sink     Sink
	name     string
	lookback time.Duration
	active   *atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, source Source, computer Computer, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		source:   source,
		computer: computer,
		sink:     sink,
		name:     "worker",
		lookback: livemetrics.Lookback,
		active:   &atomic.Int64{},
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.GetOrNop().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, job); err != nil {
				w.logger.Error(ctx, "recompute failed",
					logger.String("event_id", job.EventID),
					logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process recomputes one event.
func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) error {
	metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
	start := time.Now()
	defer func() {
		metrics.UpdateWorkerActiveCount(int(w.active.Add(-1)))
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	ev, err := w.source.GetEvent(ctx, job.EventID)
	if err != nil {
		w.fail("load_event")
		return fmt.Errorf("load event %s: %w", job.EventID, err)
	}

	since := w.computer.Now().Add(-w.lookback)
	feedback, err := w.source.Feedback(ctx, job.EventID, since)
	if err != nil {
		w.fail("load_feedback")
		return fmt.Errorf("load feedback for %s: %w", job.EventID, err)
	}

	computeStart := time.Now()
	snap := w.computer.Snapshot(ctx, &ev, feedback)
	metrics.RecordRecomputeLatency(float64(time.Since(computeStart).Microseconds()) / 1000)

	if err := w.sink.HandleSnapshot(ctx, ev, snap); err != nil {
		w.fail("sink")
		return fmt.Errorf("handle snapshot for %s: %w", job.EventID, err)
	}
	return nil
}

func (w *InMemoryWorker) fail(kind string) {
	metrics.RecordRecomputeError()
	metrics.RecordWorkerError()
	metrics.RecordErrorByComponent("worker", kind)
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	active  atomic.Int64
	logger  logger.Logger
}

// NewPool creates a worker pool. workerCount < 1 selects a CPU-based default.
func NewPool(workerCount int, q Queue, source Source, computer Computer, sink Sink, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.GetOrNop().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(q, source, computer, sink, wopts...)
		w.active = &pool.active
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue, lets workers drain it and waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	for _, w := range p.workers {
		w.shutdownOnce.Do(func() { close(w.shutdown) })
	}
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
