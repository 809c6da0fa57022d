package worker

import (
	"time"

	"github.com/okian/crowdpulse/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithLookback bounds how old the feedback loaded for a recompute may be.
func WithLookback(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.lookback = d
		}
	}
}
