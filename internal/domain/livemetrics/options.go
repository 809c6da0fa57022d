package livemetrics

import (
	"time"

	"github.com/okian/crowdpulse/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithClock replaces time.Now as the source of the per-call timestamp.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger sets the logger used for tracing.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracing toggles debug tracing of intermediate quantities.
func WithTracing(enabled bool) Option {
	return func(e *Engine) {
		e.tracing = enabled
	}
}
