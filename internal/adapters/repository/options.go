package repository

import "time"

const (
	defaultShardCount            = 16
	defaultRetention             = 2 * time.Hour
	defaultMetricsUpdateInterval = 5 * time.Second
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithShardCount sets the number of lock shards events are spread over.
func WithShardCount(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithRetention bounds how long feedback is kept, relative to the store clock.
// Zero disables pruning on append.
func WithRetention(d time.Duration) Option {
	return func(s *MemoryStore) {
		if d >= 0 {
			s.retention = d
		}
	}
}

// WithClock overrides the clock used for retention.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}
