package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/okian/crowdpulse/internal/domain/model"
)

const (
	defaultSnapshotKeyPrefix = "crowdpulse:snapshot:"
	defaultSnapshotTTL       = time.Hour
)

// putIfNewer stores ARGV[2] under KEYS[1] and its compute time ARGV[1] (unix
// millis) under KEYS[2], unless KEYS[2] already holds a later time. ARGV[3]
// is the TTL in milliseconds, 0 for none.
var putIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
	redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
	redis.call('SET', KEYS[2], ARGV[1])
end
return 1
`)

// RedisSnapshotSink writes each snapshot as JSON under prefix+eventID with a
// TTL. A snapshot computed before the stored one is dropped.
type RedisSnapshotSink struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var (
	_ SnapshotSink   = (*RedisSnapshotSink)(nil)
	_ SnapshotReader = (*RedisSnapshotSink)(nil)
)

// RedisOption configures a RedisSnapshotSink.
type RedisOption func(*RedisSnapshotSink)

// WithKeyPrefix sets the key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisSnapshotSink) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL sets the key expiry. Zero keeps keys forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisSnapshotSink) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// NewRedisSnapshotSink wraps an existing client.
func NewRedisSnapshotSink(client *redis.Client, opts ...RedisOption) *RedisSnapshotSink {
	s := &RedisSnapshotSink{
		client: client,
		prefix: defaultSnapshotKeyPrefix,
		ttl:    defaultSnapshotTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements SnapshotSink.
func (s *RedisSnapshotSink) Name() string { return "redis" }

// Key returns the key a snapshot for eventID is stored under.
func (s *RedisSnapshotSink) Key(eventID string) string {
	return s.prefix + eventID
}

func (s *RedisSnapshotSink) stampKey(eventID string) string {
	return s.Key(eventID) + ":at"
}

// PutSnapshot implements SnapshotSink.
func (s *RedisSnapshotSink) PutSnapshot(ctx context.Context, snap model.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.EventID, err)
	}
	keys := []string{s.Key(snap.EventID), s.stampKey(snap.EventID)}
	err = putIfNewer.Run(ctx, s.client, keys,
		snap.Timeline.ComputedAt.UnixMilli(), raw, s.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis set %s: %w", snap.EventID, err)
	}
	return nil
}

// GetSnapshot implements SnapshotReader.
func (s *RedisSnapshotSink) GetSnapshot(ctx context.Context, eventID string) (model.Snapshot, error) {
	raw, err := s.client.Get(ctx, s.Key(eventID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Snapshot{}, fmt.Errorf("%w: %s", ErrNoSnapshot, eventID)
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("redis get %s: %w", eventID, err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", eventID, err)
	}
	return snap, nil
}

// Ping checks connectivity.
func (s *RedisSnapshotSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisSnapshotSink) Close() error {
	return s.client.Close()
}
