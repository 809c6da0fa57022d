package publish

import (
	"context"
	"errors"

	"github.com/okian/crowdpulse/internal/domain/model"
	"github.com/okian/crowdpulse/internal/domain/transition"
	"github.com/okian/crowdpulse/pkg/logger"
	"github.com/okian/crowdpulse/pkg/metrics"
)

// Fanout hands every snapshot to all snapshot sinks and every transition to
// all notifiers. A failing target does not stop delivery to the others.
type Fanout struct {
	sinks     []SnapshotSink
	notifiers []Notifier
	logger    logger.Logger
}

// FanoutOption configures a Fanout.
type FanoutOption func(*Fanout)

// WithSnapshotSink adds a snapshot target.
func WithSnapshotSink(s SnapshotSink) FanoutOption {
	return func(f *Fanout) {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
}

// WithNotifier adds a transition target.
func WithNotifier(n Notifier) FanoutOption {
	return func(f *Fanout) {
		if n != nil {
			f.notifiers = append(f.notifiers, n)
		}
	}
}

// WithFanoutLogger sets the logger used for delivery failures.
func WithFanoutLogger(l logger.Logger) FanoutOption {
	return func(f *Fanout) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFanout builds a fanout. With no options it delivers nowhere.
func NewFanout(opts ...FanoutOption) *Fanout {
	f := &Fanout{logger: logger.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// PublishSnapshot delivers snap to every sink and joins their errors.
func (f *Fanout) PublishSnapshot(ctx context.Context, snap model.Snapshot) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.PutSnapshot(ctx, snap); err != nil {
			metrics.RecordPublishError(s.Name())
			f.logger.Warn(ctx, "snapshot publish failed",
				logger.String("sink", s.Name()),
				logger.String("event_id", snap.EventID),
				logger.Error(err))
			errs = append(errs, err)
			continue
		}
		metrics.RecordSnapshotPublished(s.Name())
	}
	return errors.Join(errs...)
}

// Notify delivers t to every notifier and joins their errors.
func (f *Fanout) Notify(ctx context.Context, t transition.Transition) error {
	var errs []error
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, t); err != nil {
			metrics.RecordPublishError(n.Name())
			f.logger.Warn(ctx, "transition notify failed",
				logger.String("notifier", n.Name()),
				logger.String("event_id", t.EventID),
				logger.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Snapshot reads from the first sink that can be read back.
func (f *Fanout) Snapshot(ctx context.Context, eventID string) (model.Snapshot, error) {
	for _, s := range f.sinks {
		if r, ok := s.(SnapshotReader); ok {
			return r.GetSnapshot(ctx, eventID)
		}
	}
	return model.Snapshot{}, ErrNoSnapshot
}

// Close closes every notifier and any sink that can be closed.
func (f *Fanout) Close() error {
	var errs []error
	for _, n := range f.notifiers {
		errs = append(errs, n.Close())
	}
	for _, s := range f.sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
