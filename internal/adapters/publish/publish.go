// Package publish delivers computed snapshots and stage transitions to
// downstream consumers: a snapshot cache for presentation and a
// notification stream.
package publish

import (
	"context"
	"errors"

	"github.com/okian/crowdpulse/internal/domain/model"
	"github.com/okian/crowdpulse/internal/domain/transition"
)

// ErrNoSnapshot is returned by readers when nothing was published for an event.
var ErrNoSnapshot = errors.New("no snapshot published")

// SnapshotSink stores the latest snapshot per event.
type SnapshotSink interface {
	Name() string
	PutSnapshot(ctx context.Context, snap model.Snapshot) error
}

// SnapshotReader reads back what a SnapshotSink stored.
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, eventID string) (model.Snapshot, error)
}

// Notifier receives stage transitions.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, t transition.Transition) error
	Close() error
}
