package publish

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/crowdpulse/internal/domain/model"
)

// MemorySnapshotSink keeps the latest snapshot per event in process.
type MemorySnapshotSink struct {
	mu    sync.RWMutex
	snaps map[string]model.Snapshot
}

var (
	_ SnapshotSink   = (*MemorySnapshotSink)(nil)
	_ SnapshotReader = (*MemorySnapshotSink)(nil)
)

// NewMemorySnapshotSink returns an empty in-process sink.
func NewMemorySnapshotSink() *MemorySnapshotSink {
	return &MemorySnapshotSink{snaps: make(map[string]model.Snapshot)}
}

// Name implements SnapshotSink.
func (m *MemorySnapshotSink) Name() string { return "memory" }

// PutSnapshot implements SnapshotSink. A snapshot computed before the stored
// one is dropped.
func (m *MemorySnapshotSink) PutSnapshot(_ context.Context, snap model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.snaps[snap.EventID]; ok && snap.Timeline.ComputedAt.Before(cur.Timeline.ComputedAt) {
		return nil
	}
	m.snaps[snap.EventID] = snap
	return nil
}

// GetSnapshot implements SnapshotReader.
func (m *MemorySnapshotSink) GetSnapshot(_ context.Context, eventID string) (model.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[eventID]
	if !ok {
		return model.Snapshot{}, fmt.Errorf("%w: %s", ErrNoSnapshot, eventID)
	}
	return snap, nil
}
