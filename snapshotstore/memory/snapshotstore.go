// Package memory provides an in-memory SnapshotStore: latest snapshot per
// aggregate, nothing survives a restart. Snapshots are advisory, so that is
// exactly the durability the contract requires of a test backend.
package memory

import (
	"context"
	"sync"

	"github.com/replaykit/eventsourcing"
)

type Store[T any] struct {
	mu        sync.RWMutex
	snapshots map[string]eventsourcing.SnapshotEnvelope[T]
}

var _ eventsourcing.SnapshotStore[struct{}] = (*Store[struct{}])(nil)

func NewStore[T any]() *Store[T] {
	return &Store[T]{
		snapshots: make(map[string]eventsourcing.SnapshotEnvelope[T]),
	}
}

func (s *Store[T]) Read(ctx context.Context, aggregateID string) (eventsourcing.SnapshotEnvelope[T], error) {
	if err := ctx.Err(); err != nil {
		return eventsourcing.SnapshotEnvelope[T]{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[aggregateID]
	if !ok {
		return eventsourcing.SnapshotEnvelope[T]{}, eventsourcing.ErrSnapshotNotFound
	}
	return snapshot, nil
}

func (s *Store[T]) Persist(ctx context.Context, envelope eventsourcing.SnapshotEnvelope[T]) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[envelope.AggregateID] = envelope
	return nil
}
