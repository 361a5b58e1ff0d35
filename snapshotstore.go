package eventsourcing

import "context"

// SnapshotStore persists point-in-time materializations of aggregate state
// to bound replay cost. Snapshots are advisory and never authoritative: a
// store may retain history internally, but the contract only guarantees
// retrieval of the latest snapshot, and a lost write must never affect
// correctness.
type SnapshotStore[T any] interface {
	// Read returns the latest snapshot for the aggregate, or
	// ErrSnapshotNotFound when none exists; callers then fall back to full
	// replay through the EventStore.
	Read(ctx context.Context, aggregateID string) (SnapshotEnvelope[T], error)

	// Persist stores or replaces the latest snapshot for the aggregate.
	Persist(ctx context.Context, envelope SnapshotEnvelope[T]) error
}
