package eventsourcing

import "context"

// EventStore defines the contract for an append-only event store. An
// EventStore persists envelopes per aggregate stream in sequential order,
// allowing full reconstruction of aggregate state at any point in time.
//
// Implementations must guarantee:
//   - Read and ReadFrom return envelopes in strictly increasing version
//     order; within one stream versions are unique with no gaps from 0.
//   - Persist enforces optimistic concurrency: writing to an occupied stream
//     position fails with *VersionConflictError, and of any set of writers
//     racing for the same position exactly one succeeds.
//   - The conflict signal is distinguishable from transport failures, which
//     are reported as *TransientError.
//
// Absence is not an error on reads: an aggregate with no events yields an
// empty slice, meaning "not yet created". No ordering is guaranteed across
// different aggregate streams.
type EventStore[E Event] interface {
	// Read returns the full history for the aggregate from version 0.
	Read(ctx context.Context, aggregateID string) ([]EventEnvelope[E], error)

	// ReadFrom returns the history starting at version, inclusive. It is a
	// suffix of Read for the same aggregate, used to resume from a snapshot.
	ReadFrom(ctx context.Context, aggregateID string, version int64) ([]EventEnvelope[E], error)

	// Persist appends one envelope at the stream position implied by its
	// Version. The retry loop after a conflict belongs to the caller, not
	// to the store.
	Persist(ctx context.Context, envelope EventEnvelope[E]) error
}
