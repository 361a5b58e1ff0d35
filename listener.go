package eventsourcing

import "context"

// EventListener consumes a durable, partitioned log of published envelopes
// and drives a side-effecting apply function forward with at-least-once
// semantics: progress is committed only after every message of a batch has
// been applied, so a crash between apply and commit causes reprocessing of
// already-applied messages, never loss of unprocessed ones.
//
// Listen runs until ctx is cancelled; there is no terminal success state.
// Cancellation takes effect between poll cycles, leaving no
// partially-committed batch behind.
type EventListener interface {
	Listen(ctx context.Context) error
}
