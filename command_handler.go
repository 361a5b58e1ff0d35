package eventsourcing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
)

// CommandHandler handles commands of a specific type: load current aggregate
// state, validate the command against it, derive new events and persist them
// under the expected-version check. Handlers must be idempotent with respect
// to externally observable side effects beyond the event log itself, because
// a lost optimistic-concurrency race reruns the whole cycle.
type CommandHandler[C Command] func(ctx context.Context, command C) error

// Decider determines which events should occur given the current state and a
// command. A nil state means the aggregate does not exist yet. Returning an
// empty slice means the command had no effect; returning an error rejects the
// command as a business-rule violation (never retried).
type Decider[T any, C Command, E Event] func(state *T, command C) ([]E, error)

// defaultRetryAttempts bounds the reload-reapply-persist cycle after a lost
// optimistic-concurrency race. The contention window is a single
// compare-and-swap, so retries are immediate with no backoff delay.
const defaultRetryAttempts = 3

type handlerOptions[T any] struct {
	// Snapshots, when set, bootstraps the load phase from the latest
	// snapshot and receives advisory write-backs.
	Snapshots SnapshotStore[T]

	// SnapshotEvery persists a new snapshot once the stream has grown this
	// many versions past the last one. Zero disables write-back.
	SnapshotEvery int64

	// NewRetry builds a fresh retry policy per command. The policy bounds
	// retries after version conflicts and transient store failures; it must
	// be finite.
	NewRetry func() backoff.BackOff

	// Logger receives advisory failures (snapshot write-backs) that are
	// deliberately not surfaced to the caller.
	Logger *slog.Logger
}

// CommandHandlerOption customizes NewCommandHandler.
type CommandHandlerOption[T any] func(cfg *handlerOptions[T])

// WithSnapshots bootstraps aggregate loading from store and, combined with
// WithSnapshotEvery, writes snapshots back after successful persists.
func WithSnapshots[T any](store SnapshotStore[T]) CommandHandlerOption[T] {
	return func(cfg *handlerOptions[T]) { cfg.Snapshots = store }
}

// WithSnapshotEvery enables advisory snapshot write-back every n versions.
func WithSnapshotEvery[T any](n int64) CommandHandlerOption[T] {
	return func(cfg *handlerOptions[T]) { cfg.SnapshotEvery = n }
}

// WithRetryStrategy replaces the default conflict retry policy. The factory
// is invoked once per command so policies carry no state across commands.
func WithRetryStrategy[T any](factory func() backoff.BackOff) CommandHandlerOption[T] {
	return func(cfg *handlerOptions[T]) { cfg.NewRetry = factory }
}

// WithLogger routes advisory failures to logger instead of slog.Default.
func WithLogger[T any](logger *slog.Logger) CommandHandlerOption[T] {
	return func(cfg *handlerOptions[T]) { cfg.Logger = logger }
}

// loaded is the outcome of the load phase of one command cycle.
type loaded[T any] struct {
	state *T
	// version of the last applied event, -1 when the aggregate is unborn.
	version int64
	// snapshotVersion the state was bootstrapped from, -1 for full replay.
	snapshotVersion int64
}

// NewCommandHandler returns the canonical command handler for one aggregate
// family. Each invocation runs the cycle:
//
//  1. Load: latest snapshot if configured, then the event history from the
//     snapshot's version (or from the beginning) via the EventStore.
//  2. Fold the history into the current state.
//  3. Decide which events the command produces, given that state.
//  4. Persist each event at its expected next version.
//
// A *VersionConflictError or *TransientError restarts the cycle under a
// bounded retry policy; exhaustion surfaces ErrContentionExceeded. Business
// rule violations and serialization failures are permanent and returned
// as-is.
func NewCommandHandler[T any, E Event, C Command](
	store EventStore[E],
	aggregate Aggregate[T, E],
	decide Decider[T, C, E],
	opts ...CommandHandlerOption[T],
) CommandHandler[C] {
	cfg := &handlerOptions[T]{
		NewRetry: func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, defaultRetryAttempts)
		},
		Logger: slog.Default(),
	}
	for _, o := range opts {
		o(cfg)
	}

	return func(ctx context.Context, command C) error {
		id := command.AggregateID()

		attempt := func() error {
			current, err := loadState(ctx, store, aggregate, cfg, id)
			if err != nil {
				return err
			}

			events, err := decide(current.state, command)
			if err != nil {
				return backoff.Permanent(fmt.Errorf("handle %T for aggregate %q: %w", command, id, err))
			}
			if len(events) == 0 {
				return nil
			}

			next := current.version
			for _, event := range events {
				next++
				if err := store.Persist(ctx, NewEventEnvelope(id, aggregate.Type, event, next)); err != nil {
					if Retryable(err) {
						return err
					}
					return backoff.Permanent(fmt.Errorf("handle %T for aggregate %q: persist failed: %w", command, id, err))
				}
			}

			maybeSnapshot(ctx, cfg, aggregate, id, current, events, next)
			return nil
		}

		err := backoff.Retry(attempt, backoff.WithContext(cfg.NewRetry(), ctx))
		if err != nil {
			var conflict *VersionConflictError
			if errors.As(err, &conflict) {
				return fmt.Errorf("handle %T for aggregate %q: %w: %v", command, id, ErrContentionExceeded, conflict)
			}
			return err
		}
		return nil
	}
}

// loadState reconstructs the current aggregate state, bootstrapping from the
// latest snapshot when one is configured and available.
func loadState[T any, E Event](
	ctx context.Context,
	store EventStore[E],
	aggregate Aggregate[T, E],
	cfg *handlerOptions[T],
	id string,
) (loaded[T], error) {
	current := loaded[T]{version: -1, snapshotVersion: -1}

	if cfg.Snapshots != nil {
		snapshot, err := cfg.Snapshots.Read(ctx, id)
		switch {
		case err == nil:
			data := snapshot.Data
			current.state = &data
			current.version = snapshot.Version
			current.snapshotVersion = snapshot.Version
			if IsInitialized() {
				SnapshotsLoaded.Add(ctx, 1)
			}
		case errors.Is(err, ErrSnapshotNotFound):
			// full replay
		default:
			// Snapshots are advisory: an unavailable snapshot store only
			// costs a full replay.
			cfg.Logger.WarnContext(ctx, "snapshot read failed, replaying full history",
				"aggregate_id", id, "error", err)
		}
	}

	var envelopes []EventEnvelope[E]
	var err error
	if current.version >= 0 {
		envelopes, err = store.ReadFrom(ctx, id, current.version+1)
	} else {
		envelopes, err = store.Read(ctx, id)
	}
	if err != nil {
		if Retryable(err) {
			return loaded[T]{}, fmt.Errorf("load aggregate %q: %w", id, err)
		}
		return loaded[T]{}, backoff.Permanent(fmt.Errorf("load aggregate %q: %w", id, err))
	}

	current.state, err = aggregate.FoldEnvelopes(current.state, envelopes)
	if err != nil {
		return loaded[T]{}, backoff.Permanent(fmt.Errorf("replay aggregate %q: %w", id, err))
	}
	if len(envelopes) > 0 {
		current.version = envelopes[len(envelopes)-1].Version
	}
	return current, nil
}

// maybeSnapshot folds the freshly persisted events into the loaded state and
// writes an advisory snapshot when the stream has grown SnapshotEvery
// versions past the last snapshot. Failures are logged, never surfaced: the
// event log alone is authoritative.
func maybeSnapshot[T any, E Event](
	ctx context.Context,
	cfg *handlerOptions[T],
	aggregate Aggregate[T, E],
	id string,
	current loaded[T],
	events []E,
	persistedVersion int64,
) {
	if cfg.Snapshots == nil || cfg.SnapshotEvery <= 0 {
		return
	}
	if persistedVersion-current.snapshotVersion < cfg.SnapshotEvery {
		return
	}

	state := current.state
	for _, event := range events {
		next, err := aggregate.Apply(state, event)
		if err != nil {
			return
		}
		state = next
	}
	if state == nil {
		return
	}

	envelope := NewSnapshotEnvelope(id, aggregate.Type, *state, persistedVersion)
	if err := cfg.Snapshots.Persist(ctx, envelope); err != nil {
		cfg.Logger.WarnContext(ctx, "snapshot persist failed",
			"aggregate_id", id, "version", persistedVersion, "error", err)
		return
	}
	if IsInitialized() {
		SnapshotsSaved.Add(ctx, 1)
	}
}
