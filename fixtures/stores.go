package fixtures

import (
	"context"
	"sync"

	es "github.com/replaykit/eventsourcing"
)

// StoreSpy is a configurable in-memory EventStore for testing.
// It tracks calls and allows injecting custom behavior or failures.
type StoreSpy[E es.Event] struct {
	mu sync.Mutex

	// Function overrides for custom behavior
	ReadFn     func(ctx context.Context, aggregateID string) ([]es.EventEnvelope[E], error)
	ReadFromFn func(ctx context.Context, aggregateID string, version int64) ([]es.EventEnvelope[E], error)
	PersistFn  func(ctx context.Context, envelope es.EventEnvelope[E]) error

	// Call tracking
	ReadCalls     int
	ReadFromCalls int
	PersistCalls  int

	// Captured arguments from last call
	LastReadID      string
	LastPersisted   es.EventEnvelope[E]
	PersistedByCall []es.EventEnvelope[E]

	// Pre-configured data
	streams map[string][]es.EventEnvelope[E]

	// Error injection
	readErr     error
	persistErr  error
	conflictsAt int
}

var _ es.EventStore[TestEvent] = (*StoreSpy[TestEvent])(nil)

// NewStoreSpy creates a StoreSpy with default in-memory behavior.
func NewStoreSpy[E es.Event]() *StoreSpy[E] {
	return &StoreSpy[E]{streams: make(map[string][]es.EventEnvelope[E])}
}

// WithEnvelopes pre-populates a stream.
func (s *StoreSpy[E]) WithEnvelopes(envelopes ...es.EventEnvelope[E]) *StoreSpy[E] {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, envelope := range envelopes {
		s.streams[envelope.AggregateID] = append(s.streams[envelope.AggregateID], envelope)
	}
	return s
}

// FailOnRead configures the spy to return err on read operations.
func (s *StoreSpy[E]) FailOnRead(err error) *StoreSpy[E] {
	s.readErr = err
	return s
}

// FailOnPersist configures the spy to return err on persist operations.
func (s *StoreSpy[E]) FailOnPersist(err error) *StoreSpy[E] {
	s.persistErr = err
	return s
}

// ConflictFirstN makes the first n persist calls lose the version race.
// Later calls succeed, simulating a writer that wins after reloading.
func (s *StoreSpy[E]) ConflictFirstN(n int) *StoreSpy[E] {
	s.conflictsAt = n
	return s
}

func (s *StoreSpy[E]) Read(ctx context.Context, aggregateID string) ([]es.EventEnvelope[E], error) {
	s.mu.Lock()
	s.ReadCalls++
	s.LastReadID = aggregateID
	fn := s.ReadFn
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, aggregateID)
	}
	if s.readErr != nil {
		return nil, s.readErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stream := s.streams[aggregateID]
	out := make([]es.EventEnvelope[E], len(stream))
	copy(out, stream)
	return out, nil
}

func (s *StoreSpy[E]) ReadFrom(ctx context.Context, aggregateID string, version int64) ([]es.EventEnvelope[E], error) {
	s.mu.Lock()
	s.ReadFromCalls++
	s.LastReadID = aggregateID
	fn := s.ReadFromFn
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, aggregateID, version)
	}
	if s.readErr != nil {
		return nil, s.readErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []es.EventEnvelope[E]
	for _, envelope := range s.streams[aggregateID] {
		if envelope.Version >= version {
			out = append(out, envelope)
		}
	}
	return out, nil
}

func (s *StoreSpy[E]) Persist(ctx context.Context, envelope es.EventEnvelope[E]) error {
	s.mu.Lock()
	s.PersistCalls++
	s.LastPersisted = envelope
	s.PersistedByCall = append(s.PersistedByCall, envelope)
	fn := s.PersistFn
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, envelope)
	}
	if s.persistErr != nil {
		return s.persistErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflictsAt > 0 {
		s.conflictsAt--
		return &es.VersionConflictError{AggregateID: envelope.AggregateID, Version: envelope.Version}
	}
	stream := s.streams[envelope.AggregateID]
	if envelope.Version != int64(len(stream)) {
		return &es.VersionConflictError{AggregateID: envelope.AggregateID, Version: envelope.Version}
	}
	s.streams[envelope.AggregateID] = append(stream, envelope)
	return nil
}

// Stream returns a copy of the stored stream for aggregateID.
func (s *StoreSpy[E]) Stream(aggregateID string) []es.EventEnvelope[E] {
	s.mu.Lock()
	defer s.mu.Unlock()
	stream := s.streams[aggregateID]
	out := make([]es.EventEnvelope[E], len(stream))
	copy(out, stream)
	return out
}

// SnapshotSpy is a configurable in-memory SnapshotStore for testing.
type SnapshotSpy[T any] struct {
	mu sync.Mutex

	ReadFn    func(ctx context.Context, aggregateID string) (es.SnapshotEnvelope[T], error)
	PersistFn func(ctx context.Context, envelope es.SnapshotEnvelope[T]) error

	ReadCalls    int
	PersistCalls int

	LastPersisted es.SnapshotEnvelope[T]

	snapshots map[string]es.SnapshotEnvelope[T]

	readErr    error
	persistErr error
}

var _ es.SnapshotStore[TestAggregate] = (*SnapshotSpy[TestAggregate])(nil)

// NewSnapshotSpy creates a SnapshotSpy with default in-memory behavior.
func NewSnapshotSpy[T any]() *SnapshotSpy[T] {
	return &SnapshotSpy[T]{snapshots: make(map[string]es.SnapshotEnvelope[T])}
}

// WithSnapshot pre-populates the latest snapshot for its aggregate.
func (s *SnapshotSpy[T]) WithSnapshot(envelope es.SnapshotEnvelope[T]) *SnapshotSpy[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[envelope.AggregateID] = envelope
	return s
}

// FailOnRead configures the spy to return err on Read.
func (s *SnapshotSpy[T]) FailOnRead(err error) *SnapshotSpy[T] {
	s.readErr = err
	return s
}

// FailOnPersist configures the spy to return err on Persist.
func (s *SnapshotSpy[T]) FailOnPersist(err error) *SnapshotSpy[T] {
	s.persistErr = err
	return s
}

func (s *SnapshotSpy[T]) Read(ctx context.Context, aggregateID string) (es.SnapshotEnvelope[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReadCalls++
	if s.ReadFn != nil {
		return s.ReadFn(ctx, aggregateID)
	}
	if s.readErr != nil {
		return es.SnapshotEnvelope[T]{}, s.readErr
	}
	envelope, ok := s.snapshots[aggregateID]
	if !ok {
		return es.SnapshotEnvelope[T]{}, es.ErrSnapshotNotFound
	}
	return envelope, nil
}

func (s *SnapshotSpy[T]) Persist(ctx context.Context, envelope es.SnapshotEnvelope[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PersistCalls++
	s.LastPersisted = envelope
	if s.PersistFn != nil {
		return s.PersistFn(ctx, envelope)
	}
	if s.persistErr != nil {
		return s.persistErr
	}
	s.snapshots[envelope.AggregateID] = envelope
	return nil
}
