// Package memory provides an in-memory EventStore for tests and
// single-process demos. It honors the full contract, including the
// optimistic-concurrency check, but nothing survives a restart.
package memory

import (
	"context"
	"sync"

	"github.com/replaykit/eventsourcing"
)

type Store[E eventsourcing.Event] struct {
	mu     sync.RWMutex
	bus    chan eventsourcing.EventEnvelope[E]
	events map[string][]eventsourcing.EventEnvelope[E]
	closed bool
}

var _ eventsourcing.EventStore[eventsourcing.Event] = (*Store[eventsourcing.Event])(nil)

// NewStore creates an empty store. Persisted envelopes are also offered to
// the Events channel (buffered to buffer entries, dropped when full) so a
// publisher can tail the store in-process.
func NewStore[E eventsourcing.Event](buffer int) *Store[E] {
	return &Store[E]{
		events: make(map[string][]eventsourcing.EventEnvelope[E]),
		bus:    make(chan eventsourcing.EventEnvelope[E], buffer),
	}
}

func (s *Store[E]) Read(ctx context.Context, aggregateID string) ([]eventsourcing.EventEnvelope[E], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.events[aggregateID]
	out := make([]eventsourcing.EventEnvelope[E], len(stream))
	copy(out, stream)
	return out, nil
}

func (s *Store[E]) ReadFrom(ctx context.Context, aggregateID string, version int64) ([]eventsourcing.EventEnvelope[E], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.events[aggregateID]
	var out []eventsourcing.EventEnvelope[E]
	for _, envelope := range stream {
		if envelope.Version >= version {
			out = append(out, envelope)
		}
	}
	return out, nil
}

func (s *Store[E]) Persist(ctx context.Context, envelope eventsourcing.EventEnvelope[E]) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The stream is gapless from 0, so the next free position equals the
	// stream length. Anything else is a lost race.
	stream := s.events[envelope.AggregateID]
	if envelope.Version != int64(len(stream)) {
		return &eventsourcing.VersionConflictError{
			AggregateID: envelope.AggregateID,
			Version:     envelope.Version,
		}
	}

	s.events[envelope.AggregateID] = append(stream, envelope)

	if !s.closed {
		select {
		case s.bus <- envelope:
		default:
			// drop when nobody is draining
		}
	}
	return nil
}

// Events exposes persisted envelopes in append order for in-process tailing.
func (s *Store[E]) Events() <-chan eventsourcing.EventEnvelope[E] {
	return s.bus
}

// Close drops all stored events and closes the Events channel.
func (s *Store[E]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.events = make(map[string][]eventsourcing.EventEnvelope[E])
	close(s.bus)
	return nil
}
