// Package redis keeps the latest snapshot per aggregate in Redis. One key
// per aggregate, overwritten on every persist; an optional TTL lets old
// snapshots age out, which is safe because snapshots are advisory.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/replaykit/eventsourcing"
)

type Store[T any] struct {
	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

var _ eventsourcing.SnapshotStore[struct{}] = (*Store[struct{}])(nil)

// Option customizes a Store.
type Option func(*options)

type options struct {
	keyPrefix string
	ttl       time.Duration
}

// WithKeyPrefix namespaces snapshot keys, e.g. per aggregate family.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) { o.keyPrefix = prefix }
}

// WithTTL expires snapshots after d. Expired snapshots cost a full replay,
// never correctness.
func WithTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

// NewStore wraps a Redis client. The caller owns the client's lifecycle.
func NewStore[T any](client redis.Cmdable, opts ...Option) *Store[T] {
	o := &options{keyPrefix: "snapshot"}
	for _, opt := range opts {
		opt(o)
	}
	return &Store[T]{client: client, keyPrefix: o.keyPrefix, ttl: o.ttl}
}

func (s *Store[T]) key(aggregateID string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, aggregateID)
}

func (s *Store[T]) Read(ctx context.Context, aggregateID string) (eventsourcing.SnapshotEnvelope[T], error) {
	raw, err := s.client.Get(ctx, s.key(aggregateID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return eventsourcing.SnapshotEnvelope[T]{}, eventsourcing.ErrSnapshotNotFound
		}
		return eventsourcing.SnapshotEnvelope[T]{}, &eventsourcing.TransientError{Err: err}
	}

	return eventsourcing.DeserializeSnapshot[T](raw)
}

func (s *Store[T]) Persist(ctx context.Context, envelope eventsourcing.SnapshotEnvelope[T]) error {
	raw, err := eventsourcing.SerializeSnapshot(envelope)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.key(envelope.AggregateID), raw, s.ttl).Err(); err != nil {
		return &eventsourcing.TransientError{Err: err}
	}
	return nil
}
