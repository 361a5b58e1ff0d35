// Package postgres persists event streams in a PostgreSQL table. The
// optimistic-concurrency check rides on the primary key (aggregate_id,
// version): a lost race surfaces as a unique violation, which the store maps
// to *eventsourcing.VersionConflictError.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/replaykit/eventsourcing"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

type Store[E eventsourcing.Event] struct {
	db *sql.DB
}

var _ eventsourcing.EventStore[eventsourcing.Event] = (*Store[eventsourcing.Event])(nil)

// NewStore wraps an open database handle and ensures the events table
// exists. The caller owns the handle and its lifecycle.
func NewStore[E eventsourcing.Event](ctx context.Context, db *sql.DB) (*Store[E], error) {
	if err := migrate(ctx, db); err != nil {
		return nil, fmt.Errorf("migrate event store: %w", err)
	}
	return &Store[E]{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			aggregate_id   TEXT        NOT NULL,
			version        BIGINT      NOT NULL,
			id             UUID        NOT NULL,
			aggregate_type TEXT        NOT NULL,
			event_type     TEXT        NOT NULL,
			data           JSONB       NOT NULL,
			occurred_at    TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (aggregate_id, version)
		);
	`)
	return err
}

func (s *Store[E]) Read(ctx context.Context, aggregateID string) ([]eventsourcing.EventEnvelope[E], error) {
	return s.query(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, data, version, occurred_at
		FROM events
		WHERE aggregate_id = $1
		ORDER BY version`, aggregateID)
}

func (s *Store[E]) ReadFrom(ctx context.Context, aggregateID string, version int64) ([]eventsourcing.EventEnvelope[E], error) {
	return s.query(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, data, version, occurred_at
		FROM events
		WHERE aggregate_id = $1 AND version >= $2
		ORDER BY version`, aggregateID, version)
}

func (s *Store[E]) query(ctx context.Context, stmt string, args ...any) ([]eventsourcing.EventEnvelope[E], error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, &eventsourcing.TransientError{Err: err}
	}
	defer rows.Close()

	var out []eventsourcing.EventEnvelope[E]
	for rows.Next() {
		var envelope eventsourcing.EventEnvelope[E]
		var raw []byte
		if err := rows.Scan(
			&envelope.ID,
			&envelope.AggregateID,
			&envelope.AggregateType,
			&envelope.EventType,
			&raw,
			&envelope.Version,
			&envelope.Timestamp,
		); err != nil {
			return nil, &eventsourcing.TransientError{Err: err}
		}
		if err := json.Unmarshal(raw, &envelope.Data); err != nil {
			return nil, &eventsourcing.SerializationError{Err: err}
		}
		out = append(out, envelope)
	}
	if err := rows.Err(); err != nil {
		return nil, &eventsourcing.TransientError{Err: err}
	}
	return out, nil
}

func (s *Store[E]) Persist(ctx context.Context, envelope eventsourcing.EventEnvelope[E]) error {
	data, err := json.Marshal(envelope.Data)
	if err != nil {
		return &eventsourcing.SerializationError{Err: err}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (aggregate_id, version, id, aggregate_type, event_type, data, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		envelope.AggregateID,
		envelope.Version,
		envelope.ID,
		envelope.AggregateType,
		envelope.EventType,
		data,
		envelope.Timestamp,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return &eventsourcing.VersionConflictError{
				AggregateID: envelope.AggregateID,
				Version:     envelope.Version,
			}
		}
		return &eventsourcing.TransientError{Err: err}
	}
	return nil
}
