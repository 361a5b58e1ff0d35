package eventsourcing

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SnapshotEnvelope carries a fully materialized aggregate state at a known
// version. A snapshot is a derived, disposable cache: it must correspond to a
// version that exists (or existed) in the event stream, and losing it never
// affects correctness, only replay cost.
type SnapshotEnvelope[T any] struct {
	ID            uuid.UUID `json:"id"`
	AggregateID   string    `json:"aggregate_id"`
	AggregateType string    `json:"aggregate_type"`
	// Data holds the materialized aggregate state.
	Data T `json:"data"`
	// Version is the aggregate version the snapshot was taken at.
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSnapshotEnvelope wraps a materialized aggregate state taken at version.
func NewSnapshotEnvelope[T any](aggregateID, aggregateType string, state T, version int64) SnapshotEnvelope[T] {
	return SnapshotEnvelope[T]{
		ID:            uuid.New(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Data:          state,
		Version:       version,
		Timestamp:     now().UTC(),
	}
}

// SerializeSnapshot encodes the snapshot envelope to its JSON wire form.
func SerializeSnapshot[T any](envelope SnapshotEnvelope[T]) ([]byte, error) {
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, &SerializationError{Err: err}
	}
	return data, nil
}

// DeserializeSnapshot decodes a snapshot envelope from its JSON wire form.
func DeserializeSnapshot[T any](raw []byte) (SnapshotEnvelope[T], error) {
	var envelope SnapshotEnvelope[T]
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return SnapshotEnvelope[T]{}, &SerializationError{Err: err}
	}
	return envelope, nil
}
