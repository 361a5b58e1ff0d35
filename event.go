package eventsourcing

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/google/uuid"
)

var now = time.Now

// Event is a domain event describing a change that has happened to an aggregate.
type Event interface {
	// EventType returns the schema discriminator of the event payload. It is
	// recorded on the envelope independently of the payload's runtime type.
	EventType() string
}

// EventEnvelope is an immutable wrapper carrying one domain event together
// with identity and versioning metadata. Envelopes are value types: whoever
// holds one owns it, and nothing mutates it after construction.
//
// The wire format is a self-describing JSON object with exactly the fields
// tagged below. Timestamps encode in UTC with at least millisecond precision.
type EventEnvelope[E Event] struct {
	// ID is the globally unique identifier of the envelope, generated at
	// construction and never reused.
	ID uuid.UUID `json:"id"`
	// AggregateID identifies the aggregate stream the event belongs to.
	AggregateID string `json:"aggregate_id"`
	// AggregateType discriminates the schema family of the aggregate.
	AggregateType string `json:"aggregate_type"`
	// Data is the domain event payload, opaque to the envelope.
	Data E `json:"data"`
	// EventType discriminates the schema of the payload.
	EventType string `json:"event_type"`
	// Version is the version of the aggregate after this event is applied.
	// The first event of a stream has version 0.
	Version int64 `json:"version"`
	// Timestamp is the wall-clock creation time, set at construction.
	Timestamp time.Time `json:"timestamp"`
}

// NewEventEnvelope wraps a domain event for persistence. The envelope ID and
// timestamp are assigned here; the event type is taken from the payload.
func NewEventEnvelope[E Event](aggregateID, aggregateType string, data E, version int64) EventEnvelope[E] {
	return EventEnvelope[E]{
		ID:            uuid.New(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Data:          data,
		EventType:     data.EventType(),
		Version:       version,
		Timestamp:     now().UTC(),
	}
}

// Serialize encodes the envelope to its JSON wire form. The payload is
// encoded exactly once; producers must not wrap the result in another layer
// of encoding.
func Serialize[E Event](envelope EventEnvelope[E]) ([]byte, error) {
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, &SerializationError{Err: err}
	}
	return data, nil
}

// Deserialize decodes an envelope from its JSON wire form.
func Deserialize[E Event](raw []byte) (EventEnvelope[E], error) {
	var envelope EventEnvelope[E]
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return EventEnvelope[E]{}, &SerializationError{Err: err}
	}
	return envelope, nil
}

// TypeName returns the bare type name of v, without package qualifier or
// pointer marker. Used for handler routing and instrumentation labels.
func TypeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
