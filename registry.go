package eventsourcing

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// registry maps event type names to their factory functions.
	// Each factory must return a new instance of a concrete Event type.
	registry = map[string]func() Event{}

	// mu protects access to the registry for concurrent operations.
	mu sync.RWMutex
)

// RegisterEventByType registers an Event type under its own EventType name so
// consumers can decode envelopes for a polymorphic event family by the
// envelope's event_type discriminator alone.
//
// Panics if the factory is nil, returns nil, or the name is already taken —
// all wiring errors, surfaced at startup.
//
// Example:
//
//	RegisterEventByType(func() Event { return &InventoryChanged{} })
func RegisterEventByType(fn func() Event) {
	if fn == nil {
		panic("cannot register nil factory")
	}
	registerEventName(fn().EventType(), fn)
}

// RegisterEventByName registers an Event type under a custom name that is
// independent of EventType().
func RegisterEventByName(name string, fn func() Event) {
	registerEventName(name, fn)
}

// NewEventByName creates a new instance of a registered Event by its name.
func NewEventByName(name string) (Event, error) {
	mu.RLock()
	factory, ok := registry[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("event not registered: %s", name)
	}
	ev := factory()
	if ev == nil {
		return nil, fmt.Errorf("factory returned nil for event: %s", name)
	}
	return ev, nil
}

func registerEventName(name string, fn func() Event) {
	if fn == nil {
		panic("cannot register nil factory")
	}

	mu.Lock()
	defer mu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("event already registered: %s", name))
	}

	ev := fn()
	if ev == nil {
		panic(fmt.Sprintf("factory returned nil for event: %s", name))
	}

	registry[name] = fn
}

// rawEnvelope defers payload decoding until the event type is known.
type rawEnvelope struct {
	ID            uuid.UUID       `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Data          json.RawMessage `json:"data"`
	EventType     string          `json:"event_type"`
	Version       int64           `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
}

// DeserializeRegistered decodes an envelope whose payload type is only known
// at runtime, resolving the concrete event through the registry by the
// envelope's event_type field. The registered factory must produce a pointer
// so the payload can be unmarshalled in place.
func DeserializeRegistered(raw []byte) (EventEnvelope[Event], error) {
	var head rawEnvelope
	if err := json.Unmarshal(raw, &head); err != nil {
		return EventEnvelope[Event]{}, &SerializationError{Err: err}
	}

	event, err := NewEventByName(head.EventType)
	if err != nil {
		return EventEnvelope[Event]{}, &SerializationError{Err: err}
	}
	if err := json.Unmarshal(head.Data, event); err != nil {
		return EventEnvelope[Event]{}, &SerializationError{Err: err}
	}

	return EventEnvelope[Event]{
		ID:            head.ID,
		AggregateID:   head.AggregateID,
		AggregateType: head.AggregateType,
		Data:          event,
		EventType:     head.EventType,
		Version:       head.Version,
		Timestamp:     head.Timestamp,
	}, nil
}
