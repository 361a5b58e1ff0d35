package eventsourcing

import (
	"context"
	"fmt"
	"reflect"
	"sort"
)

// EventHandler processes one consumed event. It is the unit of work the
// stream consumer drives forward: handlers must tolerate re-application of
// events they have already seen, because delivery is at-least-once.
type EventHandler interface {
	Handle(ctx context.Context, event Event) error
}

// eventHandlerFunc is a function type that implements EventHandler.
type eventHandlerFunc func(ctx context.Context, event Event) error

func (h eventHandlerFunc) Handle(ctx context.Context, event Event) error {
	return h(ctx, event)
}

// NewEventHandlerFunc wraps a plain function as an EventHandler. The function
// receives every event it is invoked with, without type filtering; use
// OnEvent for type safety.
func NewEventHandlerFunc(fn func(ctx context.Context, event Event) error) EventHandler {
	return eventHandlerFunc(fn)
}

// typedEventHandler is a strongly typed event handler for a specific Event type T.
type typedEventHandler[T Event] func(ctx context.Context, ev T) error

// EventName returns the discriminator used for routing events of type T.
func (h typedEventHandler[T]) EventName() string {
	return newEventOf[T]().EventType()
}

// Handle processes the event if it matches the type T.
// Returns *ErrSkippedEvent if the event is of the wrong type.
func (h typedEventHandler[T]) Handle(ctx context.Context, event Event) error {
	ev, ok := event.(T)
	if !ok {
		return &ErrSkippedEvent{EventType: event.EventType()}
	}
	return h(ctx, ev)
}

// newEventOf builds a usable zero instance of T, allocating the element for
// pointer event types so EventType can be called on it.
func newEventOf[T Event]() Event {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() == reflect.Pointer {
		return reflect.New(t.Elem()).Interface().(Event)
	}
	return reflect.New(t).Elem().Interface().(Event)
}

// OnEvent creates a strongly typed EventHandler for one event type. When
// routed through an EventGroupProcessor the handler only ever receives events
// of type T; invoked directly with another type it returns *ErrSkippedEvent.
//
// Example:
//
//	group := NewEventGroupProcessor(
//	    OnEvent(func(ctx context.Context, ev OrderCreated) error { ... }),
//	    OnEvent(func(ctx context.Context, ev ItemAdded) error { ... }),
//	)
func OnEvent[T Event](fn func(ctx context.Context, ev T) error) EventHandler {
	return typedEventHandler[T](fn)
}

// EventGroupProcessor routes incoming events to the matching typed handler.
// It is the canonical apply target for a stream consumer driving projections.
type EventGroupProcessor struct {
	handlers map[string]EventHandler // key = EventName()
}

// NewEventGroupProcessor builds a processor from typed handlers created via
// OnEvent. Panics on handlers without an EventName or on duplicates — both
// wiring errors.
func NewEventGroupProcessor(handlers ...EventHandler) *EventGroupProcessor {
	m := make(map[string]EventHandler, len(handlers))
	for _, h := range handlers {
		u, ok := h.(interface{ EventName() string })
		if !ok {
			panic(fmt.Errorf("handler %T does not have a function `EventName()`", h))
		}

		name := u.EventName()
		if _, exists := m[name]; exists {
			panic(fmt.Errorf("duplicate handler for event %s: %w", name, ErrDuplicateHandler))
		}
		m[name] = h
	}

	return &EventGroupProcessor{
		handlers: m,
	}
}

// Handle routes the event to the handler registered for its type.
// Returns *ErrSkippedEvent when no handler exists for the event type.
func (p *EventGroupProcessor) Handle(ctx context.Context, ev Event) error {
	h, ok := p.handlers[ev.EventType()]
	if !ok {
		return &ErrSkippedEvent{EventType: ev.EventType()}
	}
	return h.Handle(ctx, ev)
}

// EventNames returns a sorted list of all event types handled by this group.
// Useful for subscribing with a filter or listing registered handlers.
func (p *EventGroupProcessor) EventNames() []string {
	out := make([]string, 0, len(p.handlers))
	for name := range p.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
