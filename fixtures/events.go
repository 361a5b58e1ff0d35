// Package fixtures provides test doubles for the eventsourcing module: a
// small credit-ledger domain, envelope builders and instrumented store spies.
package fixtures

import (
	"github.com/google/uuid"

	es "github.com/replaykit/eventsourcing"
)

// TestEvent is the domain event of the fixture ledger: a credit of Amount
// against the aggregate identified by ID.
type TestEvent struct {
	ID     uuid.UUID `json:"id"`
	Amount int64     `json:"amount"`
}

func (e TestEvent) EventType() string { return "test_event" }

// LedgerID is the aggregate identity shared by the pre-built fixtures.
var LedgerID = uuid.MustParse("2e996ba1-03a6-47af-8fd1-2039c6708dd4")

// TestEventBuilder provides a fluent API for constructing test events.
type TestEventBuilder struct {
	id     uuid.UUID
	amount int64
}

// NewTestEvent creates a new TestEventBuilder with sensible defaults.
func NewTestEvent() *TestEventBuilder {
	return &TestEventBuilder{id: LedgerID, amount: 1}
}

// WithID sets the aggregate ID.
func (b *TestEventBuilder) WithID(id uuid.UUID) *TestEventBuilder {
	b.id = id
	return b
}

// WithAmount sets the credited amount.
func (b *TestEventBuilder) WithAmount(amount int64) *TestEventBuilder {
	b.amount = amount
	return b
}

// Build constructs the TestEvent.
func (b *TestEventBuilder) Build() TestEvent {
	return TestEvent{ID: b.id, Amount: b.amount}
}

// BuildN creates n events crediting 1..n.
func (b *TestEventBuilder) BuildN(n int) []TestEvent {
	events := make([]TestEvent, n)
	for i := 0; i < n; i++ {
		events[i] = TestEvent{ID: b.id, Amount: int64(i + 1)}
	}
	return events
}

// Envelopes wraps events into envelopes versioned 0..n-1 for aggregateID.
func Envelopes(aggregateID string, events ...TestEvent) []es.EventEnvelope[TestEvent] {
	envelopes := make([]es.EventEnvelope[TestEvent], len(events))
	for i, event := range events {
		envelopes[i] = es.NewEventEnvelope(aggregateID, AggregateType, event, int64(i))
	}
	return envelopes
}
