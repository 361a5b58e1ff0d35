package fixtures

import (
	"errors"

	"github.com/google/uuid"

	es "github.com/replaykit/eventsourcing"
)

// AggregateType is the fixture ledger's envelope discriminator.
const AggregateType = "test_aggregate"

// ErrNegativeAmount rejects credits below zero, both when folding history
// and when deciding commands.
var ErrNegativeAmount = errors.New("amount must not be negative")

// TestAggregate is the fixture ledger state: the identity of its first
// event and the running total of credited amounts.
type TestAggregate struct {
	ID    uuid.UUID `json:"id"`
	Total int64     `json:"total"`
}

// ApplyTestEvent folds one credit into the ledger. The first event births
// the aggregate and fixes its identity.
func ApplyTestEvent(state *TestAggregate, event TestEvent) (*TestAggregate, error) {
	if event.Amount < 0 {
		return nil, ErrNegativeAmount
	}
	if state == nil {
		return &TestAggregate{ID: event.ID, Total: event.Amount}, nil
	}
	return &TestAggregate{ID: state.ID, Total: state.Total + event.Amount}, nil
}

// TestLedger is the aggregate descriptor used across the test suite.
var TestLedger = es.Aggregate[TestAggregate, TestEvent]{
	Type:  AggregateType,
	Apply: ApplyTestEvent,
}

// DecideCredit is the fixture decider: every valid command yields exactly
// one credit event.
func DecideCredit(state *TestAggregate, command TestCommand) ([]TestEvent, error) {
	if command.Amount < 0 {
		return nil, ErrNegativeAmount
	}
	id := LedgerID
	if state != nil {
		id = state.ID
	}
	return []TestEvent{{ID: id, Amount: command.Amount}}, nil
}
