package eventsourcing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestWithEnvelopeAccessors(t *testing.T) {
	envelope := NewEventEnvelope("ledger-1", "ledger", credited{ID: testLedgerID, Amount: 1}, 7)
	ctx := WithEnvelope(context.Background(), envelope)

	if got := AggregateIDFromContext(ctx); got != "ledger-1" {
		t.Errorf("AggregateIDFromContext = %q", got)
	}
	if got := AggregateTypeFromContext(ctx); got != "ledger" {
		t.Errorf("AggregateTypeFromContext = %q", got)
	}
	if got := EventIDFromContext(ctx); got != envelope.ID {
		t.Errorf("EventIDFromContext = %s, want %s", got, envelope.ID)
	}
	if got := EventTypeFromContext(ctx); got != "credited" {
		t.Errorf("EventTypeFromContext = %q", got)
	}
	if got := VersionFromContext(ctx); got != 7 {
		t.Errorf("VersionFromContext = %d", got)
	}
	if got := TimestampFromContext(ctx); !got.Equal(envelope.Timestamp) {
		t.Errorf("TimestampFromContext = %v, want %v", got, envelope.Timestamp)
	}
}

func TestContextAccessorDefaults(t *testing.T) {
	ctx := context.Background()

	if got := AggregateIDFromContext(ctx); got != "" {
		t.Errorf("AggregateIDFromContext = %q, want empty", got)
	}
	if got := AggregateTypeFromContext(ctx); got != "" {
		t.Errorf("AggregateTypeFromContext = %q, want empty", got)
	}
	if got := EventIDFromContext(ctx); got != uuid.Nil {
		t.Errorf("EventIDFromContext = %s, want uuid.Nil", got)
	}
	if got := EventTypeFromContext(ctx); got != "" {
		t.Errorf("EventTypeFromContext = %q, want empty", got)
	}
	if got := VersionFromContext(ctx); got != -1 {
		t.Errorf("VersionFromContext = %d, want -1", got)
	}
	if got := TimestampFromContext(ctx); !got.Equal(time.Time{}) {
		t.Errorf("TimestampFromContext = %v, want zero time", got)
	}
}
