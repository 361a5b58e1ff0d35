package otel

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/replaykit/eventsourcing"
)

// TelemetryStore decorates an EventStore with spans and metrics per
// operation. Conflicts are recorded separately from other failures so
// contention is visible as its own signal.
type TelemetryStore[E eventsourcing.Event] struct {
	next eventsourcing.EventStore[E]
}

var _ eventsourcing.EventStore[eventsourcing.Event] = (*TelemetryStore[eventsourcing.Event])(nil)

// NewTelemetryStore wraps next.
func NewTelemetryStore[E eventsourcing.Event](next eventsourcing.EventStore[E]) *TelemetryStore[E] {
	return &TelemetryStore[E]{next: next}
}

func (t *TelemetryStore[E]) Read(ctx context.Context, aggregateID string) ([]eventsourcing.EventEnvelope[E], error) {
	ctx, span := tracer.Start(ctx, "EventStore.Read",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrOperation.String("read"),
			AttrAggregateID.String(aggregateID),
		),
	)
	defer span.End()

	envelopes, err := t.next.Read(ctx, aggregateID)
	recordRead(ctx, span, envelopes, err)
	return envelopes, err
}

func (t *TelemetryStore[E]) ReadFrom(ctx context.Context, aggregateID string, version int64) ([]eventsourcing.EventEnvelope[E], error) {
	ctx, span := tracer.Start(ctx, "EventStore.ReadFrom",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrOperation.String("read_from"),
			AttrAggregateID.String(aggregateID),
			AttrStreamVersion.Int64(version),
		),
	)
	defer span.End()

	envelopes, err := t.next.ReadFrom(ctx, aggregateID, version)
	recordRead(ctx, span, envelopes, err)
	return envelopes, err
}

func (t *TelemetryStore[E]) Persist(ctx context.Context, envelope eventsourcing.EventEnvelope[E]) error {
	ctx, span := tracer.Start(ctx, "EventStore.Persist",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrOperation.String("persist"),
			AttrAggregateID.String(envelope.AggregateID),
			AttrEventType.String(envelope.EventType),
			AttrEventID.String(envelope.ID.String()),
			AttrStreamVersion.Int64(envelope.Version),
		),
	)
	defer span.End()

	err := t.next.Persist(ctx, envelope)

	if eventsourcing.IsInitialized() {
		if err == nil {
			eventsourcing.EventsAppended.Add(ctx, 1)
			eventsourcing.StreamVersions.Record(ctx, envelope.Version,
				metric.WithAttributes(AttrAggregateID.String(envelope.AggregateID)))
		}
		var conflict *eventsourcing.VersionConflictError
		if errors.As(err, &conflict) {
			eventsourcing.ConcurrencyConflicts.Add(ctx, 1)
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func recordRead[E eventsourcing.Event](ctx context.Context, span trace.Span, envelopes []eventsourcing.EventEnvelope[E], err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(AttrEventCount.Int(len(envelopes)))
	if eventsourcing.IsInitialized() {
		eventsourcing.EventsLoaded.Add(ctx, int64(len(envelopes)))
	}
}
