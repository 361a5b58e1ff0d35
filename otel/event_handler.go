package otel

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/replaykit/eventsourcing"
)

// WithEventTelemetry wraps a consumer-side EventHandler with a span carrying
// the envelope identity the consumer recorded on the context.
func WithEventTelemetry(next eventsourcing.EventHandler) eventsourcing.EventHandler {
	return eventsourcing.NewEventHandlerFunc(func(ctx context.Context, event eventsourcing.Event) error {
		ctx, span := tracer.Start(ctx, "EventHandler.Handle",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				AttrEventType.String(event.EventType()),
				AttrEventID.String(eventsourcing.EventIDFromContext(ctx).String()),
				AttrAggregateID.String(eventsourcing.AggregateIDFromContext(ctx)),
				AttrStreamVersion.Int64(eventsourcing.VersionFromContext(ctx)),
			),
		)
		defer span.End()

		err := next.Handle(ctx, event)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	})
}
