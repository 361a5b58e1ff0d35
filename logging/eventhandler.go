package logging

import (
	"context"
	"log/slog"

	"github.com/replaykit/eventsourcing"
)

// WithEventLogging wraps an EventHandler so every consumed event is logged
// with the envelope identity the consumer recorded on the context.
func WithEventLogging(logger *slog.Logger, next eventsourcing.EventHandler) eventsourcing.EventHandler {
	return eventsourcing.NewEventHandlerFunc(func(ctx context.Context, event eventsourcing.Event) error {
		l := logger.With(
			"aggregate-id", eventsourcing.AggregateIDFromContext(ctx),
			"aggregate-type", eventsourcing.AggregateTypeFromContext(ctx),
			"event-id", eventsourcing.EventIDFromContext(ctx),
			"event-type", eventsourcing.EventTypeFromContext(ctx),
			"version", eventsourcing.VersionFromContext(ctx),
		)

		l.DebugContext(ctx, "event processing started")

		err := next.Handle(ctx, event)

		if err != nil {
			l.ErrorContext(ctx, "error processing event", "error", err)
		} else {
			l.DebugContext(ctx, "event processed successfully")
		}

		return err
	})
}
