package otel

import (
	"context"
	"errors"
	"reflect"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/replaykit/eventsourcing"
)

// WithCommandTelemetry wraps a CommandHandler with a span and the command
// metrics. The command type is resolved once, at decoration time.
func WithCommandTelemetry[C eventsourcing.Command](next eventsourcing.CommandHandler[C]) eventsourcing.CommandHandler[C] {
	var zero C
	cmdType := reflect.TypeOf(zero).String()

	return func(ctx context.Context, command C) error {
		ctx, span := tracer.Start(ctx, "CommandHandler.Handle",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				AttrCommandType.String(cmdType),
				AttrAggregateID.String(command.AggregateID()),
			),
		)
		defer span.End()

		start := time.Now()
		err := next(ctx, command)
		elapsed := time.Since(start)

		if eventsourcing.IsInitialized() {
			attrs := metric.WithAttributes(
				AttrCommandType.String(cmdType),
				AttrErrorType.String(errorType(err)),
			)
			eventsourcing.CommandsHandled.Add(ctx, 1, attrs)
			eventsourcing.CommandsDuration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
}

func errorType(err error) string {
	var conflict *eventsourcing.VersionConflictError
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, eventsourcing.ErrContentionExceeded):
		return "contention"
	case errors.As(err, &conflict):
		return "conflict"
	default:
		return "error"
	}
}
