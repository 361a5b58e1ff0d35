package eventsourcing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

const (
	aggregateIDKey   ctxKey = "aggregateID"
	aggregateTypeKey ctxKey = "aggregateType"
	eventIDKey       ctxKey = "eventID"
	eventTypeKey     ctxKey = "eventType"
	versionKey       ctxKey = "version"
	timestampKey     ctxKey = "timestamp"
)

// WithEnvelope records the envelope's identity metadata on the context so
// handlers and middleware can report which event they are processing without
// threading the envelope through every signature.
func WithEnvelope[E Event](ctx context.Context, env EventEnvelope[E]) context.Context {
	ctx = context.WithValue(ctx, aggregateIDKey, env.AggregateID)
	ctx = context.WithValue(ctx, aggregateTypeKey, env.AggregateType)
	ctx = context.WithValue(ctx, eventIDKey, env.ID)
	ctx = context.WithValue(ctx, eventTypeKey, env.EventType)
	ctx = context.WithValue(ctx, versionKey, env.Version)
	ctx = context.WithValue(ctx, timestampKey, env.Timestamp)
	return ctx
}

// AggregateIDFromContext returns the aggregate ID or "" if not present.
func AggregateIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(aggregateIDKey).(string); ok {
		return s
	}
	return ""
}

// AggregateTypeFromContext returns the aggregate type or "" if not present.
func AggregateTypeFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(aggregateTypeKey).(string); ok {
		return s
	}
	return ""
}

// EventIDFromContext returns the envelope ID or uuid.Nil if not present.
func EventIDFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(eventIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// EventTypeFromContext returns the event type or "" if not present.
func EventTypeFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(eventTypeKey).(string); ok {
		return s
	}
	return ""
}

// VersionFromContext returns the envelope version or -1 if not present.
func VersionFromContext(ctx context.Context) int64 {
	if v, ok := ctx.Value(versionKey).(int64); ok {
		return v
	}
	return -1
}

// TimestampFromContext returns the envelope timestamp or the zero time.
func TimestampFromContext(ctx context.Context) time.Time {
	if t, ok := ctx.Value(timestampKey).(time.Time); ok {
		return t
	}
	return time.Time{}
}
