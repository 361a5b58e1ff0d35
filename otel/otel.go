// Package otel provides OpenTelemetry decorators for the event store, the
// command handler and the consumer-side event handler. Metrics are the
// global instruments initialized by eventsourcing.Init; decorators are
// no-ops on the metric side until that has been called.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/replaykit/eventsourcing"
)

const instrumentationName = "github.com/replaykit/eventsourcing"

// Semantic attribute keys following OpenTelemetry conventions.
const (
	AttrCommandType = attribute.Key("eventsourcing.command.type")
	AttrAggregateID = attribute.Key("eventsourcing.aggregate.id")

	AttrEventType     = attribute.Key("eventsourcing.event.type")
	AttrEventID       = attribute.Key("eventsourcing.event.id")
	AttrEventCount    = attribute.Key("eventsourcing.events.count")
	AttrStreamVersion = attribute.Key("eventsourcing.stream.version")

	AttrOperation    = attribute.Key("eventsourcing.operation")
	AttrErrorType    = attribute.Key("eventsourcing.error.type")
	AttrHandlerName  = attribute.Key("eventsourcing.handler.name")
	AttrConflictType = attribute.Key("eventsourcing.conflict.type")
)

var tracer = otel.Tracer(instrumentationName,
	trace.WithInstrumentationVersion(eventsourcing.InstrumentationVersion))
