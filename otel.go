package eventsourcing

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/replaykit/eventsourcing"

	// InstrumentationVersion is reported with every meter and tracer.
	InstrumentationVersion = "0.1.0"
)

var (
	meter metric.Meter

	// Command metrics
	CommandsHandled  metric.Int64Counter
	CommandsDuration metric.Float64Histogram

	// Event store metrics
	EventsAppended metric.Int64Counter
	EventsLoaded   metric.Int64Counter
	StreamVersions metric.Int64Gauge

	// Snapshot metrics
	SnapshotsLoaded metric.Int64Counter
	SnapshotsSaved  metric.Int64Counter

	// Listener metrics
	ListenerBatches   metric.Int64Counter
	ListenerEvents    metric.Int64Counter
	ListenerRetries   metric.Int64Counter
	ListenerBatchSize metric.Float64Histogram

	// System metrics
	ConcurrencyConflicts metric.Int64Counter

	once        sync.Once
	initErr     error
	initialized bool
)

// Init initializes the global metrics.
// Call this once at application startup.
func Init() error {
	once.Do(func() {
		meter = otel.Meter(instrumentationName, metric.WithInstrumentationVersion(InstrumentationVersion))
		initErr = initializeMetrics()
		if initErr == nil {
			initialized = true
		}
	})
	return initErr
}

func initializeMetrics() error {
	var err error

	CommandsHandled, err = meter.Int64Counter(
		"eventsourcing.commands.handled",
		metric.WithDescription("Number of commands handled"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return err
	}

	CommandsDuration, err = meter.Float64Histogram(
		"eventsourcing.commands.duration",
		metric.WithDescription("Command handling duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		return err
	}

	EventsAppended, err = meter.Int64Counter(
		"eventsourcing.events.appended",
		metric.WithDescription("Number of events appended to streams"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	EventsLoaded, err = meter.Int64Counter(
		"eventsourcing.events.loaded",
		metric.WithDescription("Number of events loaded from streams"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	StreamVersions, err = meter.Int64Gauge(
		"eventsourcing.stream.version",
		metric.WithDescription("Current version of streams"),
		metric.WithUnit("{version}"),
	)
	if err != nil {
		return err
	}

	SnapshotsLoaded, err = meter.Int64Counter(
		"eventsourcing.snapshots.loaded",
		metric.WithDescription("Number of snapshots loaded"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return err
	}

	SnapshotsSaved, err = meter.Int64Counter(
		"eventsourcing.snapshots.saved",
		metric.WithDescription("Number of snapshots saved"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return err
	}

	ListenerBatches, err = meter.Int64Counter(
		"eventsourcing.listener.batches",
		metric.WithDescription("Number of message batches committed by the stream consumer"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return err
	}

	ListenerEvents, err = meter.Int64Counter(
		"eventsourcing.listener.events",
		metric.WithDescription("Number of events applied by the stream consumer"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	ListenerRetries, err = meter.Int64Counter(
		"eventsourcing.listener.retries",
		metric.WithDescription("Number of consume cycles restarted after a transient failure"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return err
	}

	ListenerBatchSize, err = meter.Float64Histogram(
		"eventsourcing.listener.batch_size",
		metric.WithDescription("Messages per committed batch"),
		metric.WithUnit("{message}"),
		metric.WithExplicitBucketBoundaries(1, 2, 4, 8, 16, 32, 64, 128, 256),
	)
	if err != nil {
		return err
	}

	ConcurrencyConflicts, err = meter.Int64Counter(
		"eventsourcing.concurrency.conflicts",
		metric.WithDescription("Number of optimistic-concurrency conflicts"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// IsInitialized returns whether metrics have been initialized.
func IsInitialized() bool {
	return initialized
}

// MustInit initializes metrics and panics on error.
// Use this in main() for fail-fast behavior.
func MustInit() {
	if err := Init(); err != nil {
		panic("failed to initialize metrics: " + err.Error())
	}
}
