package kafka

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/replaykit/eventsourcing"
	"github.com/replaykit/eventsourcing/fixtures"
)

func testConfig() Config {
	return Config{
		Brokers:    []string{"localhost:9092"},
		Topic:      "ledger-events",
		Group:      "test-group",
		RetryDelay: time.Millisecond,
		BatchSize:  8,
		BatchWait:  5 * time.Millisecond,
	}
}

// fakeSource scripts a messageSource: it serves the queued messages in order
// and then fails every fetch with fetchErr (DeadlineExceeded by default, which
// fetchBatch treats as "nothing more ready").
type fakeSource struct {
	mu        sync.Mutex
	msgs      []kafkago.Message
	fetchErr  error
	commitErr error
	committed []kafkago.Message
	closes    int
}

func (f *fakeSource) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	if err := ctx.Err(); err != nil {
		return kafkago.Message{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		if f.fetchErr != nil {
			return kafkago.Message{}, f.fetchErr
		}
		return kafkago.Message{}, context.DeadlineExceeded
	}
	msg := f.msgs[0]
	f.msgs = f.msgs[1:]
	return msg, nil
}

func (f *fakeSource) CommitMessages(ctx context.Context, msgs ...kafkago.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeSource) committedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.committed)
}

func messagesFor(t *testing.T, amounts ...int64) []kafkago.Message {
	t.Helper()
	msgs := make([]kafkago.Message, len(amounts))
	for i, amount := range amounts {
		envelope := eventsourcing.NewEventEnvelope(fixtures.LedgerID.String(), fixtures.AggregateType,
			fixtures.NewTestEvent().WithAmount(amount).Build(), int64(i))
		raw, err := eventsourcing.Serialize(envelope)
		require.NoError(t, err)
		msgs[i] = kafkago.Message{Key: []byte(envelope.AggregateID), Value: raw, Offset: int64(i)}
	}
	return msgs
}

type recordingApply struct {
	mu       sync.Mutex
	applied  []eventsourcing.EventEnvelope[fixtures.TestEvent]
	failAt   int // 1-based call index that fails, 0 = never
	failWith error
}

func (r *recordingApply) apply(ctx context.Context, envelope eventsourcing.EventEnvelope[fixtures.TestEvent]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && len(r.applied)+1 == r.failAt {
		return r.failWith
	}
	r.applied = append(r.applied, envelope)
	return nil
}

func newTestStream(t *testing.T, cfg Config, apply *recordingApply) *EventStream[fixtures.TestEvent] {
	t.Helper()
	stream, err := NewEventStream[fixtures.TestEvent](cfg, apply.apply)
	require.NoError(t, err)
	return stream
}

func TestConsumeAppliesThenCommits(t *testing.T) {
	src := &fakeSource{msgs: messagesFor(t, 1, 5, 2)}
	rec := &recordingApply{}
	stream := newTestStream(t, testConfig(), rec)

	err := stream.consume(context.Background(), src)
	var transient *eventsourcing.TransientError
	require.ErrorAs(t, err, &transient, "an idle fetch after the batch reads as a transient poll failure")

	require.Len(t, rec.applied, 3)
	assert.Equal(t, int64(1), rec.applied[0].Data.Amount)
	assert.Equal(t, int64(5), rec.applied[1].Data.Amount)
	assert.Equal(t, int64(2), rec.applied[2].Data.Amount)
	assert.Equal(t, 3, src.committedCount(), "all offsets committed after the batch succeeded")
}

func TestConsumeRespectsBatchSize(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 2

	src := &fakeSource{msgs: messagesFor(t, 1, 2, 3)}
	rec := &recordingApply{}
	stream := newTestStream(t, cfg, rec)

	_ = stream.consume(context.Background(), src)

	require.Len(t, rec.applied, 3, "the overflow message lands in the next cycle")
	assert.Equal(t, 3, src.committedCount())
}

func TestConsumeMidBatchFailureCommitsNothing(t *testing.T) {
	src := &fakeSource{msgs: messagesFor(t, 1, 5, 2)}
	boom := errors.New("projection rejected event")
	rec := &recordingApply{failAt: 2, failWith: boom}
	stream := newTestStream(t, testConfig(), rec)

	err := stream.consume(context.Background(), src)
	require.ErrorIs(t, err, boom)
	assert.False(t, eventsourcing.Retryable(err), "a handler failure must not be retried by the loop")

	assert.Len(t, rec.applied, 1, "apply stops at the failing message")
	assert.Zero(t, src.committedCount(), "nothing is committed, the whole batch will be redelivered")
}

func TestConsumeDecodeFailureCommitsNothing(t *testing.T) {
	src := &fakeSource{msgs: []kafkago.Message{{Value: []byte("not json"), Offset: 7}}}
	rec := &recordingApply{}
	stream := newTestStream(t, testConfig(), rec)

	err := stream.consume(context.Background(), src)
	var serr *eventsourcing.SerializationError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, err.Error(), "offset 7")
	assert.Zero(t, src.committedCount())
}

func TestConsumeCommitFailureIsTransient(t *testing.T) {
	src := &fakeSource{msgs: messagesFor(t, 1), commitErr: errors.New("group rebalancing")}
	rec := &recordingApply{}
	stream := newTestStream(t, testConfig(), rec)

	err := stream.consume(context.Background(), src)
	var transient *eventsourcing.TransientError
	require.ErrorAs(t, err, &transient)
	assert.Len(t, rec.applied, 1, "apply happened; redelivery after the failed commit is the at-least-once cost")
}

func TestConsumeEnrichesContext(t *testing.T) {
	src := &fakeSource{msgs: messagesFor(t, 1)}

	var gotID string
	var gotVersion int64
	stream, err := NewEventStream[fixtures.TestEvent](testConfig(),
		func(ctx context.Context, envelope eventsourcing.EventEnvelope[fixtures.TestEvent]) error {
			gotID = eventsourcing.AggregateIDFromContext(ctx)
			gotVersion = eventsourcing.VersionFromContext(ctx)
			return nil
		})
	require.NoError(t, err)

	_ = stream.consume(context.Background(), src)
	assert.Equal(t, fixtures.LedgerID.String(), gotID)
	assert.Equal(t, int64(0), gotVersion)
}

func TestListenReconnectsAfterTransientFailure(t *testing.T) {
	var mu sync.Mutex
	var sources []*fakeSource

	rec := &recordingApply{}
	stream := newTestStream(t, testConfig(), rec)
	stream.newSource = func() messageSource {
		mu.Lock()
		defer mu.Unlock()
		src := &fakeSource{fetchErr: errors.New("broker unreachable")}
		sources = append(sources, src)
		return src
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := stream.Listen(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	mu.Lock()
	defer mu.Unlock()
	require.Greater(t, len(sources), 1, "the consumer must reconnect after a transient failure")
	for i, src := range sources {
		assert.Equal(t, 1, src.closes, "source %d must be closed exactly once", i)
	}
}

func TestListenSurfacesNonRetryableError(t *testing.T) {
	var created int
	rec := &recordingApply{}
	stream := newTestStream(t, testConfig(), rec)
	stream.newSource = func() messageSource {
		created++
		return &fakeSource{msgs: []kafkago.Message{{Value: []byte("garbage")}}}
	}

	err := stream.Listen(context.Background())
	var serr *eventsourcing.SerializationError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 1, created, "a poison message must not trigger reconnect loops")
}

func TestListenStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recordingApply{}
	stream := newTestStream(t, testConfig(), rec)
	stream.newSource = func() messageSource {
		t.Fatalf("no source should be opened with a cancelled context")
		return nil
	}

	err := stream.Listen(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewEventStreamValidation(t *testing.T) {
	_, err := NewEventStream[fixtures.TestEvent](Config{}, (&recordingApply{}).apply)
	require.Error(t, err)

	_, err = NewEventStream[fixtures.TestEvent](testConfig(), nil)
	require.Error(t, err)
}

func TestListenLogsNonRetryableFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	rec := &recordingApply{}
	stream, err := NewEventStream[fixtures.TestEvent](testConfig(), rec.apply,
		WithStreamLogger[fixtures.TestEvent](logger))
	require.NoError(t, err)
	stream.newSource = func() messageSource {
		return &fakeSource{msgs: []kafkago.Message{{Value: []byte("garbage")}}}
	}

	err = stream.Listen(context.Background())
	var serr *eventsourcing.SerializationError
	require.ErrorAs(t, err, &serr)

	assert.Contains(t, buf.String(), "level=ERROR", "a poison message must be visible at error level")
	assert.Contains(t, buf.String(), "ledger-events", "the log must name the topic")
}

func metricSum(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is %T, want Sum[int64]", name, m.Data)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func batchSizeSamples(t *testing.T, reader *sdkmetric.ManualReader) uint64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "eventsourcing.listener.batch_size" {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			require.True(t, ok, "batch_size is %T, want Histogram[float64]", m.Data)
			var count uint64
			for _, dp := range hist.DataPoints {
				count += dp.Count
			}
			return count
		}
	}
	return 0
}

func TestListenerMetricsRecorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	eventsourcing.MustInit()

	src := &fakeSource{msgs: messagesFor(t, 1, 5, 2)}
	rec := &recordingApply{}
	stream := newTestStream(t, testConfig(), rec)
	_ = stream.consume(context.Background(), src)

	assert.Equal(t, int64(1), metricSum(t, reader, "eventsourcing.listener.batches"))
	assert.Equal(t, int64(3), metricSum(t, reader, "eventsourcing.listener.events"))
	assert.Equal(t, uint64(1), batchSizeSamples(t, reader), "one committed batch, one size sample")

	// A broker outage drives the reconnect counter.
	flaky := newTestStream(t, testConfig(), rec)
	flaky.newSource = func() messageSource {
		return &fakeSource{fetchErr: errors.New("broker unreachable")}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = flaky.Listen(ctx)

	assert.Positive(t, metricSum(t, reader, "eventsourcing.listener.retries"))
}

func TestWithDecoder(t *testing.T) {
	decoded := 0
	stream, err := NewEventStream[fixtures.TestEvent](testConfig(),
		(&recordingApply{}).apply,
		WithDecoder[fixtures.TestEvent](func(raw []byte) (eventsourcing.EventEnvelope[fixtures.TestEvent], error) {
			decoded++
			return eventsourcing.Deserialize[fixtures.TestEvent](raw)
		}),
	)
	require.NoError(t, err)

	src := &fakeSource{msgs: messagesFor(t, 1)}
	_ = stream.consume(context.Background(), src)
	assert.Equal(t, 1, decoded)
}
