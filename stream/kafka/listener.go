// Package kafka subscribes to a partitioned log of published event envelopes
// and drives a side-effecting apply function with at-least-once semantics:
// a batch's offsets are committed only after every message in it has been
// applied, so a crash reprocesses applied messages but never loses
// unprocessed ones.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/replaykit/eventsourcing"
)

// ApplyFunc consumes one deserialized envelope. It must tolerate
// re-application: after a partial-batch failure the whole batch is
// redelivered.
type ApplyFunc[E eventsourcing.Event] func(ctx context.Context, envelope eventsourcing.EventEnvelope[E]) error

// DecodeFunc turns a raw message payload into an envelope.
type DecodeFunc[E eventsourcing.Event] func(raw []byte) (eventsourcing.EventEnvelope[E], error)

// messageSource is the slice of *kafkago.Reader the consume loop needs:
// poll one message, commit consumed offsets, release the group membership.
// Narrowing the dependency keeps the loop testable without a broker.
type messageSource interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

var _ messageSource = (*kafkago.Reader)(nil)

// EventStream tails a topic as a consumer group member and applies every
// published envelope in partition order. It implements
// eventsourcing.EventListener.
type EventStream[E eventsourcing.Event] struct {
	cfg       Config
	apply     ApplyFunc[E]
	decode    DecodeFunc[E]
	log       *slog.Logger
	newSource func() messageSource
}

var _ eventsourcing.EventListener = (*EventStream[eventsourcing.Event])(nil)

// StreamOption customizes an EventStream.
type StreamOption[E eventsourcing.Event] func(*EventStream[E])

// WithStreamLogger replaces the default slog logger.
func WithStreamLogger[E eventsourcing.Event](log *slog.Logger) StreamOption[E] {
	return func(s *EventStream[E]) { s.log = log }
}

// WithDecoder replaces the envelope decoder. Use this with
// eventsourcing.DeserializeRegistered when the payload type is only known at
// runtime.
func WithDecoder[E eventsourcing.Event](decode DecodeFunc[E]) StreamOption[E] {
	return func(s *EventStream[E]) { s.decode = decode }
}

// NewEventStream builds a listener for cfg that feeds every consumed
// envelope to apply.
func NewEventStream[E eventsourcing.Event](cfg Config, apply ApplyFunc[E], opts ...StreamOption[E]) (*EventStream[E], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if apply == nil {
		return nil, errors.New("kafka: apply function is required")
	}

	s := &EventStream[E]{
		cfg:    cfg,
		apply:  apply,
		decode: eventsourcing.Deserialize[E],
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.newSource = func() messageSource {
		return kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.Group,
			Topic:       cfg.Topic,
			StartOffset: kafkago.FirstOffset,
		})
	}
	return s, nil
}

// Listen consumes until ctx is cancelled. Transient failures — connection
// loss, poll or commit errors — restart the whole connect-and-consume cycle
// after the fixed retry delay. Deserialization and apply failures are not
// retried here: they are surfaced to the caller, who must fix the producer
// contract or the handler rather than let the consumer spin on a poison
// message.
func (s *EventStream[E]) Listen(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		src := s.newSource()
		err := s.consume(ctx, src)
		if closeErr := src.Close(); closeErr != nil {
			s.log.Warn("closing consumer failed", "topic", s.cfg.Topic, "error", closeErr)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && !eventsourcing.Retryable(err) {
			s.log.Error("consume failed, stopping",
				"topic", s.cfg.Topic,
				"group", s.cfg.Group,
				"error", err)
			return err
		}

		s.log.Warn("consume cycle failed, reconnecting",
			"topic", s.cfg.Topic,
			"group", s.cfg.Group,
			"delay", s.cfg.RetryDelay,
			"error", err)

		if eventsourcing.IsInitialized() {
			eventsourcing.ListenerRetries.Add(ctx, 1)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.RetryDelay):
		}
	}
}

// consume polls batches and applies them until something fails. Per cycle:
// every message of the batch is decoded and applied in the order received,
// and only then are the batch's offsets committed. Any failure aborts the
// cycle with nothing committed, so the broker redelivers the full batch.
func (s *EventStream[E]) consume(ctx context.Context, src messageSource) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := s.fetchBatch(ctx, src)
		if err != nil {
			return err
		}

		for _, msg := range batch {
			envelope, err := s.decode(msg.Value)
			if err != nil {
				return fmt.Errorf("message at offset %d: %w", msg.Offset, err)
			}
			if err := s.apply(eventsourcing.WithEnvelope(ctx, envelope), envelope); err != nil {
				return fmt.Errorf("apply %s (aggregate %q, version %d): %w",
					envelope.EventType, envelope.AggregateID, envelope.Version, err)
			}
		}

		if err := src.CommitMessages(ctx, batch...); err != nil {
			return &eventsourcing.TransientError{Err: err}
		}

		if eventsourcing.IsInitialized() {
			eventsourcing.ListenerBatches.Add(ctx, 1)
			eventsourcing.ListenerEvents.Add(ctx, int64(len(batch)))
			eventsourcing.ListenerBatchSize.Record(ctx, float64(len(batch)))
		}
	}
}

// fetchBatch blocks for the first available message, then drains whatever
// else is already waiting, up to BatchSize, giving the broker BatchWait to
// produce each additional message.
func (s *EventStream[E]) fetchBatch(ctx context.Context, src messageSource) ([]kafkago.Message, error) {
	first, err := src.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &eventsourcing.TransientError{Err: err}
	}

	batch := []kafkago.Message{first}
	for len(batch) < s.cfg.BatchSize {
		drainCtx, cancel := context.WithTimeout(ctx, s.cfg.BatchWait)
		msg, err := src.FetchMessage(drainCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break // nothing more ready
			}
			return nil, &eventsourcing.TransientError{Err: err}
		}
		batch = append(batch, msg)
	}
	return batch, nil
}
