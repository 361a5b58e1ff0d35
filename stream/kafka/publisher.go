package kafka

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/replaykit/eventsourcing"
)

// Publisher writes event envelopes to a topic, keyed by aggregate ID so that
// one aggregate's events land on one partition and consumers observe them in
// stream order.
//
// The envelope is serialized exactly once. Wrapping the payload in a second
// layer of encoding (a JSON string containing JSON) breaks consumers, which
// deserialize the raw message bytes directly.
type Publisher[E eventsourcing.Event] struct {
	writer *kafkago.Writer
}

// NewPublisher creates a publisher for topic.
func NewPublisher[E eventsourcing.Event](brokers []string, topic string) *Publisher[E] {
	return &Publisher[E]{
		writer: &kafkago.Writer{
			Addr:     kafkago.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafkago.Hash{},
		},
	}
}

// Publish writes the envelopes in order. Broker failures are transient and
// safe to retry; the at-least-once contract tolerates the resulting
// duplicates.
func (p *Publisher[E]) Publish(ctx context.Context, envelopes ...eventsourcing.EventEnvelope[E]) error {
	msgs := make([]kafkago.Message, len(envelopes))
	for i, envelope := range envelopes {
		value, err := eventsourcing.Serialize(envelope)
		if err != nil {
			return err
		}
		msgs[i] = kafkago.Message{
			Key:   []byte(envelope.AggregateID),
			Value: value,
		}
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return &eventsourcing.TransientError{Err: err}
	}
	return nil
}

func (p *Publisher[E]) Close() error {
	return p.writer.Close()
}
