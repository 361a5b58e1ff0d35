package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries the already-resolved connection parameters for one
// consumer group subscription. Values are plain inputs; how they were
// resolved (flags, files, environment) is the embedder's business —
// ConfigFromEnv is provided for the common case.
type Config struct {
	// Brokers is the bootstrap address list.
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	// Topic is the published event log to subscribe to.
	Topic string `env:"KAFKA_TOPIC"`
	// Group is the consumer group that owns the committed offsets.
	Group string `env:"KAFKA_GROUP"`

	// RetryDelay is the fixed pause between reconnect attempts after a
	// transient failure. Fixed, not exponential: the broker connection has
	// bounded cardinality, and a finite-rate retry is all the contract asks.
	RetryDelay time.Duration `env:"KAFKA_RETRY_DELAY" envDefault:"1s"`

	// BatchSize caps how many messages one poll cycle applies before
	// committing.
	BatchSize int `env:"KAFKA_BATCH_SIZE" envDefault:"64"`

	// BatchWait is how long a cycle keeps draining ready messages after the
	// first one before settling for a smaller batch.
	BatchWait time.Duration `env:"KAFKA_BATCH_WAIT" envDefault:"250ms"`
}

// ConfigFromEnv loads the subscription configuration from the environment.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse kafka config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka config: at least one broker is required")
	}
	if c.Topic == "" {
		return errors.New("kafka config: topic is required")
	}
	if c.Group == "" {
		return errors.New("kafka config: consumer group is required")
	}
	if c.RetryDelay <= 0 {
		return errors.New("kafka config: retry delay must be positive")
	}
	if c.BatchSize <= 0 {
		return errors.New("kafka config: batch size must be positive")
	}
	return nil
}
