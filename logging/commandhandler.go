package logging

import (
	"context"
	"reflect"

	"github.com/sirupsen/logrus"

	"github.com/replaykit/eventsourcing"
)

// WithCommandLogging wraps a CommandHandler with logging. It logs the
// command type and aggregate ID before execution, and the error if the
// command fails — including the distinct contention-exceeded outcome, so
// operators can tell rejected commands from an overloaded stream.
func WithCommandLogging[C eventsourcing.Command](logger *logrus.Entry, next eventsourcing.CommandHandler[C]) eventsourcing.CommandHandler[C] {
	return func(ctx context.Context, command C) error {
		cmdType := reflect.TypeOf(command).String()
		logger.Infof("Handle: %s (aggregateID: %s)", cmdType, command.AggregateID())

		err := next(ctx, command)
		if err != nil {
			logger.Errorf("Handle failed: %s (aggregateID: %s): %v", cmdType, command.AggregateID(), err)
		}

		return err
	}
}
