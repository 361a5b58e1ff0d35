package eventsourcing

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
)

// queuedCommand is a command enqueued for processing, carrying the caller's
// context and a channel for the result.
type queuedCommand struct {
	Ctx        context.Context
	Command    Command
	ResponseCh chan<- error
}

// CommandBus is an in-memory, type-safe command dispatcher. Commands are
// hashed by aggregate ID onto a fixed set of shard queues, so commands for
// one aggregate are processed in order by a single worker — which keeps the
// optimistic-concurrency race window on a stream as small as possible when
// all writers share the bus.
//
// The bus supports typed registration via Register, waits for in-flight
// commands on Stop, and recovers handler panics so one bad handler cannot
// take the bus down.
type CommandBus struct {
	handlers   map[string]func(ctx context.Context, command Command) error
	queues     []chan queuedCommand
	wg         sync.WaitGroup
	mu         sync.RWMutex
	shardCount int

	// stopMu serializes enqueues against Stop: sends happen under the read
	// lock, so the queues are only closed once no sender is mid-send.
	stopMu  sync.RWMutex
	stopped bool
}

// NewCommandBus creates a bus with shardCount worker queues of bufferSize.
func NewCommandBus(bufferSize int, shardCount int) *CommandBus {
	if shardCount <= 0 {
		shardCount = 1
	}

	bus := &CommandBus{
		queues:     make([]chan queuedCommand, shardCount),
		handlers:   make(map[string]func(ctx context.Context, command Command) error),
		shardCount: shardCount,
	}

	for i := 0; i < shardCount; i++ {
		bus.queues[i] = make(chan queuedCommand, bufferSize)
		go bus.worker(bus.queues[i])
	}

	return bus
}

// Dispatch enqueues a command for its registered handler and waits for the
// result. Safe for concurrent use, including concurrently with Stop. Returns
// immediately with an error if the bus has been stopped or the context ends
// first.
func (b *CommandBus) Dispatch(ctx context.Context, cmd Command) error {
	responseCh := make(chan error, 1)
	b.wg.Add(1)
	defer b.wg.Done()

	if err := b.enqueue(ctx, queuedCommand{Ctx: ctx, Command: cmd, ResponseCh: responseCh}); err != nil {
		return err
	}

	select {
	case err := <-responseCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *CommandBus) enqueue(ctx context.Context, qc queuedCommand) error {
	b.stopMu.RLock()
	defer b.stopMu.RUnlock()

	if b.stopped {
		return fmt.Errorf("command bus is stopped")
	}

	select {
	case b.queues[b.getShard(qc.Command.AggregateID())] <- qc:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// worker drains a single shard queue.
func (b *CommandBus) worker(queue chan queuedCommand) {
	for cmd := range queue {
		cmdName := fmt.Sprintf("%T", cmd.Command)

		b.mu.RLock()
		h, exists := b.handlers[cmdName]
		b.mu.RUnlock()

		if !exists {
			cmd.ResponseCh <- fmt.Errorf("no handler for command %s", cmdName)
			continue
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					cmd.ResponseCh <- fmt.Errorf("panic in handler: %v", r)
				}
			}()

			cmd.ResponseCh <- h(cmd.Ctx, cmd.Command)
		}()
	}
}

func (b *CommandBus) getShard(aggregateID string) int {
	hash := fnv.New32a()
	hash.Write([]byte(aggregateID))
	return int(hash.Sum32()) % b.shardCount
}

// Register adds a typed command handler to the bus. The command type name is
// derived automatically; registering two handlers for the same command type
// panics, as that is a wiring error.
func Register[C Command](b *CommandBus, handler CommandHandler[C]) {
	var zero C
	cmdName := fmt.Sprintf("%T", zero)
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[cmdName]; exists {
		panic(fmt.Sprintf("handler already registered for command type %s", cmdName))
	}

	b.handlers[cmdName] = func(ctx context.Context, cmd Command) error {
		c, ok := cmd.(C)
		if !ok {
			return fmt.Errorf("expected command type %s but got %T", cmdName, cmd)
		}
		return handler(ctx, c)
	}
}

// Stop shuts the bus down: no new commands are accepted, the shard queues
// are closed, and Stop blocks until in-flight commands finish. Idempotent.
func (b *CommandBus) Stop() {
	b.stopMu.Lock()
	if b.stopped {
		b.stopMu.Unlock()
		return
	}
	b.stopped = true
	b.stopMu.Unlock()

	for _, q := range b.queues {
		close(q)
	}
	b.wg.Wait()
}
