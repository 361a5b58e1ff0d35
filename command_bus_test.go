package eventsourcing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestCommandBusDispatch(t *testing.T) {
	bus := NewCommandBus(4, 2)
	defer bus.Stop()

	var handled []creditCmd
	var mu sync.Mutex
	Register(bus, func(ctx context.Context, cmd creditCmd) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, cmd)
		return nil
	})

	if err := bus.Dispatch(context.Background(), creditCmd{id: "ledger-1", amount: 1}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 1 || handled[0].amount != 1 {
		t.Errorf("handled = %+v, want the dispatched command", handled)
	}
}

func TestCommandBusHandlerError(t *testing.T) {
	bus := NewCommandBus(1, 1)
	defer bus.Stop()

	rejected := errors.New("rejected")
	Register(bus, func(ctx context.Context, cmd creditCmd) error {
		return rejected
	})

	if err := bus.Dispatch(context.Background(), creditCmd{id: "ledger-1"}); !errors.Is(err, rejected) {
		t.Fatalf("err = %v, want the handler error", err)
	}
}

func TestCommandBusUnregisteredCommand(t *testing.T) {
	bus := NewCommandBus(1, 1)
	defer bus.Stop()

	err := bus.Dispatch(context.Background(), creditCmd{id: "ledger-1"})
	if err == nil || !strings.Contains(err.Error(), "no handler") {
		t.Fatalf("err = %v, want a no-handler error", err)
	}
}

func TestCommandBusRecoverPanic(t *testing.T) {
	bus := NewCommandBus(1, 1)
	defer bus.Stop()

	Register(bus, func(ctx context.Context, cmd creditCmd) error {
		panic("handler blew up")
	})

	err := bus.Dispatch(context.Background(), creditCmd{id: "ledger-1"})
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("err = %v, want a recovered panic error", err)
	}

	// The worker must survive the panic.
	if err := bus.Dispatch(context.Background(), creditCmd{id: "ledger-1"}); err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("worker did not survive the panic: %v", err)
	}
}

func TestCommandBusDuplicateRegistrationPanics(t *testing.T) {
	bus := NewCommandBus(1, 1)
	defer bus.Stop()

	Register(bus, func(ctx context.Context, cmd creditCmd) error { return nil })

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	Register(bus, func(ctx context.Context, cmd creditCmd) error { return nil })
}

func TestCommandBusStopRejectsNewCommands(t *testing.T) {
	bus := NewCommandBus(1, 1)
	Register(bus, func(ctx context.Context, cmd creditCmd) error { return nil })
	bus.Stop()

	if err := bus.Dispatch(context.Background(), creditCmd{id: "ledger-1"}); err == nil {
		t.Fatalf("expected error dispatching to a stopped bus")
	}
}

func TestCommandBusStopDuringDispatch(t *testing.T) {
	bus := NewCommandBus(1, 2)
	Register(bus, func(ctx context.Context, cmd creditCmd) error { return nil })

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			err := bus.Dispatch(context.Background(), creditCmd{id: fmt.Sprintf("ledger-%d", i)})
			// Racing Stop, a dispatch either completes or is refused; it
			// must never panic on a closed queue.
			if err != nil && !strings.Contains(err.Error(), "stopped") {
				t.Errorf("dispatch %d: unexpected error %v", i, err)
			}
		}(i)
	}

	close(start)
	bus.Stop()
	wg.Wait()

	bus.Stop() // idempotent
}

func TestCommandBusSameAggregateSerialized(t *testing.T) {
	bus := NewCommandBus(16, 4)
	defer bus.Stop()

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	Register(bus, func(ctx context.Context, cmd creditCmd) error {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bus.Dispatch(context.Background(), creditCmd{id: "ledger-1", amount: 1})
		}()
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Errorf("maxInFlight = %d, want 1: commands for one aggregate share a worker", maxInFlight)
	}
}
