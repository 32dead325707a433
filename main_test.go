package main_test

import (
	"context"
	"testing"
	"time"

	"github.com/lihanrui2913/radon-os-sub001/internal/kernel"
	"github.com/lihanrui2913/radon-os-sub001/internal/log"
)

// timeout is how long to wait for the scheduler to settle. It is very
// likely to take less than 200ms.
const timeout = 1 * time.Second

// TestMain boots a scheduler, spawns a process with one yielding
// thread, and checks that the process transitions to Exited once that
// thread finishes -- an end-to-end smoke test running a whole simulated
// program to completion against a timeout.
func TestMain(tt *testing.T) {
	log.LogLevel.Set(log.LevelError)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cpu := kernel.NewScheduler(0)
	cpu.Start()

	defer cpu.Stop()

	proc, _ := kernel.NewProcessBuilder("test", nil).Build()

	done := make(chan struct{})

	thread := proc.CreateThread("worker", cpu, func(t *kernel.Thread) {
		for i := 0; i < 10; i++ {
			t.CheckPreempt()
			t.Yield()
		}
	}, 0, 0)

	if err := thread.Start(); err != nil {
		tt.Fatalf("start: %s", err)
	}

	go func() {
		for proc.State() != kernel.ProcessExited {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Millisecond):
			}
		}

		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		tt.Errorf("timed out waiting for process to exit: %s", ctx.Err())
	}
}
