package kernel

import (
	"testing"
	"time"
)

const testTimeout = time.Second

func TestScheduler_RunsThreadToCompletion(tt *testing.T) {
	tt.Parallel()

	cpu := NewScheduler(0, WithQuantum(time.Millisecond))
	cpu.Start()
	defer cpu.Stop()

	proc, _ := NewProcessBuilder("p", nil).Build()

	done := make(chan struct{})
	th := proc.CreateThread("worker", cpu, func(t *Thread) {
		close(done)
	}, 0, 0)

	if err := th.Start(); err != nil {
		tt.Fatalf("Start: %v", err)
	}

	select {
	case <-done:
	case <-time.After(testTimeout):
		tt.Fatalf("thread entry never ran")
	}

	deadline := time.Now().Add(testTimeout)
	for proc.State() != ProcessExited {
		if time.Now().After(deadline) {
			tt.Fatalf("process never reached Exited, stuck at %s", proc.State())
		}

		time.Sleep(time.Millisecond)
	}
}

func TestScheduler_FairnessAcrossYieldingThreads(tt *testing.T) {
	tt.Parallel()

	cpu := NewScheduler(1, WithQuantum(time.Millisecond))
	cpu.Start()
	defer cpu.Stop()

	proc, _ := NewProcessBuilder("p", nil).Build()

	const rounds = 20

	counts := make([]int, 3)
	finished := make(chan struct{})
	var remaining = len(counts)

	for i := range counts {
		i := i

		th := proc.CreateThread("t", cpu, func(t *Thread) {
			for r := 0; r < rounds; r++ {
				counts[i]++
				t.Yield()
			}

			finished <- struct{}{}
		}, 0, 0)

		if err := th.Start(); err != nil {
			tt.Fatalf("Start: %v", err)
		}
	}

	deadline := time.After(testTimeout)

	for remaining > 0 {
		select {
		case <-finished:
			remaining--
		case <-deadline:
			tt.Fatalf("threads did not finish within timeout")
		}
	}

	for i, c := range counts {
		if c != rounds {
			tt.Fatalf("thread %d ran %d rounds, want %d", i, c, rounds)
		}
	}
}

func TestScheduler_CheckPreemptYieldsWhenArmed(tt *testing.T) {
	tt.Parallel()

	cpu := NewScheduler(2, WithQuantum(time.Millisecond))
	cpu.Start()
	defer cpu.Stop()

	proc, _ := NewProcessBuilder("p", nil).Build()

	spun := make(chan struct{})

	th := proc.CreateThread("spinner", cpu, func(t *Thread) {
		for i := 0; i < 10_000; i++ {
			t.CheckPreempt()
		}

		close(spun)
	}, 0, 0)

	if err := th.Start(); err != nil {
		tt.Fatalf("Start: %v", err)
	}

	select {
	case <-spun:
	case <-time.After(testTimeout):
		tt.Fatalf("spinning thread never completed despite preemption checkpoints")
	}
}
