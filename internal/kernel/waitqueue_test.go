package kernel

import (
	"testing"
	"time"
)

func TestWaitQueue_WakeOneWakesInFIFOOrder(tt *testing.T) {
	tt.Parallel()

	cpu := NewScheduler(40, WithQuantum(time.Millisecond))
	cpu.Start()
	defer cpu.Stop()

	proc, _ := NewProcessBuilder("p", nil).Build()

	var q WaitQueue

	order := make(chan string, 2)

	first := proc.CreateThread("first", cpu, func(t *Thread) {
		q.Wait(t)
		order <- "first"
	}, 0, 0)

	second := proc.CreateThread("second", cpu, func(t *Thread) {
		q.Wait(t)
		order <- "second"
	}, 0, 0)

	if err := first.Start(); err != nil {
		tt.Fatalf("Start: %v", err)
	}

	time.Sleep(3 * time.Millisecond)

	if err := second.Start(); err != nil {
		tt.Fatalf("Start: %v", err)
	}

	time.Sleep(3 * time.Millisecond)

	if !q.WakeOne() {
		tt.Fatalf("expected WakeOne to find a waiter")
	}

	select {
	case got := <-order:
		if got != "first" {
			tt.Fatalf("got %q woken first, want %q (FIFO)", got, "first")
		}
	case <-time.After(testTimeout):
		tt.Fatalf("no thread woke")
	}

	if !q.WakeOne() {
		tt.Fatalf("expected WakeOne to find the second waiter")
	}

	select {
	case got := <-order:
		if got != "second" {
			tt.Fatalf("got %q, want %q", got, "second")
		}
	case <-time.After(testTimeout):
		tt.Fatalf("second thread never woke")
	}
}

func TestWaitQueue_WakeAllDrainsEveryWaiter(tt *testing.T) {
	tt.Parallel()

	cpu := NewScheduler(41, WithQuantum(time.Millisecond))
	cpu.Start()
	defer cpu.Stop()

	proc, _ := NewProcessBuilder("p", nil).Build()

	var q WaitQueue

	const n = 4

	woken := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		th := proc.CreateThread("w", cpu, func(t *Thread) {
			q.Wait(t)
			woken <- struct{}{}
		}, 0, 0)

		if err := th.Start(); err != nil {
			tt.Fatalf("Start: %v", err)
		}
	}

	time.Sleep(5 * time.Millisecond)

	if count := q.WakeAll(); count != n {
		tt.Fatalf("WakeAll returned %d, want %d", count, n)
	}

	for i := 0; i < n; i++ {
		select {
		case <-woken:
		case <-time.After(testTimeout):
			tt.Fatalf("only %d of %d waiters woke", i, n)
		}
	}
}

func TestWaitQueue_WakeOneOnEmptyQueueReturnsFalse(tt *testing.T) {
	tt.Parallel()

	var q WaitQueue
	if q.WakeOne() {
		tt.Fatalf("expected WakeOne on an empty queue to return false")
	}

	if q.HasWaiters() {
		tt.Fatalf("expected HasWaiters false on an empty queue")
	}
}

func TestWaitQueue_WaitDeadlineExpiresWithNoWake(tt *testing.T) {
	tt.Parallel()

	cpu := NewScheduler(42, WithQuantum(time.Millisecond))
	cpu.Start()
	defer cpu.Stop()

	proc, _ := NewProcessBuilder("p", nil).Build()

	var q WaitQueue

	result := make(chan bool, 1)

	th := proc.CreateThread("t", cpu, func(t *Thread) {
		result <- q.WaitDeadline(t, AbsoluteDeadline(time.Now().Add(5*time.Millisecond)))
	}, 0, 0)

	if err := th.Start(); err != nil {
		tt.Fatalf("Start: %v", err)
	}

	select {
	case timedOut := <-result:
		if !timedOut {
			tt.Fatalf("expected WaitDeadline to report a timeout")
		}
	case <-time.After(testTimeout):
		tt.Fatalf("WaitDeadline never returned; deadline was never enforced")
	}

	if q.HasWaiters() {
		tt.Fatalf("expected the queue to be empty after the deadline fired")
	}
}

func TestWaitQueue_WakeOneBeforeDeadlineWinsOverTimeout(tt *testing.T) {
	tt.Parallel()

	cpu := NewScheduler(43, WithQuantum(time.Millisecond))
	cpu.Start()
	defer cpu.Stop()

	proc, _ := NewProcessBuilder("p", nil).Build()

	var q WaitQueue

	result := make(chan bool, 1)

	th := proc.CreateThread("t", cpu, func(t *Thread) {
		result <- q.WaitDeadline(t, AbsoluteDeadline(time.Now().Add(time.Hour)))
	}, 0, 0)

	if err := th.Start(); err != nil {
		tt.Fatalf("Start: %v", err)
	}

	time.Sleep(3 * time.Millisecond)

	if !q.WakeOne() {
		tt.Fatalf("expected WakeOne to find the waiter")
	}

	select {
	case timedOut := <-result:
		if timedOut {
			tt.Fatalf("expected an explicit wake, not a reported timeout")
		}
	case <-time.After(testTimeout):
		tt.Fatalf("WaitDeadline never returned")
	}
}
