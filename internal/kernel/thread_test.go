package kernel

import (
	"testing"
	"time"
)

func TestThreadState_SchedulableAndCanStart(tt *testing.T) {
	tt.Parallel()

	schedulable := map[ThreadState]bool{
		ThreadCreated: false,
		ThreadReady:   true,
		ThreadRunning: true,
		ThreadBlocked: false,
		ThreadStopped: false,
		ThreadExited:  false,
	}

	for s, want := range schedulable {
		if got := s.Schedulable(); got != want {
			tt.Errorf("%s.Schedulable() = %v, want %v", s, got, want)
		}
	}

	canStart := map[ThreadState]bool{
		ThreadCreated: true,
		ThreadStopped: true,
		ThreadReady:   false,
		ThreadRunning: false,
		ThreadBlocked: false,
		ThreadExited:  false,
	}

	for s, want := range canStart {
		if got := s.CanStart(); got != want {
			tt.Errorf("%s.CanStart() = %v, want %v", s, got, want)
		}
	}
}

func TestNewArchContext_SetsInitialMXCSR(tt *testing.T) {
	tt.Parallel()

	ctx := NewArchContext(0x1000, 0x2000)

	if ctx.IP != 0x1000 || ctx.SP != 0x2000 {
		tt.Fatalf("got IP=%#x SP=%#x", ctx.IP, ctx.SP)
	}

	if ctx.MXCSR != 0x1f80 {
		tt.Fatalf("got MXCSR %#x, want 0x1f80", ctx.MXCSR)
	}
}

func TestThread_StartRejectsUnstartableState(tt *testing.T) {
	tt.Parallel()

	cpu := NewScheduler(60)
	cpu.Start()
	defer cpu.Stop()

	proc, _ := NewProcessBuilder("p", nil).Build()

	done := make(chan struct{})
	th := proc.CreateThread("t", cpu, func(t *Thread) { close(done) }, 0, 0)

	if err := th.Start(); err != nil {
		tt.Fatalf("Start: %v", err)
	}

	<-done

	limit := time.Now().Add(testTimeout)
	for th.State() != ThreadExited {
		if time.Now().After(limit) {
			tt.Fatalf("thread never reached Exited")
		}

		time.Sleep(time.Millisecond)
	}

	if err := th.Start(); err == nil {
		tt.Fatalf("expected Start on an Exited thread to fail")
	}
}
