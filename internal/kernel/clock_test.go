package kernel

import (
	"testing"
	"time"
)

func TestMonotonicNow_Advances(tt *testing.T) {
	tt.Parallel()

	a := MonotonicNow()
	time.Sleep(time.Millisecond)
	b := MonotonicNow()

	if b <= a {
		tt.Fatalf("expected MonotonicNow to advance, got a=%d b=%d", a, b)
	}
}

func TestMonotonicDeadline_NegativeIsInfinite(tt *testing.T) {
	tt.Parallel()

	d := MonotonicDeadline(-1)
	if d.Kind != DeadlineInfinite {
		tt.Fatalf("expected DeadlineInfinite for a negative timeout, got %v", d.Kind)
	}
}

func TestMonotonicDeadline_PositiveIsAbsoluteInTheFuture(tt *testing.T) {
	tt.Parallel()

	d := MonotonicDeadline(10 * time.Millisecond)
	if d.Kind != DeadlineAbsolute {
		tt.Fatalf("expected DeadlineAbsolute, got %v", d.Kind)
	}

	if !d.At.After(time.Now()) {
		tt.Fatalf("expected deadline to be in the future")
	}
}
