package kernel

import (
	"time"

	"golang.org/x/sys/unix"
)

// MonotonicNow returns the current monotonic clock reading in
// nanoseconds (spec §4.7 clock_get_monotonic), taken from
// CLOCK_MONOTONIC rather than time.Now() so it can never observe a
// wall-clock step, using golang.org/x/sys/unix for the low-level host
// call.
func MonotonicNow() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return time.Now().UnixNano()
	}

	return ts.Nano()
}

// MonotonicDeadline converts a relative timeout into an AbsoluteDeadline
// anchored to the monotonic clock, or InfiniteDeadline when timeout is
// negative (spec §4.5 Port::wait).
func MonotonicDeadline(timeout time.Duration) Deadline {
	if timeout < 0 {
		return InfiniteDeadline()
	}

	return AbsoluteDeadline(time.Now().Add(timeout))
}
