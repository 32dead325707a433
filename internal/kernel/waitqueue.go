package kernel

import (
	"container/list"
	"sync"
	"time"
)

// WaitQueue parks threads blocked on an object's event (spec §4.2, §5). It
// is grounded directly on kernel/src/object/wait_queue.rs: a deque of weak
// thread references so a thread that exits while parked is simply skipped
// on wake rather than leaving a dangling pointer.
type WaitQueue struct {
	mu      sync.Mutex
	waiters list.List // of *waiter
}

type waiter struct {
	thread *Thread

	// claimed is set, under q.mu, by whichever of WakeOne/WakeAll/the
	// deadline timer first removes this waiter from the list, so the
	// other can't also unblock it. timedOut additionally marks that the
	// claim came from the deadline timer rather than an explicit wake.
	claimed  bool
	timedOut bool
}

// Wait parks t on the queue, marks it Blocked and asks the scheduler to
// pick something else to run. The caller must not hold any other object's
// lock: the protocol is lock-the-object, arm-the-wait-entry, drop-the-lock,
// then schedule (spec §5).
func (q *WaitQueue) Wait(t *Thread) {
	q.waitDeadline(t, nil)
}

// WaitDeadline parks t as Wait does, but if deadline is a DeadlineAbsolute
// deadline, also arms a timer that wakes t on expiry. It reports whether
// the wait ended because the deadline elapsed rather than an explicit
// Wake (spec §4.5/§5: timed waits return on expiry instead of blocking
// forever).
func (q *WaitQueue) WaitDeadline(t *Thread, deadline Deadline) bool {
	if deadline.Kind != DeadlineAbsolute {
		q.waitDeadline(t, nil)
		return false
	}

	at := deadline.At

	return q.waitDeadline(t, &at)
}

func (q *WaitQueue) waitDeadline(t *Thread, until *time.Time) bool {
	w := &waiter{thread: t}

	q.mu.Lock()
	elem := q.waiters.PushBack(w)
	q.mu.Unlock()

	var timer *time.Timer

	if until != nil {
		d := time.Until(*until)
		if d < 0 {
			d = 0
		}

		timer = time.AfterFunc(d, func() {
			q.mu.Lock()
			fire := !w.claimed
			if fire {
				w.claimed = true
				w.timedOut = true
				q.waiters.Remove(elem)
			}
			q.mu.Unlock()

			if fire {
				t.scheduler().unblock(t)
			}
		})
	}

	t.scheduler().block(t)

	// If we were woken concurrently with being blocked, unblock already
	// re-queued us; either way we park here until scheduled again.
	t.parkUntilRunning()

	if timer != nil {
		timer.Stop()
	}

	q.mu.Lock()
	timedOut := w.timedOut
	q.waiters.Remove(elem)
	q.mu.Unlock()

	return timedOut
}

// WakeOne upgrades the front live thread and marks it Ready. It reports
// whether a thread was woken.
func (q *WaitQueue) WakeOne() bool {
	for {
		q.mu.Lock()

		front := q.waiters.Front()
		if front == nil {
			q.mu.Unlock()
			return false
		}

		w := front.Value.(*waiter)
		w.claimed = true
		q.waiters.Remove(front)
		q.mu.Unlock()

		if w.thread.State() == ThreadExited {
			continue
		}

		w.thread.scheduler().unblock(w.thread)

		return true
	}
}

// WakeAll drains the queue, waking every live thread.
func (q *WaitQueue) WakeAll() int {
	var drained []*waiter

	q.mu.Lock()
	for e := q.waiters.Front(); e != nil; {
		next := e.Next()
		w := e.Value.(*waiter)
		w.claimed = true
		drained = append(drained, w)
		q.waiters.Remove(e)
		e = next
	}
	q.mu.Unlock()

	count := 0

	for _, w := range drained {
		if w.thread.State() == ThreadExited {
			continue
		}

		w.thread.scheduler().unblock(w.thread)
		count++
	}

	return count
}

// HasWaiters reports whether any thread is currently parked.
func (q *WaitQueue) HasWaiters() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.waiters.Len() > 0
}
