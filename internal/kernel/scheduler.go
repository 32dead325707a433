package kernel

import (
	"sync"
	"time"

	"github.com/lihanrui2913/radon-os-sub001/internal/log"
)

// DefaultQuantum is the period between preemption ticks -- the simulated
// analog of the LAPIC timer interrupt of spec §4.6/§5.
const DefaultQuantum = 4 * time.Millisecond

// Scheduler is one CPU's independent run queue (spec §4.6): "each CPU
// owns an independent Scheduler holding a runnable FIFO." CPUs never
// share a queue or a lock; cross-CPU wake enqueues onto the *target*
// CPU's queue through that CPU's own lock (spec §5, §9 "Global scheduler
// state"). Grounded in idiom on biscuit's per-CPU trap/run-queue handling
// (kernel/main.go) and on the original kernel's task scheduler
// (kernel/src/smp/mod.rs).
type Scheduler struct {
	ID int

	mu      sync.Mutex
	queue   []*Thread
	current *Thread
	idle    *Thread

	quantum time.Duration
	stop    chan struct{}
	log     *log.Logger

	runs uint64 // count of schedule() hand-offs, reported by Runs
}

// NewScheduler creates CPU id's scheduler. Call Start to launch its run
// loop and preemption timer.
func NewScheduler(id int, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		ID:      id,
		quantum: DefaultQuantum,
		stop:    make(chan struct{}),
		log:     log.DefaultLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	idleProc := &Process{name: "idle"}
	s.idle = NewThread("idle", idleProc, s, idleEntry, 0, 0)
	s.idle.isIdle = true
	s.idle.setState(ThreadReady)

	return s
}

type SchedulerOption func(*Scheduler)

// WithQuantum overrides the preemption tick period.
func WithQuantum(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.quantum = d }
}

func idleEntry(t *Thread) {
	for {
		select {
		case <-t.cpu.stop:
			return
		case <-time.After(time.Millisecond):
			t.Yield()
		}
	}
}

// Start launches the CPU's scheduling loop and its periodic preemption
// timer (spec §4.6).
func (s *Scheduler) Start() {
	go s.idle.run()
	go s.loop()
	go s.tick()
}

// Stop halts the scheduler after its current hand-off completes.
func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) loop() {
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		t := s.pickNext()

		t.setState(ThreadRunning)
		s.setCurrent(t)

		t.resume <- struct{}{}
		msg := <-t.control

		s.setCurrent(nil)

		s.mu.Lock()
		s.runs++
		s.mu.Unlock()

		switch msg {
		case controlYielded, controlBlocked, controlExited:
			// Yielded threads were already re-enqueued by requeue()
			// before signaling; blocked/exited threads need no further
			// bookkeeping here.
		}
	}
}

func (s *Scheduler) tick() {
	ticker := time.NewTicker(s.quantum)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			cur := s.current
			s.mu.Unlock()

			if cur != nil && cur != s.idle {
				select {
				case cur.preempt <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (s *Scheduler) setCurrent(t *Thread) {
	s.mu.Lock()
	s.current = t
	s.mu.Unlock()
}

func (s *Scheduler) pickNext() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return s.idle
	}

	t := s.queue[0]
	s.queue = s.queue[1:]

	return t
}

// enqueue appends t to the back of the ready queue.
func (s *Scheduler) enqueue(t *Thread) {
	s.mu.Lock()
	s.queue = append(s.queue, t)
	s.mu.Unlock()
}

// requeue is enqueue under the name used by a thread yielding back to the
// scheduler; it's the same operation, kept distinct for readability at
// call sites.
func (s *Scheduler) requeue(t *Thread) { s.enqueue(t) }

// block transitions t to Blocked. The caller (WaitQueue.Wait) must not
// hold any object lock when it subsequently parks the thread's goroutine
// (spec §5).
func (s *Scheduler) block(t *Thread) {
	t.setState(ThreadBlocked)
}

// unblock transitions t to Ready and enqueues it on its home CPU.
func (s *Scheduler) unblock(t *Thread) {
	t.setState(ThreadReady)
	s.enqueue(t)
}

// QueueLen reports the number of Ready threads waiting (excluding idle),
// for tests and the monitor.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.queue)
}

// Runs reports how many schedule() hand-offs this CPU has performed.
func (s *Scheduler) Runs() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.runs
}
