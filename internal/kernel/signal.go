package kernel

import "sync"

// Signals is the latched 32-bit signal word carried by every kernel
// object (spec §4.2). Bit layout is grounded on the original
// kernel/src/object/signal.rs bitflags.
type Signals uint32

const (
	SignalReadable   Signals = 1 << 0
	SignalWritable   Signals = 1 << 1
	SignalPeerClosed Signals = 1 << 2
	SignalTerminated Signals = 1 << 3
	SignalSignaled   Signals = 1 << 4

	SignalUser0 Signals = 1 << 24
	SignalUser1 Signals = 1 << 25
	SignalUser2 Signals = 1 << 26
	SignalUser3 Signals = 1 << 27
)

func (s Signals) Has(bits Signals) bool { return s&bits == bits }
func (s Signals) Any(bits Signals) bool { return s&bits != 0 }

// Observer is notified when an object's signal state acquires any bit in
// TriggerSignals. Observer callbacks run with the object's SignalState
// lock held (spec §4.2): they must be short and must not block or take
// another object's lock.
type Observer struct {
	Key            uint64
	TriggerSignals Signals
	Callback       func(Signals)
	Once           bool
}

// SignalState is the signal word and observer list owned by a kernel
// object. It is protected by its own lock, never shared with any other
// object's lock (spec §5).
type SignalState struct {
	mu        sync.Mutex
	signals   Signals
	observers []Observer
}

// Get returns the current signal word.
func (s *SignalState) Get() Signals {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.signals
}

// Set ORs signals into the word and notifies observers whose trigger mask
// intersects the newly-set bits. Bits already set are left alone: signal
// observation is monotonic between explicit Clear calls (spec §8 invariant
// 4).
func (s *SignalState) Set(signals Signals) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.signals
	s.signals |= signals
	changed := s.signals &^ old

	if changed != 0 {
		s.notifyLocked(changed)
	}
}

// Clear ANDs signals away.
func (s *SignalState) Clear(signals Signals) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.signals &^= signals
}

// AddObserver registers an observer. If the object's current signals
// already intersect the trigger mask, the callback fires immediately
// (inline, under the lock) before the observer is stored -- this mirrors
// SignalState::add_observer in the original kernel so a Port bind against
// an already-readable Channel doesn't miss the edge.
func (s *SignalState) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.signals.Any(o.TriggerSignals) {
		o.Callback(s.signals & o.TriggerSignals)

		if o.Once {
			return
		}
	}

	s.observers = append(s.observers, o)
}

// RemoveObserver drops the observer registered under key, if any.
func (s *SignalState) RemoveObserver(key uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.observers[:0]

	for _, o := range s.observers {
		if o.Key != key {
			kept = append(kept, o)
		}
	}

	s.observers = kept
}

func (s *SignalState) notifyLocked(changed Signals) {
	kept := s.observers[:0]

	for _, o := range s.observers {
		if changed.Any(o.TriggerSignals) {
			o.Callback(changed & o.TriggerSignals)

			if o.Once {
				continue
			}
		}

		kept = append(kept, o)
	}

	s.observers = kept
}
