package kernel

import (
	"sync"
	"time"
)

// BindMode controls whether a Port binding survives past its first firing
// (spec §4.5).
type BindMode int

const (
	BindPersistent BindMode = iota
	BindOnce
)

// PacketType distinguishes signal-transition packets from user-injected
// ones.
type PacketType int

const (
	PacketSignalOne PacketType = iota
	PacketSignalRep
	PacketUser
)

// UserPacketSize pins spec §9's open question: Port::queue_user's payload
// is fixed at 32 bytes.
const UserPacketSize = 32

// Packet is one entry in a Port's queue (spec §4.5).
type Packet struct {
	Key     uint64
	Signals Signals
	Type    PacketType
	User    [UserPacketSize]byte
}

// DeadlineKind distinguishes an infinite wait from one bounded by an
// absolute point in monotonic time.
type DeadlineKind int

const (
	DeadlineInfinite DeadlineKind = iota
	DeadlineAbsolute
)

// Deadline is the wait bound accepted by Port.Wait (spec §4.5, §5).
type Deadline struct {
	Kind DeadlineKind
	At   time.Time // valid when Kind == DeadlineAbsolute
}

func InfiniteDeadline() Deadline { return Deadline{Kind: DeadlineInfinite} }
func AbsoluteDeadline(at time.Time) Deadline {
	return Deadline{Kind: DeadlineAbsolute, At: at}
}

type bindKey struct {
	key    uint64
	object Object
}

type binding struct {
	key    uint64
	object Object
	mask   Signals
	mode   BindMode
	obsKey uint64
}

// Port is an event-aggregation queue: the userspace event-loop primitive
// of spec §4.5, grounded on libdriver's IrqToken/irq.rs notification
// style and on the original kernel's Port (kernel/src/object/mod.rs).
type Port struct {
	Base

	mu       sync.Mutex
	packets  []Packet
	bindings map[bindKey]*binding
	nextObs  uint64

	arrived *WaitQueue
}

func (p *Port) Type() ObjectType { return ObjectPort }

// NewPort creates an empty Port.
func NewPort() *Port {
	return &Port{
		bindings: make(map[bindKey]*binding),
		arrived:  &WaitQueue{},
	}
}

// Bind registers an observer on object: whenever object's signals acquire
// any bit in triggerMask, a packet (key, observed signals) is enqueued;
// in BindOnce mode the observer auto-unbinds after firing (spec §4.5).
func (p *Port) Bind(key uint64, object Object, triggerMask Signals, mode BindMode) {
	p.mu.Lock()
	p.nextObs++
	obsKey := p.nextObs
	bk := bindKey{key: key, object: object}
	p.bindings[bk] = &binding{key: key, object: object, mask: triggerMask, mode: mode, obsKey: obsKey}
	p.mu.Unlock()

	once := mode == BindOnce

	object.Signals().AddObserver(Observer{
		Key:            obsKey,
		TriggerSignals: triggerMask,
		Once:           once,
		Callback: func(observed Signals) {
			p.push(Packet{Key: key, Signals: observed, Type: packetTypeFor(mode)})

			if once {
				p.mu.Lock()
				delete(p.bindings, bk)
				p.mu.Unlock()
			}
		},
	})
}

func packetTypeFor(mode BindMode) PacketType {
	if mode == BindOnce {
		return PacketSignalOne
	}

	return PacketSignalRep
}

// Unbind drops the (key, object) observer, if bound.
func (p *Port) Unbind(key uint64, object Object) {
	bk := bindKey{key: key, object: object}

	p.mu.Lock()
	b, ok := p.bindings[bk]
	if ok {
		delete(p.bindings, bk)
	}
	p.mu.Unlock()

	if ok {
		object.Signals().RemoveObserver(b.obsKey)
	}
}

// QueueUser injects a user-typed packet under key.
func (p *Port) QueueUser(key uint64, payload [UserPacketSize]byte) {
	p.push(Packet{Key: key, Type: PacketUser, User: payload})
}

func (p *Port) push(pk Packet) {
	p.mu.Lock()
	p.packets = append(p.packets, pk)
	p.mu.Unlock()

	p.Signals().Set(SignalReadable)
	p.arrived.WakeOne()
}

// Wait pops up to len(buf) packets, blocking until at least one is
// available or the deadline expires (0 on timeout). A zero-length buf
// returns 0 immediately (spec §8 boundary behavior).
func (p *Port) Wait(t *Thread, buf []Packet, deadline Deadline) int {
	if len(buf) == 0 {
		return 0
	}

	for {
		n := p.drain(buf)
		if n > 0 {
			return n
		}

		if deadline.Kind == DeadlineAbsolute && !time.Now().Before(deadline.At) {
			return 0
		}

		if p.arrived.WaitDeadline(t, deadline) {
			return 0
		}
	}
}

func (p *Port) drain(buf []Packet) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := copy(buf, p.packets)
	p.packets = p.packets[n:]

	if len(p.packets) == 0 {
		p.Signals().Clear(SignalReadable)
	}

	return n
}
