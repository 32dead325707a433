package kernel

import "sync"

// Message is one Channel datagram: bytes plus any transferred handle
// entries (spec §3). Handles are moved, not copied: they're removed from
// the sender's table atomically with enqueuing and inserted into the
// receiver's table on recv, with their original rights preserved.
type Message struct {
	Data    []byte
	Handles []Entry
}

// Channel is a bidirectional, reliable, ordered datagram pipe (spec
// §4.4), grounded on libradon/src/channel.rs's Channel/ChannelPair and on
// the fuchsia serve.go service-channel idiom for the "one endpoint
// enqueues onto its peer's inbox" shape. Each endpoint is its own
// *Endpoint; the Channel type exists only to construct a connected pair.
type Channel struct{}

// Endpoint is one side of a Channel (spec §3: "each endpoint owns a FIFO
// of messages destined for it").
type Endpoint struct {
	Base

	mu     sync.Mutex
	inbox  []Message
	peer   *Endpoint
	closed bool

	readable *WaitQueue
}

func (e *Endpoint) Type() ObjectType { return ObjectChannel }

// NewChannelPair creates two connected endpoints; A's Send enqueues onto
// B's inbox and vice versa (spec §4.4).
func NewChannelPair() (*Endpoint, *Endpoint) {
	a := &Endpoint{readable: &WaitQueue{}}
	b := &Endpoint{readable: &WaitQueue{}}
	a.peer = b
	b.peer = a

	b.Signals().Set(SignalWritable)
	a.Signals().Set(SignalWritable)

	return a, b
}

// Send delivers bytes and handles atomically to the peer's inbox. Fails
// with EBADF if any handle lacks TRANSFER -- and, per spec §8 boundary
// behavior, no handle in the batch is moved when that check fails. Fails
// with EPIPE if the peer has been closed.
func (e *Endpoint) Send(data []byte, handleTable *HandleTable, handles []Handle) error {
	var entries []Entry

	if len(handles) > 0 {
		var err error

		entries, err = handleTable.TransferMany(handles)
		if err != nil {
			return NewError("channel.send", StatusBadHandle, err)
		}
	}

	e.mu.Lock()
	peer := e.peer
	e.mu.Unlock()

	if peer == nil {
		handleTable.ReceiveMany(entries)
		return NewError("channel.send", StatusPeerClosed, nil)
	}

	peer.mu.Lock()
	if peer.closed {
		peer.mu.Unlock()
		handleTable.ReceiveMany(entries)
		return NewError("channel.send", StatusPeerClosed, nil)
	}

	msg := Message{Data: append([]byte(nil), data...), Handles: entries}
	peer.inbox = append(peer.inbox, msg)
	peer.mu.Unlock()

	peer.Signals().Set(SignalReadable)
	peer.readable.WakeOne()

	return nil
}

// peekSizes reports the byte and handle count of the head message without
// removing it, used to implement the EMSGSIZE-without-dequeue open
// question decision (spec §9, SPEC_FULL.md).
func (e *Endpoint) peekSizes() (dataLen, handleCount int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.inbox) == 0 {
		return 0, 0, false
	}

	head := e.inbox[0]

	return len(head.Data), len(head.Handles), true
}

// dequeue removes and returns the head message, plus whether the inbox is
// now empty.
func (e *Endpoint) dequeue() (Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.inbox) == 0 {
		return Message{}, false
	}

	msg := e.inbox[0]
	e.inbox = e.inbox[1:]

	if len(e.inbox) == 0 {
		e.Signals().Clear(SignalReadable)
	}

	return msg, true
}

// TryRecv is the non-blocking variant of Recv: it fails with WouldBlock
// instead of parking the calling thread when the inbox is empty.
func (e *Endpoint) TryRecv(dataBuf []byte, handleCap int, handleTable *HandleTable) (int, []Handle, error) {
	dataLen, handleCount, ok := e.peekSizes()
	if !ok {
		if e.Signals().Get().Has(SignalPeerClosed) {
			return 0, nil, NewError("channel.try_recv", StatusPeerClosed, nil)
		}

		return 0, nil, NewError("channel.try_recv", StatusWouldBlock, nil)
	}

	if dataLen > len(dataBuf) || handleCount > handleCap {
		return 0, nil, NewError("channel.try_recv", StatusMessageTooLarge, nil)
	}

	msg, _ := e.dequeue()
	n := copy(dataBuf, msg.Data)
	hs := handleTable.ReceiveMany(msg.Handles)

	return n, hs, nil
}

// Recv blocks until a message is available or the peer has closed with an
// empty inbox (EPIPE). t is the calling thread, used to park it on the
// readable wait queue (spec §4.4, §5).
func (e *Endpoint) Recv(t *Thread, dataBuf []byte, handleCap int, handleTable *HandleTable) (int, []Handle, error) {
	for {
		n, hs, err := e.TryRecv(dataBuf, handleCap, handleTable)
		if err == nil {
			return n, hs, nil
		}

		var kerr *Error
		if ke, ok := err.(*Error); ok {
			kerr = ke
		}

		if kerr == nil || kerr.Status != StatusWouldBlock {
			return 0, nil, err
		}

		e.readable.Wait(t)
	}
}

// Close tears down this endpoint: it marks PEER_CLOSED on the peer and
// leaves the peer's inbox intact so queued messages still drain to the
// receiver (spec §3 invariant: "closing one endpoint sets PEER_CLOSED on
// the other and drains its queue to the receiver"). Any thread blocked in
// the peer's Recv is woken so it can observe PEER_CLOSED once its queue
// empties (spec S1).
func (e *Endpoint) Close() {
	e.mu.Lock()
	peer := e.peer
	e.closed = true
	e.peer = nil
	e.mu.Unlock()

	if peer == nil {
		return
	}

	peer.mu.Lock()
	peer.peer = nil
	peer.mu.Unlock()

	peer.Signals().Set(SignalPeerClosed)
	peer.Signals().Clear(SignalWritable)
	peer.readable.WakeAll()
}
