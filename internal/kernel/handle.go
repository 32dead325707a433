package kernel

import "sync"

// Rights is the bitmask of operations a Handle grants on its object (spec
// §3). Bit layout is grounded on kernel/src/object/handle.rs's bitflags.
type Rights uint32

const (
	RightRead Rights = 1 << iota
	RightWrite
	RightExecute
	RightMap
	RightDuplicate
	RightTransfer
	RightWait
	RightSignal
	RightManage

	RightsBasic Rights = RightRead | RightWrite | RightWait
	RightsAll   Rights = ^Rights(0)
)

func (r Rights) Has(required Rights) bool { return r&required == required }

// Handle is a process-local, non-zero name for a shared owning reference
// to an object (spec §3). Zero is reserved as "invalid".
type Handle uint32

const InvalidHandle Handle = 0

func (h Handle) Valid() bool { return h != InvalidHandle }

// Entry is one handle table row: the object reference plus the rights
// granted through this particular handle (one object may be referenced by
// several handles, each with independently-reduced rights).
type Entry struct {
	Object Object
	Rights Rights
}

// HandleTable is the per-process map from Handle to Entry (spec §4.1). Ids
// are strictly monotonic and never recycled, so a stale handle from a
// freed slot can never alias a live object (spec §8 invariant 6).
type HandleTable struct {
	mu      sync.Mutex
	entries map[Handle]Entry
	nextID  uint32
}

// NewHandleTable creates an empty table. Handle ids start at 1; 0 is
// reserved as invalid.
func NewHandleTable() *HandleTable {
	return &HandleTable{
		entries: make(map[Handle]Entry),
		nextID:  1,
	}
}

// Insert allocates a new handle bound to obj with rights.
func (t *HandleTable) Insert(obj Object, rights Rights) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.insertLocked(obj, rights)
}

func (t *HandleTable) insertLocked(obj Object, rights Rights) Handle {
	h := Handle(t.nextID)
	t.nextID++
	t.entries[h] = Entry{Object: obj, Rights: rights}

	return h
}

// Get looks up h, failing with BadHandle if h isn't present or doesn't
// carry every bit of required.
func (t *HandleTable) Get(h Handle, required Rights) (Object, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]
	if !ok {
		return nil, NewError("handle.get", StatusBadHandle, nil)
	}

	if !e.Rights.Has(required) {
		return nil, NewError("handle.get", StatusBadHandle, nil)
	}

	return e.Object, nil
}

// GetEntry returns the raw entry (object + rights) without a rights check.
func (t *HandleTable) GetEntry(h Handle) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]

	return e, ok
}

// Remove deletes h, returning its entry if present.
func (t *HandleTable) Remove(h Handle) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]
	if ok {
		delete(t.entries, h)
	}

	return e, ok
}

// Duplicate creates a new handle to the same object as h, with rights
// reduced to the intersection of h's current rights and newRights.
// Requires DUPLICATE on h.
func (t *HandleTable) Duplicate(h Handle, newRights Rights) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]
	if !ok {
		return InvalidHandle, NewError("handle.duplicate", StatusBadHandle, nil)
	}

	if !e.Rights.Has(RightDuplicate) {
		return InvalidHandle, NewError("handle.duplicate", StatusBadHandle, nil)
	}

	return t.insertLocked(e.Object, e.Rights&newRights), nil
}

// TransferMany removes every handle in hs from the table atomically:
// every handle is checked for TRANSFER before any is removed, so a single
// missing right fails the whole batch with no handle moved (spec §4.1,
// §8 boundary behavior).
func (t *HandleTable) TransferMany(hs []Handle) ([]Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, h := range hs {
		e, ok := t.entries[h]
		if !ok || !e.Rights.Has(RightTransfer) {
			return nil, NewError("handle.transfer_many", StatusBadHandle, nil)
		}
	}

	out := make([]Entry, 0, len(hs))

	for _, h := range hs {
		out = append(out, t.entries[h])
		delete(t.entries, h)
	}

	return out, nil
}

// ReceiveMany inserts a batch of transferred entries, returning the new
// handle for each in order.
func (t *HandleTable) ReceiveMany(entries []Entry) []Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Handle, 0, len(entries))
	for _, e := range entries {
		out = append(out, t.insertLocked(e.Object, e.Rights))
	}

	return out
}

// Len reports the number of live handles.
func (t *HandleTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

// Clear empties the table, dropping every entry (used on process exit).
// It returns the dropped entries so the caller can release any last
// owning reference.
func (t *HandleTable) Clear() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}

	t.entries = make(map[Handle]Entry)

	return out
}
