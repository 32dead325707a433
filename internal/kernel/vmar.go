package kernel

import "sync"

// MapFlags is the protection/purpose mask for a VMAR mapping (spec §4.3).
type MapFlags uint32

const (
	MapRead MapFlags = 1 << iota
	MapWrite
	MapExecute
)

// mapping is one non-overlapping [VA, VA+Length) region backed by a VMO
// slice, the unit the VMAR's page table tracks.
type mapping struct {
	va     uint64
	length uint64
	vmo    *Vmo
	vmoOff uint64
	flags  MapFlags
}

func (m mapping) end() uint64 { return m.va + m.length }

func overlaps(a, b mapping) bool {
	return a.va < b.end() && b.va < a.end()
}

// Vmar is a process' virtual-address region, owning the mappings that
// stand in for a page table in this simulation (spec §4.3). Grounded in
// idiom on gvisor's pkg/sentry/mm address-space split and on biscuit's
// Vm_t (vm/as.go), which likewise guards the mapping list and page table
// behind a single mutex.
type Vmar struct {
	Base

	mu       sync.Mutex
	base     uint64
	size     uint64
	mappings []mapping
}

func (v *Vmar) Type() ObjectType { return ObjectVmar }

// NewRootVmar creates the root VMAR for a process, spanning the user
// address space of spec §6.
func NewRootVmar(base, size uint64) *Vmar {
	return &Vmar{base: base, size: size}
}

func pageAligned(n uint64) bool { return n%PageSize == 0 }

// Map installs page-table entries resolving [va, va+length) to vmo's
// frames starting at vmoOffset. All operations are page-aligned and
// intra-VMAR bounded; overlapping mappings are rejected (spec §4.3).
func (v *Vmar) Map(vmo *Vmo, vmoOffset, length uint64, flags MapFlags, va uint64) (uint64, error) {
	if !pageAligned(length) || !pageAligned(va) || length == 0 {
		return 0, NewError("vmar.map", StatusInvalidArgument, nil)
	}

	if vmoOffset+length > vmo.Size() {
		return 0, NewError("vmar.map", StatusInvalidArgument, nil)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if va < v.base || va+length > v.base+v.size {
		return 0, NewError("vmar.map", StatusInvalidArgument, nil)
	}

	candidate := mapping{va: va, length: length, vmo: vmo, vmoOff: vmoOffset, flags: flags}

	for _, existing := range v.mappings {
		if overlaps(existing, candidate) {
			return 0, NewError("vmar.map", StatusInvalidArgument, nil)
		}
	}

	v.mappings = append(v.mappings, candidate)

	return va, nil
}

// Unmap tears down the mapping(s) covering [va, va+length).
func (v *Vmar) Unmap(va, length uint64) error {
	if !pageAligned(length) || !pageAligned(va) {
		return NewError("vmar.unmap", StatusInvalidArgument, nil)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	target := mapping{va: va, length: length}

	kept := v.mappings[:0]
	found := false

	for _, m := range v.mappings {
		if overlaps(m, target) {
			found = true
			continue
		}

		kept = append(kept, m)
	}

	v.mappings = kept

	if !found {
		return NewError("vmar.unmap", StatusInvalidArgument, nil)
	}

	return nil
}

// Protect updates the permission flags of the mapping that spans exactly
// [va, va+length). A range covering only part of a mapping, or several
// mappings, is rejected with InvalidArgument.
func (v *Vmar) Protect(va, length uint64, flags MapFlags) error {
	if !pageAligned(length) || !pageAligned(va) {
		return NewError("vmar.protect", StatusInvalidArgument, nil)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for i, m := range v.mappings {
		if m.va == va && m.length == length {
			v.mappings[i].flags = flags
			return nil
		}
	}

	return NewError("vmar.protect", StatusInvalidArgument, nil)
}

// Translate resolves va to the backing VMO and offset for the mapping
// containing it, used by the fault path and by test harnesses that want
// to assert what backs a given address without a real MMU.
func (v *Vmar) Translate(va uint64) (*Vmo, uint64, MapFlags, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, m := range v.mappings {
		if va >= m.va && va < m.end() {
			return m.vmo, m.vmoOff + (va - m.va), m.flags, true
		}
	}

	return nil, 0, 0, false
}
