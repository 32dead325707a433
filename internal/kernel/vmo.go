package kernel

import "sync"

const PageSize = 4096

// VmoKind distinguishes the three VMO variants of spec §3.
type VmoKind int

const (
	VmoAnonymous VmoKind = iota
	VmoPhysical
	VmoChild
)

// VmoOptions configure Vmo.Create.
type VmoOptions uint32

const (
	VmoOptionNone   VmoOptions = 0
	VmoOptionCommit VmoOptions = 1 << 0
)

// Vmo is a sized, page-aligned virtual memory object: anonymous
// (optionally pre-committed, demand-paged otherwise), physical (a fixed
// physical range used for MMIO or ACPI tables), or a child slice over a
// parent at an offset (spec §4.3). Grounded in idiom on gvisor's
// pkg/sentry/mm memory-object split, adapted to a byte-addressed,
// page-committed buffer rather than a fixed-size word array.
type Vmo struct {
	Base

	mu   sync.Mutex
	kind VmoKind
	size uint64

	// VmoAnonymous
	pages map[uint64][]byte // committed pages, keyed by page index

	// VmoPhysical
	physBase uint64

	// VmoChild
	parent *Vmo
	offset uint64
}

func (v *Vmo) Type() ObjectType { return ObjectVmo }

// CreateVmo creates an anonymous VMO of the given size. If opts includes
// VmoOptionCommit, every page is eagerly allocated; otherwise pages are
// committed lazily on first write.
func CreateVmo(size uint64, opts VmoOptions) (*Vmo, error) {
	v := &Vmo{
		kind:  VmoAnonymous,
		size:  size,
		pages: make(map[uint64][]byte),
	}

	if opts&VmoOptionCommit != 0 {
		for off := uint64(0); off < size; off += PageSize {
			v.pages[off/PageSize] = make([]byte, PageSize)
		}
	}

	return v, nil
}

// CreatePhysicalVmo wraps a fixed physical address range. It owns no
// frames: reads/writes are serviced from a software-backed shadow buffer
// standing in for the MMIO range in this simulation.
func CreatePhysicalVmo(phys, size uint64) (*Vmo, error) {
	return &Vmo{
		kind:     VmoPhysical,
		size:     size,
		physBase: phys,
		pages:    make(map[uint64][]byte),
	}, nil
}

// CreateChildVmo creates a slice view over parent at [offset, offset+length).
func CreateChildVmo(parent *Vmo, offset, length uint64) (*Vmo, error) {
	parent.mu.Lock()
	parentSize := parent.size
	parent.mu.Unlock()

	if offset+length > parentSize || offset+length < offset {
		return nil, NewError("vmo.create_child", StatusInvalidArgument, nil)
	}

	return &Vmo{
		kind:   VmoChild,
		size:   length,
		parent: parent,
		offset: offset,
	}, nil
}

func (v *Vmo) Kind() VmoKind { return v.kind }

func (v *Vmo) Size() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.size
}

// SetSize resizes an anonymous VMO; other kinds reject resize.
func (v *Vmo) SetSize(size uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.kind != VmoAnonymous {
		return NewError("vmo.set_size", StatusInvalidArgument, nil)
	}

	for pageIdx := range v.pages {
		if pageIdx*PageSize >= size {
			delete(v.pages, pageIdx)
		}
	}

	v.size = size

	return nil
}

// PhysBase returns the base physical address; only defined for the
// physical kind.
func (v *Vmo) PhysBase() (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.kind != VmoPhysical {
		return 0, NewError("vmo.get_phys", StatusInvalidArgument, nil)
	}

	return v.physBase, nil
}

// Read copies Size(len(buf)) bytes starting at offset into buf, clipped
// to the VMO's size (EINVAL on overrun, spec §4.3).
func (v *Vmo) Read(offset uint64, buf []byte) (int, error) {
	if v.kind == VmoChild {
		v.mu.Lock()
		size := v.size
		v.mu.Unlock()

		if offset > size || offset+uint64(len(buf)) > size {
			return 0, NewError("vmo.read", StatusInvalidArgument, nil)
		}

		return v.parent.Read(v.offset+offset, buf)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if offset+uint64(len(buf)) > v.size || offset > v.size {
		return 0, NewError("vmo.read", StatusInvalidArgument, nil)
	}

	n := 0
	for n < len(buf) {
		at := offset + uint64(n)
		pageIdx := at / PageSize
		pageOff := at % PageSize

		page := v.pages[pageIdx]
		count := PageSize - int(pageOff)
		if count > len(buf)-n {
			count = len(buf) - n
		}

		if page != nil {
			copy(buf[n:n+count], page[pageOff:])
		} // else: uncommitted page reads as zero

		n += count
	}

	return n, nil
}

// Write copies buf into the VMO at offset, demand-committing pages for
// the anonymous kind on first touch.
func (v *Vmo) Write(offset uint64, buf []byte) (int, error) {
	if v.kind == VmoChild {
		v.mu.Lock()
		size := v.size
		v.mu.Unlock()

		if offset > size || offset+uint64(len(buf)) > size {
			return 0, NewError("vmo.write", StatusInvalidArgument, nil)
		}

		return v.parent.Write(v.offset+offset, buf)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if offset+uint64(len(buf)) > v.size || offset > v.size {
		return 0, NewError("vmo.write", StatusInvalidArgument, nil)
	}

	n := 0
	for n < len(buf) {
		at := offset + uint64(n)
		pageIdx := at / PageSize
		pageOff := at % PageSize

		page := v.pages[pageIdx]
		if page == nil {
			page = make([]byte, PageSize)
			v.pages[pageIdx] = page
		}

		count := PageSize - int(pageOff)
		if count > len(buf)-n {
			count = len(buf) - n
		}

		copy(page[pageOff:], buf[n:n+count])
		n += count
	}

	return n, nil
}
