package kernel

import "sync"

// ProcessState mirrors spec §3/§4.6: a process is Running as long as it
// has at least one schedulable thread, and Exited once its last thread
// has exited. Grounded on kernel/src/task/state.rs's ProcessState enum.
type ProcessState int

const (
	ProcessCreated ProcessState = iota
	ProcessRunning
	ProcessStopped
	ProcessExited
)

func (s ProcessState) String() string {
	switch s {
	case ProcessCreated:
		return "Created"
	case ProcessRunning:
		return "Running"
	case ProcessStopped:
		return "Stopped"
	case ProcessExited:
		return "Exited"
	default:
		return "Unknown"
	}
}

// Process owns a handle table, a root VMAR, a thread set, a name, a
// parent link and an optional bootstrap channel endpoint (spec §4.6).
// Grounded on init/src/program.rs's process+VMAR+VMO wiring and on the
// original kernel's ProcessState; the original's process.rs itself was
// not part of the retrieved source, so the handle-table/VMAR/thread-set
// shape here follows the object model laid out in object/mod.rs instead.
type Process struct {
	Base

	mu      sync.Mutex
	name    string
	state   ProcessState
	parent  *Process
	threads map[*Thread]struct{}

	handles   *HandleTable
	rootVmar  *Vmar
	bootstrap *Endpoint // the "take once" channel handed to a freshly spawned process
	taken     bool
}

func (p *Process) Type() ObjectType { return ObjectProcess }

// ProcessBuilder implements the original's fluent
// Process::create(name).bootstrap(true).build() idiom.
type ProcessBuilder struct {
	name      string
	parent    *Process
	bootstrap bool
}

// NewProcessBuilder starts construction of a process named name, owned
// by parent (nil for the root/bootstrap process).
func NewProcessBuilder(name string, parent *Process) *ProcessBuilder {
	return &ProcessBuilder{name: name, parent: parent}
}

// Bootstrap requests that Build attach a fresh channel endpoint,
// retrievable exactly once via TakeBootstrap, with the peer returned to
// the caller for safekeeping (spec §6 "init receives one channel
// endpoint").
func (b *ProcessBuilder) Bootstrap(on bool) *ProcessBuilder {
	b.bootstrap = on
	return b
}

// Build constructs the process and, when Bootstrap(true) was requested,
// the peer endpoint of its bootstrap channel.
func (b *ProcessBuilder) Build() (*Process, *Endpoint) {
	p := &Process{
		name:     b.name,
		parent:   b.parent,
		state:    ProcessCreated,
		threads:  make(map[*Thread]struct{}),
		handles:  NewHandleTable(),
		rootVmar: NewRootVmar(0, 1<<47),
	}

	var peer *Endpoint

	if b.bootstrap {
		p.bootstrap, peer = NewChannelPair()
	}

	return p, peer
}

func (p *Process) Name() string { return p.name }

func (p *Process) Parent() *Process { return p.parent }

func (p *Process) Handles() *HandleTable { return p.handles }

func (p *Process) RootVmar() *Vmar { return p.rootVmar }

// TakeBootstrap returns the process's bootstrap endpoint the first time
// it's called and an error on every subsequent call (spec §6: the
// channel is a one-shot handoff, mirroring init/src/main.rs reading its
// single startup handle exactly once).
func (p *Process) TakeBootstrap() (*Endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bootstrap == nil || p.taken {
		return nil, NewError("process.take_bootstrap", StatusNotFound, nil)
	}

	p.taken = true

	return p.bootstrap, nil
}

func (p *Process) State() ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// CreateThread builds a thread homed on cpu, owned by this process, and
// registers it in the process's thread set without starting it (spec
// §4.6: "create_thread(name, entry_ip, stack_top, arg)").
func (p *Process) CreateThread(name string, cpu *Scheduler, entry Entry, entryIP, stackTop uintptr) *Thread {
	t := NewThread(name, p, cpu, entry, entryIP, stackTop)

	p.mu.Lock()
	p.threads[t] = struct{}{}
	if p.state == ProcessCreated {
		p.state = ProcessRunning
	}
	p.mu.Unlock()

	return t
}

// ThreadExited is called by the scheduling machinery when one of this
// process's threads finishes, to detect whole-process exit (spec §4.6:
// a process becomes Exited once its last thread has exited).
func (p *Process) ThreadExited(t *Thread) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.threads, t)

	if len(p.threads) == 0 && p.state != ProcessCreated {
		p.state = ProcessExited
		p.Signals().Set(SignalTerminated)
	}
}

// ThreadCount reports the number of threads still tracked by this
// process (live or not yet reaped), used by tests and the monitor.
func (p *Process) ThreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.threads)
}
