package bootstrap

import (
	"fmt"

	"github.com/lihanrui2913/radon-os-sub001/internal/kernel"
	"github.com/lihanrui2913/radon-os-sub001/internal/log"
)

// defaultStackSize is the stack VMO size mapped for every spawned
// service thread.
const defaultStackSize = 64 * 1024

// ImageLoader maps a service's program image into proc's root VMAR and
// returns its entry point and initial stack top. Real ELF parsing is
// out of this spec's scope (no on-disk filesystem layout, per the
// Non-goals); the default loader treats the image as a flat binary
// mapped at a fixed address, the same simplification a raw object-code
// loader makes for a headerless binary format.
type ImageLoader func(proc *kernel.Process, image []byte) (entry, stackTop uintptr, err error)

// FlatImageLoader is the default ImageLoader: it maps image verbatim,
// read-execute, starting at virtual address 0x10000, and a separate
// read-write stack VMO just above it.
func FlatImageLoader(proc *kernel.Process, image []byte) (uintptr, uintptr, error) {
	const codeBase = 0x10000

	size := uint64(len(image))
	if size == 0 {
		return 0, 0, kernel.NewError("bootstrap.load_image", kernel.StatusInvalidArgument, nil)
	}

	paddedSize := ((size + kernel.PageSize - 1) / kernel.PageSize) * kernel.PageSize

	codeVmo, err := kernel.CreateVmo(paddedSize, kernel.VmoOptionCommit)
	if err != nil {
		return 0, 0, err
	}

	if _, err := codeVmo.Write(0, image); err != nil {
		return 0, 0, err
	}

	vmar := proc.RootVmar()

	if _, err := vmar.Map(codeVmo, 0, paddedSize, kernel.MapRead|kernel.MapExecute, codeBase); err != nil {
		return 0, 0, err
	}

	stackVmo, err := kernel.CreateVmo(defaultStackSize, kernel.VmoOptionCommit)
	if err != nil {
		return 0, 0, err
	}

	stackBase := uint64(codeBase) + paddedSize + kernel.PageSize

	if _, err := vmar.Map(stackVmo, 0, defaultStackSize, kernel.MapRead|kernel.MapWrite, stackBase); err != nil {
		return 0, 0, err
	}

	return uintptr(codeBase), uintptr(stackBase + defaultStackSize), nil
}

// Launcher drives init's startup sequence (spec §4.8): "create-child →
// take bootstrap endpoint → add as privileged child → load image into
// child VMAR → spawn child thread → start → poll bootstrap until child
// registers". Grounded directly on
// original_source/init/src/main.rs's init_main/start_service/
// start_nameserver.
type Launcher struct {
	self   *kernel.Process
	cpu    *kernel.Scheduler
	load   ImageLoader
	log    *log.Logger
	ledger *Registry
}

// NewLauncher creates a launcher that spawns children on cpu, owned by
// the init process self, tracking provider registrations in ledger.
func NewLauncher(self *kernel.Process, cpu *kernel.Scheduler, ledger *Registry) *Launcher {
	return &Launcher{self: self, cpu: cpu, load: FlatImageLoader, log: log.DefaultLogger(), ledger: ledger}
}

// WithImageLoader overrides the default flat-binary loader, e.g. for
// tests that want to spawn a synthetic service without a real image.
func (l *Launcher) WithImageLoader(loader ImageLoader) *Launcher {
	l.load = loader
	return l
}

// Spawned is one child process launched by Start, along with the parent
// side of its bootstrap channel.
type Spawned struct {
	Process    *kernel.Process
	ParentSide *kernel.Endpoint
	Spec       ServiceSpec
}

// Start launches every service in manifest order, in the order
// ServiceManifest.Services was sorted to by ParseManifest. It does not
// block waiting for each service's RegisterProvider; callers that need
// the "poll until the name server is up" rendezvous of §4.8 should poll
// Registry.Registered after calling Start.
func (l *Launcher) Start(manifest *ServiceManifest, images map[string][]byte) ([]Spawned, error) {
	out := make([]Spawned, 0, len(manifest.Services))

	for _, spec := range manifest.Services {
		spawned, err := l.startOne(spec, images[spec.Name])
		if err != nil {
			return out, fmt.Errorf("bootstrap: start %q: %w", spec.Name, err)
		}

		out = append(out, spawned)
		l.log.Info("spawned service", "name", spec.Name, "privileged", spec.Privileged)
	}

	return out, nil
}

func (l *Launcher) startOne(spec ServiceSpec, image []byte) (Spawned, error) {
	proc, parentSide := kernel.NewProcessBuilder(spec.Name, l.self).Bootstrap(true).Build()

	entry, stackTop, err := l.load(proc, image)
	if err != nil {
		return Spawned{}, err
	}

	thread := proc.CreateThread(spec.Name, l.cpu, serviceEntry, entry, stackTop)
	if err := thread.Start(); err != nil {
		return Spawned{}, err
	}

	// init answers this child's bootstrap requests on a goroutine of its
	// own, the host-process analog of the original's single-threaded
	// run_event_loop polling every child's bootstrap channel in turn
	// (original_source/init/src/main.rs).
	handler := NewHandler(parentSide, l.self.Handles(), nil, l.ledger)
	go func() {
		for handler.ServeOne() {
		}
	}()

	return Spawned{Process: proc, ParentSide: parentSide, Spec: spec}, nil
}

// serviceEntry is a placeholder thread body for spawned services in
// this simulation, which has no real ELF entry point to jump to. It
// simply checks for preemption forever, standing in for whatever the
// mapped image's actual code would do; production callers that load a
// real program are expected to replace this via a process-specific
// Entry once the simulation gains a way to execute mapped code.
func serviceEntry(t *kernel.Thread) {
	for {
		t.CheckPreempt()
		t.Yield()
	}
}
