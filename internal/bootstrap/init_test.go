package bootstrap

import (
	"testing"
	"time"

	"github.com/lihanrui2913/radon-os-sub001/internal/kernel"
)

func TestFlatImageLoader_MapsCodeAndStack(tt *testing.T) {
	tt.Parallel()

	proc, _ := kernel.NewProcessBuilder("svc", nil).Build()

	image := []byte{0x90, 0x90, 0x90, 0xC3}

	entry, stackTop, err := FlatImageLoader(proc, image)
	if err != nil {
		tt.Fatalf("FlatImageLoader: %v", err)
	}

	if entry != 0x10000 {
		tt.Fatalf("got entry %#x, want 0x10000", entry)
	}

	if stackTop <= entry {
		tt.Fatalf("expected stack top above code entry, got entry=%#x stackTop=%#x", entry, stackTop)
	}

	vmo, _, flags, ok := proc.RootVmar().Translate(uint64(entry))
	if !ok {
		tt.Fatalf("expected the code region to be mapped")
	}

	if flags != kernel.MapRead|kernel.MapExecute {
		tt.Fatalf("got flags %v, want read-execute", flags)
	}

	got := make([]byte, len(image))
	if _, err := vmo.Read(0, got); err != nil {
		tt.Fatalf("Read mapped code: %v", err)
	}

	if string(got) != string(image) {
		tt.Fatalf("mapped code bytes don't match the loaded image")
	}
}

func TestFlatImageLoader_RejectsEmptyImage(tt *testing.T) {
	tt.Parallel()

	proc, _ := kernel.NewProcessBuilder("svc", nil).Build()

	if _, _, err := FlatImageLoader(proc, nil); err == nil {
		tt.Fatalf("expected FlatImageLoader to reject an empty image")
	}
}

func TestLauncher_StartSpawnsEveryServiceInOrder(tt *testing.T) {
	tt.Parallel()

	cpu := kernel.NewScheduler(110, kernel.WithQuantum(time.Millisecond))
	cpu.Start()
	defer cpu.Stop()

	initProc, _ := kernel.NewProcessBuilder("init", nil).Build()
	ledger := NewRegistry()

	launcher := NewLauncher(initProc, cpu, ledger).WithImageLoader(
		func(proc *kernel.Process, image []byte) (uintptr, uintptr, error) {
			return 0x1000, 0x2000, nil
		},
	)

	manifest := &ServiceManifest{Services: []ServiceSpec{
		{Name: "nameserver", Order: 1},
		{Name: "echo", Order: 2},
	}}

	spawned, err := launcher.Start(manifest, nil)
	if err != nil {
		tt.Fatalf("Start: %v", err)
	}

	if len(spawned) != 2 {
		tt.Fatalf("got %d spawned services, want 2", len(spawned))
	}

	if spawned[0].Spec.Name != "nameserver" || spawned[1].Spec.Name != "echo" {
		tt.Fatalf("expected spawn order to follow manifest order")
	}

	for _, s := range spawned {
		if s.Process.Parent() != initProc {
			tt.Fatalf("expected %q to be parented under init", s.Spec.Name)
		}

		if s.ParentSide == nil {
			tt.Fatalf("expected a parent-side bootstrap endpoint for %q", s.Spec.Name)
		}
	}
}

func TestLauncher_PropagatesImageLoaderFailure(tt *testing.T) {
	tt.Parallel()

	cpu := kernel.NewScheduler(111)
	cpu.Start()
	defer cpu.Stop()

	initProc, _ := kernel.NewProcessBuilder("init", nil).Build()

	launcher := NewLauncher(initProc, cpu, NewRegistry()).WithImageLoader(FlatImageLoader)

	manifest := &ServiceManifest{Services: []ServiceSpec{{Name: "broken", Order: 1}}}

	if _, err := launcher.Start(manifest, nil); err == nil {
		tt.Fatalf("expected Start to fail when the image loader rejects an empty image")
	}
}
