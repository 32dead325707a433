package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/lihanrui2913/radon-os-sub001/internal/bootstrap"
	"github.com/lihanrui2913/radon-os-sub001/internal/cli"
	"github.com/lihanrui2913/radon-os-sub001/internal/cpio"
	"github.com/lihanrui2913/radon-os-sub001/internal/kernel"
	"github.com/lihanrui2913/radon-os-sub001/internal/log"
	"github.com/lihanrui2913/radon-os-sub001/internal/monitor"
	"github.com/lihanrui2913/radon-os-sub001/internal/nameserver"
)

// Boot is the kernel simulation's demonstration command: scan an
// initramfs for init, spawn init's bootstrap-served children, run a
// name server, then print a snapshot of kernel state before exiting.
// Shaped as a timed run: build a ctx with a timeout, initialize
// subsystems, log progress, run until deadline, then report.
func Boot() cli.Command {
	return new(boot)
}

type boot struct {
	quiet   bool
	timeout time.Duration
}

func (boot) Description() string { return "boot the kernel simulation" }

func (b boot) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `
boot [ -quiet ] [ -timeout DURATION ]

Scan a synthetic CPIO initramfs for an init entry, spawn the name
server and a couple of demonstration services under it, then print a
snapshot of kernel state.`)

	return err
}

func (b *boot) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("boot", flag.ExitOnError)

	fs.BoolVar(&b.quiet, "quiet", false, "only print the final snapshot")
	fs.DurationVar(&b.timeout, "timeout", 2*time.Second, "how long to run before reporting")

	return fs
}

func (b boot) Run(ctx context.Context, _ []string, out io.Writer, logger *log.Logger) int {
	if b.quiet {
		log.LogLevel.Set(log.LevelWarn)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	logger.Info("scanning initramfs")

	entries, err := cpio.Scan(syntheticInitramfs())
	if err != nil {
		logger.Error("cpio scan failed", "err", err)
		return 2
	}

	initEntry, ok := cpio.FindInit(entries)
	if !ok {
		logger.Error("no init entry found in initramfs")
		return 2
	}

	logger.Info("found init image", "name", initEntry.Name, "size", initEntry.Size)

	cpu := kernel.NewScheduler(0)
	cpu.Start()

	initProc, _ := kernel.NewProcessBuilder("init", nil).Build()

	registry := nameserver.NewRegistry(256)
	launcher := bootstrap.NewLauncher(initProc, cpu, bootstrap.NewRegistry())

	manifest, err := bootstrap.ParseManifest([]byte(demoManifest))
	if err != nil {
		logger.Error("parse manifest failed", "err", err)
		return 2
	}

	images := map[string][]byte{
		"nameserver": initEntry.Data,
		"echo":       initEntry.Data,
	}

	spawned, err := launcher.Start(manifest, images)
	if err != nil {
		logger.Error("launch failed", "err", err)
		return 2
	}

	for _, s := range spawned {
		logger.Info("spawned", "service", s.Spec.Name, "privileged", s.Spec.Privileged)
	}

	<-ctx.Done()

	fmt.Fprintln(out, "--- snapshot ---")

	for _, s := range spawned {
		fmt.Fprint(out, monitor.DumpProcess(s.Process))
	}

	fmt.Fprint(out, monitor.DumpServices(registry.AsProvider().Names()))

	logger.Info("boot demo complete")

	return 0
}

const demoManifest = `
services:
  - name: nameserver
    image: nameserver
    privileged: true
    order: 0
  - name: echo
    image: echo
    privileged: false
    order: 1
`

// syntheticInitramfs builds a minimal in-memory "newc" CPIO archive
// containing a single "init" entry with a one-byte placeholder body
// (the flat image loader rejects an empty image), standing in for a real
// initramfs image this simulation has no bootloader to supply. Kept
// local to the command rather than in internal/cpio, since a real
// caller always has an actual boot module to scan.
func syntheticInitramfs() []byte {
	return buildNewc([]cpioFile{
		{name: "init", mode: 0o100755, data: []byte{0}},
	})
}

type cpioFile struct {
	name string
	mode uint32
	data []byte
}

func buildNewc(files []cpioFile) []byte {
	var out []byte

	ino := uint32(1)

	for _, f := range files {
		out = appendNewcEntry(out, ino, f.name, f.mode, f.data)
		ino++
	}

	out = appendNewcEntry(out, ino, cpio.TrailerName, 0, nil)

	return out
}

func appendNewcEntry(out []byte, ino uint32, name string, mode uint32, data []byte) []byte {
	nameWithNul := name + "\x00"

	hdr := fmt.Sprintf(
		"070701%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x",
		ino, mode, 0, 0, 1, 0, len(data), 0, 0, 0, 0, len(nameWithNul), 0,
	)

	out = append(out, hdr...)
	out = append(out, nameWithNul...)
	out = padTo4(out)
	out = append(out, data...)
	out = padTo4(out)

	return out
}

func padTo4(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}

	return b
}
