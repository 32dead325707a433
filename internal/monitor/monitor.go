// Package monitor renders kernel object state for interactive
// inspection: a read-only view built for display, never for driving
// kernel behavior. It walks a Scheduler's CPUs and a Process's
// threads/handles a section at a time, the same way a memory-image
// dumper walks a flat address space.
package monitor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lihanrui2913/radon-os-sub001/internal/kernel"
)

// DumpProcess renders a process's name, state and thread count as a
// single line. Bootstrap-channel status is not included.
func DumpProcess(p *kernel.Process) string {
	var b strings.Builder

	fmt.Fprintf(&b, "process %q: %s, %d thread(s)\n", p.Name(), p.State(), p.ThreadCount())

	return b.String()
}

// DumpServices renders a name-server-style listing of service names,
// one per line and sorted by name for stable output. Service ids are not
// shown.
func DumpServices(names []string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	var b strings.Builder

	fmt.Fprintln(&b, "services:")

	for _, n := range sorted {
		fmt.Fprintf(&b, "  %s\n", n)
	}

	return b.String()
}

// DumpNamespace renders a namespace's bound entries, one per line, in
// path order.
func DumpNamespace(entries []NamespaceEntry) string {
	sorted := append([]NamespaceEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var b strings.Builder

	fmt.Fprintln(&b, "namespace:")

	for _, e := range sorted {
		fmt.Fprintf(&b, "  %-32s -> %s\n", e.Path, e.Name)
	}

	return b.String()
}

// NamespaceEntry is the subset of internal/namespace.Entry the monitor
// needs to render, kept local so this package doesn't import
// internal/namespace just to print two strings.
type NamespaceEntry struct {
	Path string
	Name string
}
