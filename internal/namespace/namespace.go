// Package namespace implements the longest-prefix path resolver a
// process's namespace server uses to route a path to the provider bound
// closest above it (spec §4/"C11 Namespace").
package namespace

import (
	"fmt"
	"strings"
	"sync"

	"github.com/lihanrui2913/radon-os-sub001/internal/kernel"
)

// MountFlags controls a bound entry's visibility/behavior, mirroring
// namespace/src/protocol.rs's MountFlags (only the bits this spec names
// are carried).
type MountFlags uint32

const (
	MountReadOnly MountFlags = 1 << iota
	MountExclusive
)

// Entry is one bound path: the provider name it resolves to, per spec
// §9 open question 4's decision to store a name rather than a live
// capability.
type Entry struct {
	Path  string
	Name  string
	Flags MountFlags
}

// Namespace is the bind/unbind/resolve path table. Grounded directly on
// original_source/drivers/namespace/src/server.rs's Namespace: a single
// map from normalized path to Entry, longest-prefix match on resolve.
type Namespace struct {
	mu     sync.RWMutex
	mounts map[string]Entry
}

// New creates an empty namespace, rooted at "/".
func New() *Namespace {
	return &Namespace{mounts: make(map[string]Entry)}
}

// Bind registers name under path, failing with AlreadyExists if path is
// already bound.
func (n *Namespace) Bind(path, name string, flags MountFlags) error {
	norm, err := normalizePath(path)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.mounts[norm]; exists {
		return kernel.NewError("namespace.bind", kernel.StatusAlreadyExists, nil)
	}

	n.mounts[norm] = Entry{Path: norm, Name: name, Flags: flags}

	return nil
}

// Unbind removes the entry exactly at path, failing with NotFound if
// none is bound there.
func (n *Namespace) Unbind(path string) (Entry, error) {
	norm, err := normalizePath(path)
	if err != nil {
		return Entry{}, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	e, ok := n.mounts[norm]
	if !ok {
		return Entry{}, kernel.NewError("namespace.unbind", kernel.StatusNotFound, nil)
	}

	delete(n.mounts, norm)

	return e, nil
}

// Resolve finds the entry bound at the longest prefix of path, returning
// it along with the remainder of path below that mount point.
func (n *Namespace) Resolve(path string) (Entry, string, error) {
	norm, err := normalizePath(path)
	if err != nil {
		return Entry{}, "", err
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	var (
		best      Entry
		bestLen   = -1
		bestFound bool
	)

	for prefix, entry := range n.mounts {
		if !pathStartsWith(norm, prefix) {
			continue
		}

		if len(prefix) > bestLen {
			best = entry
			bestLen = len(prefix)
			bestFound = true
		}
	}

	if !bestFound {
		return Entry{}, "", kernel.NewError("namespace.resolve", kernel.StatusNotFound, nil)
	}

	return best, stripPrefix(norm, best.Path), nil
}

// List returns every bound entry, for diagnostics.
func (n *Namespace) List() []Entry {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]Entry, 0, len(n.mounts))
	for _, e := range n.mounts {
		out = append(out, e)
	}

	return out
}

func normalizePath(path string) (string, error) {
	if !strings.HasPrefix(path, "/") {
		return "", kernel.NewError("namespace.normalize", kernel.StatusInvalidArgument, nil)
	}

	trimmed := path
	if len(trimmed) > 1 {
		trimmed = strings.TrimRight(trimmed, "/")
	}

	var components []string

	for _, c := range strings.Split(trimmed, "/") {
		switch c {
		case "", ".":
			continue
		case "..":
			if len(components) > 0 {
				components = components[:len(components)-1]
			}
		default:
			components = append(components, c)
		}
	}

	if len(components) == 0 {
		return "/", nil
	}

	return "/" + strings.Join(components, "/"), nil
}

func pathStartsWith(path, prefix string) bool {
	if prefix == "/" {
		return true
	}

	if path == prefix {
		return true
	}

	return strings.HasPrefix(path, prefix+"/")
}

func stripPrefix(path, prefix string) string {
	if prefix == "/" {
		return path
	}

	if path == prefix {
		return "/"
	}

	rest := strings.TrimPrefix(path, prefix)
	if rest == "" {
		return "/"
	}

	return rest
}

// String renders an entry for logs/the monitor.
func (e Entry) String() string {
	return fmt.Sprintf("%s -> %s", e.Path, e.Name)
}
