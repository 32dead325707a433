package namespace

import "testing"

func TestNamespace_BindResolveUnbind(tt *testing.T) {
	tt.Parallel()

	n := New()

	if err := n.Bind("/dev/block", "BLOCKSERVER", 0); err != nil {
		tt.Fatalf("Bind: %v", err)
	}

	entry, rest, err := n.Resolve("/dev/block")
	if err != nil {
		tt.Fatalf("Resolve: %v", err)
	}

	if entry.Name != "BLOCKSERVER" || rest != "/" {
		tt.Fatalf("got entry=%+v rest=%q", entry, rest)
	}

	if _, err := n.Unbind("/dev/block"); err != nil {
		tt.Fatalf("Unbind: %v", err)
	}

	if _, _, err := n.Resolve("/dev/block"); err == nil {
		tt.Fatalf("expected Resolve to fail after Unbind")
	}
}

func TestNamespace_LongestPrefixWins(tt *testing.T) {
	tt.Parallel()

	n := New()

	if err := n.Bind("/", "ROOTFS", 0); err != nil {
		tt.Fatalf("Bind /: %v", err)
	}

	if err := n.Bind("/dev", "DEVFS", 0); err != nil {
		tt.Fatalf("Bind /dev: %v", err)
	}

	if err := n.Bind("/dev/block", "BLOCKSERVER", 0); err != nil {
		tt.Fatalf("Bind /dev/block: %v", err)
	}

	entry, rest, err := n.Resolve("/dev/block/sda1")
	if err != nil {
		tt.Fatalf("Resolve: %v", err)
	}

	if entry.Name != "BLOCKSERVER" || rest != "/sda1" {
		tt.Fatalf("got entry=%+v rest=%q, want BLOCKSERVER, /sda1", entry, rest)
	}

	entry, rest, err = n.Resolve("/dev/tty0")
	if err != nil {
		tt.Fatalf("Resolve: %v", err)
	}

	if entry.Name != "DEVFS" || rest != "/tty0" {
		tt.Fatalf("got entry=%+v rest=%q, want DEVFS, /tty0", entry, rest)
	}

	entry, _, err = n.Resolve("/etc/passwd")
	if err != nil {
		tt.Fatalf("Resolve: %v", err)
	}

	if entry.Name != "ROOTFS" {
		tt.Fatalf("got entry=%+v, want fallback to ROOTFS", entry)
	}
}

func TestNamespace_BindRejectsDuplicatePath(tt *testing.T) {
	tt.Parallel()

	n := New()

	if err := n.Bind("/svc", "A", 0); err != nil {
		tt.Fatalf("Bind: %v", err)
	}

	if err := n.Bind("/svc", "B", 0); err == nil {
		tt.Fatalf("expected a second bind at the same path to fail")
	}
}

func TestNamespace_PathNormalization(tt *testing.T) {
	tt.Parallel()

	n := New()

	if err := n.Bind("/a/b/", "SVC", 0); err != nil {
		tt.Fatalf("Bind: %v", err)
	}

	if _, _, err := n.Resolve("/a/./b"); err != nil {
		tt.Fatalf("Resolve with dot segment: %v", err)
	}

	if _, _, err := n.Resolve("/a/c/../b"); err != nil {
		tt.Fatalf("Resolve with dot-dot segment: %v", err)
	}
}

func TestNamespace_ResolveRejectsRelativePath(tt *testing.T) {
	tt.Parallel()

	n := New()

	if _, _, err := n.Resolve("relative/path"); err == nil {
		tt.Fatalf("expected Resolve to reject a non-absolute path")
	}
}

func TestNamespace_ResolveWithoutRootFallsThrough(tt *testing.T) {
	tt.Parallel()

	n := New()

	if err := n.Bind("/dev", "DEVFS", 0); err != nil {
		tt.Fatalf("Bind: %v", err)
	}

	if _, _, err := n.Resolve("/etc"); err == nil {
		tt.Fatalf("expected Resolve to fail when no ancestor mount covers the path")
	}
}

func TestNamespace_List(tt *testing.T) {
	tt.Parallel()

	n := New()

	if err := n.Bind("/a", "A", 0); err != nil {
		tt.Fatalf("Bind: %v", err)
	}

	if err := n.Bind("/b", "B", 0); err != nil {
		tt.Fatalf("Bind: %v", err)
	}

	if got := len(n.List()); got != 2 {
		tt.Fatalf("got %d entries, want 2", got)
	}
}
