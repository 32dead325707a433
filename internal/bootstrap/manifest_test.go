package bootstrap

import "testing"

func TestParseManifest_SortsByOrder(tt *testing.T) {
	tt.Parallel()

	data := []byte(`
services:
  - name: echo
    image: echo.bin
    order: 2
  - name: nameserver
    image: nameserver.bin
    privileged: true
    order: 1
`)

	m, err := ParseManifest(data)
	if err != nil {
		tt.Fatalf("ParseManifest: %v", err)
	}

	if len(m.Services) != 2 {
		tt.Fatalf("got %d services, want 2", len(m.Services))
	}

	if m.Services[0].Name != "nameserver" || m.Services[1].Name != "echo" {
		tt.Fatalf("expected nameserver (order 1) before echo (order 2), got %q then %q",
			m.Services[0].Name, m.Services[1].Name)
	}

	if !m.Services[0].Privileged {
		tt.Fatalf("expected nameserver entry to carry privileged: true")
	}
}

func TestParseManifest_TiesKeepDeclarationOrder(tt *testing.T) {
	tt.Parallel()

	data := []byte(`
services:
  - name: a
    order: 0
  - name: b
    order: 0
`)

	m, err := ParseManifest(data)
	if err != nil {
		tt.Fatalf("ParseManifest: %v", err)
	}

	if m.Services[0].Name != "a" || m.Services[1].Name != "b" {
		tt.Fatalf("expected stable sort to preserve declaration order for ties")
	}
}

func TestParseManifest_RejectsMissingName(tt *testing.T) {
	tt.Parallel()

	data := []byte(`
services:
  - image: mystery.bin
`)

	if _, err := ParseManifest(data); err == nil {
		tt.Fatalf("expected ParseManifest to reject an entry with no name")
	}
}

func TestParseManifest_RejectsMalformedYAML(tt *testing.T) {
	tt.Parallel()

	if _, err := ParseManifest([]byte("services: [")); err == nil {
		tt.Fatalf("expected ParseManifest to reject malformed YAML")
	}
}
