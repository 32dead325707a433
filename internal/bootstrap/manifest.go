package bootstrap

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// ServiceSpec is one entry in the init process' service manifest (spec
// §4.8): the name it registers under, whether it gets elevated
// (privileged) bootstrap access, its ELF image path, and a start order.
// Grounded on original_source/init/src/main.rs's hand-coded startup
// sequence (start_nameserver, then start_core_services in a fixed
// order); here the order is data instead of call order, decoded with
// yaml.v3, the config format canonical-snapd uses for its own daemon
// state and manifests.
type ServiceSpec struct {
	Name       string `yaml:"name"`
	Image      string `yaml:"image"`
	Privileged bool   `yaml:"privileged"`
	Order      int    `yaml:"order"`
}

// ServiceManifest is the decoded startup manifest: an ordered list of
// services init should spawn and register as bootstrap providers.
type ServiceManifest struct {
	Services []ServiceSpec `yaml:"services"`
}

// ParseManifest decodes a YAML service manifest and sorts its entries by
// Order, ties broken by declaration order (Go's sort.SliceStable).
func ParseManifest(data []byte) (*ServiceManifest, error) {
	var m ServiceManifest

	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("bootstrap: parse manifest: %w", err)
	}

	for i, s := range m.Services {
		if s.Name == "" {
			return nil, fmt.Errorf("bootstrap: manifest entry %d missing name", i)
		}
	}

	sort.SliceStable(m.Services, func(i, j int) bool {
		return m.Services[i].Order < m.Services[j].Order
	})

	return &m, nil
}
