// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/netacct-exporter-ebpf/internal/containers"
	"github.com/netacct-exporter-ebpf/internal/netstats"
)

// Traffic log modes.
const (
	TrafficLogOff     = ""
	TrafficLogAll     = "all"
	TrafficLogUnknown = "unknown"
)

// UnknownLocal labels local addresses outside every container group and configured network.
const UnknownLocal = "unknown"

// NetworkConfig names one or more IPv4 prefixes. Network is shorthand for a single prefix.
type NetworkConfig struct {
	Name    string   `yaml:"name"`
	Network string   `yaml:"network"`
	CIDRs   []string `yaml:"cidrs"`
}

// File is the optional YAML file next to the command-line flags.
type File struct {
	Networks   []NetworkConfig `yaml:"networks"`
	TrafficLog string          `yaml:"traffic_log"`

	// ContainerDiscovery labels local container addresses with the value of
	// NamespaceLabel on their container.
	ContainerDiscovery bool   `yaml:"container_discovery"`
	NamespaceLabel     string `yaml:"namespace_label"`
}

// Load reads path. A missing file yields an empty configuration.
func Load(path string) (*File, error) {
	cfg := &File{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.ContainerDiscovery && cfg.NamespaceLabel == "" {
		cfg.NamespaceLabel = containers.DefaultLabel
	}
	return cfg, nil
}

func (f *File) validate() error {
	switch f.TrafficLog {
	case TrafficLogOff, TrafficLogAll, TrafficLogUnknown:
	default:
		return fmt.Errorf("traffic_log %q: must be %q or %q", f.TrafficLog, TrafficLogAll, TrafficLogUnknown)
	}
	seen := make(map[string]struct{}, len(f.Networks))
	for _, n := range f.Networks {
		if n.Name == "" {
			return fmt.Errorf("network without name")
		}
		if n.Name == netstats.CatchAllName || n.Name == UnknownLocal {
			return fmt.Errorf("network name %q is reserved", n.Name)
		}
		if _, dup := seen[n.Name]; dup {
			return fmt.Errorf("duplicate network %q", n.Name)
		}
		seen[n.Name] = struct{}{}
	}
	return nil
}

// BuildNetworks turns the configured networks into netstats networks, in file order.
func (f *File) BuildNetworks() ([]*netstats.Network, error) {
	out := make([]*netstats.Network, 0, len(f.Networks))
	for _, n := range f.Networks {
		cidrs := n.CIDRs
		if n.Network != "" {
			cidrs = append([]string{n.Network}, cidrs...)
		}
		nw, err := netstats.NewNetwork(n.Name, cidrs...)
		if err != nil {
			return nil, err
		}
		out = append(out, nw)
	}
	return out, nil
}
