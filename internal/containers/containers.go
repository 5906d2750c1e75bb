// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

// Package containers maps local container addresses to a group name, such as
// the Kubernetes namespace of the pod owning the address.
package containers

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
)

// DefaultLabel groups pod containers by namespace.
const DefaultLabel = "io.kubernetes.pod.namespace"

// Container is one running container and the addresses it owns.
type Container struct {
	Name   string
	Labels map[string]string
	Addrs  []netip.Addr
}

// Lister returns the running containers.
type Lister interface {
	Containers(ctx context.Context) ([]Container, error)
}

// Resolver holds the address to group map built by the last Refresh.
type Resolver struct {
	lister Lister
	label  string

	mu     sync.RWMutex
	groups map[netip.Addr]string
}

// NewResolver groups containers by the value of label. With an empty label
// containers are grouped by name.
func NewResolver(l Lister, label string) *Resolver {
	return &Resolver{lister: l, label: label, groups: make(map[netip.Addr]string)}
}

// Refresh rebuilds the map. On error the previous map is kept.
func (r *Resolver) Refresh(ctx context.Context) error {
	list, err := r.lister.Containers(ctx)
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}
	groups := make(map[netip.Addr]string)
	for _, c := range list {
		group := c.Name
		if r.label != "" {
			v, ok := c.Labels[r.label]
			if !ok || v == "" {
				continue
			}
			group = v
		}
		for _, a := range c.Addrs {
			if a.IsValid() {
				groups[a.Unmap()] = group
			}
		}
	}
	r.mu.Lock()
	r.groups = groups
	r.mu.Unlock()
	slog.Debug("container addresses refreshed", "containers", len(list), "addresses", len(groups))
	return nil
}

// Lookup returns the group owning addr.
func (r *Resolver) Lookup(addr netip.Addr) (string, bool) {
	if r == nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[addr.Unmap()]
	return g, ok
}

func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}
