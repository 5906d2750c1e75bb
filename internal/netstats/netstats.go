// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

// Package netstats attributes frame samples and flow bytes to named IPv4 networks.
package netstats

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/netacct-exporter-ebpf/internal/types"
)

const CatchAllName = "other"

// Direction of traffic relative to a network.
type Direction string

const (
	DirTo   Direction = "to"
	DirFrom Direction = "from"
)

// Network is a named set of IPv4 prefixes.
type Network struct {
	Name     string
	CatchAll bool
	prefixes []prefix
}

type prefix struct {
	netw uint32
	mask uint32
}

// NewNetwork parses cidrs. Only IPv4 prefixes are accepted.
func NewNetwork(name string, cidrs ...string) (*Network, error) {
	if len(cidrs) == 0 {
		return nil, fmt.Errorf("network %q: no cidrs", name)
	}
	n := &Network{Name: name}
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(c)
		if err != nil {
			return nil, fmt.Errorf("network %q: %w", name, err)
		}
		if !p.Addr().Is4() {
			return nil, fmt.Errorf("network %q: %s is not an IPv4 prefix", name, c)
		}
		var mask uint32
		if bits := p.Bits(); bits > 0 {
			mask = ^uint32(0) << (32 - bits)
		}
		n.prefixes = append(n.prefixes, prefix{
			netw: types.AddrToUint32(p.Masked().Addr()),
			mask: mask,
		})
	}
	return n, nil
}

func catchAll() *Network {
	return &Network{Name: CatchAllName, CatchAll: true, prefixes: []prefix{{}}}
}

// Contains reports whether the host-order IPv4 address is inside the network.
func (n *Network) Contains(addr uint32) bool {
	for _, p := range n.prefixes {
		if addr&p.mask == p.netw {
			return true
		}
	}
	return false
}

// Rates is bytes per second to and from a network over one interval.
type Rates struct {
	ToNetwork   float64
	FromNetwork float64
}

// Counter accumulates bytes to and from one network between two PerSecond calls.
type Counter struct {
	Network *Network

	mu        sync.Mutex
	to        uint64
	from      uint64
	toTotal   uint64
	fromTotal uint64
	lastReset time.Time
}

func newCounter(n *Network, now time.Time) *Counter {
	return &Counter{Network: n, lastReset: now}
}

func (c *Counter) AddTo(b uint64) {
	c.mu.Lock()
	c.to += b
	c.toTotal += b
	c.mu.Unlock()
}

func (c *Counter) AddFrom(b uint64) {
	c.mu.Lock()
	c.from += b
	c.fromTotal += b
	c.mu.Unlock()
}

// PerSecond returns the rates since the previous call and starts a new interval.
func (c *Counter) PerSecond(now time.Time) Rates {
	c.mu.Lock()
	defer c.mu.Unlock()
	delta := now.Sub(c.lastReset).Seconds()
	c.lastReset = now
	to, from := c.to, c.from
	c.to, c.from = 0, 0
	if delta <= 0 {
		return Rates{}
	}
	return Rates{ToNetwork: float64(to) / delta, FromNetwork: float64(from) / delta}
}

// Totals are the cumulative bytes since creation.
func (c *Counter) Totals() (to, from uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.toTotal, c.fromTotal
}

// Set is an ordered list of networks ending with the catch-all.
type Set struct {
	counters []*Counter
}

func NewSet(networks []*Network, now time.Time) *Set {
	s := &Set{}
	for _, n := range networks {
		s.counters = append(s.counters, newCounter(n, now))
	}
	s.counters = append(s.counters, newCounter(catchAll(), now))
	return s
}

// Counters returns every counter, catch-all last.
func (s *Set) Counters() []*Counter {
	return s.counters
}

func (s *Set) named() []*Counter {
	return s.counters[:len(s.counters)-1]
}

func (s *Set) catchAll() *Counter {
	return s.counters[len(s.counters)-1]
}

// AddSample attributes one frame sample. A source inside a network counts as
// traffic from it, a destination inside it as traffic to it; the first
// matching network wins and unmatched samples go to the catch-all as "to".
func (s *Set) AddSample(smp types.Sample) (*Network, Direction) {
	for _, c := range s.named() {
		if c.Network.Contains(smp.SrcAddr) {
			c.AddFrom(uint64(smp.ByteCount))
			return c.Network, DirFrom
		}
		if c.Network.Contains(smp.DstAddr) {
			c.AddTo(uint64(smp.ByteCount))
			return c.Network, DirTo
		}
	}
	ca := s.catchAll()
	ca.AddTo(uint64(smp.ByteCount))
	return ca.Network, DirTo
}

// Match returns the first network containing addr, or the catch-all.
func (s *Set) Match(addr uint32) *Network {
	for _, c := range s.named() {
		if c.Network.Contains(addr) {
			return c.Network
		}
	}
	return s.catchAll().Network
}

// MatchAddr is Match for any address; IPv6 addresses always land in the catch-all.
func (s *Set) MatchAddr(a netip.Addr) *Network {
	a = a.Unmap()
	if !a.Is4() {
		return s.catchAll().Network
	}
	return s.Match(types.AddrToUint32(a))
}
