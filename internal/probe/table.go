// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package probe

import (
	"sync"
	"sync/atomic"

	"github.com/netacct-exporter-ebpf/internal/types"
)

const DefaultShards = 64

// Key is a structurally comparable table key with a stable hash.
type Key interface {
	comparable
	Hash() uint64
}

type tableShard[K Key] struct {
	mu sync.RWMutex
	m  map[K]*atomic.Uint64
}

// Table maps a flow key to a cumulative byte counter.
// Hooks only call Increment; the remaining methods are the collector's export surface.
type Table[K Key] struct {
	shards []tableShard[K]
	mask   uint64
}

// NewTable creates a table with shards rounded up to a power of two.
func NewTable[K Key](shards int) *Table[K] {
	n := 1
	for n < shards {
		n <<= 1
	}
	t := &Table[K]{shards: make([]tableShard[K], n), mask: uint64(n - 1)}
	for i := range t.shards {
		t.shards[i].m = make(map[K]*atomic.Uint64)
	}
	return t
}

func (t *Table[K]) shard(key K) *tableShard[K] {
	return &t.shards[key.Hash()&t.mask]
}

// Increment adds amount to key's counter, creating it with amount when absent.
func (t *Table[K]) Increment(key K, amount uint64) {
	s := t.shard(key)
	// adds happen under the shard lock (read side) so Drain can swap maps without losing one
	s.mu.RLock()
	if c, ok := s.m[key]; ok {
		c.Add(amount)
		s.mu.RUnlock()
		return
	}
	s.mu.RUnlock()

	s.mu.Lock()
	c, ok := s.m[key]
	if !ok {
		c = new(atomic.Uint64)
		s.m[key] = c
	}
	c.Add(amount)
	s.mu.Unlock()
}

type entry[K Key] struct {
	key K
	val uint64
}

// Range calls fn for every entry until fn returns false.
// Each shard is copied before fn runs, so fn may write to the table.
// Counters keep moving while Range runs; each value is read once.
func (t *Table[K]) Range(fn func(K, uint64) bool) {
	var buf []entry[K]
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		buf = buf[:0]
		for k, c := range s.m {
			buf = append(buf, entry[K]{k, c.Load()})
		}
		s.mu.RUnlock()
		for _, e := range buf {
			if !fn(e.key, e.val) {
				return
			}
		}
	}
}

func (t *Table[K]) Snapshot() map[K]uint64 {
	out := make(map[K]uint64)
	t.Range(func(k K, v uint64) bool {
		out[k] = v
		return true
	})
	return out
}

// Drain removes every entry and hands its final value to fn.
// An increment racing Drain lands either in the drained value or in a fresh entry.
func (t *Table[K]) Drain(fn func(K, uint64)) int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		old := s.m
		s.m = make(map[K]*atomic.Uint64, len(old))
		s.mu.Unlock()
		for k, c := range old {
			fn(k, c.Load())
			n++
		}
	}
	return n
}

func (t *Table[K]) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// Tables groups the four aggregation tables.
type Tables struct {
	IPv4Send *Table[types.FlowKeyV4]
	IPv4Recv *Table[types.FlowKeyV4]
	IPv6Send *Table[types.FlowKeyV6]
	IPv6Recv *Table[types.FlowKeyV6]
}

func NewTables(shards int) *Tables {
	if shards <= 0 {
		shards = DefaultShards
	}
	return &Tables{
		IPv4Send: NewTable[types.FlowKeyV4](shards),
		IPv4Recv: NewTable[types.FlowKeyV4](shards),
		IPv6Send: NewTable[types.FlowKeyV6](shards),
		IPv6Recv: NewTable[types.FlowKeyV6](shards),
	}
}
