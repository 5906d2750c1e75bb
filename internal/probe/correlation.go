// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package probe

import (
	"sync"

	"github.com/netacct-exporter-ebpf/internal/types"
)

const correlationShards = 64

type correlationShard struct {
	mu sync.Mutex
	m  map[uint32]*types.Socket
}

// CorrelationTable links the entry and return phases of one send call by thread id.
// It holds at most one entry per thread currently inside a send.
type CorrelationTable struct {
	shards [correlationShards]correlationShard
}

func NewCorrelationTable() *CorrelationTable {
	t := &CorrelationTable{}
	for i := range t.shards {
		t.shards[i].m = make(map[uint32]*types.Socket)
	}
	return t
}

func (t *CorrelationTable) shard(tid uint32) *correlationShard {
	return &t.shards[tid%correlationShards]
}

// Store maps tid to sk, replacing any stale entry.
func (t *CorrelationTable) Store(tid uint32, sk *types.Socket) {
	s := t.shard(tid)
	s.mu.Lock()
	s.m[tid] = sk
	s.mu.Unlock()
}

func (t *CorrelationTable) Lookup(tid uint32) (*types.Socket, bool) {
	s := t.shard(tid)
	s.mu.Lock()
	sk, ok := s.m[tid]
	s.mu.Unlock()
	return sk, ok
}

func (t *CorrelationTable) Delete(tid uint32) {
	s := t.shard(tid)
	s.mu.Lock()
	delete(s.m, tid)
	s.mu.Unlock()
}

// Len is the number of threads with a pending send entry.
func (t *CorrelationTable) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.m)
		s.mu.Unlock()
	}
	return n
}
