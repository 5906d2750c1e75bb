// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package collector

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// FlowRecord is the cumulative byte count of one process flow in one direction.
type FlowRecord struct {
	Process       string    `json:"process"`
	PID           uint32    `json:"pid"`
	Local         string    `json:"local"`
	Remote        string    `json:"remote"`
	LocalNetwork  string    `json:"local_network"`
	RemoteNetwork string    `json:"remote_network"`
	Country       string    `json:"country,omitempty"`
	Direction     string    `json:"direction"`
	IPVersion     string    `json:"ip_version"`
	Bytes         uint64    `json:"bytes"`
	LastSeen      time.Time `json:"last_seen"`
}

type flowID struct {
	pid       uint32
	process   string
	local     string
	remote    string
	direction string
}

func (r FlowRecord) id() flowID {
	return flowID{pid: r.PID, process: r.Process, local: r.Local, remote: r.Remote, direction: r.Direction}
}

type flowStore struct {
	mu    sync.RWMutex
	flows map[flowID]*FlowRecord
}

func newFlowStore() *flowStore {
	return &flowStore{flows: make(map[flowID]*FlowRecord)}
}

// add merges r into the stored flow, summing bytes.
func (s *flowStore) add(r FlowRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.flows[r.id()]; ok {
		cur.Bytes += r.Bytes
		cur.LastSeen = r.LastSeen
		if r.Country != "" {
			cur.Country = r.Country
		}
		return
	}
	s.flows[r.id()] = &r
}

// prune drops flows last seen before cutoff.
func (s *flowStore) prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.flows {
		if r.LastSeen.Before(cutoff) {
			delete(s.flows, id)
			n++
		}
	}
	return n
}

func (s *flowStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.flows)
}

// list returns copies of the flows matching direction ("" for all), largest first.
func (s *flowStore) list(direction string) []FlowRecord {
	s.mu.RLock()
	out := make([]FlowRecord, 0, len(s.flows))
	for _, r := range s.flows {
		if direction == "" || r.Direction == direction {
			out = append(out, *r)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b FlowRecord) int {
		if c := cmp.Compare(b.Bytes, a.Bytes); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Process, b.Process); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Local, b.Local); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Remote, b.Remote); c != 0 {
			return c
		}
		return cmp.Compare(a.Direction, b.Direction)
	})
	return out
}
