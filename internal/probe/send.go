// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package probe

import "github.com/netacct-exporter-ebpf/internal/types"

// SendCorrelator accounts outbound bytes. Entry and Return are separate
// invocations linked through the correlation table by thread id.
type SendCorrelator struct {
	pending *CorrelationTable
	tables  *Tables
	stats   *Stats
}

func NewSendCorrelator(pending *CorrelationTable, tables *Tables, stats *Stats) *SendCorrelator {
	return &SendCorrelator{pending: pending, tables: tables, stats: stats}
}

// Entry records the socket the calling thread is sending on.
func (s *SendCorrelator) Entry(task types.Task, sk *types.Socket) {
	s.pending.Store(task.TID, sk)
	s.stats.Add(HookSendEntry, OutcomeStored)
}

// Return accounts size bytes against the socket recorded by Entry on the same
// thread. The thread's correlation entry is gone afterwards on every path.
func (s *SendCorrelator) Return(task types.Task, size int64) Outcome {
	o := s.account(task, size)
	s.pending.Delete(task.TID)
	s.stats.Add(HookSendReturn, o)
	return o
}

func (s *SendCorrelator) account(task types.Task, size int64) Outcome {
	if size <= 0 {
		return OutcomeNonPositiveTransfer
	}
	sk, ok := s.pending.Lookup(task.TID)
	if !ok {
		return OutcomeMissingCorrelation
	}

	lport, rport := readPorts(sk)
	switch readFamily(sk) {
	case types.AFInet:
		laddr, raddr := readV4Addrs(sk)
		s.tables.IPv4Send.Increment(types.FlowKeyV4{
			PID:        task.PID,
			Comm:       task.Comm,
			LocalAddr:  laddr,
			RemoteAddr: raddr,
			LocalPort:  lport,
			RemotePort: rport,
		}, uint64(size))
	case types.AFInet6:
		laddr, raddr := readV6Addrs(sk)
		s.tables.IPv6Send.Increment(types.FlowKeyV6{
			PID:        task.PID,
			Comm:       task.Comm,
			LocalAddr:  laddr,
			RemoteAddr: raddr,
			LocalPort:  lport,
			RemotePort: rport,
		}, uint64(size))
	default:
		return OutcomeUnsupportedFamily
	}
	return OutcomeAccounted
}
