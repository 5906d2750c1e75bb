// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package probe

import (
	"encoding/binary"

	"github.com/netacct-exporter-ebpf/internal/types"
)

// ReceiveAggregator accounts inbound bytes at receive-buffer cleanup, where
// the socket and the copied byte count arrive together.
type ReceiveAggregator struct {
	tables *Tables
	stats  *Stats
}

func NewReceiveAggregator(tables *Tables, stats *Stats) *ReceiveAggregator {
	return &ReceiveAggregator{tables: tables, stats: stats}
}

// Cleanup accounts copied bytes for sk. sk is the hook argument and is read
// directly for IPv4; the IPv6 addresses go through guarded reads.
func (r *ReceiveAggregator) Cleanup(task types.Task, sk *types.Socket, copied int64) Outcome {
	o := r.account(task, sk, copied)
	r.stats.Add(HookRecvCleanup, o)
	return o
}

func (r *ReceiveAggregator) account(task types.Task, sk *types.Socket, copied int64) Outcome {
	if copied <= 0 {
		return OutcomeNonPositiveTransfer
	}
	if sk == nil {
		return OutcomeUnsupportedFamily
	}

	switch sk.Family {
	case types.AFInet:
		r.tables.IPv4Recv.Increment(types.FlowKeyV4{
			PID:        task.PID,
			Comm:       task.Comm,
			LocalAddr:  binary.BigEndian.Uint32(sk.RcvSaddr[:]),
			RemoteAddr: binary.BigEndian.Uint32(sk.Daddr[:]),
			LocalPort:  sk.Num,
			RemotePort: ntohs(sk.Dport),
		}, uint64(copied))
	case types.AFInet6:
		laddr, raddr := readV6Addrs(sk)
		r.tables.IPv6Recv.Increment(types.FlowKeyV6{
			PID:        task.PID,
			Comm:       task.Comm,
			LocalAddr:  laddr,
			RemoteAddr: raddr,
			LocalPort:  sk.Num,
			RemotePort: ntohs(sk.Dport),
		}, uint64(copied))
	default:
		return OutcomeUnsupportedFamily
	}
	return OutcomeAccounted
}
