// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package probe

import (
	"encoding/binary"

	"github.com/netacct-exporter-ebpf/internal/types"
)

// Guarded socket reads. An unavailable socket reads as zero-filled fields
// instead of faulting the hook.

func readFamily(sk *types.Socket) uint16 {
	if sk == nil {
		return 0
	}
	return sk.Family
}

func readV4Addrs(sk *types.Socket) (local, remote uint32) {
	if sk == nil {
		return 0, 0
	}
	return binary.BigEndian.Uint32(sk.RcvSaddr[:]), binary.BigEndian.Uint32(sk.Daddr[:])
}

func readV6Addrs(sk *types.Socket) (local, remote [16]byte) {
	if sk == nil {
		return local, remote
	}
	return sk.V6RcvSaddr, sk.V6Daddr
}

// readPorts returns the local and remote port in host order.
func readPorts(sk *types.Socket) (local, remote uint16) {
	if sk == nil {
		return 0, 0
	}
	return sk.Num, ntohs(sk.Dport)
}

func ntohs(b [2]byte) uint16 {
	return binary.BigEndian.Uint16(b[:])
}
