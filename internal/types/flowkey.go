// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package types

import (
	"encoding/binary"
	"net/netip"

	"github.com/cespare/xxhash/v2"
)

// FlowKeyV4 keys the IPv4 send/receive tables. Addresses and ports are host order.
type FlowKeyV4 struct {
	PID        uint32
	Comm       Comm
	LocalAddr  uint32
	RemoteAddr uint32
	LocalPort  uint16
	RemotePort uint16
}

const flowKeyV4Size = 4 + TaskCommLen + 4 + 4 + 2 + 2

// Hash is stable for structurally equal keys.
func (k FlowKeyV4) Hash() uint64 {
	var b [flowKeyV4Size]byte
	binary.LittleEndian.PutUint32(b[0:4], k.PID)
	copy(b[4:20], k.Comm[:])
	binary.LittleEndian.PutUint32(b[20:24], k.LocalAddr)
	binary.LittleEndian.PutUint32(b[24:28], k.RemoteAddr)
	binary.LittleEndian.PutUint16(b[28:30], k.LocalPort)
	binary.LittleEndian.PutUint16(b[30:32], k.RemotePort)
	return xxhash.Sum64(b[:])
}

func (k FlowKeyV4) Local() netip.AddrPort {
	return netip.AddrPortFrom(AddrFromUint32(k.LocalAddr), k.LocalPort)
}

func (k FlowKeyV4) Remote() netip.AddrPort {
	return netip.AddrPortFrom(AddrFromUint32(k.RemoteAddr), k.RemotePort)
}

// FlowKeyV6 keys the IPv6 send/receive tables. Addresses are network-order bytes.
type FlowKeyV6 struct {
	PID        uint32
	Comm       Comm
	LocalAddr  [16]byte
	RemoteAddr [16]byte
	LocalPort  uint16
	RemotePort uint16
}

const flowKeyV6Size = 4 + TaskCommLen + 16 + 16 + 2 + 2

func (k FlowKeyV6) Hash() uint64 {
	var b [flowKeyV6Size]byte
	binary.LittleEndian.PutUint32(b[0:4], k.PID)
	copy(b[4:20], k.Comm[:])
	copy(b[20:36], k.LocalAddr[:])
	copy(b[36:52], k.RemoteAddr[:])
	binary.LittleEndian.PutUint16(b[52:54], k.LocalPort)
	binary.LittleEndian.PutUint16(b[54:56], k.RemotePort)
	return xxhash.Sum64(b[:])
}

func (k FlowKeyV6) Local() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom16(k.LocalAddr), k.LocalPort)
}

func (k FlowKeyV6) Remote() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom16(k.RemoteAddr), k.RemotePort)
}

// AddrFromUint32 converts a host-order IPv4 value to an address.
func AddrFromUint32(v uint32) netip.Addr {
	var a [4]byte
	binary.BigEndian.PutUint32(a[:], v)
	return netip.AddrFrom4(a)
}

// AddrToUint32 is the inverse of AddrFromUint32. Non-IPv4 addresses map to 0.
func AddrToUint32(a netip.Addr) uint32 {
	if !a.Is4() {
		return 0
	}
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}
