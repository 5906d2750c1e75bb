// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// EtherTypes understood by the frame classifier.
const (
	EthPIP   = 0x0800
	EthPIPv6 = 0x86DD
)

// Socket address families (linux values).
const (
	AFInet  = 2
	AFInet6 = 10
)

// SampleSize is the wire size of one Sample record.
const SampleSize = 16

// Sample is one per-frame record on the event channel.
// All fields are host byte order; wire order is SrcAddr, DstAddr, ByteCount, Protocol.
type Sample struct {
	SrcAddr   uint32
	DstAddr   uint32
	ByteCount uint32
	Protocol  uint32
}

func (s Sample) MarshalBinary() ([]byte, error) {
	b := make([]byte, SampleSize)
	binary.NativeEndian.PutUint32(b[0:4], s.SrcAddr)
	binary.NativeEndian.PutUint32(b[4:8], s.DstAddr)
	binary.NativeEndian.PutUint32(b[8:12], s.ByteCount)
	binary.NativeEndian.PutUint32(b[12:16], s.Protocol)
	return b, nil
}

func (s *Sample) UnmarshalBinary(b []byte) error {
	if len(b) < SampleSize {
		return fmt.Errorf("sample record: need %d bytes, got %d", SampleSize, len(b))
	}
	s.SrcAddr = binary.NativeEndian.Uint32(b[0:4])
	s.DstAddr = binary.NativeEndian.Uint32(b[4:8])
	s.ByteCount = binary.NativeEndian.Uint32(b[8:12])
	s.Protocol = binary.NativeEndian.Uint32(b[12:16])
	return nil
}

// TaskCommLen matches the kernel TASK_COMM_LEN.
const TaskCommLen = 16

// Comm is a fixed-length, NUL padded process name.
type Comm [TaskCommLen]byte

func CommFromString(s string) Comm {
	var c Comm
	// last byte stays NUL like the kernel's get_task_comm
	copy(c[:TaskCommLen-1], s)
	return c
}

func (c Comm) String() string {
	if i := bytes.IndexByte(c[:], 0); i >= 0 {
		return string(c[:i])
	}
	return string(c[:])
}

// Task identifies the execution context a hook runs on behalf of.
type Task struct {
	PID  uint32
	TID  uint32
	Comm Comm
}

// Socket is the identity of a kernel socket as seen by the socket hooks.
// Addresses are raw network-order bytes; Num is the local port in host order
// and Dport the remote port in network order, as the kernel stores them.
type Socket struct {
	Family     uint16
	RcvSaddr   [4]byte
	Daddr      [4]byte
	V6RcvSaddr [16]byte
	V6Daddr    [16]byte
	Num        uint16
	Dport      [2]byte
}
