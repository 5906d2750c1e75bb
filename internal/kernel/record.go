// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package kernel

import (
	"encoding/binary"
	"fmt"

	"github.com/netacct-exporter-ebpf/internal/types"
)

// Record kinds written by the kernel-side forwarding programs.
const (
	KindSendEntry   uint32 = 1
	KindSendReturn  uint32 = 2
	KindRecvCleanup uint32 = 3
)

// hookRecordSize is sizeof(struct hook_record) in bpf/sock_hooks.bpf.c.
const hookRecordSize = 80

// HookRecord is one forwarded hook invocation. Socket fields are only
// meaningful for send-entry and receive-cleanup records; Size for
// send-return (transferred bytes) and receive-cleanup (copied bytes).
type HookRecord struct {
	Kind   uint32
	Task   types.Task
	Socket types.Socket
	Size   int64
}

func decodeHookRecord(b []byte) (HookRecord, error) {
	var r HookRecord
	if len(b) < hookRecordSize {
		return r, fmt.Errorf("hook record: need %d bytes, got %d", hookRecordSize, len(b))
	}
	r.Kind = binary.NativeEndian.Uint32(b[0:4])
	r.Task.PID = binary.NativeEndian.Uint32(b[4:8])
	r.Task.TID = binary.NativeEndian.Uint32(b[8:12])
	r.Socket.Family = binary.NativeEndian.Uint16(b[12:14])
	r.Socket.Num = binary.NativeEndian.Uint16(b[14:16])
	copy(r.Socket.Dport[:], b[16:18])
	copy(r.Task.Comm[:], b[20:36])

	switch r.Socket.Family {
	case types.AFInet:
		copy(r.Socket.RcvSaddr[:], b[36:40])
		copy(r.Socket.Daddr[:], b[52:56])
	case types.AFInet6:
		copy(r.Socket.V6RcvSaddr[:], b[36:52])
		copy(r.Socket.V6Daddr[:], b[52:68])
	}
	r.Size = int64(binary.NativeEndian.Uint64(b[72:80]))
	return r, nil
}

func encodeHookRecord(r HookRecord) []byte {
	b := make([]byte, hookRecordSize)
	binary.NativeEndian.PutUint32(b[0:4], r.Kind)
	binary.NativeEndian.PutUint32(b[4:8], r.Task.PID)
	binary.NativeEndian.PutUint32(b[8:12], r.Task.TID)
	binary.NativeEndian.PutUint16(b[12:14], r.Socket.Family)
	binary.NativeEndian.PutUint16(b[14:16], r.Socket.Num)
	copy(b[16:18], r.Socket.Dport[:])
	copy(b[20:36], r.Task.Comm[:])
	switch r.Socket.Family {
	case types.AFInet:
		copy(b[36:40], r.Socket.RcvSaddr[:])
		copy(b[52:56], r.Socket.Daddr[:])
	case types.AFInet6:
		copy(b[36:52], r.Socket.V6RcvSaddr[:])
		copy(b[52:68], r.Socket.V6Daddr[:])
	}
	binary.NativeEndian.PutUint64(b[72:80], uint64(r.Size))
	return b
}
