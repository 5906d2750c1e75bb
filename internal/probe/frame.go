// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package probe

import "encoding/binary"

// Fixed header sizes checked against the frame extent.
const (
	EthHdrLen  = 14
	IPv4HdrLen = 20
	IPv6HdrLen = 40
)

const (
	ethProtoOff  = 12
	ipv4ProtoOff = 9
	ipv4SaddrOff = 12
	ipv4DaddrOff = 16
)

// Frame is a read-only view over one received link-layer frame.
// Every read checks its extent against [0, len) first.
type Frame struct {
	data []byte
}

func NewFrame(b []byte) Frame {
	return Frame{data: b}
}

// Len is the total frame length (end - start).
func (f Frame) Len() int {
	return len(f.data)
}

func (f Frame) fits(off, n int) bool {
	return off >= 0 && n >= 0 && off+n <= len(f.data)
}

func (f Frame) u8(off int) (uint8, bool) {
	if !f.fits(off, 1) {
		return 0, false
	}
	return f.data[off], true
}

// be16 and be32 return the network-order field converted to host order.
func (f Frame) be16(off int) (uint16, bool) {
	if !f.fits(off, 2) {
		return 0, false
	}
	return binary.BigEndian.Uint16(f.data[off : off+2]), true
}

func (f Frame) be32(off int) (uint32, bool) {
	if !f.fits(off, 4) {
		return 0, false
	}
	return binary.BigEndian.Uint32(f.data[off : off+4]), true
}
