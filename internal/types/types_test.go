// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package types

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleWireLayout(t *testing.T) {
	s := Sample{SrcAddr: 0xC0A80101, DstAddr: 0x0A000001, ByteCount: 1514, Protocol: 6}
	b, err := s.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, SampleSize)

	var got Sample
	require.NoError(t, got.UnmarshalBinary(b))
	assert.Equal(t, s, got)
}

func TestSampleUnmarshalShort(t *testing.T) {
	var s Sample
	assert.Error(t, s.UnmarshalBinary(make([]byte, SampleSize-1)))
}

func TestComm(t *testing.T) {
	c := CommFromString("curl")
	assert.Equal(t, "curl", c.String())

	long := CommFromString("a-very-long-process-name")
	assert.Equal(t, "a-very-long-pro", long.String())
	assert.Equal(t, byte(0), long[TaskCommLen-1])
}

func TestFlowKeyV4HashStructural(t *testing.T) {
	a := FlowKeyV4{PID: 42, Comm: CommFromString("nginx"), LocalAddr: 1, RemoteAddr: 2, LocalPort: 80, RemotePort: 5555}
	b := a
	assert.Equal(t, a, b)
	assert.Equal(t, a.Hash(), b.Hash())

	b.RemotePort++
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestFlowKeyV6HashStructural(t *testing.T) {
	a := FlowKeyV6{PID: 7, Comm: CommFromString("sshd"), LocalPort: 22, RemotePort: 40000}
	a.LocalAddr[15] = 1
	b := a
	assert.Equal(t, a.Hash(), b.Hash())

	b.RemoteAddr[0] = 0xfe
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestFlowKeyAddrPorts(t *testing.T) {
	k := FlowKeyV4{LocalAddr: 0x7F000001, RemoteAddr: 0xC0A80001, LocalPort: 8080, RemotePort: 443}
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:8080"), k.Local())
	assert.Equal(t, netip.MustParseAddrPort("192.168.0.1:443"), k.Remote())

	assert.Equal(t, uint32(0xC0A80001), AddrToUint32(netip.MustParseAddr("192.168.0.1")))
	assert.Equal(t, uint32(0), AddrToUint32(netip.MustParseAddr("::1")))
}
