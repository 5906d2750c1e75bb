// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package collector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netacct-exporter-ebpf/internal/config"
	"github.com/netacct-exporter-ebpf/internal/netstats"
	"github.com/netacct-exporter-ebpf/internal/probe"
	"github.com/netacct-exporter-ebpf/internal/types"
)

func newTestCollector(t *testing.T, trafficLog string) (*Collector, *prometheus.Registry) {
	t.Helper()
	lan, err := netstats.NewNetwork("lan", "10.0.0.0/8")
	require.NoError(t, err)
	p := probe.New(probe.Options{ChannelCapacity: 4})
	c := newCollector(Config{PollInterval: time.Second, FlowTTL: time.Minute}, p,
		netstats.NewSet([]*netstats.Network{lan}, time.Now()), nil, trafficLog)
	reg := prometheus.NewRegistry()
	c.metrics.register(reg)
	return c, reg
}

func v4Socket(local, remote string, lport, rport uint16) *types.Socket {
	sk := &types.Socket{Family: types.AFInet, Num: lport, Dport: [2]byte{byte(rport >> 8), byte(rport)}}
	sk.RcvSaddr = netip.MustParseAddr(local).As4()
	sk.Daddr = netip.MustParseAddr(remote).As4()
	return sk
}

func TestPollDrainsTablesIntoMetrics(t *testing.T) {
	c, _ := newTestCollector(t, config.TrafficLogAll)
	p := c.probes
	tk := types.Task{PID: 42, TID: 7, Comm: types.CommFromString("curl")}
	sk := v4Socket("10.0.0.5", "93.184.216.34", 51000, 443)

	p.Send.Entry(tk, sk)
	require.Equal(t, probe.OutcomeAccounted, p.Send.Return(tk, 1500))
	require.Equal(t, probe.OutcomeAccounted, p.Receive.Cleanup(tk, sk, 700))
	require.Equal(t, probe.OutcomeNonPositiveTransfer, p.Receive.Cleanup(tk, sk, 0))

	require.NoError(t, c.poll(context.Background()))

	assert.Equal(t, 1500.0, testutil.ToFloat64(c.metrics.socketBytes.WithLabelValues("curl", "lan", "other", dirSent, "4")))
	assert.Equal(t, 700.0, testutil.ToFloat64(c.metrics.socketBytes.WithLabelValues("curl", "lan", "other", dirReceived, "4")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.tableEntries.WithLabelValues("ipv4_send")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.hookOutcomes.WithLabelValues("send_entry", "stored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.hookOutcomes.WithLabelValues("recv_cleanup", "non_positive_transfer")))
	assert.Zero(t, p.Tables.IPv4Send.Len())
	assert.Zero(t, p.Tables.IPv4Recv.Len())
	assert.Zero(t, testutil.ToFloat64(c.metrics.pendingSends))

	// a second poll only adds new traffic and outcome deltas
	p.Send.Entry(tk, sk)
	p.Send.Return(tk, 500)
	require.NoError(t, c.poll(context.Background()))
	assert.Equal(t, 2000.0, testutil.ToFloat64(c.metrics.socketBytes.WithLabelValues("curl", "lan", "other", dirSent, "4")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.metrics.hookOutcomes.WithLabelValues("send_return", "accounted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.hookOutcomes.WithLabelValues("recv_cleanup", "accounted")))

	flows := c.flows.list("")
	require.Len(t, flows, 2)
	assert.Equal(t, FlowRecord{
		Process:       "curl",
		PID:           42,
		Local:         "10.0.0.5:51000",
		Remote:        "93.184.216.34:443",
		LocalNetwork:  "lan",
		RemoteNetwork: "other",
		Direction:     dirSent,
		IPVersion:     "4",
		Bytes:         2000,
		LastSeen:      flows[0].LastSeen,
	}, flows[0])
	assert.Equal(t, uint64(700), flows[1].Bytes)
}

func TestPollCanceled(t *testing.T) {
	c, _ := newTestCollector(t, config.TrafficLogOff)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(c.poll(ctx), context.Canceled))
}

func TestHandleSampleAndDrops(t *testing.T) {
	c, _ := newTestCollector(t, config.TrafficLogOff)
	lanAddr := types.AddrToUint32(netip.MustParseAddr("10.1.2.3"))
	wan := types.AddrToUint32(netip.MustParseAddr("8.8.8.8"))

	c.handleSample(types.Sample{SrcAddr: wan, DstAddr: lanAddr, ByteCount: 60, Protocol: 17})
	c.handleSample(types.Sample{SrcAddr: lanAddr, DstAddr: wan, ByteCount: 40, Protocol: 6})
	c.handleSample(types.Sample{ByteCount: 100})

	assert.Equal(t, 60.0, testutil.ToFloat64(c.metrics.networkBytes.WithLabelValues("lan", "to")))
	assert.Equal(t, 40.0, testutil.ToFloat64(c.metrics.networkBytes.WithLabelValues("lan", "from")))
	assert.Equal(t, 100.0, testutil.ToFloat64(c.metrics.networkBytes.WithLabelValues("other", "to")))
	assert.Equal(t, 60.0, testutil.ToFloat64(c.metrics.frameBytes.WithLabelValues("udp")))
	assert.Equal(t, 100.0, testutil.ToFloat64(c.metrics.frameBytes.WithLabelValues("unspecified")))

	for i := 0; i < 6; i++ {
		c.probes.Events.TryEmit(types.Sample{ByteCount: 1})
	}
	c.exportStats()
	assert.Equal(t, 2.0, testutil.ToFloat64(c.metrics.eventsDropped))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.metrics.eventChannelDepth))
}

func TestConsumeEventsDrainsOnCancel(t *testing.T) {
	c, _ := newTestCollector(t, config.TrafficLogOff)
	for i := 0; i < 3; i++ {
		require.True(t, c.probes.Events.TryEmit(types.Sample{ByteCount: 10}))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.consumeEvents(ctx))
	assert.Zero(t, c.probes.Events.Len())
	assert.Equal(t, 30.0, testutil.ToFloat64(c.metrics.networkBytes.WithLabelValues("other", "to")))
}

func TestFlowStorePrune(t *testing.T) {
	s := newFlowStore()
	now := time.Now()
	s.add(FlowRecord{Process: "old", Direction: dirSent, Bytes: 1, LastSeen: now.Add(-time.Hour)})
	s.add(FlowRecord{Process: "new", Direction: dirSent, Bytes: 1, LastSeen: now})
	s.add(FlowRecord{Process: "new", Direction: dirSent, Bytes: 4, LastSeen: now})

	assert.Equal(t, 1, s.prune(now.Add(-time.Minute)))
	flows := s.list("")
	require.Len(t, flows, 1)
	assert.Equal(t, "new", flows[0].Process)
	assert.Equal(t, uint64(5), flows[0].Bytes)
	assert.Empty(t, s.list(dirReceived))
}

func TestProtocolName(t *testing.T) {
	assert.Equal(t, "tcp", protocolName(6))
	assert.Equal(t, "icmpv6", protocolName(58))
	assert.Equal(t, "47", protocolName(47))
}

func TestCheckMTU(t *testing.T) {
	orig := listInterfaces
	t.Cleanup(func() { listInterfaces = orig })
	listInterfaces = func() (psnet.InterfaceStatList, error) {
		return psnet.InterfaceStatList{
			{Name: "eth0", MTU: 1500},
			{Name: "jumbo0", MTU: 9000},
		}, nil
	}

	assert.NoError(t, checkMTU("eth0"))
	assert.NoError(t, checkMTU("jumbo0"))
	assert.Error(t, checkMTU("missing0"))
}

func TestRunValidation(t *testing.T) {
	err := Run(context.Background(), Config{})
	assert.ErrorContains(t, err, "poll-interval")
	err = Run(context.Background(), Config{PollInterval: time.Second})
	assert.ErrorContains(t, err, "nothing to attach")
}

func doRequest(t *testing.T, h http.Handler, path, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAPI(t *testing.T) {
	c, reg := newTestCollector(t, config.TrafficLogOff)
	now := time.Now()
	c.flows.add(FlowRecord{Process: "small", Direction: dirSent, Bytes: 10, LastSeen: now})
	c.flows.add(FlowRecord{Process: "big", Direction: dirReceived, Bytes: 900, LastSeen: now})
	c.networks.AddSample(types.Sample{DstAddr: types.AddrToUint32(netip.MustParseAddr("10.0.0.1")), ByteCount: 64})

	h := newRouter(reg, "/metrics", newAPI("s3cret", c.flows, c.networks))

	assert.Equal(t, http.StatusUnauthorized, doRequest(t, h, "/api/v1/flows", "").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(t, h, "/api/v1/flows", "wrong").Code)
	assert.Equal(t, http.StatusOK, doRequest(t, h, "/metrics", "").Code, "metrics stay open")

	w := doRequest(t, h, "/api/v1/flows", "s3cret")
	require.Equal(t, http.StatusOK, w.Code)
	var flows struct {
		Flows []FlowRecord `json:"flows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flows))
	require.Len(t, flows.Flows, 2)
	assert.Equal(t, "big", flows.Flows[0].Process)

	w = doRequest(t, h, "/api/v1/flows?direction=sent", "s3cret")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flows))
	require.Len(t, flows.Flows, 1)
	assert.Equal(t, "small", flows.Flows[0].Process)

	w = doRequest(t, h, "/api/v1/flows?limit=1", "s3cret")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flows))
	assert.Len(t, flows.Flows, 1)

	assert.Equal(t, http.StatusBadRequest, doRequest(t, h, "/api/v1/flows?direction=up", "s3cret").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(t, h, "/api/v1/flows?limit=-1", "s3cret").Code)

	w = doRequest(t, h, "/api/v1/networks", "s3cret")
	require.Equal(t, http.StatusOK, w.Code)
	var nets struct {
		Networks []networkResponse `json:"networks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &nets))
	require.Len(t, nets.Networks, 2)
	assert.Equal(t, networkResponse{Name: "lan", BytesTo: 64}, nets.Networks[0])
	assert.Equal(t, networkResponse{Name: "other", CatchAll: true}, nets.Networks[1])
}

func TestAPIWithoutKey(t *testing.T) {
	c, reg := newTestCollector(t, config.TrafficLogOff)
	h := newRouter(reg, "/metrics", newAPI("", c.flows, c.networks))
	assert.Equal(t, http.StatusOK, doRequest(t, h, "/api/v1/flows", "").Code)
}
