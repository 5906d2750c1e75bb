// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package collector

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netacct-exporter-ebpf/internal/config"
	"github.com/netacct-exporter-ebpf/internal/containers"
	"github.com/netacct-exporter-ebpf/internal/probe"
	"github.com/netacct-exporter-ebpf/internal/types"
)

// captureLogs sends the default logger to a buffer for the rest of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func sendBytes(t *testing.T, p *probe.Probes, local, remote string, n int64) {
	t.Helper()
	tk := types.Task{PID: 42, TID: 7, Comm: types.CommFromString("curl")}
	p.Send.Entry(tk, v4Socket(local, remote, 51000, 443))
	require.Equal(t, probe.OutcomeAccounted, p.Send.Return(tk, n))
}

func TestTrafficLogModes(t *testing.T) {
	flows := map[string]struct{ local, remote string }{
		"local unknown":  {"192.168.50.5", "10.0.0.9"},
		"remote unknown": {"10.0.0.5", "93.184.216.34"},
		"both known":     {"10.0.0.5", "10.0.0.9"},
	}
	cases := []struct {
		mode   string
		flow   string
		logged bool
	}{
		{config.TrafficLogOff, "local unknown", false},
		{config.TrafficLogOff, "remote unknown", false},
		{config.TrafficLogOff, "both known", false},
		{config.TrafficLogAll, "local unknown", true},
		{config.TrafficLogAll, "remote unknown", true},
		{config.TrafficLogAll, "both known", true},
		{config.TrafficLogUnknown, "local unknown", true},
		{config.TrafficLogUnknown, "remote unknown", true},
		{config.TrafficLogUnknown, "both known", false},
	}
	for _, tc := range cases {
		t.Run(tc.mode+"/"+tc.flow, func(t *testing.T) {
			buf := captureLogs(t)
			c, _ := newTestCollector(t, tc.mode)
			f := flows[tc.flow]
			sendBytes(t, c.probes, f.local, f.remote, 100)

			require.NoError(t, c.poll(context.Background()))

			out := buf.String()
			assert.Equal(t, tc.logged, strings.Contains(out, "msg=traffic"), out)
			if tc.logged {
				assert.Contains(t, out, "local="+f.local+":51000")
				assert.Contains(t, out, "bytes=100")
			}
		})
	}
}

func TestLocalUnknownLabel(t *testing.T) {
	c, _ := newTestCollector(t, config.TrafficLogOff)
	sendBytes(t, c.probes, "192.168.50.5", "10.0.0.9", 100)
	require.NoError(t, c.poll(context.Background()))

	assert.Equal(t, 100.0, testutil.ToFloat64(c.metrics.socketBytes.WithLabelValues("curl", config.UnknownLocal, "lan", dirSent, "4")))
	flows := c.flows.list(dirSent)
	require.Len(t, flows, 1)
	assert.Equal(t, config.UnknownLocal, flows[0].LocalNetwork)
}

func TestNetworkRatesSkipCatchAllFrom(t *testing.T) {
	c, _ := newTestCollector(t, config.TrafficLogOff)
	require.NoError(t, c.poll(context.Background()))

	// lan to, lan from, other to
	assert.Equal(t, 3, testutil.CollectAndCount(c.metrics.networkBytesPerSecond))
}

type fakeDecoder struct{ n uint64 }

func (f *fakeDecoder) DecodeErrors() uint64 { return f.n }

func TestExportDecodeErrors(t *testing.T) {
	c, _ := newTestCollector(t, config.TrafficLogOff)
	c.exportStats()
	assert.Zero(t, testutil.ToFloat64(c.metrics.decodeErrors))

	d := &fakeDecoder{n: 3}
	c.decoder = d
	c.exportStats()
	assert.Equal(t, 3.0, testutil.ToFloat64(c.metrics.decodeErrors))

	d.n = 5
	c.exportStats()
	c.exportStats()
	assert.Equal(t, 5.0, testutil.ToFloat64(c.metrics.decodeErrors))
}

type fakeLister struct {
	list []containers.Container
	err  error
}

func (f *fakeLister) Containers(context.Context) ([]containers.Container, error) {
	return f.list, f.err
}

func TestContainerGroupsLabelLocalSide(t *testing.T) {
	c, _ := newTestCollector(t, config.TrafficLogOff)
	l := &fakeLister{list: []containers.Container{
		{
			Name:   "web-1",
			Labels: map[string]string{containers.DefaultLabel: "shop"},
			Addrs:  []netip.Addr{netip.MustParseAddr("192.168.50.5"), netip.MustParseAddr("10.0.0.7")},
		},
	}}
	c.containers = containers.NewResolver(l, containers.DefaultLabel)

	sendBytes(t, c.probes, "192.168.50.5", "93.184.216.34", 100)
	require.NoError(t, c.poll(context.Background()))
	assert.Equal(t, 100.0, testutil.ToFloat64(c.metrics.socketBytes.WithLabelValues("curl", "shop", "other", dirSent, "4")))

	// container group wins over the configured network
	sendBytes(t, c.probes, "10.0.0.7", "93.184.216.34", 50)
	sendBytes(t, c.probes, "10.0.0.5", "93.184.216.34", 20)
	require.NoError(t, c.poll(context.Background()))
	assert.Equal(t, 150.0, testutil.ToFloat64(c.metrics.socketBytes.WithLabelValues("curl", "shop", "other", dirSent, "4")))
	assert.Equal(t, 20.0, testutil.ToFloat64(c.metrics.socketBytes.WithLabelValues("curl", "lan", "other", dirSent, "4")))

	// a failed refresh keeps the last known addresses
	l.err = errors.New("daemon down")
	sendBytes(t, c.probes, "192.168.50.5", "93.184.216.34", 1)
	require.NoError(t, c.poll(context.Background()))
	assert.Equal(t, 151.0, testutil.ToFloat64(c.metrics.socketBytes.WithLabelValues("curl", "shop", "other", dirSent, "4")))

	// the container stopped
	l.err = nil
	l.list = nil
	sendBytes(t, c.probes, "192.168.50.5", "93.184.216.34", 9)
	require.NoError(t, c.poll(context.Background()))
	assert.Equal(t, 9.0, testutil.ToFloat64(c.metrics.socketBytes.WithLabelValues("curl", config.UnknownLocal, "other", dirSent, "4")))
}
