// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package collector

import (
	"context"
	"log/slog"
	"net/netip"
	"time"

	"github.com/netacct-exporter-ebpf/internal/config"
	"github.com/netacct-exporter-ebpf/internal/netstats"
	"github.com/netacct-exporter-ebpf/internal/types"
)

// Socket traffic directions as seen from the local process.
const (
	dirSent     = "sent"
	dirReceived = "received"
)

// flowSample is one drained aggregation table entry.
type flowSample struct {
	pid       uint32
	process   string
	local     netip.AddrPort
	remote    netip.AddrPort
	ipVersion string
	direction string
	bytes     uint64
}

func v4Sample(k types.FlowKeyV4, direction string, bytes uint64) flowSample {
	return flowSample{
		pid:       k.PID,
		process:   k.Comm.String(),
		local:     k.Local(),
		remote:    k.Remote(),
		ipVersion: "4",
		direction: direction,
		bytes:     bytes,
	}
}

func v6Sample(k types.FlowKeyV6, direction string, bytes uint64) flowSample {
	return flowSample{
		pid:       k.PID,
		process:   k.Comm.String(),
		local:     k.Local(),
		remote:    k.Remote(),
		ipVersion: "6",
		direction: direction,
		bytes:     bytes,
	}
}

func (c *Collector) poll(ctx context.Context) error {
	slog.Debug("poll start")
	if err := ctx.Err(); err != nil {
		slog.Debug("poll exit", "reason", "context canceled")
		return err
	}
	now := time.Now()
	c.updateNetworkRates(now)
	if c.containers != nil {
		if err := c.containers.Refresh(ctx); err != nil {
			slog.Warn("container refresh failed, keeping previous addresses", "err", err)
		}
	}

	drainStart := time.Now()
	t := c.probes.Tables
	v4s := t.IPv4Send.Drain(func(k types.FlowKeyV4, b uint64) { c.record(v4Sample(k, dirSent, b), now) })
	v4r := t.IPv4Recv.Drain(func(k types.FlowKeyV4, b uint64) { c.record(v4Sample(k, dirReceived, b), now) })
	v6s := t.IPv6Send.Drain(func(k types.FlowKeyV6, b uint64) { c.record(v6Sample(k, dirSent, b), now) })
	v6r := t.IPv6Recv.Drain(func(k types.FlowKeyV6, b uint64) { c.record(v6Sample(k, dirReceived, b), now) })
	drainDuration := time.Since(drainStart).Seconds()

	c.metrics.pollDurationSeconds.Set(drainDuration)
	c.metrics.tableEntries.WithLabelValues("ipv4_send").Set(float64(v4s))
	c.metrics.tableEntries.WithLabelValues("ipv4_recv").Set(float64(v4r))
	c.metrics.tableEntries.WithLabelValues("ipv6_send").Set(float64(v6s))
	c.metrics.tableEntries.WithLabelValues("ipv6_recv").Set(float64(v6r))

	pruned := c.flows.prune(now.Add(-c.cfg.FlowTTL))
	c.exportStats()

	slog.Debug("poll done",
		"ipv4_send", v4s, "ipv4_recv", v4r, "ipv6_send", v6s, "ipv6_recv", v6r,
		"flows", c.flows.len(), "pruned", pruned, "duration_sec", drainDuration)
	return nil
}

// updateNetworkRates publishes per-network rates. The catch-all is only ever
// credited with "to" bytes, so it gets no "from" series.
func (c *Collector) updateNetworkRates(now time.Time) {
	for _, ctr := range c.networks.Counters() {
		r := ctr.PerSecond(now)
		c.metrics.networkBytesPerSecond.WithLabelValues(ctr.Network.Name, string(netstats.DirTo)).Set(r.ToNetwork)
		if !ctr.Network.CatchAll {
			c.metrics.networkBytesPerSecond.WithLabelValues(ctr.Network.Name, string(netstats.DirFrom)).Set(r.FromNetwork)
		}
	}
}

// localLabel names the local side: container group first, then a configured
// network, then config.UnknownLocal. known is false for the last case.
func (c *Collector) localLabel(addr netip.Addr) (label string, known bool) {
	if g, ok := c.containers.Lookup(addr); ok {
		return g, true
	}
	if n := c.networks.MatchAddr(addr); !n.CatchAll {
		return n.Name, true
	}
	return config.UnknownLocal, false
}

func (c *Collector) record(s flowSample, now time.Time) {
	local, localKnown := c.localLabel(s.local.Addr())
	remoteNet := c.networks.MatchAddr(s.remote.Addr())
	c.metrics.socketBytes.WithLabelValues(s.process, local, remoteNet.Name, s.direction, s.ipVersion).Add(float64(s.bytes))

	var country string
	if c.geo != nil {
		country = c.geo.Country(s.remote.Addr())
		c.metrics.countryBytes.WithLabelValues(country, s.direction).Add(float64(s.bytes))
	}

	switch {
	case c.trafficLog == config.TrafficLogAll,
		c.trafficLog == config.TrafficLogUnknown && (!localKnown || remoteNet.CatchAll):
		slog.Info("traffic",
			"process", s.process, "pid", s.pid,
			"local", s.local.String(), "remote", s.remote.String(),
			"local_network", local, "remote_network", remoteNet.Name,
			"direction", s.direction, "bytes", s.bytes)
	}

	c.flows.add(FlowRecord{
		Process:       s.process,
		PID:           s.pid,
		Local:         s.local.String(),
		Remote:        s.remote.String(),
		LocalNetwork:  local,
		RemoteNetwork: remoteNet.Name,
		Country:       country,
		Direction:     s.direction,
		IPVersion:     s.ipVersion,
		Bytes:         s.bytes,
		LastSeen:      now,
	})
}

// exportStats turns the cumulative probe outcome counters into counter deltas.
func (c *Collector) exportStats() {
	for k, v := range c.probes.Stats.Snapshot() {
		if prev := c.prevStats[k]; v > prev {
			c.metrics.hookOutcomes.WithLabelValues(k.Hook.String(), k.Outcome.String()).Add(float64(v - prev))
		}
		c.prevStats[k] = v
	}

	dropped := c.probes.Events.Dropped()
	if dropped > c.prevDropped {
		c.metrics.eventsDropped.Add(float64(dropped - c.prevDropped))
	}
	c.prevDropped = dropped

	if c.decoder != nil {
		n := c.decoder.DecodeErrors()
		if n > c.prevDecodeErrors {
			c.metrics.decodeErrors.Add(float64(n - c.prevDecodeErrors))
		}
		c.prevDecodeErrors = n
	}

	c.metrics.eventChannelDepth.Set(float64(c.probes.Events.Len()))
	c.metrics.pendingSends.Set(float64(c.probes.Pending.Len()))
}
