// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netacct-exporter-ebpf/internal/collector"
	"github.com/netacct-exporter-ebpf/internal/events"
	"github.com/netacct-exporter-ebpf/internal/log"
	"github.com/netacct-exporter-ebpf/internal/probe"
)

var (
	iface           = flag.String("interface", "", "Interface whose ingress frames are classified; empty disables frame accounting")
	bpfObject       = flag.String("bpf-object", "", "Compiled BPF object with the tcp_sendmsg/tcp_cleanup_rbuf kprobes; empty disables socket accounting")
	networksFile    = flag.String("config", "", "YAML file with named networks, traffic_log mode and container discovery")
	geoipDB         = flag.String("geoip-db", "", "Path to GeoLite2-Country.mmdb; empty disables country metrics")
	geoipCacheSize  = flag.Int("geoip-cache-size", 65536, "GeoIP LRU cache size (address → country)")
	pollInterval    = flag.Duration("poll-interval", 2*time.Second, "Interval to drain the aggregation tables and update metrics")
	channelCapacity = flag.Int("channel-capacity", events.DefaultCapacity, "Frame sample channel capacity; samples are dropped when full")
	tableShards     = flag.Int("table-shards", probe.DefaultShards, "Lock shards per aggregation table")
	flowTTL         = flag.Duration("flow-ttl", 5*time.Minute, "Idle time after which a flow leaves /api/v1/flows")
	listenAddress   = flag.String("listen-address", "0.0.0.0:9100", "HTTP server listen address for /metrics and /api/v1")
	metricsPath     = flag.String("metrics-path", "/metrics", "HTTP path for Prometheus metrics")
	apiKey          = flag.String("api-key", os.Getenv("NETACCT_API_KEY"), "Bearer key required by /api/v1 (default $NETACCT_API_KEY); empty leaves it open")
	logLevel        = flag.String("log-level", "info", "Log level: "+log.SupportedLevels)
	logFormat       = flag.String("log-format", "text", "Log format: "+log.SupportedFormats)
)

func main() {
	flag.Parse()

	if err := log.Configure(*logLevel, *logFormat); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging flags: %v\n", err)
		os.Exit(1)
	}
	slog.Debug("logging configured", "level", *logLevel, "format", *logFormat)

	slog.Info("starting netacct-exporter",
		"interface", *iface,
		"bpf_object", *bpfObject,
		"config", *networksFile,
		"listen", *listenAddress,
		"poll_interval", *pollInterval,
	)
	slog.Debug("config",
		"channel_capacity", *channelCapacity,
		"table_shards", *tableShards,
		"geoip_db", *geoipDB,
		"flow_ttl", *flowTTL,
		"metrics_path", *metricsPath,
	)

	cfg := collector.Config{
		Interface:       *iface,
		ObjectPath:      *bpfObject,
		NetworksFile:    *networksFile,
		GeoIPDB:         *geoipDB,
		GeoIPCacheSize:  *geoipCacheSize,
		PollInterval:    *pollInterval,
		ChannelCapacity: *channelCapacity,
		TableShards:     *tableShards,
		ListenAddress:   *listenAddress,
		MetricsPath:     *metricsPath,
		APIKey:          *apiKey,
		FlowTTL:         *flowTTL,
	}

	// Run collector (blocks until context is canceled)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := collector.Run(ctx, cfg); err != nil {
		slog.Error("collector run failed", "err", err)
		os.Exit(1)
	}

	slog.Info("shutdown complete")
}
