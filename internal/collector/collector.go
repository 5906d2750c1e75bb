// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	psnet "github.com/shirou/gopsutil/v3/net"
	"golang.org/x/sync/errgroup"

	"github.com/netacct-exporter-ebpf/internal/capture"
	"github.com/netacct-exporter-ebpf/internal/config"
	"github.com/netacct-exporter-ebpf/internal/containers"
	"github.com/netacct-exporter-ebpf/internal/geoip"
	"github.com/netacct-exporter-ebpf/internal/kernel"
	"github.com/netacct-exporter-ebpf/internal/netstats"
	"github.com/netacct-exporter-ebpf/internal/probe"
	"github.com/netacct-exporter-ebpf/internal/types"
)

const (
	defaultFlowTTL  = 5 * time.Minute
	shutdownTimeout = 2 * time.Second
	// Frames larger than this do not fit a single XDP buffer in native mode.
	maxFrameMTU = 3498
)

// Config is read-only after Run() is called and safe for concurrent reads.
// All fields must be initialized before calling Run() and must not be modified.
type Config struct {
	Interface       string // ingress capture interface; empty disables frame classification
	ObjectPath      string // BPF object with the socket kprobes; empty disables socket accounting
	NetworksFile    string
	GeoIPDB         string
	GeoIPCacheSize  int // GeoIP LRU cache size (0 = default 65536)
	PollInterval    time.Duration
	ChannelCapacity int
	TableShards     int
	ListenAddress   string
	MetricsPath     string
	APIKey          string        // bearer key for /api/v1; empty leaves the API open
	FlowTTL         time.Duration // idle flows are dropped from /api/v1/flows after this
}

// Collector drains the probe tables and event channel into metrics and the flow API.
type Collector struct {
	cfg        Config
	probes     *probe.Probes
	networks   *netstats.Set
	geo        *geoip.Lookup
	trafficLog string
	metrics    *metrics
	flows      *flowStore

	// optional; nil when container discovery or socket hooks are off
	containers *containers.Resolver
	decoder    decodeErrorSource

	// only touched by poll
	prevStats        map[probe.StatKey]uint64
	prevDropped      uint64
	prevDecodeErrors uint64
}

// decodeErrorSource counts hook records that could not be decoded.
type decodeErrorSource interface {
	DecodeErrors() uint64
}

func newCollector(cfg Config, p *probe.Probes, networks *netstats.Set, geo *geoip.Lookup, trafficLog string) *Collector {
	return &Collector{
		cfg:        cfg,
		probes:     p,
		networks:   networks,
		geo:        geo,
		trafficLog: trafficLog,
		metrics:    newMetrics(),
		flows:      newFlowStore(),
		prevStats:  make(map[probe.StatKey]uint64),
	}
}

func Run(ctx context.Context, cfg Config) error {
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("--poll-interval must be > 0, got %v", cfg.PollInterval)
	}
	if cfg.ChannelCapacity < 0 {
		return fmt.Errorf("--channel-capacity must be >= 0, got %d", cfg.ChannelCapacity)
	}
	if cfg.Interface == "" && cfg.ObjectPath == "" {
		return errors.New("nothing to attach: set --interface and/or --bpf-object")
	}
	if cfg.FlowTTL <= 0 {
		cfg.FlowTTL = defaultFlowTTL
	}

	file, err := config.Load(cfg.NetworksFile)
	if err != nil {
		slog.Error("load networks config failed", "path", cfg.NetworksFile, "err", err)
		return fmt.Errorf("networks config: %w", err)
	}
	nets, err := file.BuildNetworks()
	if err != nil {
		return fmt.Errorf("networks config: %w", err)
	}
	slog.Info("networks configured", "count", len(nets), "traffic_log", file.TrafficLog)

	if cfg.Interface != "" {
		if err := checkMTU(cfg.Interface); err != nil {
			return err
		}
	}

	p := probe.New(probe.Options{ChannelCapacity: cfg.ChannelCapacity, Shards: cfg.TableShards})

	var geo *geoip.Lookup
	if cfg.GeoIPDB != "" {
		geo, err = geoip.Open(cfg.GeoIPDB, cfg.GeoIPCacheSize)
		if err != nil {
			slog.Warn("geoip db open failed, country metrics disabled", "path", cfg.GeoIPDB, "err", err)
			geo = nil
		} else {
			defer geo.Close()
		}
	}

	c := newCollector(cfg, p, netstats.NewSet(nets, time.Now()), geo, file.TrafficLog)
	if file.ContainerDiscovery {
		lister, err := containers.NewDockerLister()
		if err != nil {
			slog.Warn("docker client failed, container discovery disabled", "err", err)
		} else {
			defer lister.Close()
			c.containers = containers.NewResolver(lister, file.NamespaceLabel)
			slog.Info("container discovery enabled", "label", file.NamespaceLabel)
		}
	}
	reg := prometheus.NewRegistry()
	c.metrics.register(reg)
	c.metrics.configPollInterval.Set(cfg.PollInterval.Seconds())
	c.metrics.configChannelCapacity.Set(float64(p.Events.Cap()))

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Interface != "" {
		src, err := capture.Open(cfg.Interface, p.Classifier)
		if err != nil {
			slog.Error("open capture failed", "iface", cfg.Interface, "err", err)
			return fmt.Errorf("capture: %w", err)
		}
		defer src.Close()
		g.Go(func() error { return src.Run(gctx) })
	}
	if cfg.ObjectPath != "" {
		fwd, err := kernel.Load(cfg.ObjectPath, kernel.ProbeHooks{P: p})
		if err != nil {
			slog.Error("load socket hooks failed", "path", cfg.ObjectPath, "err", err)
			return fmt.Errorf("socket hooks: %w", err)
		}
		defer fwd.Close()
		c.decoder = fwd
		g.Go(func() error { return fwd.Run(gctx) })
	}

	g.Go(func() error { return c.consumeEvents(gctx) })
	g.Go(func() error { return c.pollLoop(gctx) })

	srv := &http.Server{Addr: cfg.ListenAddress, Handler: newRouter(reg, cfg.MetricsPath, newAPI(cfg.APIKey, c.flows, c.networks))}
	g.Go(func() error {
		slog.Info("HTTP server starting", "listen", cfg.ListenAddress, "metrics_path", cfg.MetricsPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

var listInterfaces = psnet.Interfaces

// checkMTU warns when frames on iface may not fit a single XDP buffer.
func checkMTU(iface string) error {
	ifs, err := listInterfaces()
	if err != nil {
		return fmt.Errorf("list interfaces: %w", err)
	}
	for _, i := range ifs {
		if i.Name != iface {
			continue
		}
		if i.MTU >= maxFrameMTU {
			slog.Warn("interface MTU too large for native XDP, frames may be truncated", "iface", iface, "mtu", i.MTU, "limit", maxFrameMTU)
		}
		return nil
	}
	return fmt.Errorf("interface %q not found", iface)
}

func (c *Collector) consumeEvents(ctx context.Context) error {
	events := c.probes.Events.C()
	for {
		select {
		case <-ctx.Done():
			n := c.probes.Events.Drain(c.handleSample)
			slog.Debug("event consumer stopped", "drained", n)
			return nil
		case s := <-events:
			c.handleSample(s)
		}
	}
}

func (c *Collector) handleSample(s types.Sample) {
	n, dir := c.networks.AddSample(s)
	c.metrics.networkBytes.WithLabelValues(n.Name, string(dir)).Add(float64(s.ByteCount))
	c.metrics.frameBytes.WithLabelValues(protocolName(s.Protocol)).Add(float64(s.ByteCount))
}

func protocolName(p uint32) string {
	switch p {
	case 0:
		return "unspecified"
	case 1:
		return "icmp"
	case 6:
		return "tcp"
	case 17:
		return "udp"
	case 58:
		return "icmpv6"
	}
	return fmt.Sprint(p)
}

func (c *Collector) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	slog.Debug("poll loop started", "interval", c.cfg.PollInterval)
	for {
		select {
		case <-ctx.Done():
			slog.Debug("context canceled, exiting poll loop")
			return nil
		case <-ticker.C:
			if err := c.poll(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				slog.Error("poll", "err", err)
			}
		}
	}
}
