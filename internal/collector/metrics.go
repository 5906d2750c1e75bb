// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package collector

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type metrics struct {
	networkBytes          *prometheus.CounterVec
	networkBytesPerSecond *prometheus.GaugeVec
	frameBytes            *prometheus.CounterVec
	socketBytes           *prometheus.CounterVec
	countryBytes          *prometheus.CounterVec
	hookOutcomes          *prometheus.CounterVec
	eventsDropped         prometheus.Counter
	decodeErrors          prometheus.Counter
	eventChannelDepth     prometheus.Gauge
	pendingSends          prometheus.Gauge
	tableEntries          *prometheus.GaugeVec
	pollDurationSeconds   prometheus.Gauge
	configPollInterval    prometheus.Gauge
	configChannelCapacity prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		networkBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netacct_network_bytes_total",
				Help: "Ingress frame bytes attributed to a configured network, by direction relative to it.",
			},
			[]string{"network", "direction"},
		),
		networkBytesPerSecond: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "netacct_network_bytes_per_second",
				Help: "Ingress frame bytes per second over the last poll interval, by network and direction.",
			},
			[]string{"network", "direction"},
		),
		frameBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netacct_frame_bytes_total",
				Help: "Ingress frame bytes by L4 protocol field (IPv6 frames report unspecified).",
			},
			[]string{"protocol"},
		),
		socketBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netacct_socket_bytes_total",
				Help: "TCP payload bytes by process, local network, remote network, direction and ip_version.",
			},
			[]string{"process", "local_network", "remote_network", "direction", "ip_version"},
		),
		countryBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netacct_remote_country_bytes_total",
				Help: "TCP payload bytes by remote country and direction. Only exported with a GeoIP database.",
			},
			[]string{"country", "direction"},
		),
		hookOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netacct_hook_outcomes_total",
				Help: "Hook invocations by hook and outcome.",
			},
			[]string{"hook", "outcome"},
		),
		eventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "netacct_event_channel_dropped_total",
				Help: "Samples dropped because the event channel was full.",
			},
		),
		decodeErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "netacct_hook_record_decode_errors_total",
				Help: "Kernel hook records dropped because they could not be decoded.",
			},
		),
		eventChannelDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "netacct_event_channel_depth",
				Help: "Samples queued in the event channel at the last poll.",
			},
		),
		pendingSends: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "netacct_pending_sends",
				Help: "Threads with a send-entry record awaiting its return at the last poll.",
			},
		),
		tableEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "netacct_table_entries",
				Help: "Aggregation table entries drained at the last poll.",
			},
			[]string{"table"},
		),
		pollDurationSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "netacct_poll_duration_seconds",
				Help: "Time in seconds spent draining the aggregation tables in the last poll.",
			},
		),
		configPollInterval: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "netacct_config_poll_interval_seconds",
				Help: "Configured poll interval in seconds.",
			},
		),
		configChannelCapacity: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "netacct_config_event_channel_capacity",
				Help: "Configured event channel capacity in samples.",
			},
		),
	}
}

func (m *metrics) register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.networkBytes,
		m.networkBytesPerSecond,
		m.frameBytes,
		m.socketBytes,
		m.countryBytes,
		m.hookOutcomes,
		m.eventsDropped,
		m.decodeErrors,
		m.eventChannelDepth,
		m.pendingSends,
		m.tableEntries,
		m.pollDurationSeconds,
		m.configPollInterval,
		m.configChannelCapacity,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	slog.Info("Prometheus metrics registered")
}
