// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

// Package probe implements the traffic hooks: the ingress frame classifier,
// the send correlator and the receive aggregator, together with the tables
// they write. Hooks never block, never return errors and never change the
// fate of the traffic they observe.
package probe

import "github.com/netacct-exporter-ebpf/internal/events"

type Options struct {
	ChannelCapacity int // event channel slots (0 = events.DefaultCapacity)
	Shards          int // aggregation table shards (0 = DefaultShards)
}

// Probes is the process-wide hook state. It lives as long as the hooks are attached.
type Probes struct {
	Events     *events.Channel
	Tables     *Tables
	Pending    *CorrelationTable
	Stats      *Stats
	Classifier *Classifier
	Send       *SendCorrelator
	Receive    *ReceiveAggregator
}

func New(opts Options) *Probes {
	p := &Probes{
		Events:  events.New(opts.ChannelCapacity),
		Tables:  NewTables(opts.Shards),
		Pending: NewCorrelationTable(),
		Stats:   &Stats{},
	}
	p.Classifier = NewClassifier(p.Events, p.Stats)
	p.Send = NewSendCorrelator(p.Pending, p.Tables, p.Stats)
	p.Receive = NewReceiveAggregator(p.Tables, p.Stats)
	return p
}
