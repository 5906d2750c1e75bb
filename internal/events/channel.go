// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

// Package events holds the bounded queue carrying per-frame samples from the
// classifier to the collector.
package events

import (
	"sync/atomic"

	"github.com/netacct-exporter-ebpf/internal/types"
)

const DefaultCapacity = 128

// Channel is a fixed-capacity multi-producer/single-consumer queue.
// Producers never block: a full channel drops the sample.
type Channel struct {
	ch      chan types.Sample
	dropped atomic.Uint64
}

// New returns a channel holding at most capacity samples.
// If capacity <= 0, DefaultCapacity is used.
func New(capacity int) *Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel{ch: make(chan types.Sample, capacity)}
}

// TryEmit reserves a slot and publishes s. It reports false when the channel is full.
func (c *Channel) TryEmit(s types.Sample) bool {
	select {
	case c.ch <- s:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// C is the consumer side. Only one goroutine should receive from it.
func (c *Channel) C() <-chan types.Sample {
	return c.ch
}

// Drain hands every currently queued sample to fn without waiting for more.
func (c *Channel) Drain(fn func(types.Sample)) int {
	n := 0
	for {
		select {
		case s := <-c.ch:
			fn(s)
			n++
		default:
			return n
		}
	}
}

// Dropped is the number of samples lost to a full channel since creation.
func (c *Channel) Dropped() uint64 {
	return c.dropped.Load()
}

func (c *Channel) Len() int { return len(c.ch) }
func (c *Channel) Cap() int { return cap(c.ch) }
