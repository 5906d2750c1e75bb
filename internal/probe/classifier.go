// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package probe

import (
	"github.com/netacct-exporter-ebpf/internal/events"
	"github.com/netacct-exporter-ebpf/internal/types"
)

// Verdict is the disposition of a frame. The classifier only observes,
// so the only verdict it ever returns is VerdictPass.
type Verdict uint8

const VerdictPass Verdict = 0

func (v Verdict) String() string { return "pass" }

// Classifier runs once per ingress frame and emits at most one sample.
type Classifier struct {
	events *events.Channel
	stats  *Stats
}

func NewClassifier(ch *events.Channel, stats *Stats) *Classifier {
	return &Classifier{events: ch, stats: stats}
}

// Classify inspects f and publishes a sample for IPv4/IPv6 frames whose
// network header fits in the frame. It never blocks and never loops.
func (c *Classifier) Classify(f Frame) (Verdict, Outcome) {
	o := c.classify(f)
	c.stats.Add(HookIngress, o)
	return VerdictPass, o
}

func (c *Classifier) classify(f Frame) Outcome {
	if !f.fits(0, EthHdrLen) {
		return OutcomeBoundsCheck
	}
	proto, _ := f.be16(ethProtoOff)

	switch proto {
	case types.EthPIP:
		if !f.fits(EthHdrLen, IPv4HdrLen) {
			return OutcomeBoundsCheck
		}
		// the fits check above covers all three reads
		src, _ := f.be32(EthHdrLen + ipv4SaddrOff)
		dst, _ := f.be32(EthHdrLen + ipv4DaddrOff)
		l4, _ := f.u8(EthHdrLen + ipv4ProtoOff)
		return c.emit(types.Sample{
			SrcAddr:   src,
			DstAddr:   dst,
			ByteCount: uint32(f.Len()),
			Protocol:  uint32(l4),
		})
	case types.EthPIPv6:
		if !f.fits(EthHdrLen, IPv6HdrLen) {
			return OutcomeBoundsCheck
		}
		// IPv6 address and next-header extraction is not supported; both stay zero.
		return c.emit(types.Sample{ByteCount: uint32(f.Len())})
	default:
		return OutcomeUnsupportedProtocol
	}
}

func (c *Classifier) emit(s types.Sample) Outcome {
	if !c.events.TryEmit(s) {
		return OutcomeChannelFull
	}
	return OutcomeEmitted
}
