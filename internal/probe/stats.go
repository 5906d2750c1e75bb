// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package probe

import "sync/atomic"

// Outcome is the internal, non-fatal result of one hook invocation.
// No outcome changes frame disposition or blocks the caller.
type Outcome uint8

const (
	OutcomeEmitted Outcome = iota
	OutcomeAccounted
	OutcomeStored
	OutcomeBoundsCheck
	OutcomeUnsupportedProtocol
	OutcomeChannelFull
	OutcomeMissingCorrelation
	OutcomeUnsupportedFamily
	OutcomeNonPositiveTransfer
	numOutcomes
)

var outcomeNames = [numOutcomes]string{
	"emitted",
	"accounted",
	"stored",
	"bounds_check",
	"unsupported_protocol",
	"channel_full",
	"missing_correlation",
	"unsupported_family",
	"non_positive_transfer",
}

func (o Outcome) String() string {
	if o < numOutcomes {
		return outcomeNames[o]
	}
	return "unknown"
}

// Hook names one attachment point.
type Hook uint8

const (
	HookIngress Hook = iota
	HookSendEntry
	HookSendReturn
	HookRecvCleanup
	numHooks
)

var hookNames = [numHooks]string{"ingress", "send_entry", "send_return", "recv_cleanup"}

func (h Hook) String() string {
	if h < numHooks {
		return hookNames[h]
	}
	return "unknown"
}

// Stats counts outcomes per hook. Safe for concurrent use by any number of hooks.
type Stats struct {
	counts [numHooks][numOutcomes]atomic.Uint64
}

func (s *Stats) Add(h Hook, o Outcome) {
	if s == nil || h >= numHooks || o >= numOutcomes {
		return
	}
	s.counts[h][o].Add(1)
}

func (s *Stats) Get(h Hook, o Outcome) uint64 {
	if s == nil || h >= numHooks || o >= numOutcomes {
		return 0
	}
	return s.counts[h][o].Load()
}

// StatKey identifies one counter in a snapshot.
type StatKey struct {
	Hook    Hook
	Outcome Outcome
}

// Snapshot returns every non-zero counter.
func (s *Stats) Snapshot() map[StatKey]uint64 {
	out := make(map[StatKey]uint64)
	for h := Hook(0); h < numHooks; h++ {
		for o := Outcome(0); o < numOutcomes; o++ {
			if v := s.counts[h][o].Load(); v > 0 {
				out[StatKey{h, o}] = v
			}
		}
	}
	return out
}
