// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

// Package kernel loads the BPF object whose kprobes forward socket hook
// arguments over a ring buffer, and replays them into the probe hooks.
// The object is built from bpf/sock_hooks.bpf.c.
package kernel

//go:generate clang -O2 -g -Wall -target bpf -D__TARGET_ARCH_x86 -I/usr/include/bpf -I/usr/include/x86_64-linux-gnu -c bpf/sock_hooks.bpf.c -o bpf/sock_hooks.bpf.o

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"

	"github.com/netacct-exporter-ebpf/internal/probe"
	"github.com/netacct-exporter-ebpf/internal/types"
)

// Program and map names expected in the object file.
const (
	progSendEntry   = "tcp_send_entry"
	progSendReturn  = "tcp_send_ret"
	progRecvCleanup = "tcp_cleanup_rbuf"
	mapHookEvents   = "sock_events"
)

type attachPoint struct {
	symbol   string
	prog     string
	ret      bool
	optional bool
}

var attachPoints = []attachPoint{
	{symbol: "tcp_sendmsg", prog: progSendEntry},
	{symbol: "tcp_sendmsg", prog: progSendReturn, ret: true},
	// gone since 6.5; attached when the kernel still has it
	{symbol: "tcp_sendpage", prog: progSendEntry, optional: true},
	{symbol: "tcp_sendpage", prog: progSendReturn, ret: true, optional: true},
	{symbol: "tcp_cleanup_rbuf", prog: progRecvCleanup},
}

// Hooks is what forwarded records are replayed into.
type Hooks interface {
	SendEntry(types.Task, *types.Socket)
	SendReturn(types.Task, int64) probe.Outcome
	RecvCleanup(types.Task, *types.Socket, int64) probe.Outcome
}

// ProbeHooks adapts a probe set to Hooks.
type ProbeHooks struct{ P *probe.Probes }

func (h ProbeHooks) SendEntry(t types.Task, sk *types.Socket) { h.P.Send.Entry(t, sk) }
func (h ProbeHooks) SendReturn(t types.Task, size int64) probe.Outcome {
	return h.P.Send.Return(t, size)
}
func (h ProbeHooks) RecvCleanup(t types.Task, sk *types.Socket, copied int64) probe.Outcome {
	return h.P.Receive.Cleanup(t, sk, copied)
}

// Forwarder owns the loaded collection, its kprobe links and the ring buffer reader.
type Forwarder struct {
	coll  *ebpf.Collection
	links []link.Link
	rd    *ringbuf.Reader
	hooks Hooks

	decodeErrors atomic.Uint64
}

// Load loads objPath, attaches every kprobe and opens the hook ring buffer.
func Load(objPath string, hooks Hooks) (*Forwarder, error) {
	if err := CheckKernelVersion(); err != nil {
		return nil, err
	}
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("remove memlock limit: %w", err)
	}
	spec, err := ebpf.LoadCollectionSpec(objPath)
	if err != nil {
		return nil, fmt.Errorf("load spec %s: %w", objPath, err)
	}
	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	slog.Debug("BPF collection loaded", "path", objPath, "programs", len(coll.Programs), "maps", len(coll.Maps))

	f := &Forwarder{coll: coll, hooks: hooks}
	if err := f.attach(); err != nil {
		f.Close()
		return nil, err
	}

	events, ok := coll.Maps[mapHookEvents]
	if !ok {
		f.Close()
		return nil, fmt.Errorf("map %q not found in %s", mapHookEvents, objPath)
	}
	f.rd, err = ringbuf.NewReader(events)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ringbuf reader: %w", err)
	}
	slog.Info("socket hooks attached", "links", len(f.links))
	return f, nil
}

func (f *Forwarder) attach() error {
	for _, ap := range attachPoints {
		prog, ok := f.coll.Programs[ap.prog]
		if !ok {
			return fmt.Errorf("program %q not found", ap.prog)
		}
		var (
			l   link.Link
			err error
		)
		if ap.ret {
			l, err = link.Kretprobe(ap.symbol, prog, nil)
		} else {
			l, err = link.Kprobe(ap.symbol, prog, nil)
		}
		if err != nil {
			if ap.optional && errors.Is(err, os.ErrNotExist) {
				slog.Debug("optional kprobe symbol missing", "symbol", ap.symbol, "ret", ap.ret)
				continue
			}
			return fmt.Errorf("attach %s to %s (ret=%t): %w", ap.prog, ap.symbol, ap.ret, err)
		}
		f.links = append(f.links, l)
		slog.Debug("kprobe attached", "symbol", ap.symbol, "prog", ap.prog, "ret", ap.ret)
	}
	return nil
}

// Run replays forwarded records into the hooks until ctx is done.
func (f *Forwarder) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { f.rd.Close() })
	defer stop()

	for {
		rec, err := f.rd.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				return nil
			}
			return fmt.Errorf("ringbuf read: %w", err)
		}
		f.handle(rec.RawSample)
	}
}

func (f *Forwarder) handle(raw []byte) {
	r, err := decodeHookRecord(raw)
	if err != nil {
		n := f.decodeErrors.Add(1)
		slog.Debug("dropping malformed hook record", "err", err, "decode_errors", n)
		return
	}
	dispatch(f.hooks, r)
}

// DecodeErrors is the number of ring buffer records dropped as malformed.
func (f *Forwarder) DecodeErrors() uint64 {
	return f.decodeErrors.Load()
}

func dispatch(h Hooks, r HookRecord) {
	switch r.Kind {
	case KindSendEntry:
		sk := r.Socket
		h.SendEntry(r.Task, &sk)
	case KindSendReturn:
		h.SendReturn(r.Task, r.Size)
	case KindRecvCleanup:
		sk := r.Socket
		h.RecvCleanup(r.Task, &sk, r.Size)
	default:
		slog.Debug("unknown hook record kind", "kind", r.Kind)
	}
}

// Close detaches every kprobe and releases the collection.
func (f *Forwarder) Close() {
	if f.rd != nil {
		f.rd.Close()
	}
	for _, l := range f.links {
		l.Close()
	}
	f.links = nil
	if f.coll != nil {
		f.coll.Close()
	}
	slog.Info("socket hooks detached")
}
