// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

// Package capture feeds received link-layer frames of one interface to the
// ingress hook through an AF_PACKET socket.
package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/netacct-exporter-ebpf/internal/probe"
)

const (
	frameBufSize = 1 << 16
	readTimeout  = 250 * time.Millisecond
)

// FrameHook is invoked once per received frame.
type FrameHook interface {
	Classify(probe.Frame) (probe.Verdict, probe.Outcome)
}

type packetConn interface {
	// recv reads one frame into buf. outgoing reports locally sent frames.
	recv(buf []byte) (n int, outgoing bool, err error)
	close() error
}

// errTimeout is returned by recv when no frame arrived within readTimeout.
var errTimeout = errors.New("read timeout")

// Source reads ingress frames from one interface.
type Source struct {
	Iface   string
	Ifindex int
	MTU     int

	conn packetConn
	hook FrameHook
}

// Open resolves iface with netlink and binds a raw packet socket to it.
func Open(iface string, hook FrameHook) (*Source, error) {
	l, err := netlink.LinkByName(iface)
	if err != nil {
		return nil, fmt.Errorf("lookup interface %q: %w", iface, err)
	}
	attrs := l.Attrs()
	conn, err := listenPacket(attrs.Index)
	if err != nil {
		return nil, fmt.Errorf("packet socket on %s: %w", iface, err)
	}
	slog.Info("capture socket bound", "iface", iface, "index", attrs.Index, "mtu", attrs.MTU)
	return &Source{Iface: iface, Ifindex: attrs.Index, MTU: attrs.MTU, conn: conn, hook: hook}, nil
}

// Run delivers frames to the hook until ctx is done.
func (s *Source) Run(ctx context.Context) error {
	buf := make([]byte, frameBufSize)
	var frames uint64
	defer func() {
		slog.Debug("capture loop stopped", "iface", s.Iface, "frames", frames)
	}()
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, outgoing, err := s.conn.recv(buf)
		if err != nil {
			if errors.Is(err, errTimeout) || errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("read frame on %s: %w", s.Iface, err)
		}
		if outgoing {
			continue
		}
		frames++
		s.hook.Classify(probe.NewFrame(buf[:n]))
	}
}

func (s *Source) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.close()
}

type afPacketConn struct {
	fd int
}

func listenPacket(ifindex int) (*afPacketConn, error) {
	proto := htons(unix.ETH_P_ALL)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, int(proto))
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrLinklayer{Protocol: proto, Ifindex: ifindex}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	tv := unix.NsecToTimeval(readTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &afPacketConn{fd: fd}, nil
}

func (c *afPacketConn) recv(buf []byte) (int, bool, error) {
	n, from, err := unix.Recvfrom(c.fd, buf, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return 0, false, errTimeout
		}
		return 0, false, err
	}
	ll, ok := from.(*unix.SockaddrLinklayer)
	return n, ok && ll.Pkttype == unix.PACKET_OUTGOING, nil
}

func (c *afPacketConn) close() error {
	return unix.Close(c.fd)
}

// htons converts to network byte order for socket protocol fields.
func htons(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return binary.NativeEndian.Uint16(b[:])
}
