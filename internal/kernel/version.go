// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package kernel

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// BPF ring buffers need 5.8.
const (
	minMajor = 5
	minMinor = 8
)

// CheckKernelVersion verifies the running kernel supports BPF ring buffers.
func CheckKernelVersion() error {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return fmt.Errorf("failed to get kernel version: %w", err)
	}
	release := string(uname.Release[:bytes.IndexByte(uname.Release[:], 0)])
	major, minor, err := parseRelease(release)
	if err != nil {
		return err
	}
	if major < minMajor || (major == minMajor && minor < minMinor) {
		return fmt.Errorf("kernel %d.%d (from %q): BPF ring buffer requires kernel %d.%d or newer", major, minor, release, minMajor, minMinor)
	}
	slog.Info("kernel version check passed", "version", release, "major", major, "minor", minor)
	return nil
}

func parseRelease(release string) (major, minor int, err error) {
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("kernel version %q: invalid format (expected X.Y.Z)", release)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("kernel version %q: invalid major version", release)
	}
	minorStr := parts[1]
	// Strip anything after first non-digit (e.g., "12+deb13" -> "12")
	for i, c := range minorStr {
		if c < '0' || c > '9' {
			minorStr = minorStr[:i]
			break
		}
	}
	minor, err = strconv.Atoi(minorStr)
	if err != nil {
		return 0, 0, fmt.Errorf("kernel version %q: invalid minor version", release)
	}
	return major, minor, nil
}
