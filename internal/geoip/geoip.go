// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package geoip

import (
	"log/slog"
	"net"
	"net/netip"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

const (
	defaultCacheSize = 65536
	Unknown          = "UNKNOWN"
)

// Lookup resolves remote endpoints to ISO country codes with an LRU cache.
// Private, unspecified and unresolvable addresses map to Unknown.
// A nil *Lookup is valid and answers Unknown for everything.
type Lookup struct {
	mu    sync.RWMutex
	db    *geoip2.Reader
	cache *lruCache
}

// Open opens the MaxMind GeoLite2-Country database at path.
// If cacheSize <= 0, defaultCacheSize (65536) is used.
func Open(path string, cacheSize int) (*Lookup, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	slog.Debug("opening GeoIP database", "path", path, "cache_size", cacheSize)
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	slog.Info("GeoIP database opened", "path", path)
	return &Lookup{db: db, cache: newLRUCache(cacheSize)}, nil
}

func (l *Lookup) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	if err != nil {
		slog.Error("GeoIP database close failed", "err", err)
		return err
	}
	slog.Info("GeoIP database closed")
	return nil
}

// Country returns the ISO code for addr.
func (l *Lookup) Country(addr netip.Addr) string {
	if l == nil {
		return Unknown
	}
	addr = addr.Unmap()
	if !addr.IsValid() || addr.IsUnspecified() || addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() {
		return Unknown
	}
	if cc, ok := l.cache.get(addr); ok {
		return cc
	}

	l.mu.RLock()
	db := l.db
	l.mu.RUnlock()
	if db == nil {
		slog.Warn("GeoIP lookup on closed database", "ip", addr.String())
		return Unknown
	}

	record, err := db.Country(net.IP(addr.AsSlice()))
	if err != nil {
		slog.Warn("GeoIP country lookup failed", "ip", addr.String(), "err", err)
		l.cache.put(addr, Unknown)
		return Unknown
	}
	cc := Unknown
	if record.Country.IsoCode != "" {
		cc = record.Country.IsoCode
	}
	slog.Debug("GeoIP cache miss resolved", "ip", addr.String(), "country", cc)
	l.cache.put(addr, cc)
	return cc
}
