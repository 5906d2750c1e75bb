// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package geoip

import (
	"container/list"
	"net/netip"
	"sync"
)

type lruCache struct {
	mu    sync.Mutex
	cap   int
	list  *list.List
	items map[netip.Addr]*list.Element
}

type entry struct {
	addr    netip.Addr
	country string
}

func newLRUCache(cap int) *lruCache {
	return &lruCache{
		cap:   cap,
		list:  list.New(),
		items: make(map[netip.Addr]*list.Element, cap),
	}
}

func (c *lruCache) get(a netip.Addr) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[a]; ok {
		c.list.MoveToFront(e)
		return e.Value.(*entry).country, true
	}
	return "", false
}

func (c *lruCache) put(a netip.Addr, country string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[a]; ok {
		e.Value.(*entry).country = country
		c.list.MoveToFront(e)
		return
	}
	if c.list.Len() >= c.cap {
		if old := c.list.Back(); old != nil {
			c.list.Remove(old)
			delete(c.items, old.Value.(*entry).addr)
		}
	}
	c.items[a] = c.list.PushFront(&entry{addr: a, country: country})
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}
