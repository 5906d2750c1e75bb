// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package collector

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netacct-exporter-ebpf/internal/netstats"
)

type api struct {
	apiKey   string
	flows    *flowStore
	networks *netstats.Set
}

type networkResponse struct {
	Name      string `json:"name"`
	CatchAll  bool   `json:"catch_all"`
	BytesTo   uint64 `json:"bytes_to"`
	BytesFrom uint64 `json:"bytes_from"`
}

func newAPI(apiKey string, flows *flowStore, networks *netstats.Set) *api {
	return &api{apiKey: apiKey, flows: flows, networks: networks}
}

// newRouter serves the metrics of g on metricsPath and the JSON API under /api/v1.
// Only the JSON API is behind the bearer key.
func newRouter(g prometheus.Gatherer, metricsPath string, a *api) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(metricsPath, gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{EnableOpenMetrics: true})))

	v1 := r.Group("/api/v1")
	if a.apiKey != "" {
		v1.Use(a.authMiddleware())
	}
	v1.GET("/flows", a.handleFlows)
	v1.GET("/networks", a.handleNetworks)
	return r
}

func (a *api) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer "+a.apiKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *api) handleFlows(c *gin.Context) {
	direction := c.Query("direction")
	switch direction {
	case "", dirSent, dirReceived:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be sent or received"})
		return
	}

	flows := a.flows.list(direction)
	if s := c.Query("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		if limit < len(flows) {
			flows = flows[:limit]
		}
	}
	c.JSON(http.StatusOK, gin.H{"flows": flows})
}

func (a *api) handleNetworks(c *gin.Context) {
	counters := a.networks.Counters()
	out := make([]networkResponse, 0, len(counters))
	for _, ctr := range counters {
		to, from := ctr.Totals()
		out = append(out, networkResponse{
			Name:      ctr.Network.Name,
			CatchAll:  ctr.Network.CatchAll,
			BytesTo:   to,
			BytesFrom: from,
		})
	}
	c.JSON(http.StatusOK, gin.H{"networks": out})
}
