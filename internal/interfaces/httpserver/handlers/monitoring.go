package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campersurfer/Autopicker/internal/infrastructure/sysinfo"
	"github.com/campersurfer/Autopicker/internal/infrastructure/upstream"
	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver/middlewares"
)

// MonitoringHandler serves the system health, alert, and rate-limit
// inspection endpoints.
type MonitoringHandler struct {
	prober  *upstream.Prober
	limiter *middlewares.Limiter
	caches  CacheStats
}

func NewMonitoringHandler(prober *upstream.Prober, limiter *middlewares.Limiter, caches CacheStats) *MonitoringHandler {
	return &MonitoringHandler{prober: prober, limiter: limiter, caches: caches}
}

// Health godoc
// @Summary Host and provider health snapshot
// @Tags monitoring
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/v1/monitoring/health [get]
func (h *MonitoringHandler) Health(c *gin.Context) {
	snap := sysinfo.Collect(c.Request.Context())

	var providers []upstream.ProbeResult
	if h.prober != nil {
		providers = h.prober.Results()
	}

	body := gin.H{
		"status":                 snap.Status,
		"process_uptime_seconds": int64(sysinfo.ProcessUptime().Seconds()),
		"system":                 snap,
		"providers":              providers,
	}
	if h.caches != nil {
		body["caches"] = h.caches.Stats()
	}
	c.JSON(http.StatusOK, body)
}

// Alerts godoc
// @Summary Active resource threshold alerts
// @Tags monitoring
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/v1/monitoring/alerts [get]
func (h *MonitoringHandler) Alerts(c *gin.Context) {
	snap := sysinfo.Collect(c.Request.Context())
	alerts := snap.Alerts
	if alerts == nil {
		alerts = []sysinfo.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": snap.Status,
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// RateLimits godoc
// @Summary Live rate limiter buckets and policies
// @Tags monitoring
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/v1/monitoring/rate-limits [get]
func (h *MonitoringHandler) RateLimits(c *gin.Context) {
	rules := h.limiter.Rules()
	policies := make([]gin.H, 0, len(rules))
	for _, r := range rules {
		policies = append(policies, gin.H{
			"rule":           r.Name,
			"route_glob":     r.Glob,
			"capacity":       r.Capacity,
			"window_seconds": r.Window.Seconds(),
			"identity":       r.Identity,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"policies": policies,
		"buckets":  h.limiter.Snapshot(),
	})
}
