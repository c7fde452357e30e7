package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campersurfer/Autopicker/internal/infrastructure/metrics"
)

// PerformanceHandler serves the JSON operation summaries collected in
// process. The prometheus exposition lives on /metrics.
type PerformanceHandler struct {
	perf *metrics.PerfCollector
}

func NewPerformanceHandler(perf *metrics.PerfCollector) *PerformanceHandler {
	return &PerformanceHandler{perf: perf}
}

// Metrics godoc
// @Summary Per-operation latency and success summaries
// @Tags monitoring
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/v1/performance/metrics [get]
func (h *PerformanceHandler) Metrics(c *gin.Context) {
	stats := h.perf.Stats()
	if stats == nil {
		stats = []metrics.OpStats{}
	}
	c.JSON(http.StatusOK, gin.H{"operations": stats})
}
