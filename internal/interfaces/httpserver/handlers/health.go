package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campersurfer/Autopicker/internal/infrastructure/sysinfo"
)

// HealthHandler serves the unauthenticated liveness probe.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Live godoc
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Router /health [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int64(sysinfo.ProcessUptime().Seconds()),
	})
}
