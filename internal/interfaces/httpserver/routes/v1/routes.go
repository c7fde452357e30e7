// Package v1 registers the versioned API routes.
package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/campersurfer/Autopicker/internal/config"
	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver/handlers"
	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver/middlewares"
)

// Routes binds the handler provider onto the /api/v1 surface.
type Routes struct {
	cfg      *config.Config
	handlers *handlers.Provider
}

func NewRoutes(handlerProvider *handlers.Provider, cfg *config.Config) *Routes {
	return &Routes{cfg: cfg, handlers: handlerProvider}
}

// Register wires every v1 endpoint. Body limits and content-type
// checks are per route group: JSON endpoints take message-sized
// bodies, the upload endpoint takes file-sized multipart bodies.
func (r *Routes) Register(router gin.IRouter) {
	h := r.handlers

	jsonBody := middlewares.BodyLimit(2 * r.cfg.MaxMessageBytes)
	jsonOnly := middlewares.ContentType("application/json")
	uploadBody := middlewares.BodyLimit(r.cfg.MaxFileBytes + (1 << 20))
	multipartOnly := middlewares.ContentType("multipart/form-data")

	v1 := router.Group("/api/v1")

	v1.GET("/models", h.Models.List)

	v1.POST("/upload", uploadBody, multipartOnly, h.Files.Upload)
	files := v1.Group("/files")
	{
		files.GET("", h.Files.List)
		files.GET("/supported-types", h.Files.SupportedTypes)
		files.GET("/:id", h.Files.Get)
		files.DELETE("/:id", h.Files.Delete)
		files.POST("/:id/extract", h.Files.Extract)
	}
	v1.POST("/transcribe/:id", h.Files.Transcribe)

	chat := v1.Group("/chat", jsonBody, jsonOnly)
	{
		chat.POST("/completions", h.Chat.Completions)
		chat.POST("/multimodal", h.Chat.Multimodal)
	}
	v1.POST("/analyze-complexity", jsonBody, jsonOnly, h.Chat.Analyze)

	monitoring := v1.Group("/monitoring")
	{
		monitoring.GET("/health", h.Monitoring.Health)
		monitoring.GET("/alerts", h.Monitoring.Alerts)
		monitoring.GET("/rate-limits", h.Monitoring.RateLimits)
	}
	v1.GET("/performance/metrics", h.Performance.Metrics)
}
