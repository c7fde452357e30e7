// Package handlers implements the HTTP endpoints on top of the domain
// services. Handlers translate wire DTOs, never business rules.
package handlers

import (
	"github.com/rs/zerolog"

	"github.com/campersurfer/Autopicker/internal/config"
	"github.com/campersurfer/Autopicker/internal/domain/chat"
	"github.com/campersurfer/Autopicker/internal/domain/extraction"
	"github.com/campersurfer/Autopicker/internal/domain/files"
	"github.com/campersurfer/Autopicker/internal/infrastructure/cache"
	"github.com/campersurfer/Autopicker/internal/infrastructure/metrics"
	"github.com/campersurfer/Autopicker/internal/infrastructure/upstream"
	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver/middlewares"
)

// CacheStats exposes the per-tier cache counters for monitoring.
type CacheStats interface {
	Stats() []cache.Stats
}

// Provider aggregates the endpoint handlers for route registration.
type Provider struct {
	Health      *HealthHandler
	Models      *ModelsHandler
	Files       *FilesHandler
	Chat        *ChatHandler
	Monitoring  *MonitoringHandler
	Performance *PerformanceHandler
}

// NewProvider wires every handler against the shared services.
func NewProvider(
	cfg *config.Config,
	chatService *chat.Service,
	fileService *files.Service,
	extractor *extraction.Dispatcher,
	prober *upstream.Prober,
	limiter *middlewares.Limiter,
	perf *metrics.PerfCollector,
	stores CacheStats,
	log zerolog.Logger,
) *Provider {
	return &Provider{
		Health:      NewHealthHandler(),
		Models:      NewModelsHandler(cfg, chatService),
		Files:       NewFilesHandler(cfg, fileService, extractor, log),
		Chat:        NewChatHandler(cfg, chatService, perf, log),
		Monitoring:  NewMonitoringHandler(prober, limiter, stores),
		Performance: NewPerformanceHandler(perf),
	}
}
