//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"

	"github.com/campersurfer/Autopicker/internal/config"
	"github.com/campersurfer/Autopicker/internal/domain/chat"
	"github.com/campersurfer/Autopicker/internal/domain/chatmodel"
	"github.com/campersurfer/Autopicker/internal/domain/extraction"
	"github.com/campersurfer/Autopicker/internal/domain/files"
	"github.com/campersurfer/Autopicker/internal/infrastructure/cache"
	"github.com/campersurfer/Autopicker/internal/infrastructure/extractors"
	"github.com/campersurfer/Autopicker/internal/infrastructure/filemeta"
	"github.com/campersurfer/Autopicker/internal/infrastructure/jobs"
	"github.com/campersurfer/Autopicker/internal/infrastructure/logger"
	"github.com/campersurfer/Autopicker/internal/infrastructure/metrics"
	"github.com/campersurfer/Autopicker/internal/infrastructure/transcribe"
	"github.com/campersurfer/Autopicker/internal/infrastructure/upstream"
	"github.com/campersurfer/Autopicker/internal/infrastructure/workpool"
	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver"
	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver/handlers"
	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver/middlewares"
)

var storageSet = wire.NewSet(
	provideStorage,
	filemeta.NewRepository,
	wire.Bind(new(files.Repository), new(*filemeta.Repository)),
	filemeta.NewExtractionStore,
	wire.Bind(new(extraction.ResultStore), new(*filemeta.ExtractionStore)),
	provideCache,
	wire.Bind(new(extraction.ResultCache), new(*cache.TieredCache)),
	wire.Bind(new(handlers.CacheStats), new(*cache.TieredCache)),
)

var extractionSet = wire.NewSet(
	transcribe.NewClient,
	extractors.NewRegistry,
	wire.Bind(new(extraction.Registry), new(*extractors.Registry)),
	provideWorkpool,
	wire.Bind(new(extraction.Runner), new(*workpool.Pool)),
	extraction.NewDispatcher,
	wire.Bind(new(extraction.FileSource), new(*files.Service)),
)

var upstreamSet = wire.NewSet(
	provideCatalog,
	upstream.NewClientPool,
	provideBreaker,
	upstream.NewProber,
	wire.Bind(new(jobs.Prober), new(*upstream.Prober)),
	upstream.NewDispatcher,
	wire.Bind(new(chat.Dispatcher), new(*upstream.Dispatcher)),
)

var chatSet = wire.NewSet(
	files.NewService,
	wire.Bind(new(chat.FileResolver), new(*files.Service)),
	wire.Bind(new(jobs.Sweeper), new(*files.Service)),
	wire.Bind(new(chat.ExtractionRunner), new(*extraction.Dispatcher)),
	chat.NewService,
)

// BuildApplication assembles the gateway with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		storageSet,
		extractionSet,
		upstreamSet,
		chatSet,
		metrics.NewPerfCollector,
		middlewares.NewLimiter,
		handlers.NewProvider,
		httpserver.New,
		jobs.NewScheduler,
		NewApplication,
	)
	return nil, nil
}

func provideCatalog(cfg *config.Config) *chatmodel.Catalog {
	return chatmodel.FromBootstrap(cfg.Bootstrap)
}

func provideBreaker(cfg *config.Config) *upstream.Breaker {
	return upstream.NewBreaker(upstream.BreakerConfig{
		Window:       cfg.BreakerWindow,
		OpenFor:      cfg.BreakerOpenFor,
		MinSamples:   cfg.BreakerMinSamples,
		FailureRatio: cfg.BreakerFailureRatio,
	})
}

func provideWorkpool(cfg *config.Config, log zerolog.Logger) *workpool.Pool {
	return workpool.New(cfg.ExtractionWorkers, cfg.ExtractionQueueSize, log)
}
