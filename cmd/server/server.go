package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/joho/godotenv"

	"github.com/campersurfer/Autopicker/internal/config"
	"github.com/campersurfer/Autopicker/internal/domain/chat"
	"github.com/campersurfer/Autopicker/internal/domain/chatmodel"
	"github.com/campersurfer/Autopicker/internal/domain/extraction"
	"github.com/campersurfer/Autopicker/internal/domain/files"
	"github.com/campersurfer/Autopicker/internal/infrastructure/blobstore"
	"github.com/campersurfer/Autopicker/internal/infrastructure/cache"
	"github.com/campersurfer/Autopicker/internal/infrastructure/extractors"
	"github.com/campersurfer/Autopicker/internal/infrastructure/filemeta"
	"github.com/campersurfer/Autopicker/internal/infrastructure/jobs"
	"github.com/campersurfer/Autopicker/internal/infrastructure/logger"
	"github.com/campersurfer/Autopicker/internal/infrastructure/metrics"
	"github.com/campersurfer/Autopicker/internal/infrastructure/observability"
	"github.com/campersurfer/Autopicker/internal/infrastructure/transcribe"
	"github.com/campersurfer/Autopicker/internal/infrastructure/upstream"
	"github.com/campersurfer/Autopicker/internal/infrastructure/workpool"
	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver"
	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver/handlers"
	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver/middlewares"
)

// @title Autopicker Gateway API
// @version 1.0
// @description Multi-tenant LLM gateway with file extraction, complexity routing, and streaming proxying
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
type Application struct {
	httpServer *httpserver.HttpServer
	scheduler  *jobs.Scheduler
	workers    *workpool.Pool
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HttpServer, scheduler *jobs.Scheduler, workers *workpool.Pool, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		scheduler:  scheduler,
		workers:    workers,
		log:        log,
	}
}

// Start runs the HTTP listener and the background jobs until the
// context is cancelled.
func (a *Application) Start(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	defer a.scheduler.Stop()
	defer a.workers.Shutdown()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.httpServer.Run(groupCtx)
	})
	return group.Wait()
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	app, err := buildApplication(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("assemble application")
	}

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

// buildApplication wires the full dependency graph by hand, bottom up:
// storage and caches, then the extraction pipeline, then routing and
// upstream dispatch, then the HTTP surface.
func buildApplication(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Application, error) {
	storage, err := provideStorage(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("initialize blob storage: %w", err)
	}

	repo, err := filemeta.NewRepository(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("initialize file metadata store: %w", err)
	}
	extractionStore, err := filemeta.NewExtractionStore(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("initialize extraction store: %w", err)
	}

	tiered, err := provideCache(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("initialize cache: %w", err)
	}

	fileService := files.NewService(cfg, repo, storage, log)

	whisper := transcribe.NewClient(cfg, log)
	registry := extractors.NewRegistry(cfg, whisper, log)
	workers := workpool.New(cfg.ExtractionWorkers, cfg.ExtractionQueueSize, log)
	extractor := extraction.NewDispatcher(cfg, fileService, registry, tiered, extractionStore, workers, log)

	catalog := chatmodel.FromBootstrap(cfg.Bootstrap)

	clientPool := upstream.NewClientPool(cfg)
	breaker := upstream.NewBreaker(upstream.BreakerConfig{
		Window:       cfg.BreakerWindow,
		OpenFor:      cfg.BreakerOpenFor,
		MinSamples:   cfg.BreakerMinSamples,
		FailureRatio: cfg.BreakerFailureRatio,
	})
	prober := upstream.NewProber(cfg, log)
	dispatcher := upstream.NewDispatcher(cfg, clientPool, breaker, prober, log)

	chatService := chat.NewService(cfg, catalog, fileService, extractor, dispatcher, tiered, log)

	perf := metrics.NewPerfCollector()
	limiter := middlewares.NewLimiter(cfg)
	handlerProvider := handlers.NewProvider(cfg, chatService, fileService, extractor, prober, limiter, perf, tiered, log)
	httpServer := httpserver.New(cfg, log, handlerProvider, limiter)

	scheduler := jobs.NewScheduler(cfg, fileService, prober, log)

	return NewApplication(httpServer, scheduler, workers, log), nil
}

// provideStorage creates the blob store backend selected by config.
func provideStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (files.Storage, error) {
	if cfg.IsLocalStorage() {
		return blobstore.NewLocalStorage(cfg, log)
	}
	return blobstore.NewS3Storage(ctx, cfg, log)
}

// provideCache builds the two-tier cache; without REDIS_URL only the
// local tier runs.
func provideCache(cfg *config.Config, log zerolog.Logger) (*cache.TieredCache, error) {
	local, err := cache.NewLocalCache(cfg.CacheLocalBytes, cfg.CacheDefaultTTL)
	if err != nil {
		return nil, err
	}

	var remote cache.Cache
	if cfg.RedisURL != "" {
		redis, err := cache.NewRedisCache(cfg.RedisURL, cfg.CacheDefaultTTL, log)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, running local-only cache")
		} else {
			remote = redis
		}
	}
	return cache.NewTieredCache(local, remote), nil
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
