package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Global singleton so background jobs can observe config reloads.
var globalConfig *Config

// Config holds all environment backed configuration for the gateway.
type Config struct {
	// HTTP Server
	ServerHost      string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	HTTPPort        int           `env:"SERVER_PORT" envDefault:"8080"`
	TLSCertFile     string        `env:"TLS_CERT_FILE"`
	TLSKeyFile      string        `env:"TLS_KEY_FILE"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Auth
	APIKey       string `env:"API_KEY"`
	APIKeyHeader string `env:"API_KEY_HEADER" envDefault:"X-API-Key"`

	// Uploads & extraction
	MaxFileBytes        int64         `env:"MAX_FILE_BYTES" envDefault:"10485760"`
	MaxMessageBytes     int64         `env:"MAX_MESSAGE_BYTES" envDefault:"1048576"`
	AllowedMIMETypes    []string      `env:"ALLOWED_MIME_TYPES" envSeparator:","`
	ExtractionTextCap   int           `env:"EXTRACTION_TEXT_CAP" envDefault:"1048576"`
	ExtractionTimeout   time.Duration `env:"EXTRACTION_TIMEOUT" envDefault:"60s"`
	ExtractionWorkers   int           `env:"EXTRACTION_WORKERS" envDefault:"4"`
	ExtractionQueueSize int           `env:"EXTRACTION_QUEUE_SIZE" envDefault:"64"`
	FileRetention       time.Duration `env:"FILE_RETENTION" envDefault:"24h"`

	// Blob store
	BlobStore        string `env:"BLOB_STORE" envDefault:"local"`
	LocalStoragePath string `env:"LOCAL_STORAGE_PATH" envDefault:"./data/files"`
	S3Bucket         string `env:"S3_BUCKET"`
	S3Region         string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint       string `env:"S3_ENDPOINT"`
	S3AccessKey      string `env:"S3_ACCESS_KEY"`
	S3SecretKey      string `env:"S3_SECRET_KEY"`
	S3ForcePathStyle bool   `env:"S3_FORCE_PATH_STYLE" envDefault:"false"`

	// Rate limiting
	RateLimitCapacity       int           `env:"RATE_LIMIT_CAPACITY" envDefault:"100"`
	RateLimitWindow         time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`
	UploadRateLimitCapacity int           `env:"UPLOAD_RATE_LIMIT_CAPACITY" envDefault:"20"`

	// Cache
	CacheLocalBytes int64         `env:"CACHE_LOCAL_BYTES" envDefault:"134217728"`
	CacheDefaultTTL time.Duration `env:"CACHE_DEFAULT_TTL" envDefault:"300s"`
	RedisURL        string        `env:"REDIS_URL"`

	// Transcription sidecar
	WhisperURL     string        `env:"WHISPER_URL"`
	WhisperTimeout time.Duration `env:"WHISPER_TIMEOUT" envDefault:"30s"`

	// Router
	ModelCatalogPath   string           `env:"MODEL_CATALOG_PATH" envDefault:"config/models.yaml"`
	Bootstrap          *BootstrapConfig `env:"-"`
	RouterPreferFast   bool             `env:"ROUTER_PREFER_FAST" envDefault:"false"`
	RouterPreferCheap  bool             `env:"ROUTER_PREFER_CHEAP" envDefault:"false"`
	RouterMaxCostPer1K float64          `env:"ROUTER_MAX_COST_PER_1K" envDefault:"0"`
	RouterPricingTier  string           `env:"ROUTER_PRICING_TIER" envDefault:"auto"`
	ModelsCacheTTL     time.Duration    `env:"MODELS_CACHE_TTL" envDefault:"30s"`

	// Upstream pool & breaker
	UpstreamMaxConnsPerHost int           `env:"UPSTREAM_MAX_CONNS_PER_HOST" envDefault:"32"`
	UpstreamIdleTimeout     time.Duration `env:"UPSTREAM_IDLE_TIMEOUT" envDefault:"90s"`
	UpstreamConnectTimeout  time.Duration `env:"UPSTREAM_CONNECT_TIMEOUT" envDefault:"5s"`
	UpstreamHeaderTimeout   time.Duration `env:"UPSTREAM_HEADER_TIMEOUT" envDefault:"10s"`
	UpstreamFirstByteWait   time.Duration `env:"UPSTREAM_FIRST_BYTE_TIMEOUT" envDefault:"30s"`
	UpstreamRequestTimeout  time.Duration `env:"UPSTREAM_REQUEST_TIMEOUT" envDefault:"600s"`
	BreakerWindow           time.Duration `env:"BREAKER_WINDOW" envDefault:"60s"`
	BreakerOpenFor          time.Duration `env:"BREAKER_OPEN_FOR" envDefault:"30s"`
	BreakerMinSamples       int           `env:"BREAKER_MIN_SAMPLES" envDefault:"20"`
	BreakerFailureRatio     float64       `env:"BREAKER_FAILURE_RATIO" envDefault:"0.5"`

	// Background jobs
	RetentionSweepMinutes int  `env:"RETENTION_SWEEP_INTERVAL_MINUTES" envDefault:"10"`
	ProviderProbeMinutes  int  `env:"PROVIDER_PROBE_INTERVAL_MINUTES" envDefault:"1"`
	ProviderProbeEnabled  bool `env:"PROVIDER_PROBE_ENABLED" envDefault:"true"`

	// Observability / Logging
	OTLPEndpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPHeaders      string  `env:"OTEL_EXPORTER_OTLP_HEADERS"`
	TraceSampleRatio float64 `env:"TRACE_SAMPLE_RATIO" envDefault:"1.0"`
	ServiceName      string `env:"SERVICE_NAME" envDefault:"autopicker-gateway"`
	ServiceNamespace string `env:"SERVICE_NAMESPACE" envDefault:"autopicker"`
	Environment      string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string `env:"LOG_FORMAT" envDefault:"console"`

	// Features
	EnableSwagger bool `env:"ENABLE_SWAGGER" envDefault:"true"`

	// Internal
	EnvReloadedAt time.Time
}

// DefaultAllowedMIMETypes is the upload allow-list applied when
// ALLOWED_MIME_TYPES is unset.
var DefaultAllowedMIMETypes = []string{
	"text/plain",
	"text/markdown",
	"text/csv",
	"application/json",
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/webp",
	"audio/mpeg",
	"audio/wav",
	"audio/x-wav",
	"audio/mp4",
	"audio/ogg",
	"audio/flac",
}

// Load parses environment variables into Config and performs minimal validation.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if len(cfg.AllowedMIMETypes) == 0 {
		cfg.AllowedMIMETypes = append([]string(nil), DefaultAllowedMIMETypes...)
	}
	for i, mt := range cfg.AllowedMIMETypes {
		cfg.AllowedMIMETypes[i] = strings.ToLower(strings.TrimSpace(mt))
	}

	cfg.BlobStore = strings.ToLower(strings.TrimSpace(cfg.BlobStore))
	switch cfg.BlobStore {
	case "local":
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("BLOB_STORE=s3 requires S3_BUCKET")
		}
	default:
		return nil, fmt.Errorf("unsupported BLOB_STORE %q (want local or s3)", cfg.BlobStore)
	}

	if cfg.MaxFileBytes <= 0 {
		return nil, fmt.Errorf("MAX_FILE_BYTES must be positive, got %d", cfg.MaxFileBytes)
	}
	if cfg.RateLimitCapacity <= 0 || cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("rate limit capacity and window must be positive")
	}
	if cfg.ExtractionWorkers <= 0 {
		cfg.ExtractionWorkers = 1
	}

	cfg.RouterPricingTier = strings.ToLower(strings.TrimSpace(cfg.RouterPricingTier))
	switch cfg.RouterPricingTier {
	case "auto", "standard", "enterprise", "local":
	default:
		return nil, fmt.Errorf("unsupported ROUTER_PRICING_TIER %q", cfg.RouterPricingTier)
	}

	bootstrap, err := LoadBootstrapConfig(cfg.ModelCatalogPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load model catalog: %w", err)
		}
		bootstrap = DefaultBootstrapConfig()
	}
	cfg.Bootstrap = bootstrap

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.EnvReloadedAt = time.Now()

	globalConfig = cfg

	return cfg, nil
}

// IsLocalStorage reports whether the blob store is the local filesystem backend.
func (c *Config) IsLocalStorage() bool {
	return c.BlobStore != "s3"
}

// GetGlobal returns the global config instance for backwards compatibility.
// Deprecated: Use dependency injection with Load() instead.
func GetGlobal() *Config {
	return globalConfig
}

var Version = "dev"

func IsDev() bool {
	return strings.HasPrefix(Version, "dev")
}
