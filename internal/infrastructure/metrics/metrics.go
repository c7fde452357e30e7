package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gateway metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopicker",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "autopicker",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "endpoint"},
	)

	// Upload counters
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopicker",
			Subsystem: "gateway",
			Name:      "uploads_total",
			Help:      "Total file uploads",
		},
		[]string{"content_type", "status"},
	)

	UploadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopicker",
			Subsystem: "gateway",
			Name:      "upload_bytes_total",
			Help:      "Total bytes uploaded",
		},
		[]string{"content_type"},
	)

	// Extraction pipeline
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopicker",
			Subsystem: "gateway",
			Name:      "extractions_total",
			Help:      "Total extraction runs",
		},
		[]string{"extractor", "status"},
	)

	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "autopicker",
			Subsystem: "gateway",
			Name:      "extraction_duration_seconds",
			Help:      "Extraction duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 15, 30},
		},
		[]string{"extractor"},
	)

	// Upstream dispatch
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopicker",
			Subsystem: "gateway",
			Name:      "upstream_requests_total",
			Help:      "Total upstream provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "autopicker",
			Subsystem: "gateway",
			Name:      "upstream_latency_seconds",
			Help:      "Upstream time to first byte in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopicker",
			Subsystem: "gateway",
			Name:      "fallbacks_total",
			Help:      "Dispatch attempts served by a fallback model",
		},
		[]string{"provider"},
	)

	// Breaker state: 0 closed, 1 half-open, 2 open
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "autopicker",
			Subsystem: "gateway",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per provider/model (0 closed, 1 half-open, 2 open)",
		},
		[]string{"provider", "model"},
	)

	// Cache
	CacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopicker",
			Subsystem: "gateway",
			Name:      "cache_ops_total",
			Help:      "Cache operations by tier and outcome",
		},
		[]string{"tier", "op"},
	)

	CacheDegradedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "autopicker",
			Subsystem: "gateway",
			Name:      "cache_degraded_total",
			Help:      "Remote cache operations degraded to local-only",
		},
	)

	// Rate limiter
	RateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopicker",
			Subsystem: "gateway",
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"rule"},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordUpload records a file upload
func RecordUpload(contentType, status string, bytes int64) {
	UploadsTotal.WithLabelValues(contentType, status).Inc()
	if status == "accepted" {
		UploadBytesTotal.WithLabelValues(contentType).Add(float64(bytes))
	}
}

// RecordExtraction records one extractor run
func RecordExtraction(extractor, status string, durationSec float64) {
	ExtractionsTotal.WithLabelValues(extractor, status).Inc()
	ExtractionDuration.WithLabelValues(extractor).Observe(durationSec)
}

// RecordUpstream records one upstream attempt with its time to first byte
func RecordUpstream(provider, model, status string, firstByteSec float64) {
	UpstreamRequestsTotal.WithLabelValues(provider, model, status).Inc()
	if firstByteSec > 0 {
		UpstreamLatency.WithLabelValues(provider).Observe(firstByteSec)
	}
}

// RecordFallback records a dispatch served by a fallback entry
func RecordFallback(provider string) {
	FallbacksTotal.WithLabelValues(provider).Inc()
}

// SetBreakerState publishes the current breaker state
func SetBreakerState(provider, model string, state float64) {
	BreakerState.WithLabelValues(provider, model).Set(state)
}

// RecordCacheOp records a cache hit, miss, or set against a tier
func RecordCacheOp(tier, op string) {
	CacheOpsTotal.WithLabelValues(tier, op).Inc()
}

// RecordCacheDegraded counts a remote-tier outage absorbed locally
func RecordCacheDegraded() {
	CacheDegradedTotal.Inc()
}

// RecordRateLimitRejection counts a 429 for the matched rule
func RecordRateLimitRejection(rule string) {
	RateLimitRejectionsTotal.WithLabelValues(rule).Inc()
}
