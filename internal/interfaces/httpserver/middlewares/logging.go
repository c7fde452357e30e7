package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logging emits one structured event per request. Routing and dispatch
// handlers enrich the event through the gin context keys in context.go.
func Logging(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		logEvent := logger.Info()
		if statusCode >= 500 {
			logEvent = logger.Error()
		} else if statusCode >= 400 {
			logEvent = logger.Warn()
		}

		span := trace.SpanFromContext(c.Request.Context())
		if span.SpanContext().IsValid() {
			logEvent = logEvent.
				Str("trace_id", span.SpanContext().TraceID().String()).
				Str("span_id", span.SpanContext().SpanID().String())
		}

		if requestID := RequestIDFromContext(c); requestID != "" {
			logEvent = logEvent.Str("request_id", requestID)
		}
		if model := c.GetString(CtxSelectedModel); model != "" {
			logEvent = logEvent.Str("selected_model", model)
		}
		if score, ok := c.Get(CtxComplexityScore); ok {
			if v, ok := score.(int); ok {
				logEvent = logEvent.Int("complexity_score", v)
			}
		}
		if tags, ok := c.Get(CtxRationaleTags); ok {
			if v, ok := tags.([]string); ok && len(v) > 0 {
				logEvent = logEvent.Strs("rationale_tags", v)
			}
		}
		if hit, ok := c.Get(CtxCacheHit); ok {
			if v, ok := hit.(bool); ok {
				logEvent = logEvent.Bool("cache_hit", v)
			}
		}
		if ms, ok := c.Get(CtxUpstreamLatencyMS); ok {
			if v, ok := ms.(int64); ok {
				logEvent = logEvent.Int64("upstream_latency_ms", v)
			}
		}
		if fb, ok := c.Get(CtxFallbackCount); ok {
			if v, ok := fb.(int); ok {
				logEvent = logEvent.Int("fallback_count", v)
			}
		}
		if code := c.GetString(CtxErrorCode); code != "" {
			logEvent = logEvent.Str("error_code", code)
		}

		logEvent.
			Str("client_ip", c.ClientIP()).
			Str("identity", Identity(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", raw).
			Int("status", statusCode).
			Dur("latency", latency).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes_out", c.Writer.Size()).
			Str("user_agent", c.Request.UserAgent()).
			Msg(errorMessage)
	}
}
