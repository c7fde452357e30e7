package middlewares

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracing opens one server span per request and annotates it with the
// gateway decision fields the handlers record: selected model,
// complexity score, cache hit, fallback count.
func Tracing(serviceName string) gin.HandlerFunc {
	tracer := otel.Tracer(serviceName)
	propagator := otel.GetTextMapPropagator()

	return func(c *gin.Context) {
		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		spanName := c.Request.Method + " " + c.FullPath()
		if c.FullPath() == "" {
			spanName = c.Request.Method + " " + c.Request.URL.Path
		}

		ctx, span := tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(c.Request.Method),
				semconv.HTTPRoute(c.FullPath()),
				attribute.String("http.client_ip", c.ClientIP()),
			),
		)
		defer span.End()

		if requestID := RequestIDFromContext(c); requestID != "" {
			span.SetAttributes(attribute.String("request.id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPStatusCode(status))
		if model := c.GetString(CtxSelectedModel); model != "" {
			span.SetAttributes(attribute.String("gateway.selected_model", model))
		}
		if score, ok := c.Get(CtxComplexityScore); ok {
			if v, ok := score.(int); ok {
				span.SetAttributes(attribute.Int("gateway.complexity_score", v))
			}
		}
		if c.GetBool(CtxCacheHit) {
			span.SetAttributes(attribute.Bool("gateway.cache_hit", true))
		}
		if fallbacks := c.GetInt(CtxFallbackCount); fallbacks > 0 {
			span.SetAttributes(attribute.Int("gateway.fallback_count", fallbacks))
		}

		if status >= 500 {
			span.SetStatus(codes.Error, c.Errors.String())
			if len(c.Errors) > 0 {
				span.RecordError(c.Errors.Last())
			}
		}
	}
}
