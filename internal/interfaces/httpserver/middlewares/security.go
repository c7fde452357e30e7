package middlewares

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campersurfer/Autopicker/internal/config"
	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver/responses"
	"github.com/campersurfer/Autopicker/internal/utils/platformerrors"
)

// SecurityHeaders injects the response hardening headers on every route.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Next()
	}
}

// APIKeyAuth enforces the configured API key with a constant-time
// compare. With no key configured every request passes and the
// identity falls back to the client IP.
func APIKeyAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APIKey == "" {
			c.Next()
			return
		}

		presented := c.GetHeader(cfg.APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(cfg.APIKey)) != 1 {
			responses.HandleNewError(c, platformerrors.NewError(
				c.Request.Context(), platformerrors.LayerRoute, platformerrors.ErrorTypeUnauthorized,
				"invalid or missing API key", nil, "3f6c1a52-0f0d-4f7e-9a6b-5d2c8e94b710"))
			return
		}

		c.Set(CtxIdentity, "key:"+presented)
		c.Next()
	}
}

// BodyLimit caps the request body. Requests that declare a larger
// Content-Length are rejected up front; chunked bodies are cut off by
// MaxBytesReader while the handler reads.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			responses.HandleNewError(c, platformerrors.NewError(
				c.Request.Context(), platformerrors.LayerRoute, platformerrors.ErrorTypePayloadTooLarge,
				"request body exceeds the allowed size", nil, "9b1d4f3e-6a28-4c07-8f55-2e7d90c1ab64"))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// ContentType rejects request bodies whose media type is not in the
// allow-list. Requests without a body pass through.
func ContentType(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength == 0 && c.Request.Body == nil {
			c.Next()
			return
		}
		ct := c.ContentType()
		if ct == "" {
			c.Next()
			return
		}
		for _, a := range allowed {
			if strings.EqualFold(ct, a) {
				c.Next()
				return
			}
		}
		responses.HandleNewError(c, platformerrors.NewError(
			c.Request.Context(), platformerrors.LayerRoute, platformerrors.ErrorTypeUnsupportedType,
			"unsupported content type "+ct, nil, "c48a2e91-7d63-4b10-95ff-08e6d1a3c572"))
	}
}
