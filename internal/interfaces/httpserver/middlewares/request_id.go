package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/campersurfer/Autopicker/internal/utils/reqid"
)

const requestIDHeader = "X-Request-Id"

// RequestID echoes the client-supplied X-Request-Id or mints a fresh
// one, exposes it on the response, and threads it through the request
// context so deeper layers can correlate without the gin context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Set(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(reqid.With(c.Request.Context(), requestID))

		c.Next()
	}
}

// RequestIDFromContext returns the request id for the current request.
func RequestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDHeader); ok {
		if id, ok := val.(string); ok {
			return id
		}
	}
	return reqid.FromContext(c.Request.Context())
}
