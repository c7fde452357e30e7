package middlewares

import "github.com/gin-gonic/gin"

// Context keys set by handlers and read back by the logging and
// metrics middlewares after the request completes.
const (
	CtxIdentity          = "identity"
	CtxSelectedModel     = "selected_model"
	CtxComplexityScore   = "complexity_score"
	CtxRationaleTags     = "rationale_tags"
	CtxCacheHit          = "cache_hit"
	CtxUpstreamLatencyMS = "upstream_latency_ms"
	CtxFallbackCount     = "fallback_count"
	CtxErrorCode         = "error_code"
	CtxStream            = "stream"
)

// Identity resolves the caller identity for rate limiting and file
// ownership: the presented API key when one is configured, otherwise
// the client IP.
func Identity(c *gin.Context) string {
	if id := c.GetString(CtxIdentity); id != "" {
		return id
	}
	return "ip:" + c.ClientIP()
}
