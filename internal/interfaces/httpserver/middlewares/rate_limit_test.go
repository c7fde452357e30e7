package middlewares

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campersurfer/Autopicker/internal/config"
)

func limiterConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		RateLimitCapacity:       3,
		RateLimitWindow:         time.Minute,
		UploadRateLimitCapacity: 1,
		Bootstrap: &config.BootstrapConfig{
			RateLimitRules: []config.RateLimitRule{
				{RouteGlob: "/api/v1/chat/*", Capacity: 2, WindowSeconds: 60, Identity: "api-key"},
			},
		},
	}
	return cfg
}

func limiterRouter(l *Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(l.Middleware())
	r.POST("/api/v1/chat/completions", func(c *gin.Context) { c.Status(200) })
	r.POST("/api/v1/upload", func(c *gin.Context) { c.Status(200) })
	r.GET("/api/v1/models", func(c *gin.Context) { c.Status(200) })
	return r
}

func TestLimiterAllowsUpToCapacity(t *testing.T) {
	l := NewLimiter(limiterConfig(t))
	r := limiterRouter(l)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/models", nil))
		require.Equal(t, 200, w.Code, "request %d", i)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/models", nil))
	assert.Equal(t, 429, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestLimiterUploadRuleIsStricter(t *testing.T) {
	l := NewLimiter(limiterConfig(t))
	r := limiterRouter(l)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/upload", nil))
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/upload", nil))
	assert.Equal(t, 429, w.Code)
}

func TestLimiterCatalogRuleMatchesGlob(t *testing.T) {
	l := NewLimiter(limiterConfig(t))
	r := limiterRouter(l)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/chat/completions", nil))
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
}

func TestLimiterRefillsOverTime(t *testing.T) {
	l := NewLimiter(limiterConfig(t))
	clock := time.Now()
	l.now = func() time.Time { return clock }
	r := limiterRouter(l)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/models", nil))
		require.Equal(t, 200, w.Code)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/models", nil))
	require.Equal(t, 429, w.Code)

	// One window refills the full capacity.
	clock = clock.Add(time.Minute)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/models", nil))
	assert.Equal(t, 200, w.Code)
}

func TestLimiterSeparatesIdentities(t *testing.T) {
	l := NewLimiter(limiterConfig(t))
	r := limiterRouter(l)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/api/v1/models", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, 200, w.Code)
	}

	req := httptest.NewRequest("GET", "/api/v1/models", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, 200, w.Code)
}

func TestLimiterSnapshotReportsBuckets(t *testing.T) {
	l := NewLimiter(limiterConfig(t))
	r := limiterRouter(l)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/models", nil))
	require.Equal(t, 200, w.Code)

	snap := l.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "default", snap[0].Rule)
	assert.InDelta(t, 2.0, snap[0].Remaining, 0.01)
}
