package middlewares

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campersurfer/Autopicker/internal/config"
	"github.com/campersurfer/Autopicker/internal/infrastructure/metrics"
	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver/responses"
	"github.com/campersurfer/Autopicker/internal/utils/platformerrors"
)

// IdentityModeIP and IdentityModeAPIKey select what a rule buckets on.
const (
	IdentityModeIP     = "ip"
	IdentityModeAPIKey = "api-key"
)

// LimitRule is one token-bucket policy applied to matching routes.
type LimitRule struct {
	Name     string
	Glob     string
	Capacity float64
	Window   time.Duration
	Identity string
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// BucketStatus is one live bucket for the inspection endpoint.
type BucketStatus struct {
	Rule      string  `json:"rule"`
	Key       string  `json:"key"`
	Remaining float64 `json:"remaining"`
	Capacity  float64 `json:"capacity"`
	WindowSec float64 `json:"window_seconds"`
}

// Limiter holds token buckets per (rule, identity). The most specific
// matching rule wins; the default rule covers everything else.
type Limiter struct {
	mu      sync.Mutex
	rules   []LimitRule
	def     LimitRule
	buckets map[string]*bucket
	now     func() time.Time
}

// NewLimiter builds the limiter from config: the global default, the
// stricter upload default, and any per-route overrides from the
// catalog file.
func NewLimiter(cfg *config.Config) *Limiter {
	def := LimitRule{
		Name:     "default",
		Glob:     "/*",
		Capacity: float64(cfg.RateLimitCapacity),
		Window:   cfg.RateLimitWindow,
		Identity: IdentityModeIP,
	}

	rules := []LimitRule{{
		Name:     "upload",
		Glob:     "/api/v1/upload",
		Capacity: float64(cfg.UploadRateLimitCapacity),
		Window:   cfg.RateLimitWindow,
		Identity: IdentityModeIP,
	}}

	if cfg.Bootstrap != nil {
		for _, r := range cfg.Bootstrap.RateLimitRules {
			rule := LimitRule{
				Name:     r.RouteGlob,
				Glob:     r.RouteGlob,
				Capacity: float64(r.Capacity),
				Window:   time.Duration(r.WindowSeconds) * time.Second,
				Identity: r.Identity,
			}
			if rule.Identity == "" {
				rule.Identity = IdentityModeIP
			}
			rules = append(rules, rule)
		}
	}

	return &Limiter{
		rules:   rules,
		def:     def,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Middleware enforces the matching rule and decorates the response
// with the X-RateLimit headers.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rule := l.match(c.Request.URL.Path)
		key := l.bucketKey(c, rule)

		allowed, remaining, reset := l.take(rule, key)

		c.Header("X-RateLimit-Limit", strconv.Itoa(int(rule.Capacity)))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(remaining)))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !allowed {
			retryAfter := int(time.Until(reset).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			metrics.RecordRateLimitRejection(rule.Name)
			responses.HandleNewError(c, platformerrors.NewError(
				c.Request.Context(), platformerrors.LayerRoute, platformerrors.ErrorTypeRateLimited,
				"rate limit exceeded, retry later", nil, "7a90e2d4-1c5b-48f6-b3a7-6e04d9c82f13"))
			return
		}
		c.Next()
	}
}

// take refills and spends one token, reporting the remaining budget
// and when a spent token next becomes available.
func (l *Limiter) take(rule LimitRule, key string) (allowed bool, remaining float64, reset time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: rule.Capacity, lastRefill: now}
		l.buckets[key] = b
	}

	rate := rule.Capacity / rule.Window.Seconds()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = minFloat(rule.Capacity, b.tokens+elapsed*rate)
	b.lastRefill = now

	if b.tokens < 1 {
		deficit := 1 - b.tokens
		return false, 0, now.Add(time.Duration(deficit / rate * float64(time.Second)))
	}

	b.tokens--
	refillAll := (rule.Capacity - b.tokens) / rate
	return true, b.tokens, now.Add(time.Duration(refillAll * float64(time.Second)))
}

// Snapshot reports the live buckets for the inspection endpoint.
func (l *Limiter) Snapshot() []BucketStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]BucketStatus, 0, len(l.buckets))
	for key, b := range l.buckets {
		rule := l.ruleForBucketKey(key)
		out = append(out, BucketStatus{
			Rule:      rule.Name,
			Key:       key,
			Remaining: b.tokens,
			Capacity:  rule.Capacity,
			WindowSec: rule.Window.Seconds(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Rules reports the active policies, default last.
func (l *Limiter) Rules() []LimitRule {
	out := make([]LimitRule, 0, len(l.rules)+1)
	out = append(out, l.rules...)
	out = append(out, l.def)
	return out
}

func (l *Limiter) match(requestPath string) LimitRule {
	for _, rule := range l.rules {
		if ok, _ := path.Match(rule.Glob, requestPath); ok {
			return rule
		}
		// Allow prefix-style globs like /api/v1/files/*.
		if ok, _ := path.Match(rule.Glob+"/*", requestPath); ok {
			return rule
		}
	}
	return l.def
}

func (l *Limiter) bucketKey(c *gin.Context, rule LimitRule) string {
	identity := "ip:" + c.ClientIP()
	if rule.Identity == IdentityModeAPIKey {
		if id := c.GetString(CtxIdentity); id != "" {
			identity = id
		}
	}
	return fmt.Sprintf("%s|%s", rule.Name, identity)
}

func (l *Limiter) ruleForBucketKey(key string) LimitRule {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			name := key[:i]
			for _, rule := range l.rules {
				if rule.Name == name {
					return rule
				}
			}
			break
		}
	}
	return l.def
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
