package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Adapter names recognized in the catalog file.
const (
	AdapterOpenAI     = "openai"
	AdapterAnthropic  = "anthropic"
	AdapterOllama     = "ollama"
	AdapterOpenRouter = "openrouter"
	AdapterCustom     = "custom"
)

// BootstrapConfig is the parsed catalog file: upstream providers with
// their models, plus optional per-route rate limit rules.
type BootstrapConfig struct {
	Providers      []ProviderEntry
	RateLimitRules []RateLimitRule
}

// ProviderEntry describes one upstream provider endpoint.
type ProviderEntry struct {
	ID      string
	Adapter string
	BaseURL string
	APIKey  string
	Models  []ModelEntry
}

// ModelEntry describes one model served by a provider.
type ModelEntry struct {
	ID              string
	Capabilities    []string
	CostPer1KInput  float64
	CostPer1KOutput float64
	ContextWindow   int
	MaxOutputTokens int
	SpeedTier       string
	PricingTier     string
	Sentinel        bool
}

// RateLimitRule overrides the default token bucket for matching routes.
type RateLimitRule struct {
	RouteGlob     string
	Capacity      int
	WindowSeconds int
	Identity      string
}

type catalogDocument struct {
	Providers  []catalogProviderEntry `yaml:"providers"`
	RateLimits []catalogRateLimit     `yaml:"rate_limits"`
}

type catalogProviderEntry struct {
	ID        string              `yaml:"id"`
	Adapter   string              `yaml:"adapter"`
	BaseURL   string              `yaml:"base_url"`
	APIKeyEnv string              `yaml:"api_key_env"`
	APIKey    string              `yaml:"api_key"`
	Models    []catalogModelEntry `yaml:"models"`
}

type catalogModelEntry struct {
	ID              string   `yaml:"id"`
	Capabilities    []string `yaml:"capabilities"`
	CostPer1KInput  float64  `yaml:"cost_per_1k_input"`
	CostPer1KOutput float64  `yaml:"cost_per_1k_output"`
	ContextWindow   int      `yaml:"context_window"`
	MaxOutputTokens int      `yaml:"max_output_tokens"`
	SpeedTier       string   `yaml:"speed_tier"`
	PricingTier     string   `yaml:"pricing_tier"`
	Sentinel        bool     `yaml:"sentinel"`
}

type catalogRateLimit struct {
	Route         string `yaml:"route"`
	Capacity      int    `yaml:"capacity"`
	WindowSeconds int    `yaml:"window_seconds"`
	Identity      string `yaml:"identity"`
}

var knownCapabilities = map[string]bool{
	"text":                true,
	"vision":              true,
	"audio-understanding": true,
	"long-context":        true,
	"function-calling":    true,
}

// LoadBootstrapConfig parses the yaml catalog at the provided path.
// A missing file surfaces os.ErrNotExist so callers can fall back to
// the built-in catalog.
func LoadBootstrapConfig(path string) (*BootstrapConfig, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read model catalog %q: %w", cleanPath, err)
	}

	var doc catalogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse model catalog %q: %w", cleanPath, err)
	}

	if len(doc.Providers) == 0 {
		return nil, fmt.Errorf("model catalog %q has no providers defined", cleanPath)
	}

	result := &BootstrapConfig{}
	for idx, entry := range doc.Providers {
		normalized, err := normalizeProviderEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("providers[%d]: %w", idx, err)
		}
		result.Providers = append(result.Providers, normalized)
	}

	for idx, rule := range doc.RateLimits {
		normalized, err := normalizeRateLimit(rule)
		if err != nil {
			return nil, fmt.Errorf("rate_limits[%d]: %w", idx, err)
		}
		result.RateLimitRules = append(result.RateLimitRules, normalized)
	}

	return result, nil
}

func normalizeProviderEntry(entry catalogProviderEntry) (ProviderEntry, error) {
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		return ProviderEntry{}, fmt.Errorf("provider id is required")
	}

	adapter := strings.ToLower(strings.TrimSpace(entry.Adapter))
	switch adapter {
	case AdapterOpenAI, AdapterAnthropic, AdapterOllama, AdapterOpenRouter, AdapterCustom:
	case "":
		return ProviderEntry{}, fmt.Errorf("provider %q: adapter is required", id)
	default:
		return ProviderEntry{}, fmt.Errorf("provider %q: unknown adapter %q", id, adapter)
	}

	baseURL := strings.TrimSpace(os.ExpandEnv(entry.BaseURL))
	if baseURL == "" {
		return ProviderEntry{}, fmt.Errorf("provider %q: base_url is required", id)
	}

	apiKey := strings.TrimSpace(entry.APIKey)
	if keyEnv := strings.TrimSpace(entry.APIKeyEnv); keyEnv != "" {
		apiKey = os.Getenv(keyEnv)
	}

	if len(entry.Models) == 0 {
		return ProviderEntry{}, fmt.Errorf("provider %q: at least one model is required", id)
	}

	models := make([]ModelEntry, 0, len(entry.Models))
	for idx, m := range entry.Models {
		normalized, err := normalizeModelEntry(m)
		if err != nil {
			return ProviderEntry{}, fmt.Errorf("provider %q models[%d]: %w", id, idx, err)
		}
		models = append(models, normalized)
	}

	return ProviderEntry{
		ID:      id,
		Adapter: adapter,
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		APIKey:  apiKey,
		Models:  models,
	}, nil
}

func normalizeModelEntry(entry catalogModelEntry) (ModelEntry, error) {
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		return ModelEntry{}, fmt.Errorf("model id is required")
	}

	if entry.CostPer1KInput < 0 || entry.CostPer1KOutput < 0 {
		return ModelEntry{}, fmt.Errorf("model %q: cost must be non-negative", id)
	}
	if entry.ContextWindow <= 0 {
		return ModelEntry{}, fmt.Errorf("model %q: context_window must be positive", id)
	}

	caps := entry.Capabilities
	if len(caps) == 0 {
		caps = []string{"text"}
	}
	normalizedCaps := make([]string, 0, len(caps))
	for _, c := range caps {
		c = strings.ToLower(strings.TrimSpace(c))
		if !knownCapabilities[c] {
			return ModelEntry{}, fmt.Errorf("model %q: unknown capability %q", id, c)
		}
		normalizedCaps = append(normalizedCaps, c)
	}

	speedTier := strings.ToLower(strings.TrimSpace(entry.SpeedTier))
	switch speedTier {
	case "fast", "balanced", "powerful":
	case "":
		speedTier = "balanced"
	default:
		return ModelEntry{}, fmt.Errorf("model %q: unknown speed_tier %q", id, speedTier)
	}

	pricingTier := strings.ToLower(strings.TrimSpace(entry.PricingTier))
	switch pricingTier {
	case "standard", "enterprise", "local":
	case "":
		pricingTier = "standard"
	default:
		return ModelEntry{}, fmt.Errorf("model %q: unknown pricing_tier %q", id, pricingTier)
	}

	maxOutput := entry.MaxOutputTokens
	if maxOutput <= 0 {
		maxOutput = 4096
	}

	return ModelEntry{
		ID:              id,
		Capabilities:    normalizedCaps,
		CostPer1KInput:  entry.CostPer1KInput,
		CostPer1KOutput: entry.CostPer1KOutput,
		ContextWindow:   entry.ContextWindow,
		MaxOutputTokens: maxOutput,
		SpeedTier:       speedTier,
		PricingTier:     pricingTier,
		Sentinel:        entry.Sentinel,
	}, nil
}

func normalizeRateLimit(rule catalogRateLimit) (RateLimitRule, error) {
	route := strings.TrimSpace(rule.Route)
	if route == "" {
		return RateLimitRule{}, fmt.Errorf("route is required")
	}
	if rule.Capacity <= 0 || rule.WindowSeconds <= 0 {
		return RateLimitRule{}, fmt.Errorf("route %q: capacity and window_seconds must be positive", route)
	}

	identity := strings.ToLower(strings.TrimSpace(rule.Identity))
	switch identity {
	case "ip", "api-key":
	case "":
		identity = "ip"
	default:
		return RateLimitRule{}, fmt.Errorf("route %q: unknown identity %q", route, identity)
	}

	return RateLimitRule{
		RouteGlob:     route,
		Capacity:      rule.Capacity,
		WindowSeconds: rule.WindowSeconds,
		Identity:      identity,
	}, nil
}

// DefaultBootstrapConfig returns the built-in catalog used when no
// catalog file is present.
func DefaultBootstrapConfig() *BootstrapConfig {
	return &BootstrapConfig{
		Providers: []ProviderEntry{
			{
				ID:      "openai",
				Adapter: AdapterOpenAI,
				BaseURL: "https://api.openai.com/v1",
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Models: []ModelEntry{
					{
						ID:              "gpt-4o",
						Capabilities:    []string{"text", "vision", "function-calling", "long-context"},
						CostPer1KInput:  5.0,
						CostPer1KOutput: 15.0,
						ContextWindow:   128000,
						MaxOutputTokens: 4096,
						SpeedTier:       "powerful",
						PricingTier:     "standard",
					},
					{
						ID:              "gpt-4o-mini",
						Capabilities:    []string{"text", "vision", "function-calling", "long-context"},
						CostPer1KInput:  0.15,
						CostPer1KOutput: 0.6,
						ContextWindow:   128000,
						MaxOutputTokens: 4096,
						SpeedTier:       "fast",
						PricingTier:     "standard",
					},
					{
						ID:              "gpt-3.5-turbo",
						Capabilities:    []string{"text", "function-calling"},
						CostPer1KInput:  0.5,
						CostPer1KOutput: 1.5,
						ContextWindow:   16385,
						MaxOutputTokens: 4096,
						SpeedTier:       "fast",
						PricingTier:     "standard",
					},
				},
			},
			{
				ID:      "anthropic",
				Adapter: AdapterAnthropic,
				BaseURL: "https://api.anthropic.com",
				APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
				Models: []ModelEntry{
					{
						ID:              "claude-3.5-sonnet",
						Capabilities:    []string{"text", "vision", "long-context"},
						CostPer1KInput:  3.0,
						CostPer1KOutput: 15.0,
						ContextWindow:   200000,
						MaxOutputTokens: 8192,
						SpeedTier:       "balanced",
						PricingTier:     "standard",
					},
					{
						ID:              "claude-3-haiku",
						Capabilities:    []string{"text", "vision", "long-context"},
						CostPer1KInput:  0.25,
						CostPer1KOutput: 1.25,
						ContextWindow:   200000,
						MaxOutputTokens: 4096,
						SpeedTier:       "fast",
						PricingTier:     "standard",
					},
				},
			},
			{
				ID:      "openrouter",
				Adapter: AdapterOpenRouter,
				BaseURL: "https://openrouter.ai/api/v1",
				APIKey:  os.Getenv("OPENROUTER_API_KEY"),
				Models: []ModelEntry{
					{
						ID:              "google/gemini-pro",
						Capabilities:    []string{"text"},
						CostPer1KInput:  0.5,
						CostPer1KOutput: 1.5,
						ContextWindow:   32768,
						MaxOutputTokens: 4096,
						SpeedTier:       "balanced",
						PricingTier:     "standard",
					},
					{
						ID:              "meta-llama/llama-3.1-405b-instruct",
						Capabilities:    []string{"text", "long-context"},
						CostPer1KInput:  2.7,
						CostPer1KOutput: 2.7,
						ContextWindow:   131072,
						MaxOutputTokens: 4096,
						SpeedTier:       "powerful",
						PricingTier:     "standard",
					},
					{
						ID:              "meta-llama/llama-3.1-70b-instruct",
						Capabilities:    []string{"text", "long-context"},
						CostPer1KInput:  0.59,
						CostPer1KOutput: 0.79,
						ContextWindow:   131072,
						MaxOutputTokens: 4096,
						SpeedTier:       "balanced",
						PricingTier:     "standard",
					},
					{
						ID:              "meta-llama/llama-3.1-8b-instruct",
						Capabilities:    []string{"text", "long-context"},
						CostPer1KInput:  0.055,
						CostPer1KOutput: 0.055,
						ContextWindow:   131072,
						MaxOutputTokens: 4096,
						SpeedTier:       "fast",
						PricingTier:     "standard",
					},
				},
			},
			{
				ID:      "local",
				Adapter: AdapterOllama,
				BaseURL: "http://localhost:11434",
				Models: []ModelEntry{
					{
						ID:              "llama3.2",
						Capabilities:    []string{"text"},
						ContextWindow:   2048,
						MaxOutputTokens: 2048,
						SpeedTier:       "fast",
						PricingTier:     "local",
						Sentinel:        true,
					},
				},
			},
		},
	}
}
