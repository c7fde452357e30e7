package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadBootstrapConfig(t *testing.T) {
	t.Setenv("TEST_UPSTREAM_KEY", "sk-test-123")

	path := writeCatalog(t, `
providers:
  - id: primary
    adapter: openai
    base_url: https://api.example.com/v1/
    api_key_env: TEST_UPSTREAM_KEY
    models:
      - id: alpha
        capabilities: [text, vision]
        cost_per_1k_input: 1.5
        cost_per_1k_output: 3.0
        context_window: 128000
        speed_tier: fast
rate_limits:
  - route: /api/v1/upload
    capacity: 20
    window_seconds: 60
`)

	cfg, err := LoadBootstrapConfig(path)
	if err != nil {
		t.Fatalf("LoadBootstrapConfig: %v", err)
	}

	if len(cfg.Providers) != 1 {
		t.Fatalf("providers = %d, want 1", len(cfg.Providers))
	}
	p := cfg.Providers[0]
	if p.APIKey != "sk-test-123" {
		t.Errorf("api key = %q, want value of TEST_UPSTREAM_KEY", p.APIKey)
	}
	if p.BaseURL != "https://api.example.com/v1" {
		t.Errorf("base url = %q, want trailing slash trimmed", p.BaseURL)
	}
	m := p.Models[0]
	if m.SpeedTier != "fast" || m.PricingTier != "standard" {
		t.Errorf("model tiers = %s/%s", m.SpeedTier, m.PricingTier)
	}
	if m.MaxOutputTokens != 4096 {
		t.Errorf("max output default = %d, want 4096", m.MaxOutputTokens)
	}

	if len(cfg.RateLimitRules) != 1 {
		t.Fatalf("rate limit rules = %d, want 1", len(cfg.RateLimitRules))
	}
	if cfg.RateLimitRules[0].Identity != "ip" {
		t.Errorf("rule identity default = %q, want ip", cfg.RateLimitRules[0].Identity)
	}
}

func TestLoadBootstrapConfigMissingFile(t *testing.T) {
	_, err := LoadBootstrapConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestLoadBootstrapConfigRejections(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no providers", "providers: []\n"},
		{"unknown adapter", `
providers:
  - id: p
    adapter: carrier-pigeon
    base_url: http://x
    models: [{id: m, context_window: 10}]
`},
		{"missing base_url", `
providers:
  - id: p
    adapter: openai
    models: [{id: m, context_window: 10}]
`},
		{"unknown capability", `
providers:
  - id: p
    adapter: openai
    base_url: http://x
    models: [{id: m, context_window: 10, capabilities: [telepathy]}]
`},
		{"negative cost", `
providers:
  - id: p
    adapter: openai
    base_url: http://x
    models: [{id: m, context_window: 10, cost_per_1k_input: -1}]
`},
		{"zero window", `
providers:
  - id: p
    adapter: openai
    base_url: http://x
    models: [{id: m}]
`},
		{"bad rate rule identity", `
providers:
  - id: p
    adapter: openai
    base_url: http://x
    models: [{id: m, context_window: 10}]
rate_limits:
  - route: /x
    capacity: 1
    window_seconds: 1
    identity: passport
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCatalog(t, tt.content)
			if _, err := LoadBootstrapConfig(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestDefaultBootstrapConfig(t *testing.T) {
	cfg := DefaultBootstrapConfig()

	if len(cfg.Providers) == 0 {
		t.Fatal("default catalog has no providers")
	}

	var sentinel *ModelEntry
	adapters := map[string]bool{}
	for _, p := range cfg.Providers {
		adapters[p.Adapter] = true
		for i := range p.Models {
			if p.Models[i].Sentinel {
				sentinel = &p.Models[i]
			}
			if p.Models[i].ContextWindow <= 0 {
				t.Errorf("model %s has no context window", p.Models[i].ID)
			}
		}
	}

	if sentinel == nil {
		t.Fatal("default catalog has no sentinel local model")
	}
	if sentinel.PricingTier != "local" {
		t.Errorf("sentinel pricing tier = %s, want local", sentinel.PricingTier)
	}
	for _, want := range []string{AdapterOpenAI, AdapterAnthropic, AdapterOpenRouter, AdapterOllama} {
		if !adapters[want] {
			t.Errorf("default catalog missing %s provider", want)
		}
	}
}
