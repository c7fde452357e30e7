package upstream

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/campersurfer/Autopicker/internal/config"
)

// probeTimeout bounds one reachability check.
const probeTimeout = 5 * time.Second

// ProbeResult is the last reachability outcome for one provider.
type ProbeResult struct {
	Provider   string    `json:"provider"`
	Healthy    bool      `json:"healthy"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	LatencyMS  int64     `json:"latency_ms"`
	CheckedAt  time.Time `json:"checked_at"`
}

// Prober periodically checks provider reachability. A provider with no
// probe on record counts as healthy so startup does not mark the whole
// catalog unavailable.
type Prober struct {
	client    *resty.Client
	providers []*Provider
	log       zerolog.Logger

	mu      sync.RWMutex
	results map[string]ProbeResult
}

func NewProber(cfg *config.Config, log zerolog.Logger) *Prober {
	p := &Prober{
		client: resty.New().
			SetTimeout(probeTimeout).
			SetRetryCount(0).
			SetHeader("User-Agent", "autopicker-gateway/"+config.Version),
		log:     log.With().Str("component", "provider-prober").Logger(),
		results: make(map[string]ProbeResult),
	}
	if cfg.Bootstrap != nil {
		for _, entry := range cfg.Bootstrap.Providers {
			p.providers = append(p.providers, &Provider{
				ID:      entry.ID,
				BaseURL: entry.BaseURL,
				Adapter: AdapterFor(entry),
			})
		}
	}
	return p
}

// ProbeAll checks every configured provider once.
func (p *Prober) ProbeAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, provider := range p.providers {
		wg.Add(1)
		go func(provider *Provider) {
			defer wg.Done()
			p.probe(ctx, provider)
		}(provider)
	}
	wg.Wait()
}

func (p *Prober) probe(ctx context.Context, provider *Provider) {
	started := time.Now()
	resp, err := p.client.R().SetContext(ctx).Get(provider.BaseURL + provider.Adapter.ProbePath())

	result := ProbeResult{
		Provider:  provider.ID,
		LatencyMS: time.Since(started).Milliseconds(),
		CheckedAt: time.Now().UTC(),
	}
	switch {
	case err != nil:
		result.Error = err.Error()
	default:
		result.StatusCode = resp.StatusCode()
		// Auth errors still prove the endpoint is reachable.
		result.Healthy = resp.StatusCode() < 500
	}

	p.mu.Lock()
	p.results[provider.ID] = result
	p.mu.Unlock()

	if !result.Healthy {
		p.log.Warn().
			Str("provider", provider.ID).
			Int("status", result.StatusCode).
			Str("error", result.Error).
			Msg("provider probe failed")
	}
}

// Healthy reports the last probe outcome, defaulting to healthy when no
// probe has run yet.
func (p *Prober) Healthy(providerID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result, ok := p.results[providerID]
	if !ok {
		return true
	}
	return result.Healthy
}

// Results returns a copy of every provider's last probe.
func (p *Prober) Results() []ProbeResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ProbeResult, 0, len(p.results))
	for _, r := range p.results {
		out = append(out, r)
	}
	return out
}
