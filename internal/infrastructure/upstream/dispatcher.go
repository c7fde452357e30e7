package upstream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/campersurfer/Autopicker/internal/config"
	"github.com/campersurfer/Autopicker/internal/domain/chatmodel"
	"github.com/campersurfer/Autopicker/internal/domain/routing"
	"github.com/campersurfer/Autopicker/internal/infrastructure/metrics"
	"github.com/campersurfer/Autopicker/internal/utils/platformerrors"
)

// Fallback attempts beyond the selected model, before first byte only.
const maxExtraAttempts = 2

// retryBaseDelay seeds the exponential backoff between attempts.
const retryBaseDelay = 250 * time.Millisecond

// streamScanBuffer bounds one upstream stream line.
const streamScanBuffer = 1 << 20

// Provider binds one configured endpoint to its wire adapter.
type Provider struct {
	ID      string
	BaseURL string
	Adapter ProviderAdapter
}

// ChunkHandler receives parsed chunks in upstream order. The first
// invocation marks delivery: after it, no fallback is attempted.
type ChunkHandler func(chunk Chunk) error

// Result describes how a dispatch was served.
type Result struct {
	Provider      string      `json:"provider"`
	Model         string      `json:"model"`
	Attempts      int         `json:"attempts"`
	FallbackCount int         `json:"fallback_count"`
	Tags          []string    `json:"tags,omitempty"`
	FirstByteMS   int64       `json:"first_byte_ms"`
	Completion    *Completion `json:"-"`
}

// Dispatcher sends normalized requests to the routed provider, walking
// the fallback list on retryable failures until any byte has been
// delivered downstream.
type Dispatcher struct {
	cfg       *config.Config
	pool      *ClientPool
	breaker   *Breaker
	prober    *Prober
	providers map[string]*Provider
	log       zerolog.Logger
}

func NewDispatcher(cfg *config.Config, pool *ClientPool, breaker *Breaker, prober *Prober, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		cfg:       cfg,
		pool:      pool,
		breaker:   breaker,
		prober:    prober,
		providers: make(map[string]*Provider),
		log:       log.With().Str("component", "upstream-dispatcher").Logger(),
	}
	if cfg.Bootstrap != nil {
		for _, entry := range cfg.Bootstrap.Providers {
			d.providers[entry.ID] = &Provider{
				ID:      entry.ID,
				BaseURL: entry.BaseURL,
				Adapter: AdapterFor(entry),
			}
		}
	}
	return d
}

// AdapterFor picks the wire adapter for a configured provider.
func AdapterFor(entry config.ProviderEntry) ProviderAdapter {
	switch entry.Adapter {
	case config.AdapterAnthropic:
		return NewAnthropicAdapter(entry.APIKey)
	case config.AdapterOllama:
		return NewOllamaAdapter()
	case config.AdapterOpenRouter:
		return NewOpenRouterAdapter(entry.APIKey, "https://github.com/campersurfer/Autopicker", "Autopicker Gateway")
	case config.AdapterCustom:
		return NewCustomAdapter(entry.APIKey)
	default:
		return NewOpenAIAdapter(entry.APIKey)
	}
}

// ProviderFor returns the configured provider, if any.
func (d *Dispatcher) ProviderFor(id string) (*Provider, bool) {
	p, ok := d.providers[id]
	return p, ok
}

// Unavailable is the catalog snapshot predicate: a model is unavailable
// when its provider is unconfigured, its breaker is open, or the last
// reachability probe failed.
func (d *Dispatcher) Unavailable(m chatmodel.ModelDescriptor) bool {
	if _, ok := d.providers[m.ProviderID]; !ok {
		return true
	}
	if d.breaker.State(m.Key()) == BreakerOpen {
		return true
	}
	if d.prober != nil && !d.prober.Healthy(m.ProviderID) {
		return true
	}
	return false
}

// Dispatch sends the request buffered and returns the completion.
func (d *Dispatcher) Dispatch(ctx context.Context, route *routing.Route, req *Request) (*Result, error) {
	req.Stream = false
	return d.dispatch(ctx, route, req, nil)
}

// DispatchStream sends the request streaming, relaying chunks through
// the handler in order.
func (d *Dispatcher) DispatchStream(ctx context.Context, route *routing.Route, req *Request, handler ChunkHandler) (*Result, error) {
	req.Stream = true
	return d.dispatch(ctx, route, req, handler)
}

func (d *Dispatcher) dispatch(ctx context.Context, route *routing.Route, req *Request, handler ChunkHandler) (*Result, error) {
	models := append([]chatmodel.ModelDescriptor{route.Selected}, route.Fallbacks...)
	if len(models) > 1+maxExtraAttempts {
		models = models[:1+maxExtraAttempts]
	}

	result := &Result{}
	var lastErr error
	lastBreakerOpen := false

	for attempt, model := range models {
		if attempt > 0 {
			if err := d.backoff(ctx, attempt-1); err != nil {
				return result, platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "dispatch cancelled")
			}
		}
		result.Attempts = attempt + 1

		provider, ok := d.providers[model.ProviderID]
		if !ok {
			lastErr = fmt.Errorf("provider %q is not configured", model.ProviderID)
			lastBreakerOpen = false
			continue
		}

		key := model.Key()
		if !d.breaker.Allow(key) {
			result.Tags = append(result.Tags, "breaker-open")
			lastErr = fmt.Errorf("breaker open for %s", key)
			lastBreakerOpen = true
			continue
		}
		lastBreakerOpen = false

		attemptReq := *req
		attemptReq.Model = model.ModelID

		delivered, err := d.attempt(ctx, provider, model, &attemptReq, handler, result)
		if err == nil {
			if attempt > 0 {
				result.FallbackCount = attempt
				result.Tags = append(result.Tags, "fallback-used")
				metrics.RecordFallback(provider.ID)
			}
			result.Provider = provider.ID
			result.Model = model.ModelID
			return result, nil
		}

		lastErr = err
		if delivered {
			// Bytes already reached the client; the caller closes the
			// stream with an error frame instead of retrying.
			result.Provider = provider.ID
			result.Model = model.ModelID
			return result, platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "upstream stream failed")
		}
		if !retryable(err) {
			return result, platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "upstream dispatch failed")
		}
		if attempt == 0 {
			if tag := primaryTag(err); tag != "" {
				result.Tags = append(result.Tags, tag)
			}
		}
		d.log.Warn().
			Err(err).
			Str("provider", provider.ID).
			Str("model", model.ModelID).
			Int("attempt", attempt+1).
			Msg("upstream attempt failed, trying next candidate")
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no dispatch candidates")
	}
	// A walk that ends on an open circuit is overload, not a bad
	// gateway: the caller should back off and retry.
	if lastBreakerOpen {
		return result, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeServerBusy,
			"all upstream candidates unavailable", lastErr, "9f6d0c3a-5b82-4e17-ae64-20d7c1f58b3d",
			map[string]any{"attempts": result.Attempts})
	}
	return result, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeUpstream,
		"all upstream candidates failed", lastErr, "e59c07b2-3d41-48f6-9a80-1c6db25f4e09",
		map[string]any{"attempts": result.Attempts})
}

// attempt performs one upstream call. The returned bool reports whether
// any chunk reached the handler.
func (d *Dispatcher) attempt(ctx context.Context, provider *Provider, model chatmodel.ModelDescriptor, req *Request, handler ChunkHandler, result *Result) (bool, error) {
	body, headers, path, err := provider.Adapter.Serialize(req)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.UpstreamRequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	key := model.Key()
	started := time.Now()

	resp, err := d.pool.ClientFor(provider.BaseURL).Do(httpReq)
	if err != nil {
		d.breaker.RecordFailure(key)
		metrics.RecordUpstream(provider.ID, model.ModelID, "transport-error", 0)
		return false, &transportError{err: err}
	}
	defer resp.Body.Close()

	firstByte := time.Since(started)
	result.FirstByteMS = firstByte.Milliseconds()

	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode >= 500 {
			d.breaker.RecordFailure(key)
		}
		metrics.RecordUpstream(provider.ID, model.ModelID, fmt.Sprintf("%d", resp.StatusCode), firstByte.Seconds())
		return false, &statusError{code: resp.StatusCode, body: string(payload)}
	}

	if !req.Stream {
		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			d.breaker.RecordFailure(key)
			return false, &transportError{err: err}
		}
		completion, err := provider.Adapter.ParseResponse(payload)
		if err != nil {
			d.breaker.RecordFailure(key)
			return false, err
		}
		d.breaker.RecordSuccess(key)
		metrics.RecordUpstream(provider.ID, model.ModelID, "success", firstByte.Seconds())
		result.Completion = completion
		return false, nil
	}

	delivered, err := d.relay(resp.Body, provider.Adapter, handler)
	if err != nil {
		d.breaker.RecordFailure(key)
		metrics.RecordUpstream(provider.ID, model.ModelID, "stream-error", firstByte.Seconds())
		return delivered, err
	}
	d.breaker.RecordSuccess(key)
	metrics.RecordUpstream(provider.ID, model.ModelID, "success", firstByte.Seconds())
	return delivered, nil
}

// relay scans the upstream stream line by line, parses chunks, and
// forwards them in order. Keepalives are consumed, not forwarded.
func (d *Dispatcher) relay(body io.Reader, adapter ProviderAdapter, handler ChunkHandler) (bool, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), streamScanBuffer)

	delivered := false
	for scanner.Scan() {
		chunks, err := adapter.ParseChunk(scanner.Bytes())
		if err != nil {
			return delivered, err
		}
		for _, chunk := range chunks {
			if chunk.Kind == ChunkKeepalive {
				continue
			}
			if chunk.Kind == ChunkError {
				return delivered, fmt.Errorf("upstream error event: %s", chunk.ErrMessage)
			}
			if err := handler(chunk); err != nil {
				return delivered, err
			}
			delivered = true
			if chunk.Terminal {
				return delivered, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return delivered, &transportError{err: err}
	}
	return delivered, nil
}

// backoff sleeps 250 ms × 2^n with ±30 % jitter, honoring cancellation.
func (d *Dispatcher) backoff(ctx context.Context, n int) error {
	delay := retryBaseDelay * (1 << n)
	jitter := 0.7 + rand.Float64()*0.6
	delay = time.Duration(float64(delay) * jitter)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type transportError struct{ err error }

func (e *transportError) Error() string { return "upstream transport: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.code, e.body)
}

// retryable classifies failures eligible for fallback before first
// byte: transport errors (connection refused, DNS, timeout with no
// status line) and 502/503/504.
func retryable(err error) bool {
	var transport *transportError
	if errors.As(err, &transport) {
		return true
	}
	var status *statusError
	if errors.As(err, &status) {
		return status.code == http.StatusBadGateway ||
			status.code == http.StatusServiceUnavailable ||
			status.code == http.StatusGatewayTimeout
	}
	return false
}

func primaryTag(err error) string {
	var status *statusError
	if errors.As(err, &status) {
		return fmt.Sprintf("primary-%d", status.code)
	}
	var transport *transportError
	if errors.As(err, &transport) {
		return "primary-transport-error"
	}
	return ""
}
