package upstream

import (
	"strings"
	"sync"
	"time"

	"github.com/campersurfer/Autopicker/internal/infrastructure/metrics"
)

// BreakerState is the lifecycle of one (provider, model) circuit.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerConfig tunes the sliding failure window.
type BreakerConfig struct {
	Window       time.Duration
	OpenFor      time.Duration
	MinSamples   int
	FailureRatio float64
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Window <= 0 {
		c.Window = 60 * time.Second
	}
	if c.OpenFor <= 0 {
		c.OpenFor = 30 * time.Second
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 20
	}
	if c.FailureRatio <= 0 {
		c.FailureRatio = 0.5
	}
	return c
}

type outcome struct {
	at      time.Time
	failure bool
}

type circuit struct {
	state       BreakerState
	outcomes    []outcome
	openedAt    time.Time
	probeActive bool
}

// Breaker tracks upstream outcomes per (provider, model) over a sliding
// window and fails fast while a circuit is open.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	circuits map[string]*circuit
	now      func() time.Time
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{
		cfg:      cfg.withDefaults(),
		circuits: make(map[string]*circuit),
		now:      time.Now,
	}
}

func (b *Breaker) circuitFor(key string) *circuit {
	c, ok := b.circuits[key]
	if !ok {
		c = &circuit{}
		b.circuits[key] = c
	}
	return c
}

// Allow reports whether a request may proceed. An open circuit whose
// cool-off has elapsed transitions to half-open and admits exactly one
// probe.
func (b *Breaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitFor(key)
	now := b.now()

	switch c.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if now.Sub(c.openedAt) < b.cfg.OpenFor {
			return false
		}
		c.state = BreakerHalfOpen
		c.probeActive = true
		b.publish(key, c.state)
		return true
	case BreakerHalfOpen:
		if c.probeActive {
			return false
		}
		c.probeActive = true
		return true
	}
	return true
}

// RecordSuccess closes a half-open circuit and records the outcome.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitFor(key)
	if c.state == BreakerHalfOpen {
		c.state = BreakerClosed
		c.outcomes = nil
		c.probeActive = false
		b.publish(key, c.state)
		return
	}
	b.append(c, false)
}

// RecordFailure records the outcome and opens the circuit when the
// windowed failure ratio crosses the threshold with enough samples.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitFor(key)
	now := b.now()

	if c.state == BreakerHalfOpen {
		c.state = BreakerOpen
		c.openedAt = now
		c.probeActive = false
		b.publish(key, c.state)
		return
	}

	b.append(c, true)
	if c.state != BreakerClosed {
		return
	}

	total := len(c.outcomes)
	if total < b.cfg.MinSamples {
		return
	}
	failures := 0
	for _, o := range c.outcomes {
		if o.failure {
			failures++
		}
	}
	if float64(failures) >= b.cfg.FailureRatio*float64(total) {
		c.state = BreakerOpen
		c.openedAt = now
		b.publish(key, c.state)
	}
}

// State reports the circuit state, refreshing the open→half-open edge.
func (b *Breaker) State(key string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		return BreakerClosed
	}
	if c.state == BreakerOpen && b.now().Sub(c.openedAt) >= b.cfg.OpenFor {
		return BreakerHalfOpen
	}
	return c.state
}

// append records an outcome and prunes everything older than the window.
func (b *Breaker) append(c *circuit, failure bool) {
	now := b.now()
	c.outcomes = append(c.outcomes, outcome{at: now, failure: failure})

	cutoff := now.Add(-b.cfg.Window)
	kept := c.outcomes[:0]
	for _, o := range c.outcomes {
		if o.at.After(cutoff) {
			kept = append(kept, o)
		}
	}
	c.outcomes = kept
}

func (b *Breaker) publish(key string, state BreakerState) {
	provider, model := splitKey(key)
	metrics.SetBreakerState(provider, model, float64(state))
}

func splitKey(key string) (string, string) {
	if idx := strings.IndexByte(key, '/'); idx >= 0 {
		return key[:idx], key[idx+1:]
	}
	return key, ""
}
