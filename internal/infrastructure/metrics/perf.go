package metrics

import (
	"sort"
	"sync"
	"time"
)

// perfWindow bounds the per-operation sample ring.
const perfWindow = 1024

// OpStats summarizes recent durations of one operation.
type OpStats struct {
	Operation   string  `json:"operation"`
	Total       int64   `json:"total"`
	Success     int64   `json:"success"`
	Failed      int64   `json:"failed"`
	SuccessRate float64 `json:"success_rate_percent"`
	AvgMS       float64 `json:"avg_ms"`
	MinMS       float64 `json:"min_ms"`
	MaxMS       float64 `json:"max_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
}

type opRecorder struct {
	total   int64
	success int64
	failed  int64
	samples []float64
	next    int
	filled  bool
}

// PerfCollector keeps a sliding sample window of operation durations
// and renders percentile summaries for the performance endpoint.
type PerfCollector struct {
	mu  sync.Mutex
	ops map[string]*opRecorder
}

func NewPerfCollector() *PerfCollector {
	return &PerfCollector{ops: make(map[string]*opRecorder)}
}

// Observe records one operation run.
func (p *PerfCollector) Observe(operation string, duration time.Duration, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.ops[operation]
	if !ok {
		rec = &opRecorder{samples: make([]float64, perfWindow)}
		p.ops[operation] = rec
	}

	rec.total++
	if success {
		rec.success++
	} else {
		rec.failed++
	}

	rec.samples[rec.next] = float64(duration.Microseconds()) / 1000.0
	rec.next++
	if rec.next == perfWindow {
		rec.next = 0
		rec.filled = true
	}
}

// Stats summarizes every operation, sorted by name.
func (p *PerfCollector) Stats() []OpStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]OpStats, 0, len(p.ops))
	for name, rec := range p.ops {
		out = append(out, summarize(name, rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

func summarize(name string, rec *opRecorder) OpStats {
	stats := OpStats{
		Operation: name,
		Total:     rec.total,
		Success:   rec.success,
		Failed:    rec.failed,
	}
	if rec.total > 0 {
		stats.SuccessRate = float64(rec.success) / float64(rec.total) * 100.0
	}

	n := rec.next
	if rec.filled {
		n = perfWindow
	}
	if n == 0 {
		return stats
	}

	window := make([]float64, n)
	copy(window, rec.samples[:n])
	sort.Float64s(window)

	sum := 0.0
	for _, v := range window {
		sum += v
	}
	stats.AvgMS = sum / float64(n)
	stats.MinMS = window[0]
	stats.MaxMS = window[n-1]
	stats.P95MS = percentile(window, 0.95)
	stats.P99MS = percentile(window, 0.99)
	return stats
}

// percentile reads the nearest-rank value from a sorted window.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q*float64(len(sorted))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
