package dispatcher

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
	"github.com/drblury/dispatchflow/internal/runtime/handlers"
)

const (
	latencySampleSize    = 256
	throughputWindowSize = time.Minute
)

// BindingStats is a point-in-time view of one (name, mode) binding.
type BindingStats struct {
	Name      string        `json:"name"`
	Mode      handlers.Mode `json:"mode"`
	Component string        `json:"component,omitempty"`

	Dispatched          uint64    `json:"dispatched"`
	Failed              uint64    `json:"failed"`
	InFlight            uint64    `json:"in_flight"`
	MaxInFlight         uint64    `json:"max_in_flight"`
	TotalProcessingTime int64     `json:"total_processing_time_ns"`
	LastDispatchedAt    time.Time `json:"last_dispatched_at"`

	Latency    LatencyMetrics    `json:"latency"`
	Throughput ThroughputMetrics `json:"throughput"`
	Errors     ErrorBreakdown    `json:"errors"`
}

// bindingCounter accumulates BindingStats under a mutex.
type bindingCounter struct {
	mu    sync.Mutex
	stats BindingStats

	latencyWindow    *latencyWindow
	throughputWindow *throughputWindow
}

type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

type ThroughputMetrics struct {
	CurrentRPS       float64 `json:"current_rps"`
	WindowSeconds    float64 `json:"window_seconds"`
	MessagesInWindow uint64  `json:"messages_in_window"`
}

type ErrorBreakdown struct {
	NilResult uint64 `json:"nil_result"`
	Canceled  uint64 `json:"canceled"`
	Handler   uint64 `json:"handler"`
	LastError string `json:"last_error,omitempty"`
}

type ErrorCategory string

const (
	ErrorCategoryNone      ErrorCategory = "none"
	ErrorCategoryNilResult ErrorCategory = "nil_result"
	ErrorCategoryCanceled  ErrorCategory = "canceled"
	ErrorCategoryHandler   ErrorCategory = "handler"
)

// ClassifyError buckets a handler error for statistics.
func ClassifyError(err error) ErrorCategory {
	switch {
	case err == nil:
		return ErrorCategoryNone
	case errors.Is(err, errspkg.ErrNilResult):
		return ErrorCategoryNilResult
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorCategoryCanceled
	default:
		return ErrorCategoryHandler
	}
}

func newBindingCounter(name string, mode handlers.Mode, component string) *bindingCounter {
	return &bindingCounter{
		stats:            BindingStats{Name: name, Mode: mode, Component: component},
		latencyWindow:    newLatencyWindow(latencySampleSize),
		throughputWindow: newThroughputWindow(throughputWindowSize),
	}
}

func (c *bindingCounter) onStart() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.InFlight++
	if c.stats.InFlight > c.stats.MaxInFlight {
		c.stats.MaxInFlight = c.stats.InFlight
	}
}

func (c *bindingCounter) onFinish(duration time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &c.stats
	if s.InFlight > 0 {
		s.InFlight--
	}
	s.Dispatched++
	if err != nil {
		s.Failed++
	}
	s.TotalProcessingTime += int64(duration)
	now := time.Now().UTC()
	s.LastDispatchedAt = now

	c.latencyWindow.Add(duration)
	latency := c.latencyWindow.Snapshot()
	latency.AverageNs = s.TotalProcessingTime / int64(s.Dispatched)
	s.Latency = latency

	tp := c.throughputWindow.AddAndSnapshot(now)
	s.Throughput = ThroughputMetrics{
		CurrentRPS:       tp.CurrentRPS,
		WindowSeconds:    tp.WindowSeconds,
		MessagesInWindow: uint64(tp.Count),
	}

	s.Errors.Record(ClassifyError(err), err)
}

func (c *bindingCounter) snapshot() BindingStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (e *ErrorBreakdown) Record(category ErrorCategory, err error) {
	switch category {
	case ErrorCategoryNone:
		return
	case ErrorCategoryNilResult:
		e.NilResult++
	case ErrorCategoryCanceled:
		e.Canceled++
	default:
		e.Handler++
	}
	if err != nil {
		e.LastError = err.Error()
	}
}

type statsKey struct {
	name string
	mode handlers.Mode
}

// statsTable holds one counter per binding, created on first dispatch.
type statsTable struct {
	entries sync.Map
}

func (t *statsTable) get(name string, mode handlers.Mode, component string) *bindingCounter {
	key := statsKey{name: name, mode: mode}
	if existing, ok := t.entries.Load(key); ok {
		return existing.(*bindingCounter)
	}
	actual, _ := t.entries.LoadOrStore(key, newBindingCounter(name, mode, component))
	return actual.(*bindingCounter)
}

func (t *statsTable) snapshot() []BindingStats {
	var out []BindingStats
	t.entries.Range(func(_, value any) bool {
		out = append(out, value.(*bindingCounter).snapshot())
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Mode < out[j].Mode
	})
	return out
}

type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	if lw == nil || len(lw.samples) == 0 {
		return
	}
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	var metrics LatencyMetrics
	if lw == nil {
		return metrics
	}
	metrics.LastNs = lw.last
	if lw.filled == 0 {
		return metrics
	}
	samples := make([]int64, lw.filled)
	for i := 0; i < lw.filled; i++ {
		idx := lw.next - lw.filled + i
		if idx < 0 {
			idx += len(lw.samples)
		}
		samples[i] = lw.samples[idx]
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	metrics.SampleSize = lw.filled
	metrics.P50Ns = percentile(samples, 0.50)
	metrics.P95Ns = percentile(samples, 0.95)
	metrics.P99Ns = percentile(samples, 0.99)
	var sum int64
	for _, v := range samples {
		sum += v
	}
	metrics.AverageNs = sum / int64(len(samples))
	return metrics
}

func percentile(samples []int64, quantile float64) int64 {
	if len(samples) == 0 {
		return 0
	}
	if quantile <= 0 {
		return samples[0]
	}
	if quantile >= 1 {
		return samples[len(samples)-1]
	}
	pos := quantile * float64(len(samples)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return samples[lower]
	}
	frac := pos - float64(lower)
	return samples[lower] + int64(float64(samples[upper]-samples[lower])*frac)
}

type throughputWindow struct {
	horizon time.Duration
	samples []time.Time
}

type throughputSnapshot struct {
	Count         int
	WindowSeconds float64
	CurrentRPS    float64
}

func newThroughputWindow(horizon time.Duration) *throughputWindow {
	return &throughputWindow{horizon: horizon, samples: make([]time.Time, 0, 64)}
}

func (tw *throughputWindow) AddAndSnapshot(now time.Time) throughputSnapshot {
	if tw == nil {
		return throughputSnapshot{}
	}
	tw.samples = append(tw.samples, now)
	cutoff := now.Add(-tw.horizon)
	idx := 0
	for idx < len(tw.samples) && tw.samples[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		copy(tw.samples, tw.samples[idx:])
		tw.samples = tw.samples[:len(tw.samples)-idx]
	}

	span := now.Sub(tw.samples[0])
	if span <= 0 {
		span = time.Nanosecond
	}
	count := len(tw.samples)
	return throughputSnapshot{
		Count:         count,
		WindowSeconds: span.Seconds(),
		CurrentRPS:    float64(count) / span.Seconds(),
	}
}
