package observability

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics aggregates routing and collaborator counters for the metrics
// endpoint.
type Metrics struct {
	mu sync.Mutex

	requestTotal  atomic.Int64
	requestFailed atomic.Int64

	// keyed by "intent/action"
	decisions map[string]*counter
	// keyed by collaborator name
	upstream map[string]*counter

	durations    []time.Duration
	maxDurations int
}

type counter struct {
	count         atomic.Int64
	errors        atomic.Int64
	totalDuration atomic.Int64 // milliseconds
}

// NewMetrics creates a new metrics collector that keeps the last
// maxDurations request latencies.
func NewMetrics(maxDurations int) *Metrics {
	if maxDurations <= 0 {
		maxDurations = 1000
	}
	return &Metrics{
		decisions:    make(map[string]*counter),
		upstream:     make(map[string]*counter),
		durations:    make([]time.Duration, 0, maxDurations),
		maxDurations: maxDurations,
	}
}

var globalMetrics = NewMetrics(1000)

// GlobalMetrics returns the global metrics instance.
func GlobalMetrics() *Metrics {
	return globalMetrics
}

// RecordRequest records one handled request and its latency.
func (m *Metrics) RecordRequest(duration time.Duration, failed bool) {
	m.requestTotal.Add(1)
	if failed {
		m.requestFailed.Add(1)
	}

	m.mu.Lock()
	if len(m.durations) >= m.maxDurations {
		m.durations = m.durations[1:]
	}
	m.durations = append(m.durations, duration)
	m.mu.Unlock()
}

// RecordDecision counts one routing decision.
func (m *Metrics) RecordDecision(intent, action string) {
	m.get(m.decisions, intent+"/"+action).count.Add(1)
}

// RecordUpstream records one collaborator call.
func (m *Metrics) RecordUpstream(name string, duration time.Duration, err error) {
	c := m.get(m.upstream, name)
	c.count.Add(1)
	c.totalDuration.Add(duration.Milliseconds())
	if err != nil {
		c.errors.Add(1)
	}
}

func (m *Metrics) get(table map[string]*counter, key string) *counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := table[key]
	if !ok {
		c = &counter{}
		table[key] = c
	}
	return c
}

// Reset resets all metrics (useful for testing).
func (m *Metrics) Reset() {
	m.requestTotal.Store(0)
	m.requestFailed.Store(0)

	m.mu.Lock()
	m.decisions = make(map[string]*counter)
	m.upstream = make(map[string]*counter)
	m.durations = make([]time.Duration, 0, m.maxDurations)
	m.mu.Unlock()
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &MetricsSnapshot{
		RequestTotal:  m.requestTotal.Load(),
		RequestFailed: m.requestFailed.Load(),
		Decisions:     make(map[string]int64, len(m.decisions)),
		Upstream:      make(map[string]*UpstreamSnapshot, len(m.upstream)),
	}
	for key, c := range m.decisions {
		s.Decisions[key] = c.count.Load()
	}
	for name, c := range m.upstream {
		u := &UpstreamSnapshot{
			Calls:  c.count.Load(),
			Errors: c.errors.Load(),
		}
		if u.Calls > 0 {
			u.AverageDurationMs = c.totalDuration.Load() / u.Calls
		}
		s.Upstream[name] = u
	}

	if len(m.durations) > 0 {
		sorted := append([]time.Duration(nil), m.durations...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		s.LatencyP50Ms = percentile(sorted, 0.50).Milliseconds()
		s.LatencyP95Ms = percentile(sorted, 0.95).Milliseconds()
	}
	return s
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	RequestTotal  int64                        `json:"request_total"`
	RequestFailed int64                        `json:"request_failed"`
	Decisions     map[string]int64             `json:"decisions"`
	Upstream      map[string]*UpstreamSnapshot `json:"upstream"`
	LatencyP50Ms  int64                        `json:"latency_p50_ms"`
	LatencyP95Ms  int64                        `json:"latency_p95_ms"`
}

// UpstreamSnapshot represents the counters of one collaborator.
type UpstreamSnapshot struct {
	Calls             int64 `json:"calls"`
	Errors            int64 `json:"errors"`
	AverageDurationMs int64 `json:"average_duration_ms"`
}

// SuccessRate returns the success rate as a percentage (0-100).
func (s *MetricsSnapshot) SuccessRate() float64 {
	if s.RequestTotal == 0 {
		return 100.0
	}
	return float64(s.RequestTotal-s.RequestFailed) / float64(s.RequestTotal) * 100.0
}
