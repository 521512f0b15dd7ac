package core

import (
	"expvar"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives request outcomes from the router and queued event
// steps from the sequencer.
type MetricsRecorder interface {
	ObserveRequest(method, pattern string, status int, duration time.Duration)
	EventQueued(action, status string)
}

// NoopMetrics discards every observation.
type NoopMetrics struct{}

// ObserveRequest implements MetricsRecorder.
func (NoopMetrics) ObserveRequest(string, string, int, time.Duration) {}

// EventQueued implements MetricsRecorder.
func (NoopMetrics) EventQueued(string, string) {}

// PrometheusMetrics exports request and event counters through a Prometheus
// registerer.
type PrometheusMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	events   *prometheus.CounterVec
}

// NewPrometheusMetrics registers the cloudmock collectors on reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cloudmock",
			Name:      "requests_total",
			Help:      "Mock API requests by method, matched handler pattern and status.",
		}, []string{"method", "pattern", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cloudmock",
			Name:      "request_duration_seconds",
			Help:      "Mock API handler latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "pattern"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cloudmock",
			Name:      "events_queued_total",
			Help:      "Event records queued by action and status.",
		}, []string{"action", "status"}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.latency, m.events} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

// ObserveRequest implements MetricsRecorder.
func (m *PrometheusMetrics) ObserveRequest(method, pattern string, status int, duration time.Duration) {
	m.requests.WithLabelValues(method, pattern, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, pattern).Observe(duration.Seconds())
}

// EventQueued implements MetricsRecorder.
func (m *PrometheusMetrics) EventQueued(action, status string) {
	m.events.WithLabelValues(action, status).Inc()
}

var expvarSeq uint64

// ExpvarMetricsRecorder publishes aggregate timing and result counters via expvar.
// It fulfills MetricsRecorder for deployments that prefer process-local metrics
// without a Prometheus scrape.
type ExpvarMetricsRecorder struct {
	name      string
	mu        sync.Mutex
	durations map[string]float64
	results   map[string]map[string]int64
	events    map[string]int64
}

// ExpvarMetricsSnapshot captures a read-only view of the recorded metrics.
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
	Events      map[string]int64            `json:"events_total"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarMetricsRecorder constructs an expvar-backed recorder and publishes it
// under the supplied name. When name is empty, a unique identifier is generated.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("cloudmock_metrics_%d", id)
	}
	rec := &ExpvarMetricsRecorder{
		name:      name,
		durations: make(map[string]float64),
		results:   make(map[string]map[string]int64),
		events:    make(map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot returns an immutable copy of the aggregated metrics.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	durations := make(map[string]float64, len(r.durations))
	for op, total := range r.durations {
		durations[op] = total
	}
	results := make(map[string]map[string]int64, len(r.results))
	for op, statusCounts := range r.results {
		cpy := make(map[string]int64, len(statusCounts))
		for status, count := range statusCounts {
			cpy[status] = count
		}
		results[op] = cpy
	}
	events := make(map[string]int64, len(r.events))
	for k, v := range r.events {
		events[k] = v
	}
	return ExpvarMetricsSnapshot{
		DurationsMS: durations,
		Results:     results,
		Events:      events,
		RecordedAt:  time.Now().UTC(),
	}
}

// ObserveRequest implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) ObserveRequest(method, pattern string, status int, duration time.Duration) {
	op := method + " " + pattern
	ms := float64(duration) / float64(time.Millisecond)

	r.mu.Lock()
	r.durations[op] += ms
	if _, ok := r.results[op]; !ok {
		r.results[op] = make(map[string]int64, 2)
	}
	r.results[op][strconv.Itoa(status)]++
	r.mu.Unlock()
}

// EventQueued implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) EventQueued(action, status string) {
	r.mu.Lock()
	r.events[action+":"+status]++
	r.mu.Unlock()
}
