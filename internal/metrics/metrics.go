// Package metrics provides in-process metrics for reconnode together with a
// Prometheus collector set for the scan engine. The in-process Registry backs
// the worker pool and HTTP middleware; PrometheusMetrics is scraped at /metrics.
package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType represents the type of metric.
type MetricType string

const (
	TypeCounter   MetricType = "counter"
	TypeGauge     MetricType = "gauge"
	TypeHistogram MetricType = "histogram"
)

// Labels represents key-value pairs for metric labels.
type Labels map[string]string

// Metric represents a single metric with its metadata. For histograms Value
// holds the last observation, Count and Sum the running totals.
type Metric struct {
	Name      string
	Type      MetricType
	Value     float64
	Count     uint64
	Sum       float64
	Labels    Labels
	Timestamp time.Time
}

// Registry holds all metrics and provides collection functionality.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]*Metric
	enabled bool
}

// NewRegistry creates a new metrics registry.
func NewRegistry() *Registry {
	return &Registry{
		metrics: make(map[string]*Metric),
		enabled: true,
	}
}

// SetEnabled enables or disables metrics collection.
func (r *Registry) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// IsEnabled returns whether metrics collection is enabled.
func (r *Registry) IsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// Counter increments a counter metric.
func (r *Registry) Counter(name string, labels Labels) {
	r.Add(name, 1, labels)
}

// Add increases a counter metric by delta.
func (r *Registry) Add(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}

	m := r.lookup(name, TypeCounter, labels)
	m.Value += delta
	m.Timestamp = time.Now()
}

// Gauge sets a gauge metric value.
func (r *Registry) Gauge(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}

	m := r.lookup(name, TypeGauge, labels)
	m.Value = value
	m.Timestamp = time.Now()
}

// Histogram records a value in a histogram metric.
func (r *Registry) Histogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}

	m := r.lookup(name, TypeHistogram, labels)
	m.Value = value
	m.Count++
	m.Sum += value
	m.Timestamp = time.Now()
}

// lookup returns the metric for name and labels, creating it if needed.
// Callers hold r.mu.
func (r *Registry) lookup(name string, typ MetricType, labels Labels) *Metric {
	key := makeKey(name, labels)
	if m, ok := r.metrics[key]; ok {
		return m
	}
	m := &Metric{
		Name:   name,
		Type:   typ,
		Labels: copyLabels(labels),
	}
	r.metrics[key] = m
	return m
}

// GetMetrics returns a snapshot of all current metrics.
func (r *Registry) GetMetrics() map[string]*Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*Metric, len(r.metrics))
	for key, m := range r.metrics {
		cp := *m
		cp.Labels = copyLabels(m.Labels)
		result[key] = &cp
	}
	return result
}

// Reset clears all metrics.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = make(map[string]*Metric)
}

// makeKey builds a stable key from the name and the sorted label pairs.
func makeKey(name string, labels Labels) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString(":")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(labels[k])
	}
	return b.String()
}

func copyLabels(labels Labels) Labels {
	if labels == nil {
		return nil
	}
	result := make(Labels, len(labels))
	for k, v := range labels {
		result[k] = v
	}
	return result
}

var (
	defaultMu       sync.RWMutex
	defaultRegistry = NewRegistry()
)

// SetDefault sets the default metrics registry.
func SetDefault(registry *Registry) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRegistry = registry
}

// Default returns the default metrics registry.
func Default() *Registry {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultRegistry
}

// Counter increments a counter metric on the default registry.
func Counter(name string, labels Labels) {
	Default().Counter(name, labels)
}

// Gauge sets a gauge metric on the default registry.
func Gauge(name string, value float64, labels Labels) {
	Default().Gauge(name, value, labels)
}

// Histogram records a histogram value on the default registry.
func Histogram(name string, value float64, labels Labels) {
	Default().Histogram(name, value, labels)
}

// Timer measures elapsed time into a histogram.
type Timer struct {
	start    time.Time
	name     string
	labels   Labels
	registry MetricsRegistry
}

// NewTimer creates a timer that records into the default registry.
func NewTimer(name string, labels Labels) *Timer {
	return NewTimerFor(Default(), name, labels)
}

// NewTimerFor creates a timer that records into registry.
func NewTimerFor(registry MetricsRegistry, name string, labels Labels) *Timer {
	return &Timer{
		start:    time.Now(),
		name:     name,
		labels:   labels,
		registry: registry,
	}
}

// Stop records the elapsed time in seconds and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.registry.Histogram(t.name, elapsed.Seconds(), t.labels)
	return elapsed
}

// Metric names recorded into the in-process registry.
const (
	MetricJobsSubmitted = "jobs_submitted_total"
	MetricJobsCompleted = "jobs_completed_total"
	MetricJobsFailed    = "jobs_failed_total"
	MetricJobDuration   = "job_duration_seconds"
	MetricQueueDepth    = "job_queue_depth"

	MetricHTTPRequests     = "http_requests_total"
	MetricHTTPErrors       = "http_errors_total"
	MetricHTTPDuration     = "http_request_duration_seconds"
	MetricHTTPResponseSize = "http_response_size_bytes"
)

// Common label keys.
const (
	LabelJobType   = "job_type"
	LabelStatus    = "status"
	LabelMethod    = "method"
	LabelPath      = "path"
	LabelComponent = "component"
)
