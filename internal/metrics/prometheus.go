package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	namespace = "reconnode"

	subsystemScan      = "scan"
	subsystemDiscovery = "discovery"
	subsystemPublish   = "publish"
	subsystemHistory   = "history"
	subsystemSystem    = "system"
)

// PrometheusMetrics holds the collectors for the scan engine.
type PrometheusMetrics struct {
	scansTotal    *prometheus.CounterVec
	scanDuration  prometheus.Histogram
	portsProbed   prometheus.Counter
	openPorts     prometheus.Counter
	hostsVisited  *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	paused        prometheus.Gauge
	drainTimeouts prometheus.Counter

	discoveryDuration prometheus.Histogram
	discoveryErrors   *prometheus.CounterVec
	hostsDiscovered   prometheus.Gauge

	publishFailures *prometheus.CounterVec
	historyWrites   *prometheus.CounterVec

	goroutines prometheus.Gauge
	uptime     prometheus.Gauge

	startTime time.Time
	registry  *prometheus.Registry
}

// NewPrometheusMetrics creates a collector set on a private registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),
	}

	pm.initScanMetrics()
	pm.initCollaboratorMetrics()
	pm.initSystemMetrics()
	pm.registerMetrics()

	pm.registry.MustRegister(collectors.NewGoCollector())
	pm.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

func (pm *PrometheusMetrics) initScanMetrics() {
	pm.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "total",
			Help:      "Scan cycles by outcome",
		},
		[]string{"status"},
	)

	pm.scanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "duration_seconds",
			Help:      "Duration of completed scan cycles in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	pm.portsProbed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "ports_probed_total",
			Help:      "Ports probed by workers",
		},
	)

	pm.openPorts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "open_ports_total",
			Help:      "Open ports found by workers",
		},
	)

	pm.hostsVisited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "hosts_visited_total",
			Help:      "Hosts visited by priority bucket and liveness outcome",
		},
		[]string{"bucket", "outcome"},
	)

	pm.queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "queue_depth",
			Help:      "Tasks queued but not yet picked up by a worker",
		},
	)

	pm.paused = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "paused",
			Help:      "1 while the current scan is paused",
		},
	)

	pm.drainTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "drain_timeouts_total",
			Help:      "Scan cycles finalized before the task queue drained",
		},
	)
}

func (pm *PrometheusMetrics) initCollaboratorMetrics() {
	pm.discoveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemDiscovery,
			Name:      "duration_seconds",
			Help:      "Duration of discovery sweeps in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	pm.discoveryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemDiscovery,
			Name:      "errors_total",
			Help:      "Discovery sweep failures by error code",
		},
		[]string{"error_type"},
	)

	pm.hostsDiscovered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemDiscovery,
			Name:      "hosts_active",
			Help:      "Hosts reported active by the last sweep",
		},
	)

	pm.publishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemPublish,
			Name:      "failures_total",
			Help:      "Events the publisher did not accept, by event kind",
		},
		[]string{"kind"},
	)

	pm.historyWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemHistory,
			Name:      "writes_total",
			Help:      "Scan history writes by status",
		},
		[]string{"status"},
	)
}

func (pm *PrometheusMetrics) initSystemMetrics() {
	pm.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	pm.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
	)
}

func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(
		pm.scansTotal,
		pm.scanDuration,
		pm.portsProbed,
		pm.openPorts,
		pm.hostsVisited,
		pm.queueDepth,
		pm.paused,
		pm.drainTimeouts,
		pm.discoveryDuration,
		pm.discoveryErrors,
		pm.hostsDiscovered,
		pm.publishFailures,
		pm.historyWrites,
		pm.goroutines,
		pm.uptime,
	)
}

// GetRegistry returns the Prometheus registry for the HTTP handler.
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// IncrementScansTotal counts a scan cycle with the given status.
func (pm *PrometheusMetrics) IncrementScansTotal(status string) {
	pm.scansTotal.WithLabelValues(status).Inc()
}

// RecordScanDuration records the duration of a completed scan cycle.
func (pm *PrometheusMetrics) RecordScanDuration(d time.Duration) {
	pm.scanDuration.Observe(d.Seconds())
}

// IncrementPortsProbed counts one probed port.
func (pm *PrometheusMetrics) IncrementPortsProbed() {
	pm.portsProbed.Inc()
}

// IncrementOpenPorts counts one open port.
func (pm *PrometheusMetrics) IncrementOpenPorts() {
	pm.openPorts.Inc()
}

// IncrementHostsVisited counts a host visit.
func (pm *PrometheusMetrics) IncrementHostsVisited(bucket, outcome string) {
	pm.hostsVisited.WithLabelValues(bucket, outcome).Inc()
}

// SetQueueDepth sets the queued task count.
func (pm *PrometheusMetrics) SetQueueDepth(n int) {
	pm.queueDepth.Set(float64(n))
}

// SetPaused mirrors the pause flag.
func (pm *PrometheusMetrics) SetPaused(paused bool) {
	if paused {
		pm.paused.Set(1)
		return
	}
	pm.paused.Set(0)
}

// IncrementDrainTimeouts counts a finalize that happened on the drain ceiling.
func (pm *PrometheusMetrics) IncrementDrainTimeouts() {
	pm.drainTimeouts.Inc()
}

// RecordDiscovery records a sweep duration and the number of active hosts.
func (pm *PrometheusMetrics) RecordDiscovery(d time.Duration, active int) {
	pm.discoveryDuration.Observe(d.Seconds())
	pm.hostsDiscovered.Set(float64(active))
}

// IncrementDiscoveryErrors counts a failed sweep.
func (pm *PrometheusMetrics) IncrementDiscoveryErrors(errorType string) {
	pm.discoveryErrors.WithLabelValues(errorType).Inc()
}

// IncrementPublishFailures counts an event the publisher rejected.
func (pm *PrometheusMetrics) IncrementPublishFailures(kind string) {
	pm.publishFailures.WithLabelValues(kind).Inc()
}

// IncrementHistoryWrites counts a scan history write.
func (pm *PrometheusMetrics) IncrementHistoryWrites(status string) {
	pm.historyWrites.WithLabelValues(status).Inc()
}

// UpdateSystemMetrics refreshes goroutine and uptime gauges.
func (pm *PrometheusMetrics) UpdateSystemMetrics() {
	pm.goroutines.Set(float64(runtime.NumGoroutine()))
	pm.uptime.Set(time.Since(pm.startTime).Seconds())
}

// GetUptime returns the time since the collector set was created.
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// StartPeriodicUpdates refreshes system gauges every interval until ctx ends.
func (pm *PrometheusMetrics) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.UpdateSystemMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.UpdateSystemMetrics()
		}
	}
}

var (
	globalMetrics *PrometheusMetrics
	metricsOnce   sync.Once
)

// GetGlobalMetrics returns the process-wide collector set.
func GetGlobalMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPrometheusMetrics()
	})
	return globalMetrics
}
