package metrics

//go:generate mockgen -destination=mocks/mock_registry.go -package=mocks . MetricsRegistry

// MetricsRegistry is the write side of the in-process registry.
type MetricsRegistry interface {
	// Counter increments a counter metric with the given name and labels.
	Counter(name string, labels Labels)

	// Gauge sets a gauge metric to the specified value.
	Gauge(name string, value float64, labels Labels)

	// Histogram records a value in a histogram metric.
	Histogram(name string, value float64, labels Labels)
}

var _ MetricsRegistry = (*Registry)(nil)
