// Package observability provides the logging and metrics facilities shared
// by the integration service: a structured Logger backed by zap and a
// MetricsClient backed by Prometheus. No-op implementations are available
// for tests and for components that opt out of metrics.
package observability

import "net/http"

// Logger is the structured logging interface used across the service.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})

	// WithPrefix returns a logger scoped to a component name.
	WithPrefix(prefix string) Logger
}

// MetricsClient records service metrics. Implementations must be safe for
// concurrent use.
type MetricsClient interface {
	IncrementCounter(name string, value float64, labels map[string]string)
	RecordGauge(name string, value float64, labels map[string]string)
	RecordHistogram(name string, value float64, labels map[string]string)

	// Handler exposes the metrics endpoint for the HTTP server.
	Handler() http.Handler

	Close() error
}
