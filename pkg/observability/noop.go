package observability

import "net/http"

type noopLogger struct{}

// NewNoopLogger returns a logger that discards everything. Intended for
// tests and for wiring components before the real logger exists.
func NewNoopLogger() Logger { return noopLogger{} }

func (noopLogger) Debug(string, map[string]interface{}) {}
func (noopLogger) Info(string, map[string]interface{})  {}
func (noopLogger) Warn(string, map[string]interface{})  {}
func (noopLogger) Error(string, map[string]interface{}) {}
func (n noopLogger) WithPrefix(string) Logger           { return n }

type noopMetrics struct{}

// NewNoopMetricsClient returns a metrics client that records nothing.
func NewNoopMetricsClient() MetricsClient { return noopMetrics{} }

func (noopMetrics) IncrementCounter(string, float64, map[string]string) {}
func (noopMetrics) RecordGauge(string, float64, map[string]string)      {}
func (noopMetrics) RecordHistogram(string, float64, map[string]string)  {}
func (noopMetrics) Handler() http.Handler                               { return http.NotFoundHandler() }
func (noopMetrics) Close() error                                        { return nil }
