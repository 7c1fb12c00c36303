package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetricsClient implements MetricsClient using a dedicated
// Prometheus registry. Collectors are created lazily on first use, keyed by
// metric name, so callers never pre-register anything.
type PrometheusMetricsClient struct {
	namespace string
	registry  *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetricsClient creates a metrics client with its own registry
// (including the standard Go runtime and process collectors).
func NewPrometheusMetricsClient(namespace string) *PrometheusMetricsClient {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &PrometheusMetricsClient{
		namespace:  namespace,
		registry:   reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// IncrementCounter adds value to the named counter.
func (c *PrometheusMetricsClient) IncrementCounter(name string, value float64, labels map[string]string) {
	c.counter(name, labelKeys(labels)).With(labels).Add(value)
}

// RecordGauge sets the named gauge.
func (c *PrometheusMetricsClient) RecordGauge(name string, value float64, labels map[string]string) {
	c.gauge(name, labelKeys(labels)).With(labels).Set(value)
}

// RecordHistogram observes value on the named histogram.
func (c *PrometheusMetricsClient) RecordHistogram(name string, value float64, labels map[string]string) {
	c.histogram(name, labelKeys(labels)).With(labels).Observe(value)
}

// Handler returns the scrape endpoint handler for this client's registry.
func (c *PrometheusMetricsClient) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Close implements MetricsClient. Prometheus collectors need no teardown.
func (*PrometheusMetricsClient) Close() error { return nil }

func (c *PrometheusMetricsClient) counter(name string, keys []string) *prometheus.CounterVec {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.counters[name]; ok {
		return v
	}
	v := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.namespace,
		Name:      name,
	}, keys)
	c.registry.MustRegister(v)
	c.counters[name] = v
	return v
}

func (c *PrometheusMetricsClient) gauge(name string, keys []string) *prometheus.GaugeVec {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.gauges[name]; ok {
		return v
	}
	v := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Name:      name,
	}, keys)
	c.registry.MustRegister(v)
	c.gauges[name] = v
	return v
}

func (c *PrometheusMetricsClient) histogram(name string, keys []string) *prometheus.HistogramVec {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.histograms[name]; ok {
		return v
	}
	v := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.namespace,
		Name:      name,
		Buckets:   prometheus.DefBuckets,
	}, keys)
	c.registry.MustRegister(v)
	c.histograms[name] = v
	return v
}

func labelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	return keys
}
