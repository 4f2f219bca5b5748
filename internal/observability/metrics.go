// Package observability provides the metrics sink used by the ingestion
// pipeline, backed by Prometheus.
package observability

import (
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Labels are free-form metric labels. Every pipeline metric carries at
// minimum a "chain" label.
type Labels map[string]string

// Sink receives counter increments and value observations keyed by metric
// name. Emission is best-effort; implementations never return errors.
type Sink interface {
	Inc(name string, labels Labels)
	Observe(name string, value float64, labels Labels)
}

// PromSink implements Sink on Prometheus. Collectors are registered lazily
// on first use of a metric name; the label-key set of that first call is
// fixed for the lifetime of the metric.
type PromSink struct {
	namespace string
	registry  prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPromSink creates a sink registering collectors with reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func NewPromSink(namespace string, reg prometheus.Registerer) *PromSink {
	if namespace == "" {
		namespace = "whale_ingest"
	}
	return &PromSink{
		namespace:  namespace,
		registry:   reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Compile-time interface check.
var _ Sink = (*PromSink)(nil)

// Inc increments the named counter.
func (p *PromSink) Inc(name string, labels Labels) {
	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      name + "_total",
			Help:      "Counter " + name,
		}, labelKeys(labels))
		p.registry.MustRegister(vec)
		p.counters[name] = vec
	}
	p.mu.Unlock()

	vec.With(prometheus.Labels(labels)).Inc()
}

// Observe records a value into the named histogram.
func (p *PromSink) Observe(name string, value float64, labels Labels) {
	p.mu.Lock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      name,
			Help:      "Histogram " + name,
			Buckets:   prometheus.ExponentialBuckets(1, 4, 12),
		}, labelKeys(labels))
		p.registry.MustRegister(vec)
		p.histograms[name] = vec
	}
	p.mu.Unlock()

	vec.With(prometheus.Labels(labels)).Observe(value)
}

// labelKeys returns the sorted label names.
func labelKeys(labels Labels) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
