// Package observability exports import-engine metrics to Prometheus.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-netimport/internal/ports"
)

const namespace = "netimport"

// PrometheusMetrics implements ports.MetricsCollector using Prometheus.
// Well-known metric names from the importer and graph builder get their
// own series; anything else lands in the generic vectors keyed by metric
// name.
type PrometheusMetrics struct {
	importsTotal     *prometheus.CounterVec
	importDuration   *prometheus.HistogramVec
	layersBuilt      *prometheus.CounterVec
	layerDuration    *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	graphNodes       prometheus.Histogram
	operationCounter *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	gauges           *prometheus.GaugeVec
	histograms       *prometheus.HistogramVec
}

// NewPrometheusMetrics registers the import metrics with reg. A nil reg
// selects the default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		importsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "imports_total",
				Help:      "Total number of graph imports by outcome.",
			},
			[]string{"status"},
		),
		importDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "import_duration_seconds",
				Help:      "Time taken to import one graph, including cache lookups.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		layersBuilt: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "layers_built_total",
				Help:      "Total number of layers built by layer type and outcome.",
			},
			[]string{"layer_type", "status"},
		),
		layerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "layer_build_duration_seconds",
				Help:      "Time taken to adapt and shape-infer one layer.",
				Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
			},
			[]string{"layer_type"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Model cache lookups by result.",
			},
			[]string{"result"},
		),
		graphNodes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "graph_nodes",
				Help:      "Number of nodes in successfully imported graphs.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Counters without a dedicated series.",
			},
			[]string{"metric", "status"},
		),
		operationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Latencies without a dedicated series.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		gauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "state",
				Help:      "Current values of engine gauges.",
			},
			[]string{"metric"},
		),
		histograms: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "observations",
				Help:      "Distributions without a dedicated series.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	switch operation {
	case "import":
		pm.importDuration.WithLabelValues(label(labels, "status")).Observe(duration.Seconds())
	case "build_node":
		pm.layerDuration.WithLabelValues(label(labels, "layer_type")).Observe(duration.Seconds())
	default:
		pm.operationLatency.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// RecordCounter implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case "imports_total":
		pm.importsTotal.WithLabelValues(label(labels, "status")).Add(value)
	case "layers_built_total":
		pm.layersBuilt.WithLabelValues(label(labels, "layer_type"), label(labels, "status")).Add(value)
	case "cache_hits_total":
		pm.cacheLookups.WithLabelValues("hit").Add(value)
	case "cache_misses_total":
		pm.cacheLookups.WithLabelValues("miss").Add(value)
	case "cache_shared_total":
		pm.cacheLookups.WithLabelValues("shared").Add(value)
	default:
		status, ok := labels["status"]
		if !ok || status == "" {
			status = "ok"
		}
		pm.operationCounter.WithLabelValues(metric, status).Add(value)
	}
}

// RecordGauge implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, _ map[string]string) {
	pm.gauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, _ map[string]string) {
	if metric == "graph_nodes" {
		pm.graphNodes.Observe(value)
		return
	}
	pm.histograms.WithLabelValues(metric).Observe(value)
}

// label returns labels[key], or "unknown" when it is missing or empty.
func label(labels map[string]string, key string) string {
	if v, ok := labels[key]; ok && v != "" {
		return v
	}
	return "unknown"
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
