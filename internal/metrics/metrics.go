// Package metrics exposes the Prometheus surface named by spec §6: gauges
// for index size, job state, and component health, and histograms for
// search and embedding latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds every metric this process publishes at /metrics.
type Collector struct {
	IndexedDocuments *prometheus.GaugeVec
	JobRunning       prometheus.Gauge
	JobProgress      prometheus.Gauge
	JobETASeconds    prometheus.Gauge
	ComponentHealth  *prometheus.GaugeVec

	SearchLatency     *prometheus.HistogramVec
	SearchResultCount *prometheus.HistogramVec
	RAGLatency        *prometheus.HistogramVec
	EmbeddingLatency  prometheus.Histogram
}

// New creates and registers every metric under namespace on reg. Pass
// prometheus.DefaultRegisterer in production, a fresh prometheus.NewRegistry()
// in tests so repeated construction never collides with "already
// registered" panics.
func New(namespace string, reg prometheus.Registerer) *Collector {
	if namespace == "" {
		namespace = "vaultmind"
	}

	counterVec := func(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
		return promauto.With(reg).NewGaugeVec(opts, labels)
	}
	gauge := func(opts prometheus.GaugeOpts) prometheus.Gauge {
		return promauto.With(reg).NewGauge(opts)
	}
	histogramVec := func(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
		return promauto.With(reg).NewHistogramVec(opts, labels)
	}
	histogram := func(opts prometheus.HistogramOpts) prometheus.Histogram {
		return promauto.With(reg).NewHistogram(opts)
	}

	return &Collector{
		IndexedDocuments: counterVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "indexed_documents",
				Help:      "Number of documents currently indexed, by vault and index type",
			},
			[]string{"vault", "index_type"},
		),
		JobRunning: gauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "job_running",
				Help:      "1 if an indexing job is currently running, else 0",
			},
		),
		JobProgress: gauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "job_progress_percent",
				Help:      "Percent complete of the currently running indexing job",
			},
		),
		JobETASeconds: gauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "job_eta_seconds",
				Help:      "Estimated seconds remaining for the currently running indexing job",
			},
		),
		ComponentHealth: counterVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "component_health",
				Help:      "1 if a component is healthy, else 0",
			},
			[]string{"component"},
		),
		SearchLatency: histogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_latency_seconds",
				Help:      "Search request latency in seconds, by mode and vault",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"mode", "vault"},
		),
		SearchResultCount: histogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_result_count",
				Help:      "Number of results returned per search, by mode",
				Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
			},
			[]string{"mode"},
		),
		RAGLatency: histogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rag_latency_seconds",
				Help:      "RAG answer synthesis latency in seconds, by vault",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"vault"},
		),
		EmbeddingLatency: histogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "embedding_latency_seconds",
				Help:      "Embedding host request latency in seconds",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
	}
}

// RecordSearch records one completed search request.
func (c *Collector) RecordSearch(mode, vault string, duration time.Duration, resultCount int) {
	c.SearchLatency.WithLabelValues(mode, vault).Observe(duration.Seconds())
	c.SearchResultCount.WithLabelValues(mode).Observe(float64(resultCount))
}

// RecordRAG records one completed RAG answer synthesis.
func (c *Collector) RecordRAG(vault string, duration time.Duration) {
	c.RAGLatency.WithLabelValues(vault).Observe(duration.Seconds())
}

// RecordEmbedding records one embedding host round trip.
func (c *Collector) RecordEmbedding(duration time.Duration) {
	c.EmbeddingLatency.Observe(duration.Seconds())
}

// SetIndexedDocuments sets the current document count for a (vault,
// index_type) pair. The indexing orchestrator does not call it.
func (c *Collector) SetIndexedDocuments(vault, indexType string, count int) {
	c.IndexedDocuments.WithLabelValues(vault, indexType).Set(float64(count))
}

// SetJobState publishes the currently-running job's progress; call with
// running=false and zero progress/eta when no job is in flight.
func (c *Collector) SetJobState(running bool, progressPercent, etaSeconds float64) {
	if running {
		c.JobRunning.Set(1)
	} else {
		c.JobRunning.Set(0)
	}
	c.JobProgress.Set(progressPercent)
	c.JobETASeconds.Set(etaSeconds)
}

// SetComponentHealth reports whether a named component (embedder, vector
// store, keyword store, LLM gateway) is currently healthy.
func (c *Collector) SetComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.ComponentHealth.WithLabelValues(component).Set(value)
}
