// Package metrics exposes Prometheus instrumentation for classifications.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors recorded by the classification flow.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	classifications *prometheus.CounterVec
	detections      prometheus.Histogram
	latency         prometheus.Histogram
	cacheHits       prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wastesort",
			Name:      "classifications_total",
			Help:      "Classifications by outcome and resulting category.",
		}, []string{"outcome", "category"}),
		detections: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wastesort",
			Name:      "detections_per_image",
			Help:      "Detections that survived the confidence threshold.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wastesort",
			Name:      "classification_duration_seconds",
			Help:      "End-to-end classification latency, decoding included.",
			Buckets:   prometheus.DefBuckets,
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wastesort",
			Name:      "classification_cache_hits_total",
			Help:      "Classifications answered from the fingerprint cache.",
		}),
	}
	for _, c := range []prometheus.Collector{m.classifications, m.detections, m.latency, m.cacheHits} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveClassification records one finished classification.
func (m *Metrics) ObserveClassification(outcome, categoryID string, detections int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(outcome, categoryID).Inc()
	m.detections.Observe(float64(detections))
	m.latency.Observe(elapsed.Seconds())
}

// CacheHit records a classification served from cache.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}
