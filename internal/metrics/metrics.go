package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the learning engine
type Metrics struct {
	// Provider metrics
	ProviderRequests *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec

	// Governor metrics
	GovernorDecisions *prometheus.CounterVec
	EstimatedSpendUSD *prometheus.CounterVec

	// Learning metrics
	QueueOutcomes     *prometheus.CounterVec
	SweepDuration     prometheus.Histogram
	ArticlesGenerated *prometheus.CounterVec

	// Cache metrics
	EmbeddingCacheHits   prometheus.Counter
	EmbeddingCacheMisses prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal *prometheus.CounterVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// Get returns the process-wide collectors, registering them on first use
func Get() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			ProviderRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "helpdesk_provider_requests_total",
					Help: "Total number of model provider calls",
				},
				[]string{"kind", "success"},
			),
			ProviderLatency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "helpdesk_provider_request_duration_seconds",
					Help:    "Duration of model provider calls in seconds",
					Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to 51s
				},
				[]string{"kind"},
			),
			GovernorDecisions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "helpdesk_governor_decisions_total",
					Help: "Admission decisions of the rate and cost governor",
				},
				[]string{"kind", "result", "limit"},
			),
			EstimatedSpendUSD: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "helpdesk_governor_estimated_spend_usd_total",
					Help: "Estimated provider spend admitted by the governor",
				},
				[]string{"kind"},
			),
			QueueOutcomes: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "helpdesk_learning_items_total",
					Help: "Learning queue items by processing outcome",
				},
				[]string{"outcome"},
			),
			SweepDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "helpdesk_learning_sweep_duration_seconds",
					Help:    "Duration of learning sweeps in seconds",
					Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to 34min
				},
			),
			ArticlesGenerated: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "helpdesk_articles_generated_total",
					Help: "Generated articles by result",
				},
				[]string{"result"},
			),
			EmbeddingCacheHits: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "helpdesk_embedding_cache_hits_total",
					Help: "Embedding cache hits",
				},
			),
			EmbeddingCacheMisses: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "helpdesk_embedding_cache_misses_total",
					Help: "Embedding cache misses",
				},
			),
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "helpdesk_http_requests_total",
					Help: "Admin API requests by route and status",
				},
				[]string{"method", "route", "status"},
			),
		}
	})
	return sharedMetrics
}

// ObserveProviderCall records one provider call
func (m *Metrics) ObserveProviderCall(kind string, d time.Duration, err error) {
	success := "true"
	if err != nil {
		success = "false"
	}
	m.ProviderRequests.WithLabelValues(kind, success).Inc()
	m.ProviderLatency.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordAdmission records one governor decision. limit is empty for allowed calls.
func (m *Metrics) RecordAdmission(kind string, allowed bool, limit string, costUSD float64) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.GovernorDecisions.WithLabelValues(kind, result, limit).Inc()
	if allowed && costUSD > 0 {
		m.EstimatedSpendUSD.WithLabelValues(kind).Add(costUSD)
	}
}

// RecordQueueOutcome records the result of processing one learning item
func (m *Metrics) RecordQueueOutcome(outcome string) {
	m.QueueOutcomes.WithLabelValues(outcome).Inc()
}

// RecordArticle records a generated article as created or merged
func (m *Metrics) RecordArticle(result string) {
	m.ArticlesGenerated.WithLabelValues(result).Inc()
}

// RecordCache records an embedding cache lookup
func (m *Metrics) RecordCache(hit bool) {
	if hit {
		m.EmbeddingCacheHits.Inc()
		return
	}
	m.EmbeddingCacheMisses.Inc()
}

// RecordHTTPRequest records one admin API request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(method, route string, status int) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
