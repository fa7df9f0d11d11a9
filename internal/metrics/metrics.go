// Package metrics exposes Prometheus collectors for the ingestion engine.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ticksTotal         *prometheus.CounterVec
	candidatesTotal    *prometheus.CounterVec
	dedupeHitsTotal    *prometheus.CounterVec
	embedsTotal        *prometheus.CounterVec
	fetchRetriesTotal  *prometheus.CounterVec
	backoffWaitSeconds *prometheus.HistogramVec
	failedPostsTotal   *prometheus.CounterVec
	activeSourceTasks  prometheus.Gauge
	activeArticleTasks prometheus.Gauge
	enrichmentDuration *prometheus.HistogramVec
	rateLimitDelay     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		ticksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestor_ticks_total",
				Help: "Total number of source ticks scheduled, labeled by source.",
			},
			[]string{"source"},
		)

		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestor_candidates_total",
				Help: "Total number of candidate posts discovered, labeled by source.",
			},
			[]string{"source"},
		)

		dedupeHitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestor_dedupe_hits_total",
				Help: "Total number of candidates skipped by the fingerprint dedupe layer, labeled by source.",
			},
			[]string{"source"},
		)

		embedsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestor_embeds_total",
				Help: "Total number of embedding calls, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestor_fetch_retries_total",
				Help: "Total number of resilient-fetch retry attempts, labeled by source and reason.",
			},
			[]string{"source", "reason"},
		)

		backoffWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingestor_backoff_wait_seconds",
				Help:    "Histogram of backoff sleep durations, labeled by reason.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"reason"},
		)

		failedPostsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestor_failed_posts_total",
				Help: "Total number of posts that failed enrichment, labeled by source and error kind.",
			},
			[]string{"source", "kind"},
		)

		activeSourceTasks = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ingestor_active_source_tasks",
			Help: "Number of SourceTasks currently in flight.",
		})

		activeArticleTasks = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ingestor_active_article_tasks",
			Help: "Number of ArticleTasks currently in flight.",
		})

		enrichmentDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingestor_enrichment_duration_seconds",
				Help:    "Histogram of per-post enrichment durations, labeled by source and outcome.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"source", "outcome"},
		)

		rateLimitDelay = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingestor_rate_limit_delay_seconds",
				Help:    "Histogram of per-host token-bucket wait durations before a fetch attempt.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTick records one scheduled SourceTask for source.
func ObserveTick(source string) {
	ticksTotal.WithLabelValues(source).Inc()
}

// ObserveCandidates records n candidates discovered for source.
func ObserveCandidates(source string, n int) {
	if n <= 0 {
		return
	}
	candidatesTotal.WithLabelValues(source).Add(float64(n))
}

// ObserveDedupeHit records one candidate skipped as already-fingerprinted.
func ObserveDedupeHit(source string) {
	dedupeHitsTotal.WithLabelValues(source).Inc()
}

// ObserveEmbed records one embedding call outcome ("ok" or "error").
func ObserveEmbed(source, outcome string) {
	embedsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveFetchRetry records one resilient-fetch retry attempt, labeled by
// the status-code-derived reason ("status_429", "status_5xx").
func ObserveFetchRetry(source, reason string) {
	fetchRetriesTotal.WithLabelValues(source, reason).Inc()
}

// ObserveBackoffWait records a backoff sleep duration.
func ObserveBackoffWait(reason string, d time.Duration) {
	backoffWaitSeconds.WithLabelValues(reason).Observe(d.Seconds())
}

// ObserveFailedPost records one post that failed enrichment.
func ObserveFailedPost(source, kind string) {
	failedPostsTotal.WithLabelValues(source, kind).Inc()
}

// SetActiveSourceTasks sets the current SourceTask gauge.
func SetActiveSourceTasks(n int) {
	activeSourceTasks.Set(float64(n))
}

// SetActiveArticleTasks sets the current ArticleTask gauge.
func SetActiveArticleTasks(n int) {
	activeArticleTasks.Set(float64(n))
}

// ObserveEnrichmentDuration records the wall time of one enrichment run.
func ObserveEnrichmentDuration(source, outcome string, d time.Duration) {
	enrichmentDuration.WithLabelValues(source, outcome).Observe(d.Seconds())
}

// ObserveRateLimitDelay records how long a fetch waited on the per-host
// token bucket before being allowed to proceed.
func ObserveRateLimitDelay(host string, d time.Duration) {
	rateLimitDelay.WithLabelValues(host).Observe(d.Seconds())
}
