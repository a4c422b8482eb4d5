// Package metrics exposes Prometheus collectors for the enrichment pipeline.
package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
)

var (
	subjectsTotal         *prometheus.CounterVec
	fetchAttemptsTotal    *prometheus.CounterVec
	candidatesTotal       *prometheus.CounterVec
	mediaFallbacksTotal   *prometheus.CounterVec
	rateLimitDelaySeconds *prometheus.HistogramVec
	runDurationSeconds    prometheus.Gauge
	activeWorkers         prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		subjectsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enricher_subjects_total",
				Help: "Subjects processed, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enricher_fetch_attempts_total",
				Help: "Outbound fetch attempts, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enricher_candidates_total",
				Help: "Scored candidates, labeled by content type and verdict.",
			},
			[]string{"content_type", "verdict"},
		)

		mediaFallbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enricher_media_fallbacks_total",
				Help: "Images that kept their original URL because rehosting failed.",
			},
			[]string{"content_type"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "enricher_rate_limit_delay_seconds",
				Help:    "Histogram of politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		runDurationSeconds = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "enricher_run_duration_seconds",
				Help: "Wall time of the last batch run.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "enricher_active_workers",
				Help: "Number of workers currently processing a subject.",
			},
		)
	})
}

// ObserveSubject increments the subject outcome counter.
func ObserveSubject(kind, outcome string) {
	Init()
	subjectsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveFetch records one fetch attempt for the URL's site.
func ObserveFetch(rawURL, result string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(enrich.HostOf(rawURL), result).Inc()
}

// ObserveCandidate records a scoring verdict ("valid", "below_threshold", "rejected").
func ObserveCandidate(contentType, verdict string) {
	Init()
	candidatesTotal.WithLabelValues(contentType, verdict).Inc()
}

// ObserveMediaFallback counts an image that could not be rehosted.
func ObserveMediaFallback(contentType string) {
	Init()
	mediaFallbacksTotal.WithLabelValues(contentType).Inc()
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveRun records the wall time of a finished run.
func ObserveRun(duration time.Duration) {
	Init()
	runDurationSeconds.Set(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// Push sends the default registry to a Prometheus Pushgateway. Batch runs are
// too short-lived to be scraped, so this is how their metrics leave the process.
func Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	if job == "" {
		job = "catalog_enricher"
	}
	Init()
	pusher := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer)
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
