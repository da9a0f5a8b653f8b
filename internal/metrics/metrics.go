// Package metrics exposes Prometheus collectors for the pagewatch service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	checksTotal                *prometheus.CounterVec
	checkDurationSeconds       prometheus.Histogram
	extractionTierTotal        *prometheus.CounterVec
	acquireTotal               *prometheus.CounterVec
	notificationsTotal         *prometheus.CounterVec
	judgeRequestsTotal         *prometheus.CounterVec
	judgeDurationSeconds       *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	scheduledJobs              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		checksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_checks_total",
				Help: "Total number of monitor checks, labeled by outcome status.",
			},
			[]string{"status"},
		)

		checkDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pagewatch_check_duration_seconds",
				Help:    "Histogram of end-to-end check latency.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		)

		extractionTierTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_extraction_tier_total",
				Help: "Extraction results, labeled by the tier that produced them.",
			},
			[]string{"tier"},
		)

		acquireTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_acquire_total",
				Help: "Content acquisition attempts, labeled by tier and result.",
			},
			[]string{"tier", "result"},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_notifications_total",
				Help: "Notifications published, labeled by result.",
			},
			[]string{"result"},
		)

		judgeRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_judge_requests_total",
				Help: "Judge calls, labeled by purpose and result.",
			},
			[]string{"purpose", "result"},
		)

		judgeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagewatch_judge_duration_seconds",
				Help:    "Histogram of judge call latency, labeled by purpose.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"purpose"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagewatch_active_workers",
				Help: "Number of workers currently running a check.",
			},
		)

		scheduledJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagewatch_scheduled_jobs",
				Help: "Number of recurring jobs registered with the scheduler.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagewatch_rate_limit_delays_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCheck records the outcome and latency of one check.
func ObserveCheck(status string, duration time.Duration) {
	Init()
	checksTotal.WithLabelValues(status).Inc()
	checkDurationSeconds.Observe(duration.Seconds())
}

// ObserveExtraction counts the tier that produced a check's value.
func ObserveExtraction(tier string) {
	Init()
	extractionTierTotal.WithLabelValues(tier).Inc()
}

// ObserveAcquire counts one acquisition attempt.
func ObserveAcquire(tier, result string) {
	Init()
	acquireTotal.WithLabelValues(tier, result).Inc()
}

// ObserveNotification counts one publish attempt.
func ObserveNotification(result string) {
	Init()
	notificationsTotal.WithLabelValues(result).Inc()
}

// ObserveJudge records one judge call.
func ObserveJudge(purpose, result string, duration time.Duration) {
	Init()
	judgeRequestsTotal.WithLabelValues(purpose, result).Inc()
	judgeDurationSeconds.WithLabelValues(purpose).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
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

// SetScheduledJobs reports the number of registered recurring jobs.
func SetScheduledJobs(n int) {
	Init()
	scheduledJobs.Set(float64(n))
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
