// Package metrics exposes Prometheus collectors for the minutes service.
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
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	scraperDocumentsTotal         *prometheus.CounterVec
	scraperMentionsTotal          prometheus.Counter
	scraperRunsTotal              *prometheus.CounterVec
	scraperFetchDurationSeconds   prometheus.Histogram
	scraperRateLimitDelaysSeconds *prometheus.HistogramVec
	scraperRobotsFallbacksTotal   prometheus.Counter
	authLoginsTotal               *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
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

		scraperDocumentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_documents_total",
				Help: "Total number of archive documents handled, labeled by outcome.",
			},
			[]string{"status"},
		)

		scraperMentionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_mentions_total",
				Help: "Total number of keyword mentions persisted.",
			},
		)

		scraperRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_runs_total",
				Help: "Total number of scrape runs finished, labeled by status.",
			},
			[]string{"status"},
		)

		scraperFetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scraper_fetch_duration_seconds",
				Help:    "Histogram of archive fetch latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		scraperRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		scraperRobotsFallbacksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_robots_fallbacks_total",
				Help: "Total number of robots.txt probes that fell back to allow-all after TLS timeouts.",
			},
		)

		authLoginsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_logins_total",
				Help: "Total number of login attempts, labeled by outcome.",
			},
			[]string{"outcome"},
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

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveDocument counts one document outcome (processed, skipped, failed).
func ObserveDocument(status string) {
	Init()
	scraperDocumentsTotal.WithLabelValues(status).Inc()
}

// ObserveMentions adds newly persisted mentions.
func ObserveMentions(n int) {
	Init()
	if n > 0 {
		scraperMentionsTotal.Add(float64(n))
	}
}

// ObserveRun increments the run counter for the given status.
func ObserveRun(status string) {
	Init()
	scraperRunsTotal.WithLabelValues(status).Inc()
}

// ObserveFetch records the duration of one archive fetch.
func ObserveFetch(duration time.Duration) {
	Init()
	scraperFetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	scraperRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveLogin counts a login attempt by outcome (success, invalid, error).
func ObserveLogin(outcome string) {
	Init()
	authLoginsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRobotsFallback records a robots.txt probe that was treated as allow-all.
func ObserveRobotsFallback() {
	Init()
	scraperRobotsFallbacksTotal.Inc()
}
