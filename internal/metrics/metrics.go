// Package metrics exposes Prometheus collectors for migration runs.
package metrics

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registry = prometheus.NewRegistry()

	migrationsTotal        *prometheus.CounterVec
	resourcesTotal         *prometheus.CounterVec
	fetchTotal             *prometheus.CounterVec
	fetchDurationSeconds   *prometheus.HistogramVec
	uploadBytesTotal       prometheus.Counter
	rateLimitDelaysSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		factory := promauto.With(registry)

		migrationsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "talkmigrate_migrations_total",
				Help: "Total number of talk migrations, labeled by result.",
			},
			[]string{"result"},
		)

		resourcesTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "talkmigrate_resources_total",
				Help: "Total number of resources written to accepted records, labeled by type.",
			},
			[]string{"type"},
		)

		fetchTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "talkmigrate_fetch_total",
				Help: "Total number of page fetches, labeled by site and status code.",
			},
			[]string{"site", "code"},
		)

		fetchDurationSeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "talkmigrate_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"site"},
		)

		uploadBytesTotal = factory.NewCounter(
			prometheus.CounterOpts{
				Name: "talkmigrate_upload_bytes_total",
				Help: "Total number of bytes uploaded to the storage provider.",
			},
		)

		rateLimitDelaysSeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "talkmigrate_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
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

// Registry returns the registry holding every collector in this package.
func Registry() *prometheus.Registry {
	return registry
}

// WriteTextfile dumps the current metric values in the node_exporter textfile format.
func WriteTextfile(path string) error {
	Init()
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// ObserveMigration increments the migration counter for the given result.
func ObserveMigration(result string) {
	Init()
	migrationsTotal.WithLabelValues(result).Inc()
}

// ObserveResource increments the resource counter for the given type.
func ObserveResource(kind string) {
	Init()
	resourcesTotal.WithLabelValues(kind).Inc()
}

// ObserveFetch records a page fetch outcome. A zero code means the request never got a response.
func ObserveFetch(rawURL string, code int, duration time.Duration) {
	Init()
	site := SanitizeSite(rawURL)
	fetchTotal.WithLabelValues(site, strconv.Itoa(code)).Inc()
	fetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveUpload adds to the uploaded byte counter.
func ObserveUpload(bytes int64) {
	Init()
	if bytes > 0 {
		uploadBytesTotal.Add(float64(bytes))
	}
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
