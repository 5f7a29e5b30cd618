// Package metrics exposes Prometheus collectors for the crawl and merge
// pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlRunsTotal       *prometheus.CounterVec
	crawlDurationSeconds *prometheus.HistogramVec
	mergeRunsTotal       *prometheus.CounterVec
	mergeDurationSeconds prometheus.Histogram
	mergedCountries      prometheus.Gauge
	httpRequestsTotal    *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worldstat_crawl_runs_total",
				Help: "Total number of crawl runs, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		crawlDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "worldstat_crawl_duration_seconds",
				Help:    "Histogram of crawl run durations, labeled by source.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"source"},
		)

		mergeRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worldstat_merge_runs_total",
				Help: "Total number of merge runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		mergeDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "worldstat_merge_duration_seconds",
				Help:    "Histogram of merge run durations.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		)

		mergedCountries = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "worldstat_merged_countries",
				Help: "Number of countries in the latest merged snapshot.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worldstat_http_requests_total",
				Help: "Total number of API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawl records one crawl run for a source.
func ObserveCrawl(source, outcome string, duration time.Duration) {
	Init()
	crawlRunsTotal.WithLabelValues(source, outcome).Inc()
	crawlDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveMerge records one merge run and the resulting country count.
func ObserveMerge(outcome string, countries int, duration time.Duration) {
	Init()
	mergeRunsTotal.WithLabelValues(outcome).Inc()
	mergeDurationSeconds.Observe(duration.Seconds())
	if outcome == "ok" {
		mergedCountries.Set(float64(countries))
	}
}

// ObserveHTTPRequest increments the API request counter.
func ObserveHTTPRequest(method string, code int) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
