// Package metrics exposes Prometheus instrumentation for the recommendation
// pipeline and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on its own registry. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RefreshTotal     *prometheus.CounterVec
	RefreshDuration  prometheus.Histogram
	RefreshRows      prometheus.Histogram
	MalformedAnswers prometheus.Counter
	FallbackProfiles prometheus.Counter
	ItemsScored      prometheus.Counter
	StoreErrors      *prometheus.CounterVec
	BreakerState     *prometheus.GaugeVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, plus Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RefreshTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stylematch_refresh_total",
				Help: "Recommendation refreshes by outcome",
			},
			[]string{"outcome"}, // "ok", "empty_catalog", "unavailable", "partial_failure", "locked"
		),
		RefreshDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stylematch_refresh_duration_seconds",
			Help:    "End-to-end duration of a recommendation refresh",
			Buckets: prometheus.DefBuckets,
		}),
		RefreshRows: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stylematch_refresh_rows",
			Help:    "Rows written per successful refresh",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
		}),
		MalformedAnswers: f.NewCounter(prometheus.CounterOpts{
			Name: "stylematch_malformed_answers_total",
			Help: "Answers skipped during aggregation because their value could not be used",
		}),
		FallbackProfiles: f.NewCounter(prometheus.CounterOpts{
			Name: "stylematch_fallback_profiles_total",
			Help: "Profiles that fell back to the default styles",
		}),
		ItemsScored: f.NewCounter(prometheus.CounterOpts{
			Name: "stylematch_items_scored_total",
			Help: "Catalog items scored",
		}),
		StoreErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stylematch_store_errors_total",
				Help: "Store operation failures",
			},
			[]string{"operation"},
		),
		BreakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stylematch_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),

		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stylematch_http_requests_total",
				Help: "HTTP requests by route, method and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stylematch_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRefresh records the outcome of one refresh.
func (m *Metrics) ObserveRefresh(outcome string, rows int, d time.Duration) {
	if m == nil {
		return
	}
	m.RefreshTotal.WithLabelValues(outcome).Inc()
	m.RefreshDuration.Observe(d.Seconds())
	if outcome == "ok" {
		m.RefreshRows.Observe(float64(rows))
	}
}

// ObserveProfile records aggregation side effects.
func (m *Metrics) ObserveProfile(malformed int, fallback bool) {
	if m == nil {
		return
	}
	m.MalformedAnswers.Add(float64(malformed))
	if fallback {
		m.FallbackProfiles.Inc()
	}
}

// ObserveScored counts scored catalog items.
func (m *Metrics) ObserveScored(n int) {
	if m == nil {
		return
	}
	m.ItemsScored.Add(float64(n))
}

// StoreError counts a failed store operation.
func (m *Metrics) StoreError(operation string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(operation).Inc()
}

// SetBreakerState records a breaker transition.
func (m *Metrics) SetBreakerState(name, state string) {
	if m == nil {
		return
	}
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	m.BreakerState.WithLabelValues(name).Set(v)
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
