// Package metrics exposes Prometheus counters for request volume, phase
// progress, and discovered endpoints. Re-expresses the teacher's atomic
// progress counters (internal/progress/progress.go) as a real registry so
// an operator can scrape a long-running probe.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters, histogram and gauge exposed for a probe run.
// The orchestrator updates RequestsTotal, EndpointsFound and
// ActiveProbeRuns; PhaseDuration is registered but nothing records
// observations into it.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	EndpointsFound   *prometheus.CounterVec
	PhaseDuration    *prometheus.HistogramVec
	ActiveProbeRuns  prometheus.Gauge
}

// New creates a fresh, independent registry and metric set so concurrent
// probe-run tests never collide on the default global registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RequestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "apiprober",
			Name:      "requests_total",
			Help:      "HTTP requests the orchestrator issues directly (base probe and schema-extraction GETs), labeled by method and outcome.",
		}, []string{"method", "outcome"}),
		EndpointsFound: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "apiprober",
			Name:      "endpoints_found_total",
			Help:      "Endpoints discovered, labeled by discovery strategy.",
		}, []string{"discovered_by"}),
		PhaseDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "apiprober",
			Name:      "phase_duration_seconds",
			Help:      "Wall-clock duration of each orchestrator phase.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		ActiveProbeRuns: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "apiprober",
			Name:      "active_probe_runs",
			Help:      "Number of probe runs currently in progress (0 or 1 for a single-process CLI invocation).",
		}),
	}
	return m
}

// RecordRequest increments the request counter for a completed (or
// failed) HTTP call.
func (m *Metrics) RecordRequest(method string, statusCode int) {
	outcome := "error"
	switch {
	case statusCode == 0:
		outcome = "error"
	case statusCode >= 200 && statusCode < 400:
		outcome = "ok"
	default:
		outcome = "http_error"
	}
	m.RequestsTotal.WithLabelValues(method, outcome).Inc()
}

// RecordDiscovery increments the endpoints-found counter for a discovery
// strategy ("openapi", "wordlist", "pattern", "response_driven").
func (m *Metrics) RecordDiscovery(discoveredBy string) {
	m.EndpointsFound.WithLabelValues(discoveredBy).Inc()
}

// Serve starts a promhttp handler on addr and blocks until ctx is
// cancelled. Intended to be run in its own goroutine by cmd/apiprober when
// --metrics-addr is set.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
