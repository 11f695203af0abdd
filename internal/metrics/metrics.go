// Package metrics exposes Prometheus instruments for HTTP traffic and the
// undo window.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crm"

// Collector owns a private registry so tests can build as many as they need.
type Collector struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec

	deletesRequested *prometheus.CounterVec
	deletesUndone    *prometheus.CounterVec
	deletesCommitted *prometheus.CounterVec
	deletesFailed    *prometheus.CounterVec
	deletesPending   *prometheus.GaugeVec
	commitDuration   *prometheus.HistogramVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		deletesRequested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "undo",
			Name:      "deletes_requested_total",
			Help:      "Deletions that opened an undo window.",
		}, []string{"kind"}),
		deletesUndone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "undo",
			Name:      "deletes_undone_total",
			Help:      "Deletions cancelled by the user before the deadline.",
		}, []string{"kind"}),
		deletesCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "undo",
			Name:      "deletes_committed_total",
			Help:      "Deletions committed to the database.",
		}, []string{"kind"}),
		deletesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "undo",
			Name:      "deletes_failed_total",
			Help:      "Remote deletes that failed and were rolled back.",
		}, []string{"kind"}),
		deletesPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "undo",
			Name:      "deletes_pending",
			Help:      "Deletions currently inside their undo window or committing.",
		}, []string{"kind"}),
		commitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "undo",
			Name:      "commit_duration_seconds",
			Help:      "Time spent in the remote delete call.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"kind", "outcome"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.requests, c.latency,
		c.deletesRequested, c.deletesUndone, c.deletesCommitted, c.deletesFailed,
		c.deletesPending, c.commitDuration,
	)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Requested(kind string) {
	c.deletesRequested.WithLabelValues(kind).Inc()
}

func (c *Collector) Undone(kind string) {
	c.deletesUndone.WithLabelValues(kind).Inc()
}

func (c *Collector) Committed(kind string, elapsed time.Duration) {
	c.deletesCommitted.WithLabelValues(kind).Inc()
	c.commitDuration.WithLabelValues(kind, "committed").Observe(elapsed.Seconds())
}

func (c *Collector) Failed(kind string, elapsed time.Duration) {
	c.deletesFailed.WithLabelValues(kind).Inc()
	c.commitDuration.WithLabelValues(kind, "failed").Observe(elapsed.Seconds())
}

func (c *Collector) PendingChanged(kind string, delta int) {
	c.deletesPending.WithLabelValues(kind).Add(float64(delta))
}

// Middleware records request counts and latency. Routes are labelled with the
// chi route pattern so path parameters do not explode cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		c.requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		c.latency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack lets websocket upgrades pass through.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}
