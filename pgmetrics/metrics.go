// Package pgmetrics provides optional Prometheus instrumentation for a
// pool's occupancy and query activity. Nothing in package pool depends on
// this package; a caller wires it in explicitly with Pool.SetObserver.
package pgmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus metrics this client can report. Each
// Collector registers its metrics on its own Registry, exposed as a field —
// never the global default registry — matching the teacher's per-instance
// registry convention so multiple pools (or repeated test construction)
// don't collide.
type Collector struct {
	Registry *prometheus.Registry

	sessionsAvailable prometheus.Gauge
	sessionsTotal     prometheus.Gauge
	poolExhausted     prometheus.Counter
	acquireDuration   prometheus.Histogram
	queryDuration     prometheus.HistogramVec
	queryErrors       prometheus.Counter
}

// New creates and registers a fresh Collector against its own registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		Registry: reg,
		sessionsAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgframe_pool_sessions_available",
			Help: "Number of idle sessions currently available in the pool.",
		}),
		sessionsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgframe_pool_sessions_total",
			Help: "Total number of sessions (available + checked out) in the pool.",
		}),
		poolExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgframe_pool_exhausted_total",
			Help: "Number of times Acquire had to wait because no session was available.",
		}),
		acquireDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pgframe_pool_acquire_duration_seconds",
			Help:    "Time spent waiting in Acquire.",
			Buckets: prometheus.DefBuckets,
		}),
		queryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgframe_query_errors_total",
			Help: "Number of queries that returned a non-nil error.",
		}),
	}
	c.queryDuration = *prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pgframe_query_duration_seconds",
		Help:    "Query execution latency by outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	reg.MustRegister(
		c.sessionsAvailable,
		c.sessionsTotal,
		c.poolExhausted,
		c.acquireDuration,
		&c.queryDuration,
		c.queryErrors,
	)
	return c
}

// ObservePoolStats records a point-in-time occupancy snapshot.
func (c *Collector) ObservePoolStats(available, total int) {
	c.sessionsAvailable.Set(float64(available))
	c.sessionsTotal.Set(float64(total))
}

// ObserveExhausted records that Acquire had to wait for a session.
func (c *Collector) ObserveExhausted() {
	c.poolExhausted.Inc()
}

// ObserveAcquire records how long an Acquire call took to return.
func (c *Collector) ObserveAcquire(d time.Duration) {
	c.acquireDuration.Observe(d.Seconds())
}

// ObserveQuery records a query's latency and whether it failed.
func (c *Collector) ObserveQuery(d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		c.queryErrors.Inc()
	}
	c.queryDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
