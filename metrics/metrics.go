// Package metrics exposes Prometheus counters and histograms for
// dispatch throughput, outgoing API calls, and cron firings — an
// ambient observability surface spec.md's Non-goals don't exclude
// (they scope out protocol features, not operability). Grounded on
// the teacher pack's metrics.go idiom: package-level collectors
// registered in init, a promhttp.Handler for the /metrics endpoint.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kovi_events_dispatched_total",
			Help: "Total number of parsed inbound OneBot event frames entering dispatch, by post_type",
		},
		[]string{"tag"},
	)

	EventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kovi_events_dropped_total",
			Help: "Total number of inbound event frames dropped before dispatch or listener deliveries skipped, by reason",
		},
		[]string{"reason"},
	)

	ListenerTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kovi_listener_tasks_total",
			Help: "Total number of listener tasks spawned, by plugin",
		},
		[]string{"plugin"},
	)

	APICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kovi_api_calls_total",
			Help: "Total number of outgoing API calls issued, by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	APICallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kovi_api_call_duration_seconds",
			Help:    "Round-trip latency of correlated API calls, by action",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	CronFiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kovi_cron_fires_total",
			Help: "Total number of cron task firings, by plugin",
		},
		[]string{"plugin"},
	)

	PluginsEnabled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kovi_plugins_enabled",
			Help: "Current number of enabled plugins",
		},
	)

	StoreBackendReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kovi_store_backend_ready",
			Help: "Whether the named store backend is currently reachable (1) or not (0)",
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(
		EventsDispatchedTotal,
		EventsDroppedTotal,
		ListenerTasksTotal,
		APICallsTotal,
		APICallDuration,
		CronFiresTotal,
		PluginsEnabled,
		StoreBackendReady,
	)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a small helper for observing elapsed durations into a
// histogram without each caller repeating time.Since boilerplate.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDurationVec records the elapsed time into a labeled
// histogram.
func (t *Timer) ObserveDurationVec(histogram *prometheus.HistogramVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// ObserveDuration records the elapsed time into an unlabeled
// histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
