// Package observability holds the Prometheus metrics and HTTP middleware.
package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claudebridge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "claudebridge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	completions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claudebridge",
			Subsystem: "messages",
			Name:      "completions_total",
			Help:      "Messages requests by mode, resume state and outcome.",
		},
		[]string{"mode", "resumed", "outcome"},
	)
	completionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "claudebridge",
			Subsystem: "messages",
			Name:      "completion_duration_seconds",
			Help:      "Time from admission to the end of a messages request.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"mode", "outcome"},
	)
	resumeFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "claudebridge",
			Subsystem: "sessions",
			Name:      "resume_fallbacks_total",
			Help:      "Resumed runs that failed and were retried with full context.",
		},
	)
	prunedSessions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "claudebridge",
			Subsystem: "sessions",
			Name:      "pruned_total",
			Help:      "Registry entries dropped for exceeding max age.",
		},
	)
	activeRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "claudebridge",
			Subsystem: "queue",
			Name:      "active_runs",
			Help:      "CLI runs currently holding a concurrency slot.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			completions, completionDuration,
			resumeFallbacks, prunedSessions, activeRuns,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordCompletion counts one finished messages request. mode is "stream" or
// "aggregate"; outcome is "ok" or an error class.
func RecordCompletion(mode string, resumed bool, outcome string, duration time.Duration) {
	RegisterMetrics()
	completions.WithLabelValues(mode, strconv.FormatBool(resumed), outcome).Inc()
	completionDuration.WithLabelValues(mode, outcome).Observe(duration.Seconds())
}

func RecordResumeFallback() {
	RegisterMetrics()
	resumeFallbacks.Inc()
}

func RecordPruned(n int) {
	RegisterMetrics()
	prunedSessions.Add(float64(n))
}

// SetActiveRuns reports the number of running CLI invocations.
func SetActiveRuns(n int64) {
	RegisterMetrics()
	activeRuns.Set(float64(n))
}
