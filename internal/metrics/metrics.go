// Package metrics exposes Prometheus instrumentation for the playback
// adaptation loop. A Recorder is handed to each session and counts
// remediation actions, health transitions, and reconnect outcomes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements the playback recorder hooks on top of a private
// Prometheus registry. Using a private registry keeps tests independent and
// avoids double registration when multiple instances exist.
type Recorder struct {
	registry *prometheus.Registry

	actions           *prometheus.CounterVec
	healthTransitions *prometheus.CounterVec
	reconnects        *prometheus.CounterVec
	probeDuration     *prometheus.HistogramVec
	sessionsActive    prometheus.Gauge
}

// NewRecorder creates a Recorder with its own registry, including the
// standard Go and process collectors.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Recorder{
		registry: registry,
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulsetv",
			Name:      "adaptation_actions_total",
			Help:      "Remediation actions executed by the adaptation loop, by level.",
		}, []string{"level"}),
		healthTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulsetv",
			Name:      "health_transitions_total",
			Help:      "Playback health status transitions, by new status.",
		}, []string{"status"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulsetv",
			Name:      "reconnects_total",
			Help:      "Completed reconnect sequences, by outcome.",
		}, []string{"outcome"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pulsetv",
			Name:      "probe_duration_seconds",
			Help:      "Connection probe duration, by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulsetv",
			Name:      "sessions_active",
			Help:      "Number of playback sessions with a running adaptation loop.",
		}),
	}

	registry.MustRegister(r.actions, r.healthTransitions, r.reconnects, r.probeDuration, r.sessionsActive)
	return r
}

// ActionExecuted counts one executed remediation action.
func (r *Recorder) ActionExecuted(level string) {
	r.actions.WithLabelValues(level).Inc()
}

// HealthChanged counts one health status transition.
func (r *Recorder) HealthChanged(status string) {
	r.healthTransitions.WithLabelValues(status).Inc()
}

// ReconnectCompleted counts one finished reconnect sequence.
func (r *Recorder) ReconnectCompleted(outcome string) {
	r.reconnects.WithLabelValues(outcome).Inc()
}

// ProbeObserved records the duration of one connection probe. The signature
// matches the probe package's Observe hook.
func (r *Recorder) ProbeObserved(outcome string, elapsed time.Duration) {
	r.probeDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// SessionStarted increments the active session gauge.
func (r *Recorder) SessionStarted() {
	r.sessionsActive.Inc()
}

// SessionEnded decrements the active session gauge.
func (r *Recorder) SessionEnded() {
	r.sessionsActive.Dec()
}

// Registry returns the underlying registry, for tests and custom collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
