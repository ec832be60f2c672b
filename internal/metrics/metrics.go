// Package metrics exposes Prometheus collectors for builds, verification and
// live-reload clients.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "c3"

// Build results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	buildsTotal          *prometheus.CounterVec
	buildDuration        *prometheus.HistogramVec
	verificationFailures *prometheus.CounterVec
	reloadClients        prometheus.Gauge
	reloadBroadcasts     prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		buildsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "builds_total",
			Help:      "Total number of builds by mode and result",
		}, []string{"mode", "result"}),

		buildDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "build_duration_seconds",
			Help:      "Build duration in seconds, including the default-export check",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"mode"}),

		verificationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "verification_failures_total",
			Help:      "Verification failures by kind",
		}, []string{"kind"}),

		reloadClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "reload_clients",
			Help:      "Number of connected live-reload clients",
		}),

		reloadBroadcasts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reload_broadcasts_total",
			Help:      "Total number of reload signals broadcast",
		}),
	}
}

// ObserveBuild records one finished build.
func (m *Metrics) ObserveBuild(mode string, d time.Duration, err error) {
	if m == nil {
		return
	}

	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}

	m.buildsTotal.WithLabelValues(mode, result).Inc()
	m.buildDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// VerificationFailed counts one verification failure of kind.
func (m *Metrics) VerificationFailed(kind string) {
	if m == nil {
		return
	}

	m.verificationFailures.WithLabelValues(kind).Inc()
}

// SetReloadClients sets the current number of reload clients.
func (m *Metrics) SetReloadClients(n int) {
	if m == nil {
		return
	}

	m.reloadClients.Set(float64(n))
}

// ReloadBroadcast counts one reload broadcast.
func (m *Metrics) ReloadBroadcast() {
	if m == nil {
		return
	}

	m.reloadBroadcasts.Inc()
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}

	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
