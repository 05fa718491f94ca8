// Package metrics exposes prometheus collectors for include resolution.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ciconf"

// Metrics groups the resolver's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	FragmentsLoaded    *prometheus.CounterVec
	FragmentsSkipped   *prometheus.CounterVec
	ResolutionErrors   *prometheus.CounterVec
	ResolutionDuration prometheus.Histogram
	FragmentSize       *prometheus.HistogramVec
	RemoteRequests     *prometheus.CounterVec
	InterpolationUsers prometheus.Counter
}

// New builds the collectors and registers them with reg when reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FragmentsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_loaded_total",
			Help:      "Fragments loaded and merged, by source kind.",
		}, []string{"kind"}),
		FragmentsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_skipped_total",
			Help:      "Include directives dropped by their rules, by source kind.",
		}, []string{"kind"}),
		ResolutionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolution_errors_total",
			Help:      "Failed resolutions, by error kind and reason.",
		}, []string{"kind", "reason"}),
		ResolutionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolution_duration_seconds",
			Help:      "Wall time of top-level resolutions.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		FragmentSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fragment_size_bytes",
			Help:      "Raw size of loaded fragments, by source kind.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"kind"}),
		RemoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Remote fragment fetches, by outcome.",
		}, []string{"outcome"}),
		InterpolationUsers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interpolation_users_total",
			Help:      "Distinct users seen using input interpolation.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FragmentsLoaded,
			m.FragmentsSkipped,
			m.ResolutionErrors,
			m.ResolutionDuration,
			m.FragmentSize,
			m.RemoteRequests,
			m.InterpolationUsers,
		)
	}
	return m
}

// FragmentLoaded records one merged fragment.
func (m *Metrics) FragmentLoaded(kind string, size int) {
	if m == nil {
		return
	}
	m.FragmentsLoaded.WithLabelValues(kind).Inc()
	m.FragmentSize.WithLabelValues(kind).Observe(float64(size))
}

// FragmentSkipped records an include dropped by its rules.
func (m *Metrics) FragmentSkipped(kind string) {
	if m == nil {
		return
	}
	m.FragmentsSkipped.WithLabelValues(kind).Inc()
}

// ResolutionFailed records a failed resolution.
func (m *Metrics) ResolutionFailed(kind, reason string) {
	if m == nil {
		return
	}
	m.ResolutionErrors.WithLabelValues(kind, reason).Inc()
}

// ObserveResolution records the duration of a top-level resolution.
func (m *Metrics) ObserveResolution(d time.Duration) {
	if m == nil {
		return
	}
	m.ResolutionDuration.Observe(d.Seconds())
}

// RemoteRequest records a remote fetch outcome: ok, status, not_found,
// forbidden, timeout, tls, invalid or network.
func (m *Metrics) RemoteRequest(outcome string) {
	if m == nil {
		return
	}
	m.RemoteRequests.WithLabelValues(outcome).Inc()
}

// InterpolationUser records the first interpolation by a user.
func (m *Metrics) InterpolationUser() {
	if m == nil {
		return
	}
	m.InterpolationUsers.Inc()
}
