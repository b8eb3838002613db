// Package metrics exposes session counters in Prometheus format. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the session metrics.
type Metrics struct {
	registry *prometheus.Registry

	PhaseTransitions *prometheus.CounterVec
	CapturesTotal    *prometheus.CounterVec
	ExchangesTotal   *prometheus.CounterVec
	ExchangeDuration *prometheus.HistogramVec
	PlaybacksTotal   *prometheus.CounterVec
	LanguageSelected *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "saathi"
	}

	registry := prometheus.NewRegistry()

	phaseTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Session phase transitions",
		},
		[]string{"from", "to"},
	)

	capturesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Completed speech captures by outcome",
		},
		[]string{"outcome"},
	)

	exchangesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Responder exchanges by outcome",
		},
		[]string{"outcome"},
	)

	exchangeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Responder exchange duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"outcome"},
	)

	playbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playbacks_total",
			Help:      "Spoken outputs by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	languageSelected := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "language_selections_total",
			Help:      "Language selections by code",
		},
		[]string{"language"},
	)

	registry.MustRegister(
		phaseTransitions,
		capturesTotal,
		exchangesTotal,
		exchangeDuration,
		playbacksTotal,
		languageSelected,
	)

	return &Metrics{
		registry:         registry,
		PhaseTransitions: phaseTransitions,
		CapturesTotal:    capturesTotal,
		ExchangesTotal:   exchangesTotal,
		ExchangeDuration: exchangeDuration,
		PlaybacksTotal:   playbacksTotal,
		LanguageSelected: languageSelected,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePhase records a phase change. Self-transitions are ignored.
func (m *Metrics) ObservePhase(from, to string) {
	if m == nil || from == to {
		return
	}
	m.PhaseTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveCapture(outcome string) {
	if m == nil {
		return
	}
	m.CapturesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveExchange(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ExchangesTotal.WithLabelValues(outcome).Inc()
	m.ExchangeDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *Metrics) ObservePlayback(kind, outcome string) {
	if m == nil {
		return
	}
	m.PlaybacksTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveLanguage(code string) {
	if m == nil {
		return
	}
	m.LanguageSelected.WithLabelValues(code).Inc()
}
