package http

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the control surface.
type Metrics struct {
	PlaysTotal        prometheus.Counter
	QueueAddsTotal    *prometheus.CounterVec
	DuplicatesTotal   prometheus.Counter
	QuotaDenialsTotal prometheus.Counter
	RestoresTotal     prometheus.Counter
	QueueLength       prometheus.Gauge
}

// NewMetrics creates and registers the collectors on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PlaysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundcrate_plays_total",
			Help: "Total number of explicit play actions",
		}),
		QueueAddsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soundcrate_queue_adds_total",
			Help: "Total number of add-to-queue actions",
		}, []string{"owner", "status"}),
		DuplicatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundcrate_duplicates_total",
			Help: "Total number of duplicate adds short-circuited",
		}),
		QuotaDenialsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundcrate_quota_denials_total",
			Help: "Total number of playlist creations denied by quota",
		}),
		RestoresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundcrate_session_restores_total",
			Help: "Total number of session restore runs",
		}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "soundcrate_queue_length",
			Help: "Current number of tracks in the playback queue",
		}),
	}

	reg.MustRegister(
		m.PlaysTotal,
		m.QueueAddsTotal,
		m.DuplicatesTotal,
		m.QuotaDenialsTotal,
		m.RestoresTotal,
		m.QueueLength,
	)
	return m
}
