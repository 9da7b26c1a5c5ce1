// Package metrics holds the Prometheus collectors for the buzzer server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "buzzer"

type Metrics struct {
	Buzzes             *prometheus.CounterVec
	Joins              prometheus.Counter
	Mutations          *prometheus.CounterVec
	ViewersActive      prometheus.Gauge
	ViewersEvicted     prometheus.Counter
	SnapshotsPublished prometheus.Counter
	RoundsArchived     prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Buzzes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buzzes_total",
			Help:      "Buzz attempts by result (accepted or rejection reason).",
		}, []string{"result"}),
		Joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_total",
			Help:      "Players that joined the session.",
		}),
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_mutations_total",
			Help:      "Session mutations by operation.",
		}, []string{"op"}),
		ViewersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "viewers",
			Name:      "active",
			Help:      "Viewers currently attached to the broadcast hub.",
		}),
		ViewersEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "viewers",
			Name:      "evicted_total",
			Help:      "Viewers dropped because their queue was full.",
		}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      "Session snapshots published to the broadcast hub.",
		}),
		RoundsArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_archived_total",
			Help:      "Closed rounds written to the archive.",
		}),
	}

	reg.MustRegister(
		m.Buzzes,
		m.Joins,
		m.Mutations,
		m.ViewersActive,
		m.ViewersEvicted,
		m.SnapshotsPublished,
		m.RoundsArchived,
	)
	return m
}

// Discard returns collectors that are not registered anywhere.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}
