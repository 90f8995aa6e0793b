package livesync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lorekeeper",
			Subsystem: "livesync",
			Name:      "events_applied_total",
			Help:      "Change events that patched a cached list.",
		},
		[]string{"entity", "source"},
	)

	duplicatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lorekeeper",
			Subsystem: "livesync",
			Name:      "duplicates_total",
			Help:      "Change events skipped because the row was already applied.",
		},
		[]string{"entity", "source"},
	)

	malformedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lorekeeper",
			Subsystem: "livesync",
			Name:      "malformed_total",
			Help:      "Change events dropped as malformed.",
		},
		[]string{"entity"},
	)

	reconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lorekeeper",
			Subsystem: "livesync",
			Name:      "reconnects_total",
			Help:      "Subscriptions lost to a transport failure.",
		},
		[]string{"entity"},
	)

	pollFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lorekeeper",
			Subsystem: "livesync",
			Name:      "poll_failures_total",
			Help:      "Poll backstop snapshots that failed.",
		},
		[]string{"entity"},
	)
)
