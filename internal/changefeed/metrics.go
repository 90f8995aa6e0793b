package changefeed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	undecodableTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lorekeeper",
			Subsystem: "changefeed",
			Name:      "undecodable_total",
			Help:      "Transport messages that could not be decoded into a change event.",
		},
		[]string{"transport"},
	)

	droppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lorekeeper",
			Subsystem: "changefeed",
			Name:      "dropped_total",
			Help:      "Events dropped because a subscriber buffer was full.",
		},
		[]string{"transport"},
	)
)

// RecordUndecodable counts a message a transport could not decode
func RecordUndecodable(transport string) {
	undecodableTotal.WithLabelValues(transport).Inc()
}
