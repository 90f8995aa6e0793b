package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var fallbacksTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lorekeeper",
		Subsystem: "catalog",
		Name:      "search_fallbacks_total",
		Help:      "Searches that fell back from enhanced to basic search.",
	},
)
