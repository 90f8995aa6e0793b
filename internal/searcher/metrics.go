package searcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lorekeeper",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Searches executed, by resolved strategy.",
		},
		[]string{"strategy"},
	)

	unknownStrategyTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lorekeeper",
			Subsystem: "search",
			Name:      "unknown_strategy_total",
			Help:      "Searches that named an unknown strategy and fell back.",
		},
	)

	subSearchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lorekeeper",
			Subsystem: "search",
			Name:      "sub_search_failures_total",
			Help:      "Hybrid sub-searches that failed and contributed no results.",
		},
		[]string{"strategy"},
	)

	cacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lorekeeper",
			Subsystem: "search",
			Name:      "cache_hits_total",
			Help:      "Searches answered from the query cache.",
		},
	)
)
