package observer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adapt",
		Subsystem: "observer",
		Name:      "queries_total",
		Help:      "The total number of queries executed against an observer.",
	}, []string{"observer"})

	needsDataCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adapt",
		Subsystem: "observer",
		Name:      "needs_data_total",
		Help:      "The total number of executed queries that needed observer data.",
	}, []string{"observer"})
)
