package incidents

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "statuspage"

var (
	recomputations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "recomputations_total",
			Help:      "Service status recomputations by outcome",
		},
		[]string{"result"},
	)

	conflictRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "conflict_retries_total",
			Help:      "Units of work retried after a store conflict",
		},
		[]string{"operation"},
	)

	reconcilerRepaired = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "repaired_total",
			Help:      "Service statuses corrected by the periodic reconciliation",
		},
	)

	reconcilerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "runs_total",
			Help:      "Reconciliation runs by outcome",
		},
		[]string{"result"},
	)
)

func recordRecomputation(result string) {
	recomputations.WithLabelValues(result).Inc()
}

func recordConflictRetry(operation string) {
	conflictRetries.WithLabelValues(operation).Inc()
}
