package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	agencyReparents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agency",
		Subsystem: "hierarchy",
		Name:      "reparents_total",
		Help:      "Total number of reparent attempts broken down by result.",
	}, []string{"result"})

	agencyReparentSubtreeSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "agency",
		Subsystem: "hierarchy",
		Name:      "reparent_subtree_size",
		Help:      "Number of descendants rewritten per committed reparent.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	agencyDistributions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agency",
		Subsystem: "override",
		Name:      "distributions_total",
		Help:      "Total number of commission event distributions broken down by kind and result.",
	}, []string{"kind", "result"})

	agencyOverridesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agency",
		Subsystem: "override",
		Name:      "rows_emitted_total",
		Help:      "Total number of override commission rows written.",
	})

	agencyWriteConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agency",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of write conflicts broken down by kind.",
	}, []string{"kind"})

	agencyProfileRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agency",
		Subsystem: "rate_profile",
		Name:      "requests_total",
		Help:      "Total number of rate profile computations broken down by data quality.",
	}, []string{"quality"})
)

func recordReparent(result string) {
	agencyReparents.WithLabelValues(result).Inc()
}

func recordDistribution(kind, result string) {
	agencyDistributions.WithLabelValues(kind, result).Inc()
}

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	agencyWriteConflicts.WithLabelValues(kind).Inc()
}
