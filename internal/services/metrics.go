// Package services – engine metrics
//
// Prometheus instrumentation for the insight pipeline. Label cardinality is
// bounded: category is one of three fixed values and reason is a small fixed
// set of outcome names.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// insightsGenerated counts selected insights by category.
	insightsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insights_generated_total",
			Help: "Total number of insights selected, by category.",
		},
		[]string{"category"},
	)

	// insightFallbacks counts cycles that resolved to the fixed fallback.
	insightFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "insight_fallback_total",
			Help: "Total number of generation cycles that returned the fallback insight.",
		},
	)

	// insightPersistFailures counts background state writes that failed.
	insightPersistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_persist_failures_total",
			Help: "Total number of failed background profile or cache writes.",
		},
		[]string{"store"},
	)
)

func init() {
	prometheus.MustRegister(insightsGenerated, insightFallbacks, insightPersistFailures)
}
