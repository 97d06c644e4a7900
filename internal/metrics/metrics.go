// Package metrics exposes Prometheus instrumentation for the triage pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AlertsScored counts scored alerts by decision outcome.
	AlertsScored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "alerts_scored_total",
		Help:      "Number of alerts scored, partitioned by decision.",
	}, []string{"decision"})

	// ScoreLatency tracks end-to-end scoring pipeline latency.
	ScoreLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kestrel",
		Name:      "score_duration_seconds",
		Help:      "Time spent canonicalizing, vectorizing and scoring an alert.",
		Buckets:   prometheus.DefBuckets,
	})

	// CoercionWarnings counts feature values that failed numeric coercion.
	CoercionWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "feature_coercion_warnings_total",
		Help:      "Number of feature values replaced by schema defaults after failed coercion.",
	})

	// FeedbackAccepted counts accepted feedback submissions by label source.
	FeedbackAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "feedback_accepted_total",
		Help:      "Number of accepted feedback submissions, partitioned by label source.",
	}, []string{"source"})

	// ConsistencyWarnings counts feedback for alerts with no stored explanation.
	ConsistencyWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "feedback_consistency_warnings_total",
		Help:      "Number of feedback submissions referencing an unknown alert.",
	})

	// StoreErrors counts record store failures by operation.
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "store_errors_total",
		Help:      "Number of record store failures, partitioned by operation.",
	}, []string{"operation"})

	// AttributionFailures counts attribution strategy failures tolerated by the pipeline.
	AttributionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "attribution_failures_total",
		Help:      "Number of scored alerts whose attribution step failed.",
	})
)
