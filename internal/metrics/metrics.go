// Package metrics provides Prometheus metrics for firstrecord.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SourceRequestsTotal counts adapter searches by outcome.
	SourceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "firstrecord",
			Name:      "source_requests_total",
			Help:      "Total number of literature source searches",
		},
		[]string{"source", "status"},
	)

	// CollectDuration measures whole collection runs.
	CollectDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "firstrecord",
			Name:      "collect_duration_seconds",
			Help:      "Duration of literature collection runs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// QuotaUsed tracks free-tier LLM calls consumed in the current window.
	QuotaUsed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "firstrecord",
			Name:      "quota_used",
			Help:      "Free-tier LLM calls used since the last daily reset",
		},
		[]string{"provider"},
	)

	// AnalysesTotal counts finished document analyses by final status.
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "firstrecord",
			Name:      "analyses_total",
			Help:      "Total number of document analyses by outcome",
		},
		[]string{"status"},
	)

	// UploadsTotal counts PDF intake attempts by outcome.
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "firstrecord",
			Name:      "uploads_total",
			Help:      "Total number of PDF intake attempts by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordSourceRequest records one adapter search.
func RecordSourceRequest(source, status string) {
	SourceRequestsTotal.WithLabelValues(source, status).Inc()
}

// SetQuotaUsed publishes the current usage for a provider.
func SetQuotaUsed(provider string, used int) {
	QuotaUsed.WithLabelValues(provider).Set(float64(used))
}

// RecordAnalysis records a finished analysis.
func RecordAnalysis(status string) {
	AnalysesTotal.WithLabelValues(status).Inc()
}

// RecordUpload records an intake attempt.
func RecordUpload(outcome string) {
	UploadsTotal.WithLabelValues(outcome).Inc()
}
