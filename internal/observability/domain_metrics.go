package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmchat_translations_total",
			Help: "Total number of prompt translation attempts by outcome.",
		},
		[]string{"outcome"},
	)
	translationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crmchat_translation_duration_seconds",
			Help:    "Latency of the model translation round trip.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
	salesforceCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmchat_salesforce_calls_total",
			Help: "Total number of Salesforce API calls by operation and result.",
		},
		[]string{"operation", "result"},
	)
	salesforceCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crmchat_salesforce_call_duration_seconds",
			Help:    "Latency of Salesforce API round trips by operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	pipelineDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crmchat_pipeline_duration_seconds",
			Help:    "End-to-end latency of translate-and-execute requests.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)
	cancellationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crmchat_request_cancellations_total",
			Help: "Total number of requests cancelled by the caller.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		translationsTotal,
		translationDurationSeconds,
		salesforceCallsTotal,
		salesforceCallDurationSeconds,
		pipelineDurationSeconds,
		cancellationsTotal,
	)
}

func ObserveTranslation(outcome string, elapsed time.Duration) {
	translationsTotal.WithLabelValues(outcome).Inc()
	translationDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveSalesforceCall(operation, result string, elapsed time.Duration) {
	salesforceCallsTotal.WithLabelValues(operation, result).Inc()
	salesforceCallDurationSeconds.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func ObservePipeline(elapsed time.Duration) {
	pipelineDurationSeconds.Observe(elapsed.Seconds())
}

func IncrementCancellation() {
	cancellationsTotal.Inc()
}
