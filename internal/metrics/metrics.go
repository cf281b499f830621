// Package metrics defines the harvester's Prometheus metric set, grounded
// on N0tT1m-code-lupe-v2's src/go/metrics_exporter.go for naming and bucket
// conventions (prefixed counters/gauges/histograms, prometheus.MustRegister
// at package init, promhttp.Handler exposed by the status server).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	FetchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sis_harvester_fetch_attempts_total",
			Help: "Total outbound SIS HTTP requests, by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	FetchRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sis_harvester_fetch_retries_total",
			Help: "Total retry attempts issued by the fetcher, by endpoint",
		},
		[]string{"endpoint"},
	)

	FetchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sis_harvester_fetch_duration_seconds",
			Help:    "Outbound SIS HTTP request latency",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"endpoint"},
	)

	CircuitBreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sis_harvester_circuit_breaker_trips_total",
			Help: "Total circuit breaker trips, by session scope",
		},
		[]string{"subject"},
	)

	ParseErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sis_harvester_parse_errors_total",
			Help: "Total parse anomalies encountered, by field",
		},
		[]string{"field"},
	)

	DictionaryConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sis_harvester_dictionary_conflicts_total",
			Help: "Total last-write-wins conflicts observed, by dictionary",
		},
		[]string{"dictionary"},
	)

	SubjectsScrapedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sis_harvester_subjects_scraped_total",
			Help: "Total subjects processed, by term and outcome",
		},
		[]string{"term", "outcome"},
	)

	TermsScrapedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sis_harvester_terms_scraped_total",
			Help: "Total terms processed, by outcome",
		},
		[]string{"outcome"},
	)

	SubjectsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sis_harvester_subjects_in_flight",
			Help: "Number of subject workers currently holding a session slot",
		},
	)
)

func init() {
	prometheus.MustRegister(
		FetchAttemptsTotal,
		FetchRetriesTotal,
		FetchDurationSeconds,
		CircuitBreakerTrips,
		ParseErrorsTotal,
		DictionaryConflictsTotal,
		SubjectsScrapedTotal,
		TermsScrapedTotal,
		SubjectsInFlight,
	)
}
