package indexer

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	prometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is a the subsystem label for the indexer package.
const MetricsSubsystem = "indexer"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Latency for indexing the results of one block.
	TxResultsSeconds metrics.Histogram

	// Number of transaction results indexed.
	TransactionsIndexed metrics.Counter

	// Number of rollbacks applied to the sinks.
	Rollbacks metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		TxResultsSeconds: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "tx_results_seconds",
			Help:      "Latency for indexing the results of one block.",
		}, labels).With(labelsAndValues...),
		TransactionsIndexed: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "transactions_indexed",
			Help:      "Number of transaction results indexed.",
		}, labels).With(labelsAndValues...),
		Rollbacks: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "rollbacks",
			Help:      "Number of rollbacks applied to the sinks.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns an indexer metrics stub that discards all samples.
func NopMetrics() *Metrics {
	return &Metrics{
		TxResultsSeconds:    discard.NewHistogram(),
		TransactionsIndexed: discard.NewCounter(),
		Rollbacks:           discard.NewCounter(),
	}
}
