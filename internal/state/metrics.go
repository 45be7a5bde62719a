package state

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	prometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "state"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Time spent applying one block, in seconds.
	BlockProcessingTime metrics.Histogram

	// Height of the last applied block.
	Height metrics.Gauge

	// Transactions by result status.
	ValidTxs   metrics.Counter
	InvalidTxs metrics.Counter
	SkippedTxs metrics.Counter

	// Number of rollbacks to an earlier height.
	Rollbacks metrics.Counter

	// Positions moved to the insurance account.
	Liquidations metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		BlockProcessingTime: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "block_processing_time",
			Help:      "Time spent applying one block, in seconds.",
			Buckets:   stdprometheus.ExponentialBuckets(0.001, 4, 8),
		}, labels).With(labelsAndValues...),
		Height: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "height",
			Help:      "Height of the last applied block.",
		}, labels).With(labelsAndValues...),
		ValidTxs: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "valid_txs",
			Help:      "Number of applied transactions.",
		}, labels).With(labelsAndValues...),
		InvalidTxs: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "invalid_txs",
			Help:      "Number of transactions rejected by an engine.",
		}, labels).With(labelsAndValues...),
		SkippedTxs: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "skipped_txs",
			Help:      "Number of transactions without a decodable payload.",
		}, labels).With(labelsAndValues...),
		Rollbacks: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "rollbacks",
			Help:      "Number of rollbacks to an earlier height.",
		}, labels).With(labelsAndValues...),
		Liquidations: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "liquidations",
			Help:      "Number of positions moved to an insurance account.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		BlockProcessingTime: discard.NewHistogram(),
		Height:              discard.NewGauge(),
		ValidTxs:            discard.NewCounter(),
		InvalidTxs:          discard.NewCounter(),
		SkippedTxs:          discard.NewCounter(),
		Rollbacks:           discard.NewCounter(),
		Liquidations:        discard.NewCounter(),
	}
}
