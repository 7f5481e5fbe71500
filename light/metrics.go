package light

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is a subsystem shared by all metrics exposed by this
// package.
const MetricsSubsystem = "light"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Seqno of the trusted key block.
	TrustedSeqno metrics.Gauge
	// Number of key blocks accepted by Sync.
	KeyBlocksSynced metrics.Counter
	// Number of prepared proofs, labeled by kind.
	ProofsPrepared metrics.Counter
	// Size of prepared proofs in bytes, labeled by kind.
	ProofSizeBytes metrics.Histogram
	// Time spent fetching a block and its signatures.
	FetchDurationSeconds metrics.Histogram
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	kindLabels := append(append([]string{}, labels...), "kind")
	return &Metrics{
		TrustedSeqno: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "trusted_seqno",
			Help:      "Seqno of the trusted key block.",
		}, labels).With(labelsAndValues...),
		KeyBlocksSynced: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "key_blocks_synced",
			Help:      "Number of key blocks accepted by sync.",
		}, labels).With(labelsAndValues...),
		ProofsPrepared: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "proofs_prepared",
			Help:      "Number of prepared proofs.",
		}, kindLabels).With(labelsAndValues...),
		ProofSizeBytes: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "proof_size_bytes",
			Help:      "Size of prepared proofs as bags of cells.",
			Buckets:   stdprometheus.ExponentialBuckets(256, 2, 10),
		}, kindLabels).With(labelsAndValues...),
		FetchDurationSeconds: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent fetching a block and its signatures.",
			Buckets:   stdprometheus.ExponentialBuckets(0.01, 2, 12),
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		TrustedSeqno:         discard.NewGauge(),
		KeyBlocksSynced:      discard.NewCounter(),
		ProofsPrepared:       discard.NewCounter(),
		ProofSizeBytes:       discard.NewHistogram(),
		FetchDurationSeconds: discard.NewHistogram(),
	}
}
