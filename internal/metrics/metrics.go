// Package metrics holds the Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Batch outcome labels.
const (
	OutcomeCommitted = "committed"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"
)

var (
	// WriterRetries counts transient store failures that led to a retry.
	WriterRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wordchain_writer_retries_total",
		Help: "Transactions retried after a transient store error",
	})

	// WriterBatches counts batch transactions by outcome.
	WriterBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wordchain_writer_batches_total",
		Help: "Batches handled by the writer by outcome",
	}, []string{"outcome"})

	// WriterBatchDuration observes the wall time of a committed batch, retries included.
	WriterBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wordchain_writer_batch_duration_seconds",
		Help:    "Time to apply one batch",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	// TokenizerTokens counts alpha tokens observed by all tokenizers.
	TokenizerTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wordchain_tokenizer_tokens_total",
		Help: "Alpha tokens observed by tokenizers",
	})

	// QueueDepth tracks the number of batches waiting for the writer.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wordchain_queue_depth",
		Help: "Batches waiting in the writer queue",
	})
)

// Handler returns the HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
