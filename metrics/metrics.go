package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BatchSize tracks the number of merged requests per flushed batch
	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tqbulkwriter_batch_size",
			Help:    "Number of merged requests per flushed batch",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	// FlushLatency tracks how long a flush takes, retries included
	FlushLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tqbulkwriter_flush_latency_seconds",
			Help:    "Flush latency in seconds including retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	// FlushTotal counts flushes by result (success, dropped)
	FlushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tqbulkwriter_flush_total",
			Help: "Total number of batch flushes",
		},
		[]string{"result"},
	)

	// StatementsTotal counts executed statements by query type
	StatementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tqbulkwriter_statements_total",
			Help: "Total statements sent to the store",
		},
		[]string{"query_type"},
	)

	// RetriesTotal counts retry attempts by failure kind
	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tqbulkwriter_retries_total",
			Help: "Total statement retry attempts",
		},
		[]string{"kind"},
	)

	// ReconnectsTotal counts successful reconnections to the store
	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tqbulkwriter_reconnects_total",
			Help: "Total successful store reconnections",
		},
	)

	// DroppedTotal counts statements discarded after exhausting retries
	DroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tqbulkwriter_dropped_statements_total",
			Help: "Total statements dropped after exhausting retries",
		},
	)

	once sync.Once
)

// Init registers all metrics with Prometheus
func Init() {
	once.Do(func() {
		prometheus.MustRegister(BatchSize)
		prometheus.MustRegister(FlushLatency)
		prometheus.MustRegister(FlushTotal)
		prometheus.MustRegister(StatementsTotal)
		prometheus.MustRegister(RetriesTotal)
		prometheus.MustRegister(ReconnectsTotal)
		prometheus.MustRegister(DroppedTotal)
	})
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
