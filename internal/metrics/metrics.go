package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	syncPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bairro",
			Name:      "sync_passes_total",
			Help:      "Sync passes by result (completed, aborted, skipped).",
		},
		[]string{"result"},
	)

	operationsReplayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bairro",
			Name:      "operations_replayed_total",
			Help:      "Replayed pending operations by outcome (synced, retained, failed).",
		},
		[]string{"outcome"},
	)

	pendingDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bairro",
			Name:      "pending_operations",
			Help:      "Current depth of the pending-operation queue.",
		},
	)

	cacheReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bairro",
			Name:      "cache_reads_total",
			Help:      "Cache reads by result (hit, stale, miss, expired).",
		},
		[]string{"result"},
	)

	cacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bairro",
			Name:      "cache_evictions_total",
			Help:      "Non-essential cache entries evicted on write failure.",
		},
	)

	httpRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bairro",
			Name:      "http_retries_total",
			Help:      "HTTP retries by request path.",
		},
		[]string{"path"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(syncPasses, operationsReplayed, pendingDepth, cacheReads, cacheEvictions, httpRetries)
	})
}

func IncSyncPass(result string) {
	syncPasses.WithLabelValues(result).Inc()
}

func IncOperationReplayed(outcome string) {
	operationsReplayed.WithLabelValues(outcome).Inc()
}

func SetPendingDepth(n int) {
	pendingDepth.Set(float64(n))
}

func IncCacheRead(result string) {
	cacheReads.WithLabelValues(result).Inc()
}

func IncCacheEviction() {
	cacheEvictions.Inc()
}

func IncHTTPRetry(path string) {
	httpRetries.WithLabelValues(path).Inc()
}
