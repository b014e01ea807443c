// Package metrics provides Prometheus metrics for the sharedeck core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Remote operation metrics
	remoteOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharedeck_remote_ops_total",
			Help: "Total remote operations by kind and outcome",
		},
		[]string{"op", "status"},
	)

	remoteOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sharedeck_remote_op_duration_seconds",
			Help:    "Remote operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	retriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharedeck_retries_total",
			Help: "Total retry attempts after transient failures",
		},
	)

	connectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharedeck_connects_total",
			Help: "Total connection attempts by outcome",
		},
		[]string{"status"},
	)

	// Offline cache metrics
	cacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharedeck_cache_hits_total",
			Help: "Total blob cache hits",
		},
	)

	cacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharedeck_cache_misses_total",
			Help: "Total blob cache misses",
		},
	)

	cacheBlobBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sharedeck_cache_blob_bytes",
			Help: "Bytes currently held in the blob cache",
		},
	)

	offlineFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharedeck_offline_fallbacks_total",
			Help: "Listings served from the offline cache after a remote failure or while offline",
		},
	)

	sessionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sharedeck_session_state",
			Help: "Session state as a one-hot gauge over the known states",
		},
		[]string{"state"},
	)

	bytesDownloadedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharedeck_bytes_downloaded_total",
			Help: "Total bytes downloaded from remote endpoints",
		},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRemoteOp records one remote operation with its duration.
func RecordRemoteOp(op string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	remoteOpsTotal.WithLabelValues(op, status).Inc()
	remoteOpDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordRetry records one retry attempt.
func RecordRetry() {
	retriesTotal.Inc()
}

// RecordConnect records one connection attempt.
func RecordConnect(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	connectsTotal.WithLabelValues(status).Inc()
}

// RecordCacheHit records a blob cache hit.
func RecordCacheHit() {
	cacheHitsTotal.Inc()
}

// RecordCacheMiss records a blob cache miss.
func RecordCacheMiss() {
	cacheMissesTotal.Inc()
}

// SetCacheBlobBytes sets the current blob cache size.
func SetCacheBlobBytes(n int64) {
	cacheBlobBytes.Set(float64(n))
}

// RecordOfflineFallback records a listing served from the offline cache.
func RecordOfflineFallback() {
	offlineFallbacksTotal.Inc()
}

// SetSessionState marks state as the active session state.
func SetSessionState(state string) {
	for _, s := range []string{"disconnected", "connecting", "connected", "error"} {
		v := 0.0
		if s == state {
			v = 1
		}
		sessionState.WithLabelValues(s).Set(v)
	}
}

// AddBytesDownloaded adds to the downloaded byte total.
func AddBytesDownloaded(n int64) {
	bytesDownloadedTotal.Add(float64(n))
}
