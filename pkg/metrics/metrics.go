// Package metrics exposes the Prometheus registry freeze navigation
// registers into. Metrics are defined in their respective packages
// (freeze, snapshot, fetch) via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by all packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects what Registry holds.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Freeze Metrics (pkg/freeze):
//   - freeze_boots_total{armed} (Counter): Boots, by whether capture was armed
//   - freeze_captures_total{trigger, result} (Counter): Capture attempts
//   - freeze_restores_total{mode, result} (Counter): Restores by history mode
//   - freeze_restore_duration_seconds (Histogram): Time from swap to re-arm
//   - freeze_script_failures_total (Counter): Script re-runs that failed
//   - freeze_reloads_total (Counter): Tracked traversals answered by a reload
//
// Snapshot Store Metrics (pkg/snapshot):
//   - freeze_cache_hits_total (Counter): Lookups that found a snapshot
//   - freeze_cache_misses_total (Counter): Lookups that found none
//   - freeze_cache_evictions_total (Counter): Snapshots evicted on quota errors
//   - freeze_cache_dropped_total (Counter): Upserts where nothing fit
//   - freeze_cache_blob_bytes (Gauge): Size of the persisted blob
//   - freeze_cache_entries (Gauge): Snapshots in the persisted blob
//   - freeze_cache_errors_total{operation} (Counter): Backend and codec errors
//
// Fetch Metrics (pkg/fetch):
//   - freeze_fetch_requests_total{status} (Counter): Page fetches by status
//   - freeze_fetch_duration_seconds (Histogram): Fetch duration
//   - freeze_fetch_errors_total{class} (Counter): Errors by class
//   - freeze_fetch_retries_total{error_class} (Counter): Retry attempts
//   - freeze_fetch_retry_backoff_seconds{error_class} (Histogram): Backoff durations
//   - freeze_fetch_retry_exhausted_total{error_class} (Counter): Exhausted retries
//
// Example Prometheus Queries:
//
//   # Snapshot Hit Rate
//   sum(rate(freeze_cache_hits_total[5m])) /
//   (sum(rate(freeze_cache_hits_total[5m])) + sum(rate(freeze_cache_misses_total[5m])))
//
//   # Restore Failure Rate
//   sum(rate(freeze_restores_total{result="failed"}[5m])) / sum(rate(freeze_restores_total[5m]))
//
//   # P95 Restore Latency
//   histogram_quantile(0.95, rate(freeze_restore_duration_seconds_bucket[5m]))
//
//   # Quota Pressure
//   rate(freeze_cache_evictions_total[5m])
