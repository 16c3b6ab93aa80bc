package snapshot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks store lookups that found a snapshot
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "freeze_cache_hits_total",
			Help: "Total number of snapshot cache hits",
		},
	)

	// CacheMisses tracks store lookups without a snapshot
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "freeze_cache_misses_total",
			Help: "Total number of snapshot cache misses",
		},
	)

	// Evictions tracks snapshots evicted under quota pressure
	Evictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "freeze_cache_evictions_total",
			Help: "Total number of snapshots evicted after a quota failure",
		},
	)

	// Dropped tracks upserts abandoned after the sequence emptied
	Dropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "freeze_cache_dropped_total",
			Help: "Total number of snapshots dropped because nothing fit the quota",
		},
	)

	// BlobSize tracks the size of the last persisted blob
	BlobSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "freeze_cache_blob_bytes",
			Help: "Size of the last persisted snapshot blob in bytes",
		},
	)

	// Entries tracks the number of snapshots in the last persisted blob
	Entries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "freeze_cache_entries",
			Help: "Number of snapshots in the last persisted blob",
		},
	)

	// CacheErrors tracks backend and decode errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freeze_cache_errors_total",
			Help: "Total number of snapshot store errors",
		},
		[]string{"operation"}, // "load", "decode", "save", "delete", "compact"
	)
)
