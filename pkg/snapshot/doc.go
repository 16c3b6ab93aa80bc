// Package snapshot provides the page snapshot cache behind freeze navigation.
//
// A Store keeps an ordered sequence of Snapshots, one per cache key, and
// persists the whole sequence as a single blob under a fixed storage key of a
// Backend. Every Upsert reads the blob, mutates it in memory and writes it back.
//
// Features:
//
// - Deterministic cache keys (path plus query string, fragments ignored)
// - Replace-not-duplicate upserts
// - Oldest-first eviction when the backend reports a quota failure
// - Fail-soft loading of corrupted or outdated blobs
// - Memory, Redis and SQLite backends
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	backend := snapshot.NewMemoryBackend(5 << 20)
//	store := snapshot.NewStore(backend)
//
//	snap := &snapshot.Snapshot{
//		CacheKey: snapshot.Key(pageURL),
//		Content:  body,
//		Title:    title,
//	}
//	if err := store.Upsert(ctx, snap); err != nil {
//		// backend failure other than quota
//	}
//
//	cached, err := store.Get(ctx, snapshot.Key(targetURL))
//	if errors.Is(err, snapshot.ErrCacheMiss) {
//		// default navigation
//	}
//
// # Shared Storage Scope
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	backend := snapshot.NewRedisBackend(redisClient, snapshot.WithMaxBlobBytes(5<<20))
//	store := snapshot.NewStore(backend, snapshot.WithStorageKey("freeze:tab-scope"))
//
// Writers sharing a storage key race with last-writer-wins semantics. The cache
// is best-effort and never authoritative.
//
// # Metrics
//
//   - freeze_cache_hits_total - Store lookups that found a snapshot
//   - freeze_cache_misses_total - Store lookups without a snapshot
//   - freeze_cache_evictions_total - Snapshots evicted under quota pressure
//   - freeze_cache_dropped_total - Upserts abandoned after evicting everything
//   - freeze_cache_blob_bytes - Size of the last persisted blob
//   - freeze_cache_entries - Snapshots in the last persisted blob
//   - freeze_cache_errors_total{operation} - Backend and decode errors
package snapshot
