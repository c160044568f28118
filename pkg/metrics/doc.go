/*
Package metrics provides Prometheus metrics collection and exposition for the
blobstore, plus a small health-check registry used by the bootstrap harness's
/health and /ready endpoints.

# Metrics

WAL: blobstore_wal_appends_total, blobstore_wal_append_duration_seconds,
blobstore_wal_deletes_total, blobstore_wal_pending_entries.

Multiplex (WMB): blobstore_multiplex_{puts,gets,is_present}_total,
blobstore_multiplex_{put,get}_duration_seconds, blobstore_store_operation_duration_seconds
and blobstore_store_operations_total labeled by blobstore_id/operation/result.

Bookmarks cache (BC): blobstore_bookmarks_cache_hits_total,
blobstore_bookmarks_cache_refills_total, blobstore_bookmarks_refill_duration_seconds,
blobstore_bookmarks_cache_purges_total.

# Usage

	timer := metrics.NewTimer()
	err := store.Put(ctx, key, data)
	result := "ok"
	if err != nil {
		result = "error"
	}
	timer.ObserveDurationVec(metrics.MultiplexPutDuration, result)
	metrics.MultiplexPutsTotal.WithLabelValues(result).Inc()

# Health

	metrics.RegisterComponent("wal", true, "")
	metrics.RegisterComponent("bookmarks", true, "")
	http.Handle("/health", metrics.HealthHandler())
	http.Handle("/ready", metrics.ReadyHandler())
	http.Handle("/metrics", metrics.Handler())

GetReadiness checks a fixed list of critical components ("wal", "bookmarks"); a
component that has never called RegisterComponent is treated as not ready.
*/
package metrics
