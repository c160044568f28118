package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WAL metrics
	WALAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobstore_wal_appends_total",
			Help: "Total number of WAL entries appended, by result",
		},
		[]string{"result"},
	)

	WALAppendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blobstore_wal_append_duration_seconds",
			Help:    "Time taken to durably append a WAL entry",
			Buckets: prometheus.DefBuckets,
		},
	)

	WALDeletesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobstore_wal_deletes_total",
			Help: "Total number of WAL entries deleted after quorum completion, by result",
		},
		[]string{"result"},
	)

	WALPendingEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blobstore_wal_pending_entries",
			Help: "Number of WAL entries not yet deleted (best-effort, sampled)",
		},
	)

	// WMB (multiplex) metrics
	MultiplexPutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobstore_multiplex_puts_total",
			Help: "Total number of multiplexed put calls, by result",
		},
		[]string{"result"},
	)

	MultiplexPutDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blobstore_multiplex_put_duration_seconds",
			Help:    "Time for a multiplexed put to reach write quorum",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	MultiplexGetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobstore_multiplex_gets_total",
			Help: "Total number of multiplexed get calls, by result",
		},
		[]string{"result"},
	)

	MultiplexGetDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blobstore_multiplex_get_duration_seconds",
			Help:    "Time for a multiplexed get to resolve",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	MultiplexIsPresentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobstore_multiplex_is_present_total",
			Help: "Total number of multiplexed is_present calls, by result",
		},
		[]string{"result"},
	)

	BlobstoreOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blobstore_store_operation_duration_seconds",
			Help:    "Time for a single underlying blobstore operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"blobstore_id", "operation", "result"},
	)

	BlobstoreOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobstore_store_operations_total",
			Help: "Total number of single-store operations, by blobstore, operation and result",
		},
		[]string{"blobstore_id", "operation", "result"},
	)

	// Bookmarks cache metrics
	BookmarksCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blobstore_bookmarks_cache_hits_total",
			Help: "Total number of bookmark reads served from a non-expired cache entry",
		},
	)

	BookmarksCacheRefillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobstore_bookmarks_cache_refills_total",
			Help: "Total number of bookmark cache refills, by source and result",
		},
		[]string{"source", "result"},
	)

	BookmarksRefillDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blobstore_bookmarks_refill_duration_seconds",
			Help:    "Time taken to refill the bookmarks snapshot for a repository",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	BookmarksCachePurgesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blobstore_bookmarks_cache_purges_total",
			Help: "Total number of cache purges following a successful transaction commit",
		},
	)

	BookmarksCachedRepos = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blobstore_bookmarks_cached_repos",
			Help: "Number of repositories with a live bookmark snapshot cached",
		},
	)
)

func init() {
	prometheus.MustRegister(WALAppendsTotal)
	prometheus.MustRegister(WALAppendDuration)
	prometheus.MustRegister(WALDeletesTotal)
	prometheus.MustRegister(WALPendingEntries)

	prometheus.MustRegister(MultiplexPutsTotal)
	prometheus.MustRegister(MultiplexPutDuration)
	prometheus.MustRegister(MultiplexGetsTotal)
	prometheus.MustRegister(MultiplexGetDuration)
	prometheus.MustRegister(MultiplexIsPresentTotal)
	prometheus.MustRegister(BlobstoreOpDuration)
	prometheus.MustRegister(BlobstoreOpsTotal)

	prometheus.MustRegister(BookmarksCacheHitsTotal)
	prometheus.MustRegister(BookmarksCacheRefillsTotal)
	prometheus.MustRegister(BookmarksRefillDuration)
	prometheus.MustRegister(BookmarksCachePurgesTotal)
	prometheus.MustRegister(BookmarksCachedRepos)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
