package bookmarks

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/mononoke-wal/pkg/blobtypes"
	"github.com/cuemby/mononoke-wal/pkg/metrics"
	"github.com/cuemby/mononoke-wal/pkg/sharedfuture"
)

// Config parameterizes a Cache.
type Config struct {
	// TTL is how long a cache entry is trusted before the next read forces a
	// refill.
	TTL time.Duration
}

type cacheEntry struct {
	expiresAt  time.Time
	maybeStale bool
	pending    *sharedfuture.Future[[]Entry]
}

// Cache is the bookmarks cache (BC): one in-flight-or-fresh snapshot per
// repository, shared by every concurrent reader.
type Cache struct {
	backend Backend
	ttl     time.Duration

	mu      sync.Mutex
	entries map[blobtypes.RepositoryId]*cacheEntry
}

// New wraps backend with a cache whose entries are trusted for cfg.TTL.
func New(backend Backend, cfg Config) *Cache {
	return &Cache{
		backend: backend,
		ttl:     cfg.TTL,
		entries: make(map[blobtypes.RepositoryId]*cacheEntry),
	}
}

// newEntry starts a refill for repo and installs it as the current entry.
// Must be called with c.mu held.
func (c *Cache) newEntry(repo blobtypes.RepositoryId, maybeStale bool, now time.Time) *cacheEntry {
	source := "master"
	if maybeStale {
		source = "replica"
	}

	future := sharedfuture.New(context.Background(), func(ctx context.Context) ([]Entry, error) {
		timer := metrics.NewTimer()
		entries, err := c.backend.ListByPrefix(ctx, repo, "", maybeStale)
		timer.ObserveDurationVec(metrics.BookmarksRefillDuration, source)
		result := "ok"
		if err != nil {
			result = "err"
		}
		metrics.BookmarksCacheRefillsTotal.WithLabelValues(source, result).Inc()
		return entries, err
	})

	entry := &cacheEntry{expiresAt: now.Add(c.ttl), maybeStale: maybeStale, pending: future}
	c.entries[repo] = entry
	metrics.BookmarksCachedRepos.Set(float64(len(c.entries)))
	return entry
}

// getOrCreate runs the §4.5.1 policy: only the map lookup/insert/replace runs
// under the lock, never the wait on pending.
func (c *Cache) getOrCreate(repo blobtypes.RepositoryId) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	existing, ok := c.entries[repo]
	if !ok {
		return c.newEntry(repo, true, now)
	}

	_, err, ready := existing.pending.Peek()
	cacheFailed := ready && err != nil

	if !existing.expiresAt.After(now) || cacheFailed {
		// keep asking master only if we were asking master and it failed
		nextMaybeStale := !cacheFailed || existing.maybeStale
		return c.newEntry(repo, nextMaybeStale, now)
	}

	metrics.BookmarksCacheHitsTotal.Inc()
	return existing
}

// purgeCache forces the next read to see master. Called after a successful
// transaction commit.
func (c *Cache) purgeCache(repo blobtypes.RepositoryId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newEntry(repo, false, time.Now())
	metrics.BookmarksCachePurgesTotal.Inc()
}

// ListByPrefixMaybeStale returns the entries in [prefix, prefix-upper-bound)
// from the repo's current cached snapshot, refilling it first if needed.
func (c *Cache) ListByPrefixMaybeStale(ctx context.Context, repo blobtypes.RepositoryId, prefix string) ([]Entry, error) {
	entry := c.getOrCreate(repo)
	snapshot, err := entry.pending.Wait(ctx)
	if err != nil {
		return nil, err
	}

	lo, hi := prefixRange(prefix)
	out := make([]Entry, 0, len(snapshot))
	for _, e := range snapshot {
		if e.Name < lo {
			continue
		}
		if hi != "" && e.Name >= hi {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// prefixRange computes the half-open byte range [lo, hi) covering every
// string with the given prefix. hi is "" when the prefix is all 0xff bytes
// (no finite upper bound exists).
func prefixRange(prefix string) (lo, hi string) {
	if prefix == "" {
		return "", ""
	}
	upper := []byte(prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return prefix, string(upper[:i+1])
		}
	}
	return prefix, ""
}

// CreateTransaction starts a transaction that purges repo's cache entry on a
// successful commit.
func (c *Cache) CreateTransaction(ctx context.Context, repo blobtypes.RepositoryId) (Transaction, error) {
	inner, err := c.backend.CreateTransaction(ctx, repo)
	if err != nil {
		return nil, err
	}
	return &cachedTransaction{inner: inner, cache: c, repo: repo}, nil
}

// CachedRepos reports how many repositories currently have a cache entry
// (pending, valid or failed).
func (c *Cache) CachedRepos() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cachedTransaction forwards every mutation to inner and purges the cache
// only after a successful commit. It holds a plain *Cache, never the whole
// Backend, so the transaction cannot outlive or re-enter backend internals.
type cachedTransaction struct {
	inner Transaction
	cache *Cache
	repo  blobtypes.RepositoryId
}

func (t *cachedTransaction) Create(name string, cs blobtypes.ChangesetId) error {
	return t.inner.Create(name, cs)
}

func (t *cachedTransaction) Update(name string, from, to blobtypes.ChangesetId) error {
	return t.inner.Update(name, from, to)
}

func (t *cachedTransaction) Delete(name string, from blobtypes.ChangesetId) error {
	return t.inner.Delete(name, from)
}

func (t *cachedTransaction) ForceSet(name string, cs blobtypes.ChangesetId) error {
	return t.inner.ForceSet(name, cs)
}

func (t *cachedTransaction) Commit(ctx context.Context) (bool, error) {
	ok, err := t.inner.Commit(ctx)
	if err != nil {
		return false, err
	}
	if ok {
		t.cache.purgeCache(t.repo)
	}
	return ok, nil
}
