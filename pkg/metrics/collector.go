package metrics

import "time"

// walSource is the subset of wal.Store the collector samples. Defined locally
// (rather than importing package wal) so metrics stays a leaf package: wal and
// multiplex both import metrics to record counters, so metrics must not import
// them back.
type walSource interface {
	PendingEntries() (int, error)
}

// bookmarksSource is the subset of bookmarks.Cache the collector samples.
type bookmarksSource interface {
	CachedRepos() int
}

// Collector periodically samples gauge-style metrics that aren't naturally
// updated at the call site (WAL backlog size, number of repos with a live
// bookmark snapshot cached).
type Collector struct {
	wal       walSource
	bookmarks bookmarksSource
	stopCh    chan struct{}
}

// NewCollector creates a metrics collector. Either source may be nil, in which
// case the corresponding gauge is left untouched.
func NewCollector(wal walSource, bookmarks bookmarksSource) *Collector {
	return &Collector{
		wal:       wal,
		bookmarks: bookmarks,
		stopCh:    make(chan struct{}),
	}
}

// Start begins periodic collection in a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts periodic collection.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.wal != nil {
		if pending, err := c.wal.PendingEntries(); err == nil {
			WALPendingEntries.Set(float64(pending))
		}
	}
	if c.bookmarks != nil {
		BookmarksCachedRepos.Set(float64(c.bookmarks.CachedRepos()))
	}
}
