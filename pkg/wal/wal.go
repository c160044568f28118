// Package wal defines the write-ahead log contract the multiplex uses to
// record a put before it touches any underlying blobstore. Entries are
// appended durably, scanned in id order for reconciliation, and deleted in
// bulk (best-effort) once every destination store has acknowledged.
package wal

import (
	"context"
	"time"

	"github.com/cuemby/mononoke-wal/pkg/blobtypes"
)

// ReadInfo optionally tags an entry with an opaque request identity, used by
// callers that want to correlate a WAL row back to the read session that
// produced it.
type ReadInfo struct {
	ID    string
	Shard int
}

// Entry is one WAL row: enough to replay or reconcile a single put.
type Entry struct {
	MultiplexID blobtypes.MultiplexId
	Key         blobtypes.BlobKey
	Timestamp   time.Time
	BlobSize    uint64
	ReadInfo    *ReadInfo
}

// LoggedEntry pairs an Entry with the id it was assigned by Log.
type LoggedEntry struct {
	ID    uint64
	Entry Entry
}

// Store is the append-only log contract. Implementations must make Log
// durable before returning: a put that observes a successful Log call may
// rely on the entry surviving a crash.
type Store interface {
	// Log durably appends entry and returns its monotonically increasing id.
	Log(ctx context.Context, entry Entry) (uint64, error)

	// ReadNext returns up to limit entries with id > fromID, ordered by id.
	ReadNext(ctx context.Context, fromID uint64, limit int) ([]LoggedEntry, error)

	// DeleteByID best-effort deletes the given entry ids. Failure to delete is
	// never surfaced to the put caller; it only means a healer will see the
	// entry again later.
	DeleteByID(ctx context.Context, ids []uint64) error

	// PendingEntries reports how many entries have not yet been deleted.
	// Implementations may report an upper bound rather than an exact count.
	PendingEntries() (int, error)

	// Close releases the underlying log storage.
	Close() error
}
