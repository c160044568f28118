// Package blobstore defines the single-backend blob store contract (SB) that
// every multiplex member implements: get, the three put variants, and
// is_present. Concrete backends live in subpackages (memblob, fileblob,
// boltblob); pkg/multiplex holds them only through this interface.
package blobstore

import (
	"context"

	"github.com/cuemby/mononoke-wal/pkg/blobtypes"
)

// Store is a single blob backend. Implementations must be safe for concurrent
// use by multiple goroutines.
type Store interface {
	// Get returns the blob for key, or nil with a nil error if the key provably
	// does not exist.
	Get(ctx context.Context, key blobtypes.BlobKey) (*blobtypes.GetData, error)

	// Put writes bytes under key using OverwriteAndLog behaviour.
	Put(ctx context.Context, key blobtypes.BlobKey, data []byte) error

	// PutExplicit writes bytes under key using the given behaviour and reports
	// what happened to any prior value.
	PutExplicit(ctx context.Context, key blobtypes.BlobKey, data []byte, behaviour blobtypes.PutBehaviour) (blobtypes.OverwriteStatus, error)

	// PutWithStatus writes using the store's default behaviour (OverwriteAndLog)
	// and reports the resulting status; this is the call the multiplex issues
	// on every TS during a quorum put.
	PutWithStatus(ctx context.Context, key blobtypes.BlobKey, data []byte) (blobtypes.OverwriteStatus, error)

	// IsPresent reports whether key exists. ProbablyNotPresent is returned when
	// the backend cannot answer authoritatively.
	IsPresent(ctx context.Context, key blobtypes.BlobKey) (blobtypes.IsPresent, error)
}
