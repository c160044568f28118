// Package bookmarks implements the bookmarks cache (BC): a per-repository,
// memoized snapshot of the full bookmark-to-changeset map layered over a
// Backend, with replica/master read routing and write-after-read consistency
// for the writer.
package bookmarks

import (
	"context"

	"github.com/cuemby/mononoke-wal/pkg/blobtypes"
)

// Entry is one bookmark-to-changeset mapping.
type Entry struct {
	Name      string
	Changeset blobtypes.ChangesetId
}

// Backend is the backing bookmarks store the cache refills from and the
// transaction source it forwards writes to. maybeStale selects replica (true)
// vs master (false) routing for the listing.
type Backend interface {
	ListByPrefix(ctx context.Context, repo blobtypes.RepositoryId, prefix string, maybeStale bool) ([]Entry, error)
	CreateTransaction(ctx context.Context, repo blobtypes.RepositoryId) (Transaction, error)
}

// Transaction stages bookmark mutations in memory until Commit.
type Transaction interface {
	Create(name string, cs blobtypes.ChangesetId) error
	Update(name string, from, to blobtypes.ChangesetId) error
	Delete(name string, from blobtypes.ChangesetId) error
	ForceSet(name string, cs blobtypes.ChangesetId) error
	// Commit applies the staged mutations. A false result with a nil error is
	// a conflict (a staged Create's bookmark already exists, or a staged
	// Update/Delete's expected prior value no longer matches), not a failure.
	Commit(ctx context.Context) (bool, error)
}
