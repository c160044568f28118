package bookmarks

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/mononoke-wal/pkg/blobfail"
	"github.com/cuemby/mononoke-wal/pkg/blobtypes"
)

var bucketBookmarks = []byte("bookmarks")

// BoltBackend is a bbolt-backed Backend: one bucket, keyed by
// "<repo>/<name>", valued by the hex-encoded changeset id. It does not
// distinguish replica from master (there is only one copy of the data); the
// maybeStale parameter is accepted for interface compatibility but read from
// the same store either way.
type BoltBackend struct {
	db *bolt.DB
	// txMu serializes the check-then-apply step of transaction commits; bbolt
	// already serializes writers, but a commit needs to read and write
	// multiple keys atomically across that single writer transaction, which
	// db.Update already does by itself. txMu additionally protects ordering
	// between concurrently constructed transactions that touch overlapping keys.
	txMu sync.Mutex
}

// OpenBolt opens (creating if absent) a bbolt database at path as a
// bookmarks backend.
func OpenBolt(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("bookmarks: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBookmarks)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bookmarks: create bucket: %w", err)
	}
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Close() error { return b.db.Close() }

func bookmarkKey(repo blobtypes.RepositoryId, name string) []byte {
	return []byte(fmt.Sprintf("%d/%s", repo, name))
}

func (b *BoltBackend) ListByPrefix(ctx context.Context, repo blobtypes.RepositoryId, prefix string, maybeStale bool) ([]Entry, error) {
	repoPrefix := fmt.Sprintf("%d/", repo)
	var entries []Entry
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketBookmarks)
		c := bk.Cursor()
		seek := []byte(repoPrefix + prefix)
		for k, v := c.Seek(seek); k != nil && strings.HasPrefix(string(k), repoPrefix); k, v = c.Next() {
			name := strings.TrimPrefix(string(k), repoPrefix)
			if !strings.HasPrefix(name, prefix) {
				if name > prefix {
					break
				}
				continue
			}
			cs, err := decodeChangeset(v)
			if err != nil {
				return err
			}
			entries = append(entries, Entry{Name: name, Changeset: cs})
		}
		return nil
	})
	if err != nil {
		return nil, blobfail.Wrap(blobfail.KindInternal, "bookmarks list_by_prefix", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func decodeChangeset(v []byte) (blobtypes.ChangesetId, error) {
	var cs blobtypes.ChangesetId
	decoded, err := hex.DecodeString(string(v))
	if err != nil || len(decoded) != len(cs) {
		return cs, fmt.Errorf("bookmarks: corrupt changeset value %q", v)
	}
	copy(cs[:], decoded)
	return cs, nil
}

type boltOp struct {
	kind constraintKind
	name string
	from blobtypes.ChangesetId
	to   blobtypes.ChangesetId
}

type constraintKind int

const (
	opCreate constraintKind = iota
	opUpdate
	opDelete
	opForceSet
)

// boltTransaction stages mutations and applies them compare-and-swap style
// on Commit, inside a single bbolt writer transaction.
type boltTransaction struct {
	backend *BoltBackend
	repo    blobtypes.RepositoryId
	ops     []boltOp
}

func (b *BoltBackend) CreateTransaction(ctx context.Context, repo blobtypes.RepositoryId) (Transaction, error) {
	return &boltTransaction{backend: b, repo: repo}, nil
}

func (t *boltTransaction) Create(name string, cs blobtypes.ChangesetId) error {
	t.ops = append(t.ops, boltOp{kind: opCreate, name: name, to: cs})
	return nil
}

func (t *boltTransaction) Update(name string, from, to blobtypes.ChangesetId) error {
	t.ops = append(t.ops, boltOp{kind: opUpdate, name: name, from: from, to: to})
	return nil
}

func (t *boltTransaction) Delete(name string, from blobtypes.ChangesetId) error {
	t.ops = append(t.ops, boltOp{kind: opDelete, name: name, from: from})
	return nil
}

func (t *boltTransaction) ForceSet(name string, cs blobtypes.ChangesetId) error {
	t.ops = append(t.ops, boltOp{kind: opForceSet, name: name, to: cs})
	return nil
}

// Commit applies every staged op inside one bbolt writer transaction. If any
// Create/Update/Delete's precondition no longer holds, the whole transaction
// is rejected as a conflict (false, nil) rather than partially applied.
func (t *boltTransaction) Commit(ctx context.Context) (bool, error) {
	t.backend.txMu.Lock()
	defer t.backend.txMu.Unlock()

	// errConflict aborts the bbolt transaction so that ops already applied
	// earlier in the loop are rolled back.
	errConflict := fmt.Errorf("bookmarks: transaction conflict")
	err := t.backend.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketBookmarks)
		for _, op := range t.ops {
			key := bookmarkKey(t.repo, op.name)
			existing := bk.Get(key)

			switch op.kind {
			case opCreate:
				if existing != nil {
					return errConflict
				}
			case opUpdate:
				cur, err := decodeChangeset(existing)
				if existing == nil || err != nil || cur != op.from {
					return errConflict
				}
			case opDelete:
				cur, err := decodeChangeset(existing)
				if existing == nil || err != nil || cur != op.from {
					return errConflict
				}
				if err := bk.Delete(key); err != nil {
					return err
				}
				continue
			}

			if err := bk.Put(key, []byte(hex.EncodeToString(op.to[:]))); err != nil {
				return err
			}
		}
		return nil
	})
	if err == errConflict {
		return false, nil
	}
	if err != nil {
		return false, blobfail.Wrap(blobfail.KindInternal, "bookmarks commit", err)
	}
	return true, nil
}
