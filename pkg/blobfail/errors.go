// Package blobfail defines the shared error taxonomy used across the blobstore,
// multiplex, WAL and bookmarks packages. Errors are a tagged Kind plus, where the
// failure came from fanning out across multiple stores, a map of per-store causes
// — a flat variant set rather than a wrapped-exception hierarchy, grounded on the
// map-of-BlobstoreId-to-error shape the multiplex component's put/get/is_present
// paths all produce.
package blobfail

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cuemby/mononoke-wal/pkg/blobtypes"
)

// Kind tags an error without requiring a type switch on concrete error types.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindTimeout
	KindWalWriteFailed
	KindAllFailed
	KindSomePutsFailed
	KindSomeGetsFailed
	KindSomeIsPresentsFailed
	KindInvalidPath
	KindInvalidCopy
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	case KindWalWriteFailed:
		return "wal_write_failed"
	case KindAllFailed:
		return "all_failed"
	case KindSomePutsFailed:
		return "some_puts_failed"
	case KindSomeGetsFailed:
		return "some_gets_failed"
	case KindSomeIsPresentsFailed:
		return "some_is_presents_failed"
	case KindInvalidPath:
		return "invalid_path"
	case KindInvalidCopy:
		return "invalid_copy"
	default:
		return "internal"
	}
}

// AggregateError is the result of fanning a call out across several blobstores
// and having at least one of them fail. PerStore is never mutated after
// construction, so sharing one AggregateError across goroutines is safe without
// further synchronization.
type AggregateError struct {
	Kind     Kind
	PerStore map[blobtypes.BlobstoreId]error
}

func (e *AggregateError) Error() string {
	ids := make([]blobtypes.BlobstoreId, 0, len(e.PerStore))
	for id := range e.PerStore {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("store %d: %v", id, e.PerStore[id]))
	}
	return fmt.Sprintf("%s: %s", e.Kind, strings.Join(parts, "; "))
}

// Unwrap exposes every per-store cause so errors.Is/errors.As can reach into them.
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, 0, len(e.PerStore))
	for _, err := range e.PerStore {
		errs = append(errs, err)
	}
	return errs
}

// NewAggregate classifies a per-store error map as AllFailed if every known
// store failed, or the given partial kind otherwise.
func NewAggregate(partial Kind, perStore map[blobtypes.BlobstoreId]error, totalStores int) *AggregateError {
	kind := partial
	if len(perStore) == totalStores && totalStores > 0 {
		kind = KindAllFailed
	}
	return &AggregateError{Kind: kind, PerStore: perStore}
}

// simple is a plain tagged error without per-store detail (NotFound, Timeout,
// WalWriteFailed, InvalidPath, InvalidCopy, Internal).
type simple struct {
	kind Kind
	msg  string
	// cause, when set, is surfaced through Unwrap for errors.Is/errors.As chains.
	cause error
}

func (e *simple) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *simple) Unwrap() error { return e.cause }

func New(kind Kind, msg string) error {
	return &simple{kind: kind, msg: msg}
}

func Wrap(kind Kind, msg string, cause error) error {
	return &simple{kind: kind, msg: msg, cause: cause}
}

// NotFound reports that a key has no value in any consulted store.
func NotFound(key blobtypes.BlobKey) error {
	return New(KindNotFound, fmt.Sprintf("blob not found: %s", key))
}

// KindOf recovers the Kind from any error produced by this package, falling back
// to KindInternal for errors it doesn't recognize.
func KindOf(err error) Kind {
	var agg *AggregateError
	if errors.As(err, &agg) {
		return agg.Kind
	}
	var s *simple
	if errors.As(err, &s) {
		return s.kind
	}
	return KindInternal
}
