// Package blobtypes holds the shared data types passed between the blobstore,
// multiplex, WAL and bookmarks packages. Keeping them in one leaf package (rather
// than on each owning package) avoids import cycles between multiplex, wal and
// blobstore/timed, all of which need the same key/value/status vocabulary.
package blobtypes

import "time"

// BlobKey identifies a blob within a repository-scoped namespace. Keys are
// opaque strings; callers are responsible for namespacing (e.g. "repo0042.hgchangeset.<hash>").
type BlobKey string

// BlobstoreId identifies one physical store behind a multiplex.
type BlobstoreId int16

// MultiplexId identifies a multiplex configuration (a fixed set of blobstores and
// a write quorum). Logged alongside every WAL entry so replayed entries can be
// traced back to the multiplex that wrote them.
type MultiplexId int32

// RepositoryId identifies a repository for bookmark lookups.
type RepositoryId int64

// ChangesetId is a 32-byte content hash identifying a commit.
type ChangesetId [32]byte

// OverwriteStatus reports what a Put actually did to the target key. Multiplexed
// puts that return early (before all stores have completed) report NotChecked.
type OverwriteStatus int

const (
	NotChecked OverwriteStatus = iota
	Overwrote
	NewEntry
	Prevented
)

func (s OverwriteStatus) String() string {
	switch s {
	case NotChecked:
		return "not_checked"
	case Overwrote:
		return "overwrote"
	case NewEntry:
		return "new_entry"
	case Prevented:
		return "prevented"
	default:
		return "unknown"
	}
}

// PutBehaviour controls how a single store's Put treats an existing value at the
// same key.
type PutBehaviour int

const (
	// Overwrite always writes, discarding any existing value.
	Overwrite PutBehaviour = iota
	// OverwriteAndLog writes and reports whether the put overwrote an existing
	// value (Overwrote) or created a new one (NewEntry).
	OverwriteAndLog
	// IfAbsent writes only if the key is not already present.
	IfAbsent
)

// GetData is the payload and metadata returned by a successful Get.
type GetData struct {
	Bytes []byte
	// CTime is the creation time recorded by the store, if it tracks one.
	CTime *time.Time
	// Sizes maps an arbitrary size-accounting label (e.g. "compressed",
	// "uncompressed") to a byte count, for stores that can report both.
	Sizes map[string]int64
}

// PresenceState is the tri-state result of an is_present check on one store.
type PresenceState int

const (
	Present PresenceState = iota
	Absent
	// ProbablyNotPresent is returned when the check could neither conclusively
	// prove absence nor confirm presence (e.g. some underlying stores timed out;
	// in comprehensive mode, some stores may have reported Present).
	ProbablyNotPresent
)

func (s PresenceState) String() string {
	switch s {
	case Present:
		return "present"
	case Absent:
		return "absent"
	case ProbablyNotPresent:
		return "probably_not_present"
	default:
		return "unknown"
	}
}

// IsPresent is the outcome of a multiplexed is_present call.
type IsPresent struct {
	State PresenceState
	// Err carries the aggregated error when State is ProbablyNotPresent.
	Err error
}
