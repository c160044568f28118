// Package boltwal implements pkg/wal.Store on top of hashicorp/raft-boltdb's
// BoltStore. raft-boltdb already gives an fsync'd, index-ordered,
// range-deletable log backed by bbolt — exactly the log/read_next/delete_by_id
// contract the WAL needs — so this package wraps it rather than reimplementing
// a durable log from scratch. raft.Log's Term and Type fields are unused fixed
// values; there is no consensus group here, only the on-disk log format.
package boltwal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/cuemby/mononoke-wal/pkg/blobfail"
	"github.com/cuemby/mononoke-wal/pkg/metrics"
	"github.com/cuemby/mononoke-wal/pkg/wal"
)

// fixedTerm is the constant Term every entry is stored with; it carries no
// meaning outside of satisfying raft.Log's shape.
const fixedTerm = 1

// Store adapts a raftboltdb.BoltStore into a wal.Store. raft-boltdb's
// LogStore API assumes a single writer; mu serializes the
// read-last-index/store-log sequence in Log so concurrent appenders can't
// race onto the same index.
type Store struct {
	mu   sync.Mutex
	logs *raftboltdb.BoltStore
}

// Open opens (creating if absent) a bolt-backed WAL at path.
func Open(path string) (*Store, error) {
	logs, err := raftboltdb.NewBoltStore(path)
	if err != nil {
		return nil, fmt.Errorf("boltwal: open %s: %w", path, err)
	}
	return &Store{logs: logs}, nil
}

func (s *Store) Close() error {
	return s.logs.Close()
}

func (s *Store) Log(ctx context.Context, entry wal.Entry) (uint64, error) {
	timer := metrics.NewTimer()

	s.mu.Lock()
	defer s.mu.Unlock()

	last, err := s.logs.LastIndex()
	if err != nil {
		metrics.WALAppendsTotal.WithLabelValues("err").Inc()
		return 0, blobfail.Wrap(blobfail.KindWalWriteFailed, "read last WAL index", err)
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		metrics.WALAppendsTotal.WithLabelValues("err").Inc()
		return 0, blobfail.Wrap(blobfail.KindWalWriteFailed, "encode WAL entry", err)
	}

	id := last + 1
	rec := &raft.Log{Index: id, Term: fixedTerm, Type: raft.LogCommand, Data: payload}
	if err := s.logs.StoreLog(rec); err != nil {
		metrics.WALAppendsTotal.WithLabelValues("err").Inc()
		return 0, blobfail.Wrap(blobfail.KindWalWriteFailed, "durably append WAL entry", err)
	}

	timer.ObserveDuration(metrics.WALAppendDuration)
	metrics.WALAppendsTotal.WithLabelValues("ok").Inc()
	return id, nil
}

func (s *Store) ReadNext(ctx context.Context, fromID uint64, limit int) ([]wal.LoggedEntry, error) {
	last, err := s.logs.LastIndex()
	if err != nil {
		return nil, blobfail.Wrap(blobfail.KindInternal, "read last WAL index", err)
	}

	var out []wal.LoggedEntry
	for id := fromID + 1; id <= last && len(out) < limit; id++ {
		var rec raft.Log
		if err := s.logs.GetLog(id, &rec); err != nil {
			if err == raft.ErrLogNotFound {
				continue
			}
			return nil, blobfail.Wrap(blobfail.KindInternal, fmt.Sprintf("read WAL entry %d", id), err)
		}
		var entry wal.Entry
		if err := json.Unmarshal(rec.Data, &entry); err != nil {
			return nil, blobfail.Wrap(blobfail.KindInternal, fmt.Sprintf("decode WAL entry %d", id), err)
		}
		out = append(out, wal.LoggedEntry{ID: rec.Index, Entry: entry})
	}
	return out, nil
}

func (s *Store) DeleteByID(ctx context.Context, ids []uint64) error {
	var firstErr error
	for _, id := range ids {
		if err := s.logs.DeleteRange(id, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	result := "ok"
	if firstErr != nil {
		result = "err"
	}
	metrics.WALDeletesTotal.WithLabelValues(result).Inc()
	if firstErr != nil {
		return blobfail.Wrap(blobfail.KindInternal, "delete WAL entries", firstErr)
	}
	return nil
}

// PendingEntries reports how many ids lie between the oldest surviving entry
// and the newest, inclusive; deleted ids inside that range (non-contiguous
// deletes) are not distinguishable from this index pair alone, so this is an
// upper bound, not an exact live count.
func (s *Store) PendingEntries() (int, error) {
	first, err := s.logs.FirstIndex()
	if err != nil {
		return 0, err
	}
	last, err := s.logs.LastIndex()
	if err != nil {
		return 0, err
	}
	if last < first || first == 0 {
		return 0, nil
	}
	return int(last-first) + 1, nil
}
