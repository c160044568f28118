// Package memblob is an in-memory Store, used by tests and as a write-only
// or main backend in throwaway bootstrap configurations.
package memblob

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/mononoke-wal/pkg/blobtypes"
)

type entry struct {
	bytes []byte
	ctime time.Time
}

// Store is a map-backed blobstore.Store guarded by a single RWMutex.
type Store struct {
	mu   sync.RWMutex
	data map[blobtypes.BlobKey]entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[blobtypes.BlobKey]entry)}
}

func (s *Store) Get(ctx context.Context, key blobtypes.BlobKey) (*blobtypes.GetData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	ctime := e.ctime
	return &blobtypes.GetData{
		Bytes: e.bytes,
		CTime: &ctime,
		Sizes: map[string]int64{"uncompressed": int64(len(e.bytes))},
	}, nil
}

func (s *Store) Put(ctx context.Context, key blobtypes.BlobKey, data []byte) error {
	_, err := s.PutWithStatus(ctx, key, data)
	return err
}

func (s *Store) PutWithStatus(ctx context.Context, key blobtypes.BlobKey, data []byte) (blobtypes.OverwriteStatus, error) {
	return s.PutExplicit(ctx, key, data, blobtypes.OverwriteAndLog)
}

func (s *Store) PutExplicit(ctx context.Context, key blobtypes.BlobKey, data []byte, behaviour blobtypes.PutBehaviour) (blobtypes.OverwriteStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.data[key]

	switch behaviour {
	case blobtypes.IfAbsent:
		if existed {
			return blobtypes.Prevented, nil
		}
		s.data[key] = entry{bytes: data, ctime: time.Now()}
		return blobtypes.NewEntry, nil
	case blobtypes.OverwriteAndLog:
		s.data[key] = entry{bytes: data, ctime: time.Now()}
		if existed {
			return blobtypes.Overwrote, nil
		}
		return blobtypes.NewEntry, nil
	default: // Overwrite
		s.data[key] = entry{bytes: data, ctime: time.Now()}
		return blobtypes.NotChecked, nil
	}
}

func (s *Store) IsPresent(ctx context.Context, key blobtypes.BlobKey) (blobtypes.IsPresent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.data[key]; ok {
		return blobtypes.IsPresent{State: blobtypes.Present}, nil
	}
	return blobtypes.IsPresent{State: blobtypes.Absent}, nil
}
