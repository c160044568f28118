// Package boltblob is a bbolt-backed Store: a single bucket keyed by BlobKey,
// values JSON-encoded, mirroring the bucket-per-entity pattern the teacher's
// BoltStore uses for its entity tables.
package boltblob

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/mononoke-wal/pkg/blobfail"
	"github.com/cuemby/mononoke-wal/pkg/blobtypes"
)

var bucketBlobs = []byte("blobs")

type record struct {
	Bytes []byte    `json:"bytes"`
	CTime time.Time `json:"ctime"`
}

// Store is a bbolt-backed blobstore.Store.
type Store struct {
	db *bolt.DB
}

// New opens (creating if absent) a bbolt database at path and ensures the
// blobs bucket exists.
func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltblob: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlobs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltblob: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key blobtypes.BlobKey) (*blobtypes.GetData, error) {
	var rec *record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		rec = &record{}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, blobfail.Wrap(blobfail.KindInternal, "boltblob get", err)
	}
	if rec == nil {
		return nil, nil
	}
	ctime := rec.CTime
	return &blobtypes.GetData{
		Bytes: rec.Bytes,
		CTime: &ctime,
		Sizes: map[string]int64{"uncompressed": int64(len(rec.Bytes))},
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
	status := blobtypes.NotChecked
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		existing := b.Get([]byte(key))
		existed := existing != nil

		if behaviour == blobtypes.IfAbsent && existed {
			status = blobtypes.Prevented
			return nil
		}

		rec := record{Bytes: data, CTime: time.Now()}
		encoded, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(key), encoded); err != nil {
			return err
		}

		switch behaviour {
		case blobtypes.OverwriteAndLog, blobtypes.IfAbsent:
			if existed {
				status = blobtypes.Overwrote
			} else {
				status = blobtypes.NewEntry
			}
		default:
			status = blobtypes.NotChecked
		}
		return nil
	})
	if err != nil {
		return blobtypes.NotChecked, blobfail.Wrap(blobfail.KindInternal, "boltblob put", err)
	}
	return status, nil
}

func (s *Store) IsPresent(ctx context.Context, key blobtypes.BlobKey) (blobtypes.IsPresent, error) {
	present := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		present = b.Get([]byte(key)) != nil
		return nil
	})
	if err != nil {
		wrapped := blobfail.Wrap(blobfail.KindInternal, "boltblob is_present", err)
		return blobtypes.IsPresent{State: blobtypes.ProbablyNotPresent, Err: wrapped}, wrapped
	}
	if present {
		return blobtypes.IsPresent{State: blobtypes.Present}, nil
	}
	return blobtypes.IsPresent{State: blobtypes.Absent}, nil
}
