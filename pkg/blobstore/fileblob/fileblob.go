// Package fileblob is a filesystem-backed Store. Keys are translated to
// on-disk paths with pkg/fsencode, matching the fncache-encoded layout real
// Mercurial file stores use.
package fileblob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuemby/mononoke-wal/pkg/blobfail"
	"github.com/cuemby/mononoke-wal/pkg/blobtypes"
	"github.com/cuemby/mononoke-wal/pkg/fsencode"
	"github.com/cuemby/mononoke-wal/pkg/mpath"
)

// Store writes one file per key under Root, named by the fncache encoding of
// the key treated as a repository path.
type Store struct {
	root      string
	dotencode bool
	// mu serializes put-then-check sequences for IfAbsent/OverwriteAndLog; the
	// filesystem itself has no atomic "check and write" primitive we can rely
	// on portably.
	mu sync.Mutex
}

// New creates a Store rooted at dir, creating the directory if absent.
func New(dir string, dotencode bool) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fileblob: create root %s: %w", dir, err)
	}
	return &Store{root: dir, dotencode: dotencode}, nil
}

func (s *Store) pathFor(key blobtypes.BlobKey) (string, error) {
	p, err := mpath.New(string(key))
	if err != nil {
		return "", blobfail.Wrap(blobfail.KindInvalidPath, "invalid blob key", err)
	}
	rel := string(fsencode.FncacheEncode(p, s.dotencode))
	return filepath.Join(s.root, filepath.FromSlash(rel)), nil
}

func (s *Store) Get(ctx context.Context, key blobtypes.BlobKey) (*blobtypes.GetData, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, blobfail.Wrap(blobfail.KindInternal, "stat blob", err)
	}
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, blobfail.Wrap(blobfail.KindInternal, "read blob", err)
	}
	ctime := info.ModTime()
	return &blobtypes.GetData{
		Bytes: bytes,
		CTime: &ctime,
		Sizes: map[string]int64{"uncompressed": int64(len(bytes))},
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
	path, err := s.pathFor(key)
	if err != nil {
		return blobtypes.NotChecked, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, statErr := os.Stat(path)
	existed := statErr == nil

	if behaviour == blobtypes.IfAbsent && existed {
		return blobtypes.Prevented, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return blobtypes.NotChecked, blobfail.Wrap(blobfail.KindInternal, "create blob dir", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return blobtypes.NotChecked, blobfail.Wrap(blobfail.KindInternal, "write blob", err)
	}

	switch behaviour {
	case blobtypes.OverwriteAndLog, blobtypes.IfAbsent:
		if existed {
			return blobtypes.Overwrote, nil
		}
		return blobtypes.NewEntry, nil
	default:
		return blobtypes.NotChecked, nil
	}
}

func (s *Store) IsPresent(ctx context.Context, key blobtypes.BlobKey) (blobtypes.IsPresent, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return blobtypes.IsPresent{State: blobtypes.ProbablyNotPresent, Err: err}, err
	}
	_, statErr := os.Stat(path)
	if statErr == nil {
		return blobtypes.IsPresent{State: blobtypes.Present}, nil
	}
	if errors.Is(statErr, os.ErrNotExist) {
		return blobtypes.IsPresent{State: blobtypes.Absent}, nil
	}
	wrapped := blobfail.Wrap(blobfail.KindInternal, "stat blob", statErr)
	return blobtypes.IsPresent{State: blobtypes.ProbablyNotPresent, Err: wrapped}, wrapped
}
