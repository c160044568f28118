package boltwal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/mononoke-wal/pkg/blobtypes"
	"github.com/cuemby/mononoke-wal/pkg/wal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "wal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLogAssignsMonotonicIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.Log(ctx, wal.Entry{MultiplexID: 1, Key: "a", Timestamp: time.Now(), BlobSize: 1})
	require.NoError(t, err)
	id2, err := s.Log(ctx, wal.Entry{MultiplexID: 1, Key: "b", Timestamp: time.Now(), BlobSize: 2})
	require.NoError(t, err)

	assert.Equal(t, id1+1, id2)
}

func TestReadNextReturnsEntriesInOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.Log(ctx, wal.Entry{MultiplexID: 1, Key: "a", Timestamp: time.Now(), BlobSize: 1})
	require.NoError(t, err)
	_, err = s.Log(ctx, wal.Entry{MultiplexID: 1, Key: "b", Timestamp: time.Now(), BlobSize: 2})
	require.NoError(t, err)
	_, err = s.Log(ctx, wal.Entry{MultiplexID: 1, Key: "c", Timestamp: time.Now(), BlobSize: 3})
	require.NoError(t, err)

	entries, err := s.ReadNext(ctx, id1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, blobtypes.BlobKey("b"), entries[0].Entry.Key)
	assert.Equal(t, blobtypes.BlobKey("c"), entries[1].Entry.Key)
}

func TestDeleteByIDRemovesEntryAndSkipsOnReread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.Log(ctx, wal.Entry{MultiplexID: 1, Key: "a", Timestamp: time.Now(), BlobSize: 1})
	require.NoError(t, err)
	id2, err := s.Log(ctx, wal.Entry{MultiplexID: 1, Key: "b", Timestamp: time.Now(), BlobSize: 2})
	require.NoError(t, err)

	require.NoError(t, s.DeleteByID(ctx, []uint64{id1}))

	entries, err := s.ReadNext(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id2, entries[0].ID)
}

func TestPendingEntriesReflectsOutstandingRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pending, err := s.PendingEntries()
	require.NoError(t, err)
	assert.Equal(t, 0, pending)

	id1, err := s.Log(ctx, wal.Entry{MultiplexID: 1, Key: "a", Timestamp: time.Now(), BlobSize: 1})
	require.NoError(t, err)
	_, err = s.Log(ctx, wal.Entry{MultiplexID: 1, Key: "b", Timestamp: time.Now(), BlobSize: 2})
	require.NoError(t, err)

	pending, err = s.PendingEntries()
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	require.NoError(t, s.DeleteByID(ctx, []uint64{id1}))
	pending, err = s.PendingEntries()
	require.NoError(t, err)
	assert.Equal(t, 1, pending, "one live entry remaining at the top of the range")
}

func TestLogPreservesReadInfo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Log(ctx, wal.Entry{
		MultiplexID: 1,
		Key:         "a",
		Timestamp:   time.Now(),
		BlobSize:    1,
		ReadInfo:    &wal.ReadInfo{ID: "req-1", Shard: 3},
	})
	require.NoError(t, err)

	entries, err := s.ReadNext(ctx, id-1, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Entry.ReadInfo)
	assert.Equal(t, "req-1", entries[0].Entry.ReadInfo.ID)
	assert.Equal(t, 3, entries[0].Entry.ReadInfo.Shard)
}
