package multiplex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/mononoke-wal/pkg/blobfail"
	"github.com/cuemby/mononoke-wal/pkg/blobstore/memblob"
	"github.com/cuemby/mononoke-wal/pkg/blobstore/timed"
	"github.com/cuemby/mononoke-wal/pkg/blobtypes"
	"github.com/cuemby/mononoke-wal/pkg/wal"
)

// distinctKey returns a BlobKey that will not collide with any other key
// generated in the same test run.
func distinctKey() blobtypes.BlobKey {
	return blobtypes.BlobKey(uuid.New().String())
}

// failingStore always errors, used to exercise the failure-aggregation paths.
type failingStore struct{ err error }

func (f *failingStore) Get(ctx context.Context, key blobtypes.BlobKey) (*blobtypes.GetData, error) {
	return nil, f.err
}
func (f *failingStore) Put(ctx context.Context, key blobtypes.BlobKey, data []byte) error {
	return f.err
}
func (f *failingStore) PutWithStatus(ctx context.Context, key blobtypes.BlobKey, data []byte) (blobtypes.OverwriteStatus, error) {
	return blobtypes.NotChecked, f.err
}
func (f *failingStore) PutExplicit(ctx context.Context, key blobtypes.BlobKey, data []byte, behaviour blobtypes.PutBehaviour) (blobtypes.OverwriteStatus, error) {
	return blobtypes.NotChecked, f.err
}
func (f *failingStore) IsPresent(ctx context.Context, key blobtypes.BlobKey) (blobtypes.IsPresent, error) {
	return blobtypes.IsPresent{State: blobtypes.ProbablyNotPresent, Err: f.err}, f.err
}

// memWAL is an in-process wal.Store for tests; Log never fails unless failLog is set.
type memWAL struct {
	nextID   uint64
	failLog  bool
	deleted  []uint64
	deleteMu chan struct{}
}

func newMemWAL() *memWAL { return &memWAL{deleteMu: make(chan struct{}, 1024)} }

func (w *memWAL) Log(ctx context.Context, entry wal.Entry) (uint64, error) {
	if w.failLog {
		return 0, errors.New("wal append failed")
	}
	w.nextID++
	return w.nextID, nil
}
func (w *memWAL) ReadNext(ctx context.Context, fromID uint64, limit int) ([]wal.LoggedEntry, error) {
	return nil, nil
}
func (w *memWAL) DeleteByID(ctx context.Context, ids []uint64) error {
	w.deleted = append(w.deleted, ids...)
	select {
	case w.deleteMu <- struct{}{}:
	default:
	}
	return nil
}
func (w *memWAL) PendingEntries() (int, error) { return int(w.nextID) - len(w.deleted), nil }
func (w *memWAL) Close() error                 { return nil }

func timedMem(id blobtypes.BlobstoreId) *timed.Store {
	return timed.New(id, memblob.New(), timed.Deadlines{ReadTimeout: time.Second, WriteTimeout: time.Second})
}

func timedFailing(id blobtypes.BlobstoreId, err error) *timed.Store {
	return timed.New(id, &failingStore{err: err}, timed.Deadlines{ReadTimeout: time.Second, WriteTimeout: time.Second})
}

// TestPutQuorumAllSucceed is scenario S2 case A.
func TestPutQuorumAllSucceed(t *testing.T) {
	w := newMemWAL()
	mainStores := []*timed.Store{timedMem(0), timedMem(1), timedMem(2)}
	s, err := New(Config{MultiplexID: 1, WriteQuorum: 2}, w, mainStores, nil)
	require.NoError(t, err)

	status, err := s.Put(context.Background(), "k", []byte("v"))
	require.NoError(t, err)
	assert.Equal(t, blobtypes.NotChecked, status)

	<-w.deleteMu
	assert.Equal(t, []uint64{1}, w.deleted)
}

// TestPutQuorumOneFails is scenario S2 case B.
func TestPutQuorumOneFails(t *testing.T) {
	w := newMemWAL()
	mainStores := []*timed.Store{timedMem(0), timedFailing(1, errors.New("boom")), timedMem(2)}
	s, err := New(Config{MultiplexID: 1, WriteQuorum: 2}, w, mainStores, nil)
	require.NoError(t, err)

	status, err := s.Put(context.Background(), "k", []byte("v"))
	require.NoError(t, err)
	assert.Equal(t, blobtypes.NotChecked, status)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, w.deleted, "WAL entry must be retained when not every store succeeded")
}

// TestPutQuorumNotReached is scenario S2 case C.
func TestPutQuorumNotReached(t *testing.T) {
	w := newMemWAL()
	mainStores := []*timed.Store{
		timedFailing(0, errors.New("e0")),
		timedMem(1),
		timedFailing(2, errors.New("e2")),
	}
	s, err := New(Config{MultiplexID: 1, WriteQuorum: 2}, w, mainStores, nil)
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "k", []byte("v"))
	require.Error(t, err)
	assert.Equal(t, blobfail.KindSomePutsFailed, blobfail.KindOf(err))
}

// TestPutWalWriteFailed is scenario S2 case D.
func TestPutWalWriteFailed(t *testing.T) {
	w := newMemWAL()
	w.failLog = true
	mainStores := []*timed.Store{timedMem(0), timedMem(1)}
	s, err := New(Config{MultiplexID: 1, WriteQuorum: 1}, w, mainStores, nil)
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "k", []byte("v"))
	require.Error(t, err)
	assert.Equal(t, blobfail.KindWalWriteFailed, blobfail.KindOf(err))
}

// TestGetQuorum exercises scenario S3.
func TestGetQuorum(t *testing.T) {
	ctx := context.Background()

	t.Run("all none", func(t *testing.T) {
		mainStores := []*timed.Store{timedMem(0), timedMem(1), timedMem(2)}
		s, err := New(Config{MultiplexID: 1, WriteQuorum: 2}, newMemWAL(), mainStores, nil)
		require.NoError(t, err)
		data, err := s.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("one present", func(t *testing.T) {
		key := distinctKey()
		present := timedMem(0)
		_, err := present.Put(ctx, key, []byte("v"))
		require.NoError(t, err)
		mainStores := []*timed.Store{present, timedMem(1), timedMem(2)}
		s, err := New(Config{MultiplexID: 1, WriteQuorum: 2}, newMemWAL(), mainStores, nil)
		require.NoError(t, err)
		data, err := s.Get(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, data)
		assert.Equal(t, []byte("v"), data.Bytes)
	})

	t.Run("one none two error", func(t *testing.T) {
		mainStores := []*timed.Store{timedMem(0), timedFailing(1, errors.New("e1")), timedFailing(2, errors.New("e2"))}
		s, err := New(Config{MultiplexID: 1, WriteQuorum: 2}, newMemWAL(), mainStores, nil)
		require.NoError(t, err)
		_, err = s.Get(ctx, "k")
		require.Error(t, err)
		assert.Equal(t, blobfail.KindSomeGetsFailed, blobfail.KindOf(err))
	})

	t.Run("all error", func(t *testing.T) {
		mainStores := []*timed.Store{
			timedFailing(0, errors.New("e0")),
			timedFailing(1, errors.New("e1")),
			timedFailing(2, errors.New("e2")),
		}
		s, err := New(Config{MultiplexID: 1, WriteQuorum: 2}, newMemWAL(), mainStores, nil)
		require.NoError(t, err)
		_, err = s.Get(ctx, "k")
		require.Error(t, err)
		assert.Equal(t, blobfail.KindAllFailed, blobfail.KindOf(err))
	})
}

// TestIsPresentComprehensive is scenario S5.
func TestIsPresentComprehensive(t *testing.T) {
	ctx := context.Background()
	present1, present2 := timedMem(0), timedMem(1)
	_, err := present1.Put(ctx, "k", []byte("v"))
	require.NoError(t, err)
	_, err = present2.Put(ctx, "k", []byte("v"))
	require.NoError(t, err)
	absent := timedMem(2)

	mainStores := []*timed.Store{present1, present2, absent}
	s, err := New(Config{MultiplexID: 1, WriteQuorum: 2}, newMemWAL(), mainStores, nil)
	require.NoError(t, err)

	regular, err := s.IsPresent(ctx, "k", false)
	require.NoError(t, err)
	assert.Equal(t, blobtypes.Present, regular.State)

	comprehensive, err := s.IsPresent(ctx, "k", true)
	require.NoError(t, err)
	assert.Equal(t, blobtypes.Absent, comprehensive.State)
}

func TestIsPresentComprehensiveErrorsWhenThirdErrors(t *testing.T) {
	ctx := context.Background()
	present1, present2 := timedMem(0), timedMem(1)
	_, err := present1.Put(ctx, "k", []byte("v"))
	require.NoError(t, err)
	_, err = present2.Put(ctx, "k", []byte("v"))
	require.NoError(t, err)
	erroring := timedFailing(2, errors.New("boom"))

	mainStores := []*timed.Store{present1, present2, erroring}
	s, err := New(Config{MultiplexID: 1, WriteQuorum: 2}, newMemWAL(), mainStores, nil)
	require.NoError(t, err)

	result, err := s.IsPresent(ctx, "k", true)
	require.Error(t, err)
	assert.Equal(t, blobtypes.ProbablyNotPresent, result.State)
	assert.Equal(t, blobfail.KindSomeIsPresentsFailed, blobfail.KindOf(err))
}

func TestNewRejectsInvalidQuorum(t *testing.T) {
	_, err := New(Config{MultiplexID: 1, WriteQuorum: 0}, newMemWAL(), []*timed.Store{timedMem(0)}, nil)
	assert.Error(t, err)

	_, err = New(Config{MultiplexID: 1, WriteQuorum: 2}, newMemWAL(), []*timed.Store{timedMem(0)}, nil)
	assert.Error(t, err)
}
