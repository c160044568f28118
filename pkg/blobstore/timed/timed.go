// Package timed wraps a blobstore.Store with per-operation deadlines and
// latency/outcome metrics, the TS component: every multiplex member is a
// *timed.Store, never a bare blobstore.Store.
package timed

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/mononoke-wal/pkg/blobfail"
	"github.com/cuemby/mononoke-wal/pkg/blobstore"
	"github.com/cuemby/mononoke-wal/pkg/blobtypes"
	"github.com/cuemby/mononoke-wal/pkg/log"
	"github.com/cuemby/mononoke-wal/pkg/metrics"
)

// Deadlines configures the read/write timeouts a Store enforces.
type Deadlines struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Store wraps a blobstore.Store with a fixed BlobstoreId, per-operation
// deadlines, and Prometheus latency/outcome recording.
type Store struct {
	inner     blobstore.Store
	id        blobtypes.BlobstoreId
	deadlines Deadlines
}

// New wraps inner as blobstore id so every call it serves is time-bounded and
// observed.
func New(id blobtypes.BlobstoreId, inner blobstore.Store, deadlines Deadlines) *Store {
	return &Store{inner: inner, id: id, deadlines: deadlines}
}

// ID returns the wrapped store's BlobstoreId.
func (s *Store) ID() blobtypes.BlobstoreId { return s.id }

func (s *Store) idLabel() string { return fmt.Sprintf("%d", s.id) }

func (s *Store) record(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "err"
	}
	metrics.BlobstoreOpDuration.WithLabelValues(s.idLabel(), op, result).Observe(time.Since(start).Seconds())
	metrics.BlobstoreOpsTotal.WithLabelValues(s.idLabel(), op, result).Inc()
}

func (s *Store) Get(ctx context.Context, key blobtypes.BlobKey) (*blobtypes.GetData, error) {
	ctx, cancel := context.WithTimeout(ctx, s.deadlines.ReadTimeout)
	defer cancel()

	start := time.Now()
	data, err := s.inner.Get(ctx, key)
	if ctx.Err() == context.DeadlineExceeded {
		err = blobfail.New(blobfail.KindTimeout, fmt.Sprintf("get timed out on store %d", s.id))
	}
	s.record("get", start, err)
	if err != nil {
		log.WithBlobstore(int16(s.id)).Warn().Err(err).Str("key", string(key)).Msg("get failed")
	}
	return data, err
}

func (s *Store) Put(ctx context.Context, key blobtypes.BlobKey, data []byte) error {
	_, err := s.PutWithStatus(ctx, key, data)
	return err
}

func (s *Store) PutWithStatus(ctx context.Context, key blobtypes.BlobKey, data []byte) (blobtypes.OverwriteStatus, error) {
	return s.PutExplicit(ctx, key, data, blobtypes.OverwriteAndLog)
}

func (s *Store) PutExplicit(ctx context.Context, key blobtypes.BlobKey, data []byte, behaviour blobtypes.PutBehaviour) (blobtypes.OverwriteStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, s.deadlines.WriteTimeout)
	defer cancel()

	start := time.Now()
	status, err := s.inner.PutExplicit(ctx, key, data, behaviour)
	if ctx.Err() == context.DeadlineExceeded {
		err = blobfail.New(blobfail.KindTimeout, fmt.Sprintf("put timed out on store %d", s.id))
	}
	s.record("put", start, err)
	if err != nil {
		log.WithBlobstore(int16(s.id)).Warn().Err(err).Str("key", string(key)).Msg("put failed")
	}
	return status, err
}

func (s *Store) IsPresent(ctx context.Context, key blobtypes.BlobKey) (blobtypes.IsPresent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.deadlines.ReadTimeout)
	defer cancel()

	start := time.Now()
	present, err := s.inner.IsPresent(ctx, key)
	if ctx.Err() == context.DeadlineExceeded {
		err = blobfail.New(blobfail.KindTimeout, fmt.Sprintf("is_present timed out on store %d", s.id))
		present = blobtypes.IsPresent{State: blobtypes.ProbablyNotPresent, Err: err}
	}
	s.record("is_present", start, err)
	return present, err
}
