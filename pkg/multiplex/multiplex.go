// Package multiplex implements the WAL-multiplexed blobstore: puts are
// WAL-logged before any store is touched and return once a write quorum of
// main stores has acknowledged, while remaining completions, write-only
// stores and the WAL cleanup continue in the background detached from the
// caller's context.
package multiplex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/mononoke-wal/pkg/blobfail"
	"github.com/cuemby/mononoke-wal/pkg/blobstore/timed"
	"github.com/cuemby/mononoke-wal/pkg/blobtypes"
	"github.com/cuemby/mononoke-wal/pkg/log"
	"github.com/cuemby/mononoke-wal/pkg/metrics"
	"github.com/cuemby/mononoke-wal/pkg/wal"
)

// Config parameterizes a Store. WriteQuorum must be between 1 and len(main).
type Config struct {
	MultiplexID blobtypes.MultiplexId
	WriteQuorum int
}

// Store is the WAL-multiplexed blobstore (WMB).
type Store struct {
	id          blobtypes.MultiplexId
	wal         wal.Store
	main        []*timed.Store
	writeOnly   []*timed.Store
	writeQuorum int
}

// New constructs a Store. The main slice must be non-empty and WriteQuorum
// must lie within [1, len(main)].
func New(cfg Config, walStore wal.Store, main, writeOnly []*timed.Store) (*Store, error) {
	if len(main) == 0 {
		return nil, fmt.Errorf("multiplex: at least one main store required")
	}
	if cfg.WriteQuorum < 1 || cfg.WriteQuorum > len(main) {
		return nil, fmt.Errorf("multiplex: write quorum %d out of range [1,%d]", cfg.WriteQuorum, len(main))
	}
	return &Store{
		id:          cfg.MultiplexID,
		wal:         walStore,
		main:        main,
		writeOnly:   writeOnly,
		writeQuorum: cfg.WriteQuorum,
	}, nil
}

// readQuorum is R = N - W + 1.
func (s *Store) readQuorum() int {
	return len(s.main) - s.writeQuorum + 1
}

func resultLabel(err error) string {
	if err != nil {
		return "err"
	}
	return "ok"
}

// Put writes data under key using OverwriteAndLog behaviour.
func (s *Store) Put(ctx context.Context, key blobtypes.BlobKey, data []byte) (blobtypes.OverwriteStatus, error) {
	return s.PutExplicit(ctx, key, data, blobtypes.OverwriteAndLog)
}

// PutExplicit is the WMB put algorithm: WAL-log, fan out to main stores,
// return as soon as the write quorum acknowledges, finish the rest detached.
func (s *Store) PutExplicit(ctx context.Context, key blobtypes.BlobKey, data []byte, behaviour blobtypes.PutBehaviour) (blobtypes.OverwriteStatus, error) {
	timer := metrics.NewTimer()
	status, err := s.putExplicit(ctx, key, data, behaviour)
	result := resultLabel(err)
	timer.ObserveDurationVec(metrics.MultiplexPutDuration, result)
	metrics.MultiplexPutsTotal.WithLabelValues(result).Inc()
	return status, err
}

type putOutcome struct {
	id     blobtypes.BlobstoreId
	status blobtypes.OverwriteStatus
	err    error
}

func (s *Store) putExplicit(ctx context.Context, key blobtypes.BlobKey, data []byte, behaviour blobtypes.PutBehaviour) (blobtypes.OverwriteStatus, error) {
	entry := wal.Entry{
		MultiplexID: s.id,
		Key:         key,
		Timestamp:   time.Now(),
		BlobSize:    uint64(len(data)),
		ReadInfo:    &wal.ReadInfo{ID: uuid.New().String()},
	}
	entryID, err := s.wal.Log(ctx, entry)
	if err != nil {
		return blobtypes.NotChecked, blobfail.Wrap(blobfail.KindWalWriteFailed, "wal append", err)
	}

	// Dispatch is detached from the caller's context so that quorum completion,
	// write-only puts and the WAL-delete join survive the caller abandoning ctx
	// once quorum is reached; each TS call still carries its own bounded
	// deadline via timed.Store.
	detachedCtx := context.WithoutCancel(ctx)

	results := make(chan putOutcome, len(s.main))
	for _, ts := range s.main {
		ts := ts
		go func() {
			st, err := ts.PutExplicit(detachedCtx, key, data, behaviour)
			results <- putOutcome{id: ts.ID(), status: st, err: err}
		}()
	}

	remaining := s.writeQuorum
	errs := make(map[blobtypes.BlobstoreId]error)

	received := 0
	for received < len(s.main) {
		res := <-results
		received++
		if res.err == nil {
			remaining--
			if remaining == 0 {
				s.finishPutDetached(detachedCtx, entryID, key, data, behaviour, results, len(s.main)-received, errs)
				// The status returned here is whichever main store happened to
				// be the W-th to complete, which is nondeterministic and must
				// not leak to the caller as if it reflected a single store.
				return blobtypes.NotChecked, nil
			}
			continue
		}
		errs[res.id] = res.err
		if len(errs) == len(s.main) {
			return blobtypes.NotChecked, blobfail.NewAggregate(blobfail.KindAllFailed, errs, len(s.main))
		}
	}
	return blobtypes.NotChecked, blobfail.NewAggregate(blobfail.KindSomePutsFailed, errs, len(s.main))
}

// finishPutDetached drains the remaining in-flight main-store completions,
// fires the write-only puts, and deletes the WAL entry iff every main and
// write-only store eventually succeeded. It runs entirely on a goroutine that
// outlives the caller that triggered quorum.
func (s *Store) finishPutDetached(ctx context.Context, entryID uint64, key blobtypes.BlobKey, data []byte, behaviour blobtypes.PutBehaviour, results chan putOutcome, pending int, quorumErrs map[blobtypes.BlobstoreId]error) {
	logger := log.WithMultiplex(int32(s.id))

	go func() {
		g, gctx := errgroup.WithContext(ctx)
		var mu sync.Mutex
		allOK := len(quorumErrs) == 0

		g.Go(func() error {
			for i := 0; i < pending; i++ {
				res := <-results
				if res.err != nil {
					mu.Lock()
					allOK = false
					mu.Unlock()
					logger.Warn().Err(res.err).Int16("blobstore_id", int16(res.id)).Str("key", string(key)).Msg("main store put failed after quorum")
				}
			}
			return nil
		})

		for _, ts := range s.writeOnly {
			ts := ts
			g.Go(func() error {
				_, err := ts.PutExplicit(gctx, key, data, behaviour)
				if err != nil {
					mu.Lock()
					allOK = false
					logger.Warn().Err(err).Int16("blobstore_id", int16(ts.ID())).Str("key", string(key)).Msg("write-only store put failed")
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()

		if !allOK {
			return
		}
		if err := s.wal.DeleteByID(ctx, []uint64{entryID}); err != nil {
			logger.Warn().Err(err).Uint64("wal_entry", entryID).Msg("best-effort WAL delete failed")
		}
	}()
}

// Get dispatches to every main store and returns as soon as one reports the
// blob, or once a read quorum has reported absence.
func (s *Store) Get(ctx context.Context, key blobtypes.BlobKey) (*blobtypes.GetData, error) {
	timer := metrics.NewTimer()
	data, err := s.get(ctx, key)
	result := resultLabel(err)
	timer.ObserveDurationVec(metrics.MultiplexGetDuration, result)
	metrics.MultiplexGetsTotal.WithLabelValues(result).Inc()
	return data, err
}

type getOutcome struct {
	id   blobtypes.BlobstoreId
	data *blobtypes.GetData
	err  error
}

func (s *Store) get(ctx context.Context, key blobtypes.BlobKey) (*blobtypes.GetData, error) {
	results := make(chan getOutcome, len(s.main))
	for _, ts := range s.main {
		ts := ts
		go func() {
			d, err := ts.Get(ctx, key)
			results <- getOutcome{id: ts.ID(), data: d, err: err}
		}()
	}

	remainingNotFound := s.readQuorum()
	errs := make(map[blobtypes.BlobstoreId]error)

	for received := 0; received < len(s.main); received++ {
		res := <-results
		switch {
		case res.err != nil:
			errs[res.id] = res.err
		case res.data != nil:
			return res.data, nil
		default:
			remainingNotFound--
			if remainingNotFound == 0 {
				return nil, nil
			}
		}
	}

	if len(errs) == len(s.main) {
		return nil, blobfail.NewAggregate(blobfail.KindAllFailed, errs, len(s.main))
	}
	return nil, blobfail.NewAggregate(blobfail.KindSomeGetsFailed, errs, len(s.main))
}

// IsPresent checks presence across main stores. In regular mode it returns as
// soon as any store confirms Present, or once a read quorum confirms Absent.
// In comprehensive mode it requires every main store to confirm Present, and
// still returns Absent immediately on the first authoritative Absent.
func (s *Store) IsPresent(ctx context.Context, key blobtypes.BlobKey, comprehensive bool) (blobtypes.IsPresent, error) {
	result, err := s.isPresent(ctx, key, comprehensive)
	metrics.MultiplexIsPresentTotal.WithLabelValues(resultLabel(err)).Inc()
	return result, err
}

type presentOutcome struct {
	id    blobtypes.BlobstoreId
	state blobtypes.PresenceState
	err   error
}

func (s *Store) isPresent(ctx context.Context, key blobtypes.BlobKey, comprehensive bool) (blobtypes.IsPresent, error) {
	results := make(chan presentOutcome, len(s.main))
	for _, ts := range s.main {
		ts := ts
		go func() {
			ip, err := ts.IsPresent(ctx, key)
			results <- presentOutcome{id: ts.ID(), state: ip.State, err: err}
		}()
	}

	required := s.readQuorum()
	absentCount := 0
	presentCount := 0
	errs := make(map[blobtypes.BlobstoreId]error)

	for received := 0; received < len(s.main); received++ {
		res := <-results
		switch {
		case res.err != nil:
			errs[res.id] = res.err
		case res.state == blobtypes.Absent:
			if comprehensive {
				return blobtypes.IsPresent{State: blobtypes.Absent}, nil
			}
			absentCount++
			if absentCount == required {
				return blobtypes.IsPresent{State: blobtypes.Absent}, nil
			}
		case res.state == blobtypes.Present:
			if !comprehensive {
				return blobtypes.IsPresent{State: blobtypes.Present}, nil
			}
			presentCount++
			if presentCount == len(s.main) {
				return blobtypes.IsPresent{State: blobtypes.Present}, nil
			}
		default:
			errs[res.id] = fmt.Errorf("store %d reported inconclusive presence", res.id)
		}
	}

	kind := blobfail.KindSomeIsPresentsFailed
	if len(errs) == len(s.main) {
		kind = blobfail.KindAllFailed
	}
	agg := blobfail.NewAggregate(kind, errs, len(s.main))
	return blobtypes.IsPresent{State: blobtypes.ProbablyNotPresent, Err: agg}, agg
}
