// Package airkv implements a coordination and data-plane engine for a
// distributed LSM key-value store whose only shared state is an
// append-blob-capable object store. Any number of reader-writer clients
// and compaction workers may open the same home directory concurrently;
// this package arbitrates between them using nothing but the ordering of
// records appended to a single meta segment.
package airkv

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/airkv-project/airkv/consistency"
	"github.com/airkv-project/airkv/lsmtree"
	"github.com/airkv-project/airkv/segid"
	"github.com/airkv-project/airkv/segment"
	"github.com/airkv-project/airkv/segmgr"
	"github.com/airkv-project/airkv/storage"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Store is a single client's handle onto a shared home directory.
type Store struct {
	opts     Options
	adaptor  storage.Adaptor
	mgr      *segmgr.Manager
	clientID uint32

	logger  log.Logger
	metrics *storeMetrics
	tracer  trace.Tracer

	writeMu sync.Mutex
	closed  bool
}

// Open opens (and, for a brand-new home directory, initializes) a store.
// If no tail has ever been installed, Open races with every other client
// doing the same thing to install the first one; exactly one of them
// succeeds, per the tail-uniqueness property the meta segment's append
// ordering guarantees.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	if opts.Registerer == nil {
		opts.Registerer = noopRegisterer{}
	}

	adaptor, err := newAdaptor(opts.Backend)
	if err != nil {
		return nil, err
	}
	if err := adaptor.Open(ctx, opts.HomeDir, opts.BackendProps); err != nil {
		return nil, fmt.Errorf("airkv: opening backend: %w", err)
	}

	clientID := generateClientID()
	mgr, err := segmgr.Open(ctx, adaptor, opts.HomeDir, clientID, opts.CompressLn)
	if err != nil {
		return nil, err
	}

	tracerProvider := opts.TracerProvider
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}

	s := &Store{
		opts:     opts,
		adaptor:  adaptor,
		mgr:      mgr,
		clientID: clientID,
		logger:   log.With(opts.Logger, "component", "airkv", "client_id", clientID),
		metrics:  newStoreMetrics(opts.Registerer),
		tracer:   tracerProvider.Tracer("airkv"),
	}

	if !mgr.HasValidTail() {
		if _, err := s.createOrGetUpdatedTail(ctx, mgr.Meta().Tail()); err != nil {
			return nil, err
		}
	}
	level.Info(s.logger).Log("msg", "store opened", "home_dir", opts.HomeDir, "backend", opts.Backend)
	return s, nil
}

func newAdaptor(b Backend) (storage.Adaptor, error) {
	switch b {
	case BackendLocal:
		return storage.NewLocalAdaptor(), nil
	case BackendFake:
		return storage.NewFakeAdaptor(), nil
	case BackendS3:
		return storage.NewS3Adaptor(), nil
	default:
		return nil, configErrorf("unknown backend %q", b)
	}
}

// generateClientID returns a random 16-bit client id: meta records carry
// client ids as u16, so a wider id would not survive a round trip through
// the meta segment.
func generateClientID() uint32 {
	id := uuid.New()
	return uint32(binary.LittleEndian.Uint16(id[:2]))
}

func nowMs() int64 { return time.Now().UnixMilli() }

// Close releases the store's backend connection. A closed store must not
// be used again.
func (s *Store) Close(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.adaptor.Close(ctx)
}

func (s *Store) checkClosed() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Put writes a single key/value pair.
func (s *Store) Put(ctx context.Context, key, value []byte) error {
	return s.PutEntries(ctx, []segment.Entry{{Key: key, Value: value}})
}

// PutEntries appends a batch of entries to the tail in one call, rotating
// to a fresh tail as many times as necessary if the append is rejected for
// a recoverable reason.
func (s *Store) PutEntries(ctx context.Context, entries []segment.Entry) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "Store.PutEntries")
	defer span.End()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.putEntriesLocked(ctx, entries)
}

func (s *Store) putEntriesLocked(ctx context.Context, entries []segment.Entry) error {
	tail := s.mgr.CachedTail()
	s.metrics.appends.Inc()
	res, err := tail.AppendEntries(ctx, entries)
	if err != nil {
		return err
	}
	switch res.Outcome {
	case storage.AppendSuccess:
		s.metrics.entriesWritten.Add(float64(len(entries)))
		written := 0
		for _, e := range entries {
			written += len(e.Key) + len(e.Value) + 4
		}
		s.metrics.bytesWritten.Add(float64(written))
		if res.CommittedBlocks >= s.opts.SegBlockNumLimit {
			// The batch is already in the old tail; only rotate.
			_, err := s.createOrGetUpdatedTail(ctx, tail.ID)
			return err
		}
		return nil
	case storage.AppendBlockCountExceeded:
		s.metrics.appendFailures.WithLabelValues("block_count_exceeded").Inc()
		return s.rotateThenRetry(ctx, entries, tail.ID)
	case storage.AppendToSealed:
		s.metrics.appendFailures.WithLabelValues("append_to_sealed").Inc()
		updated, err := s.mgr.UpdatedTail(ctx)
		if err != nil {
			return err
		}
		if updated.ID != tail.ID {
			return s.putEntriesLocked(ctx, entries)
		}
		return s.rotateThenRetry(ctx, entries, tail.ID)
	default:
		s.metrics.appendFailures.WithLabelValues("other").Inc()
		return &AppendRejectedError{Outcome: res.Outcome}
	}
}

func (s *Store) rotateThenRetry(ctx context.Context, entries []segment.Entry, oldTail segid.ID) error {
	if _, err := s.createOrGetUpdatedTail(ctx, oldTail); err != nil {
		return err
	}
	return s.putEntriesLocked(ctx, entries)
}

// createOrGetUpdatedTail installs a new tail if oldTail is still the
// newest known one, returning whether this call is the one that actually
// won the race.
func (s *Store) createOrGetUpdatedTail(ctx context.Context, oldTail segid.ID) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "Store.createOrGetUpdatedTail")
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.recordCriticalSection(time.Since(start).Microseconds()) }()

	for {
		cur, err := s.mgr.Meta().RefreshedTail(ctx)
		if err != nil {
			return false, err
		}
		if segid.IsNewTail(cur, oldTail) {
			return false, nil
		}

		ts := nowMs()
		resource := oldTail.ResourceID()
		acquire := func() (consistency.Status, error) {
			req := consistency.AirLockRequest{ResourceIDs: []segid.ID{resource}, ClientID: s.clientID, TimestampMs: ts}
			status, err := s.mgr.Meta().AppendLockRequest(ctx, req)
			s.metrics.lockAcquisitions.WithLabelValues(statusLabel(status)).Inc()
			return status, err
		}
		op := &consistency.TailUpdateOp{
			ResourceIDs: []segid.ID{resource},
			ClientID:    s.clientID,
			OldTail:     oldTail,
			RefreshTail: func() (segid.ID, error) { return s.mgr.Meta().RefreshedTail(ctx) },
			CreateTail:  func(newTail segid.ID) error { return s.mgr.CreateNewTailSegment(ctx, newTail) },
			CommitTail: func(oldT, newT segid.ID) error {
				lockID := consistency.AirLockID{ClientID: s.clientID, StartMs: ts}
				return s.mgr.Meta().AppendCommit(ctx, lockID, lsmtree.UpdateTailDelta(oldT, newT))
			},
		}
		won, err := consistency.RunWithSingleLock(acquire, op)
		if err != nil {
			return false, err
		}
		if won {
			s.metrics.tailRotations.Inc()
			level.Debug(s.logger).Log("msg", "installed new tail", "old_tail", oldTail, "new_tail", op.NewTail)
			return true, nil
		}
		// Either another client beat us to the lock, or it already
		// finished the rotation between our refresh and our attempt.
		// Either way, loop and re-check the now-current tail.
	}
}

// Get looks up key, returning its value and true if found.
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := s.checkClosed(); err != nil {
		return nil, false, err
	}
	ctx, span := s.tracer.Start(ctx, "Store.Get")
	defer span.End()

	tail, length, err := s.activeTailSnapshot(ctx)
	if err != nil {
		return nil, false, err
	}
	tree, err := s.mgr.Meta().RefreshedTreeDescriptor(ctx)
	if err != nil {
		return nil, false, err
	}
	snap := consistency.Snapshot{TailLength: length, Tree: tree}
	entry, ok, err := snap.Get(ctx, tail, s.mgr.OpenSegDesc, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	s.metrics.entriesRead.Inc()
	return entry.Value, true, nil
}

// activeTailSnapshot returns the current tail segment together with the
// byte length a snapshot reader is allowed to see, retrying if the cached
// tail turns out to already be sealed (another client rotated it).
func (s *Store) activeTailSnapshot(ctx context.Context) (*segment.DataSegment, int64, error) {
	for {
		tail := s.mgr.CachedTail()
		props, err := s.adaptor.GetProps(ctx, tail.Path)
		if err != nil {
			if errors.Is(err, storage.ErrSegmentNotExist) {
				updated, uerr := s.mgr.UpdatedTail(ctx)
				if uerr != nil {
					return nil, 0, uerr
				}
				if updated.ID == tail.ID {
					return nil, 0, fmt.Errorf("airkv: tail segment %v missing: %w", tail.ID, err)
				}
				continue
			}
			return nil, 0, err
		}
		if props.IsActiveTail() {
			return tail, props.Length, nil
		}
		updated, err := s.mgr.UpdatedTail(ctx)
		if err != nil {
			return nil, 0, err
		}
		if updated.ID == tail.ID {
			return tail, props.Length, nil
		}
	}
}

func statusLabel(s consistency.Status) string {
	switch s {
	case consistency.Acquired:
		return "acquired"
	case consistency.Renewed:
		return "renewed"
	case consistency.Failed:
		return "failed"
	default:
		return "invalid_check"
	}
}

// noopRegisterer discards every metric registered through it, used when a
// caller opens a Store without supplying a prometheus.Registerer.
type noopRegisterer struct{}

func (noopRegisterer) Register(prometheus.Collector) error  { return nil }
func (noopRegisterer) MustRegister(...prometheus.Collector) {}
func (noopRegisterer) Unregister(prometheus.Collector) bool { return true }
