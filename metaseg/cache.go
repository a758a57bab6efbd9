package metaseg

import (
	"github.com/airkv-project/airkv/consistency"
	"github.com/airkv-project/airkv/lsmtree"
)

// Cache is the in-memory replay state built from the meta segment: how far
// it has been read, the pessimistic and optimistic lock trackers, and the
// resulting tree shape. It advances only forward, by construction: every
// mutation comes from AppendIncrement consuming bytes starting exactly at
// LastPos.
type Cache struct {
	LastPos    int64
	Locks      *consistency.Tracker
	Optimistic *consistency.OptimisticTracker
	Tree       *lsmtree.Descriptor
}

// NewCache returns an empty cache positioned at the start of the meta
// segment.
func NewCache() *Cache {
	return &Cache{
		Locks:      consistency.NewTracker(),
		Optimistic: consistency.NewOptimisticTracker(),
		Tree:       lsmtree.NewDescriptor(),
	}
}

// AppendIncrement replays newly read bytes [LastPos, LastPos+len(raw)) onto
// the cache, advancing LastPos monotonically regardless of how many
// records raw contained — this is the property that makes the meta
// segment's own append position a valid total order: LastPos only ever
// grows.
func (c *Cache) AppendIncrement(raw []byte) error {
	offset := 0
	for offset < len(raw) {
		rec, n, err := DecodeRecord(raw[offset:])
		if err != nil {
			return err
		}
		if err := c.applyRecord(rec); err != nil {
			return err
		}
		offset += n
	}
	c.LastPos += int64(len(raw))
	return nil
}

func (c *Cache) applyRecord(rec Record) error {
	switch rec.Kind {
	case KindLockRequest:
		c.Locks.AppendLockRequest(rec.LockRequest)
	case KindCommitInfo:
		lockID := consistency.AirLockID{ClientID: rec.CommitClientID, StartMs: rec.CommitStartMs}
		if !c.Locks.AppendCommit(lockID) {
			// The lease backing this commit was already superseded (another
			// client acquired one of its resources) by the time it was
			// replayed: the commit is ignored entirely, tree delta included,
			// so a stale writer can never mutate tree shape out from under
			// the client that actually holds the resource now. A lease that
			// has expired but was not taken over is not detected here: the
			// commit record carries no commit time.
			return nil
		}
		return c.Tree.AppendTreeDelta(rec.CommitDelta)
	case KindOptimisticCommitInfo:
		lockID := consistency.OptimisticLockID{ResourceIDs: rec.OptimisticResources, ClientID: rec.OptimisticClientID}
		if !c.Optimistic.AppendCommit(lockID) {
			return nil
		}
		return c.Tree.AppendTreeDelta(rec.OptimisticDelta)
	}
	return nil
}
