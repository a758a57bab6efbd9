package metaseg

import (
	"context"

	"github.com/airkv-project/airkv/consistency"
	"github.com/airkv-project/airkv/lsmtree"
	"github.com/airkv-project/airkv/segid"
	"github.com/airkv-project/airkv/storage"
)

// Segment is the meta segment itself: an append-only blob plus the replay
// cache built from it.
type Segment struct {
	Path    string
	adaptor storage.Adaptor
	cache   *Cache
}

// Open prepares a meta segment at path, creating it if it does not yet
// exist, and performs an initial refresh so the cache reflects whatever
// history is already there.
func Open(ctx context.Context, adaptor storage.Adaptor, path string) (*Segment, error) {
	if err := adaptor.Create(ctx, path); err != nil {
		return nil, err
	}
	s := &Segment{Path: path, adaptor: adaptor, cache: NewCache()}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh reads every byte appended since the cache's last known position
// and replays it.
func (s *Segment) Refresh(ctx context.Context) error {
	props, err := s.adaptor.GetProps(ctx, s.Path)
	if err != nil {
		return err
	}
	if props.Length <= s.cache.LastPos {
		return nil
	}
	raw, err := s.adaptor.ReadRange(ctx, s.Path, s.cache.LastPos, props.Length-s.cache.LastPos)
	if err != nil {
		return err
	}
	return s.cache.AppendIncrement(raw)
}

// Tail returns the most recently known tail segment id without touching
// storage.
func (s *Segment) Tail() segid.ID { return s.cache.Tree.Tail.ID }

// RefreshedTail refreshes the cache and then returns the tail.
func (s *Segment) RefreshedTail(ctx context.Context) (segid.ID, error) {
	if err := s.Refresh(ctx); err != nil {
		return 0, err
	}
	return s.Tail(), nil
}

// TreeDescriptor returns a snapshot-safe clone of the current tree shape.
func (s *Segment) TreeDescriptor() *lsmtree.Descriptor { return s.cache.Tree.Clone() }

// RefreshedTreeDescriptor refreshes the cache and then returns a clone of
// the tree shape.
func (s *Segment) RefreshedTreeDescriptor(ctx context.Context) (*lsmtree.Descriptor, error) {
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s.TreeDescriptor(), nil
}

// AppendLockRequest appends a pessimistic lock request and reports the
// status the in-memory tracker assigns it. This does not itself guarantee
// the requester actually won: a concurrent writer may have appended its
// own request first. Refresh already replays the just-appended record into
// the tracker (every record on the meta segment is applied exactly once,
// here or by a concurrent reader's own Refresh), so the outcome is read
// back with the non-mutating CheckCommit rather than applying the request
// a second time.
func (s *Segment) AppendLockRequest(ctx context.Context, req consistency.AirLockRequest) (consistency.Status, error) {
	buf := EncodeLockRequest(req)
	if err := s.appendRaw(ctx, buf); err != nil {
		return consistency.Failed, err
	}
	if err := s.Refresh(ctx); err != nil {
		return consistency.Failed, err
	}
	lockID := consistency.AirLockID{ClientID: req.ClientID, StartMs: req.TimestampMs}
	check := consistency.AirLockCheck{LockID: lockID, CheckTime: req.TimestampMs}
	return s.cache.Locks.CheckCommit(check, req.ResourceIDs), nil
}

// VerifyLockStatus refreshes the cache and reports whether check's lock id
// still holds every one of resourceIDs.
func (s *Segment) VerifyLockStatus(ctx context.Context, check consistency.AirLockCheck, resourceIDs []segid.ID) (consistency.Status, error) {
	if err := s.Refresh(ctx); err != nil {
		return consistency.Failed, err
	}
	return s.cache.Locks.CheckCommit(check, resourceIDs), nil
}

// AppendCommit appends a CommitInfo record for a completed pessimistic
// critical section.
func (s *Segment) AppendCommit(ctx context.Context, lockID consistency.AirLockID, delta lsmtree.TreeDelta) error {
	buf := EncodeCommitInfo(lockID.ClientID, lockID.StartMs, delta)
	if err := s.appendRaw(ctx, buf); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// AppendOptimisticCommit appends an OptimisticCommitInfo record and reports
// whether it actually won the first-committer-wins race once replayed.
func (s *Segment) AppendOptimisticCommit(ctx context.Context, clientID uint32, resources []segid.ID, delta lsmtree.TreeDelta) (bool, error) {
	buf := EncodeOptimisticCommitInfo(clientID, resources, delta)
	if err := s.appendRaw(ctx, buf); err != nil {
		return false, err
	}
	before := s.cache.LastPos
	if err := s.Refresh(ctx); err != nil {
		return false, err
	}
	_ = before
	return s.cache.Optimistic.CheckCommit(consistency.OptimisticLockID{ResourceIDs: resources, ClientID: clientID}), nil
}

func (s *Segment) appendRaw(ctx context.Context, buf []byte) error {
	res, err := s.adaptor.Append(ctx, s.Path, buf)
	if err != nil {
		return err
	}
	if !res.Outcome.IsSuccess() {
		return appendOutcomeError(res.Outcome)
	}
	return nil
}
