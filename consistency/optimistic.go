package consistency

import "github.com/airkv-project/airkv/segid"

// OptimisticLockID names a compaction candidate: the resource set it
// claims, and the client that produced it. Unlike the pessimistic lock,
// nothing is acquired up front — a writer simply does the compaction work
// and then tries to commit; the tracker accepts the first commit it sees
// for a given resource set and rejects every later one.
type OptimisticLockID struct {
	ResourceIDs []segid.ID
	ClientID    uint32
}

// OptimisticTracker replays optimistic commit records to decide, for each
// resource, which client (if any) has already claimed it.
type OptimisticTracker struct {
	claimed map[segid.ID]uint32
}

// NewOptimisticTracker returns an empty tracker.
func NewOptimisticTracker() *OptimisticTracker {
	return &OptimisticTracker{claimed: map[segid.ID]uint32{}}
}

// AppendCommit succeeds only if every named resource is currently
// unclaimed, in which case all of them become claimed by lockID.ClientID
// atomically. This is the first-committer-wins rule: whichever commit
// record appears earliest on the meta segment wins, and every later
// commit attempting to touch any of the same resources fails outright.
func (t *OptimisticTracker) AppendCommit(lockID OptimisticLockID) bool {
	for _, res := range lockID.ResourceIDs {
		if _, taken := t.claimed[res.ResourceID()]; taken {
			return false
		}
	}
	for _, res := range lockID.ResourceIDs {
		t.claimed[res.ResourceID()] = lockID.ClientID
	}
	return true
}

// CheckCommit reports whether lockID's client is the one that currently
// holds every one of its resources.
func (t *OptimisticTracker) CheckCommit(lockID OptimisticLockID) bool {
	for _, res := range lockID.ResourceIDs {
		holder, ok := t.claimed[res.ResourceID()]
		if !ok || holder != lockID.ClientID {
			return false
		}
	}
	return true
}
