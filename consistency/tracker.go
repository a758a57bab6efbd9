package consistency

import "github.com/airkv-project/airkv/segid"

// Tracker replays lock-request and commit records observed on the meta
// segment to reconstruct, in-memory, who currently holds the pessimistic
// lock over each resource. It holds no lock itself; it is a deterministic
// function of the records it has seen, so every reader that replays the
// same prefix of the meta segment reaches the same view.
type Tracker struct {
	resHolder    map[segid.ID]*LockHolder
	clientHolder map[uint32]*LockHolder
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{resHolder: map[segid.ID]*LockHolder{}, clientHolder: map[uint32]*LockHolder{}}
}

// AppendLockRequest replays one AirLockRequest record, returning the
// resulting status. A request only succeeds (Acquired or Renewed) if it
// succeeds against every resource it names; a partial success is not
// possible because the tracker atomically evaluates all of them before
// committing any holder change.
func (t *Tracker) AppendLockRequest(req AirLockRequest) Status {
	overall := Acquired
	next := make(map[segid.ID]LockHolder, len(req.ResourceIDs))
	for _, res := range req.ResourceIDs {
		cur := t.resHolder[res]
		holder, status := ValidAcquire(cur, req)
		if status == Failed {
			return Failed
		}
		if status == Renewed {
			overall = Renewed
		}
		next[res] = holder
	}
	for res, holder := range next {
		h := holder
		t.resHolder[res] = &h
		t.clientHolder[req.ClientID] = &h
	}
	return overall
}

// AppendCommit replays a successful commit, releasing the lock over every
// resource the holder itself was granted provided the committing lock id
// still matches the current holder for that client (guards against a stale
// commit racing a newer acquisition). The resources released come from the
// holder's own record, not from whatever the commit's tree delta happens to
// name, since a tail rotation's delta touches segment ids (the new tail,
// the demoted old tail) that are not necessarily the resource the lock was
// actually taken over.
func (t *Tracker) AppendCommit(lockID AirLockID) bool {
	h, ok := t.clientHolder[lockID.ClientID]
	if !ok || !h.LockID.Equal(lockID) {
		return false
	}
	for _, res := range h.ResourceIDs {
		if cur, ok := t.resHolder[res]; !ok || !cur.LockID.Equal(lockID) {
			// Another client has since taken over this resource.
			return false
		}
	}
	for _, res := range h.ResourceIDs {
		delete(t.resHolder, res)
	}
	delete(t.clientHolder, lockID.ClientID)
	return true
}

// CheckCommit reports the status of a previously issued request without
// mutating tracker state, used by a caller re-verifying its own lock
// before proceeding.
func (t *Tracker) CheckCommit(check AirLockCheck, resourceIDs []segid.ID) Status {
	overall := Acquired
	for _, res := range resourceIDs {
		status := ValidCheck(t.resHolder[res], check)
		if status == Failed || status == InvalidCheck {
			return status
		}
		if status == Renewed {
			overall = Renewed
		}
	}
	return overall
}
