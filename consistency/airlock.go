// Package consistency implements the two mutual-exclusion protocols the
// store uses to coordinate writers that share nothing but the object
// store: a pessimistic, lease-based lock for tail rotation, and an
// optimistic first-committer-wins lock for compaction.
package consistency

import (
	"time"

	"github.com/airkv-project/airkv/segid"
)

// LockTimeout is how long a lease is valid since its last renewal, absent
// clock skew.
const LockTimeout = 60 * time.Second

// ClientClockSkew is added to LockTimeout when deciding whether a lease has
// actually expired, to tolerate the requesting and the checking client's
// clocks disagreeing by this much.
const ClientClockSkew = 10 * time.Second

// AirLockID names a single pessimistic lock acquisition attempt: which
// client, and when it started trying.
type AirLockID struct {
	ClientID  uint32
	StartMs   int64
}

func (a AirLockID) Equal(b AirLockID) bool {
	return a.ClientID == b.ClientID && a.StartMs == b.StartMs
}

// AirLockRequest is the record appended to the meta segment to announce an
// attempt to acquire the lock over a set of resources.
type AirLockRequest struct {
	ResourceIDs []segid.ID
	ClientID    uint32
	TimestampMs int64
}

// AirLockCheck asks whether a previously issued request succeeded.
type AirLockCheck struct {
	LockID    AirLockID
	CheckTime int64
}

// Status is the outcome of trying to acquire, renew, or check a lock.
type Status int

const (
	Acquired Status = iota
	Renewed
	Failed
	InvalidCheck
)

func (s Status) IsSuccess() bool { return s == Acquired || s == Renewed }

// LockHolder tracks who currently holds a lock over a set of resources.
type LockHolder struct {
	LockID         AirLockID
	LastRenewMs    int64
	ResourceIDs    []segid.ID
	IsRenewedLease bool
}

// ExpiredAtMs is the timestamp, in milliseconds, at which this holder's
// lease is considered definitely expired by any client, accounting for
// clock skew between the renewing client and whoever is checking.
func (h LockHolder) ExpiredAtMs() int64 {
	return h.LastRenewMs + LockTimeout.Milliseconds() + ClientClockSkew.Milliseconds()
}

// IsExpired reports whether this holder's lease has expired as of nowMs.
func (h LockHolder) IsExpired(nowMs int64) bool { return nowMs >= h.ExpiredAtMs() }

func (h LockHolder) renewLease(nowMs int64) LockHolder {
	h.LastRenewMs = nowMs
	h.IsRenewedLease = true
	return h
}

// ValidAcquire decides the outcome of req against the current holder h (the
// zero LockHolder if nobody currently holds the lock): a fresh or expired
// lease is Acquired by the requester, a matching in-flight client renews
// its own lease, and anyone else fails.
func ValidAcquire(h *LockHolder, req AirLockRequest) (LockHolder, Status) {
	reqID := AirLockID{ClientID: req.ClientID, StartMs: req.TimestampMs}
	if h == nil || h.IsExpired(req.TimestampMs) {
		return LockHolder{LockID: reqID, LastRenewMs: req.TimestampMs, ResourceIDs: req.ResourceIDs}, Acquired
	}
	if h.LockID.ClientID == req.ClientID {
		return h.renewLease(req.TimestampMs), Renewed
	}
	return *h, Failed
}

// ValidCheck reports the status of a previously issued request without
// mutating h. A check only succeeds if the holder still carries this exact
// lock id AND the lease covering it has not expired as of check.CheckTime —
// a matching id past its lease window is no longer a valid acquisition.
func ValidCheck(h *LockHolder, check AirLockCheck) Status {
	if h == nil {
		return InvalidCheck
	}
	if !h.LockID.Equal(check.LockID) {
		return Failed
	}
	if h.IsExpired(check.CheckTime) {
		return InvalidCheck
	}
	if h.IsRenewedLease {
		return Renewed
	}
	return Acquired
}

// CriticalOperation is a unit of work performed while holding a lock: the
// caller re-validates preconditions (CheckUninit) immediately after
// acquiring, in case another client already completed the same work while
// this one was still trying to acquire.
type CriticalOperation interface {
	CheckUninit() (bool, error)
	Run() error
	Resources() []segid.ID
	Client() uint32
}

// TailUpdateOp is the CriticalOperation that installs a new tail segment.
type TailUpdateOp struct {
	ResourceIDs []segid.ID
	ClientID    uint32
	OldTail     segid.ID

	RefreshTail func() (segid.ID, error)
	CreateTail  func(newTail segid.ID) error
	CommitTail  func(oldTail, newTail segid.ID) error
	NewTail     segid.ID
}

func (t *TailUpdateOp) Resources() []segid.ID { return t.ResourceIDs }
func (t *TailUpdateOp) Client() uint32        { return t.ClientID }

// CheckUninit refreshes the cached tail and reports whether OldTail is
// still the newest known tail — if another client already rotated it, this
// operation has nothing left to do.
func (t *TailUpdateOp) CheckUninit() (bool, error) {
	cur, err := t.RefreshTail()
	if err != nil {
		return false, err
	}
	return !segid.IsNewTail(cur, t.OldTail), nil
}

func (t *TailUpdateOp) Run() error {
	t.NewTail = segid.NextTail(t.OldTail)
	if err := t.CreateTail(t.NewTail); err != nil {
		return err
	}
	return t.CommitTail(t.OldTail, t.NewTail)
}
