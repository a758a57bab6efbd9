package consistency

import (
	"testing"

	"github.com/airkv-project/airkv/segid"
	"github.com/stretchr/testify/require"
)

func TestSecondClientFailsWhileLeaseLive(t *testing.T) {
	tr := NewTracker()
	res := []segid.ID{segid.New(segid.DataL0, 0, 1, 0)}

	status := tr.AppendLockRequest(AirLockRequest{ResourceIDs: res, ClientID: 1, TimestampMs: 1000})
	require.Equal(t, Acquired, status)

	status = tr.AppendLockRequest(AirLockRequest{ResourceIDs: res, ClientID: 2, TimestampMs: 1500})
	require.Equal(t, Failed, status)
}

func TestSameClientRenews(t *testing.T) {
	tr := NewTracker()
	res := []segid.ID{segid.New(segid.DataL0, 0, 1, 0)}

	require.Equal(t, Acquired, tr.AppendLockRequest(AirLockRequest{ResourceIDs: res, ClientID: 1, TimestampMs: 1000}))
	require.Equal(t, Renewed, tr.AppendLockRequest(AirLockRequest{ResourceIDs: res, ClientID: 1, TimestampMs: 2000}))
}

func TestExpiredLeaseIsReacquirable(t *testing.T) {
	tr := NewTracker()
	res := []segid.ID{segid.New(segid.DataL0, 0, 1, 0)}

	require.Equal(t, Acquired, tr.AppendLockRequest(AirLockRequest{ResourceIDs: res, ClientID: 1, TimestampMs: 0}))
	farFuture := (LockTimeout + ClientClockSkew).Milliseconds() + 1
	require.Equal(t, Acquired, tr.AppendLockRequest(AirLockRequest{ResourceIDs: res, ClientID: 2, TimestampMs: farFuture}))
}

func TestCommitReleasesLock(t *testing.T) {
	tr := NewTracker()
	res := []segid.ID{segid.New(segid.DataL0, 0, 1, 0)}
	lockID := AirLockID{ClientID: 1, StartMs: 1000}

	require.Equal(t, Acquired, tr.AppendLockRequest(AirLockRequest{ResourceIDs: res, ClientID: 1, TimestampMs: 1000}))
	require.True(t, tr.AppendCommit(lockID))

	require.Equal(t, Acquired, tr.AppendLockRequest(AirLockRequest{ResourceIDs: res, ClientID: 2, TimestampMs: 1001}))
}

func TestCommitWithStaleLockIDIsIgnored(t *testing.T) {
	tr := NewTracker()
	res := []segid.ID{segid.New(segid.DataL0, 0, 1, 0)}

	require.Equal(t, Acquired, tr.AppendLockRequest(AirLockRequest{ResourceIDs: res, ClientID: 1, TimestampMs: 1000}))
	farFuture := (LockTimeout + ClientClockSkew).Milliseconds() + 1000
	require.Equal(t, Acquired, tr.AppendLockRequest(AirLockRequest{ResourceIDs: res, ClientID: 2, TimestampMs: farFuture}))

	// Client 1's lease expired and was reacquired by client 2; client 1's
	// belated commit must not release client 2's lock nor touch the tree.
	require.False(t, tr.AppendCommit(AirLockID{ClientID: 1, StartMs: 1000}))
	require.Equal(t, Failed, tr.AppendLockRequest(AirLockRequest{ResourceIDs: res, ClientID: 3, TimestampMs: farFuture + 1}))
}

func TestOptimisticFirstCommitterWins(t *testing.T) {
	ot := NewOptimisticTracker()
	res := []segid.ID{segid.New(segid.DataL0, 0, 1, 0), segid.New(segid.DataL0, 0, 2, 0)}

	require.True(t, ot.AppendCommit(OptimisticLockID{ResourceIDs: res, ClientID: 1}))
	require.False(t, ot.AppendCommit(OptimisticLockID{ResourceIDs: res, ClientID: 2}))
	require.True(t, ot.CheckCommit(OptimisticLockID{ResourceIDs: res, ClientID: 1}))
	require.False(t, ot.CheckCommit(OptimisticLockID{ResourceIDs: res, ClientID: 2}))
}
