package metaseg

import (
	"context"
	"testing"

	"github.com/airkv-project/airkv/consistency"
	"github.com/airkv-project/airkv/lsmtree"
	"github.com/airkv-project/airkv/segid"
	"github.com/airkv-project/airkv/storage"
	"github.com/stretchr/testify/require"
)

func TestTailUpdateThenRefresh(t *testing.T) {
	ctx := context.Background()
	adaptor := storage.NewFakeAdaptor()
	seg, err := Open(ctx, adaptor, "meta_0")
	require.NoError(t, err)

	require.False(t, segid.HasPrevTail(seg.Tail()))

	newTail := segid.NextTail(segid.PlaceholderTail)
	delta := lsmtree.UpdateTailDelta(segid.PlaceholderTail, newTail)
	lockID := consistency.AirLockID{ClientID: 1, StartMs: 100}
	_, err = seg.AppendLockRequest(ctx, consistency.AirLockRequest{
		ResourceIDs: []segid.ID{segid.PlaceholderTail.ResourceID()},
		ClientID:    lockID.ClientID,
		TimestampMs: lockID.StartMs,
	})
	require.NoError(t, err)
	require.NoError(t, seg.AppendCommit(ctx, lockID, delta))

	require.Equal(t, newTail, seg.Tail())

	second := segid.NextTail(newTail)
	secondLockID := consistency.AirLockID{ClientID: 1, StartMs: 200}
	_, err = seg.AppendLockRequest(ctx, consistency.AirLockRequest{
		ResourceIDs: []segid.ID{newTail.ResourceID()},
		ClientID:    secondLockID.ClientID,
		TimestampMs: secondLockID.StartMs,
	})
	require.NoError(t, err)
	require.NoError(t, seg.AppendCommit(ctx, secondLockID, lsmtree.UpdateTailDelta(newTail, second)))
	require.Equal(t, second, seg.Tail())
	tree := seg.TreeDescriptor()
	require.Equal(t, 1, tree.LevelCount())
	require.Len(t, tree.Levels[0].Segs, 1)
	require.Equal(t, newTail, tree.Levels[0].Segs[0].ID)
}

func TestLockRequestDoesNotAffectTail(t *testing.T) {
	ctx := context.Background()
	adaptor := storage.NewFakeAdaptor()
	seg, err := Open(ctx, adaptor, "meta_0")
	require.NoError(t, err)

	before := seg.Tail()
	_, err = seg.AppendLockRequest(ctx, consistency.AirLockRequest{
		ResourceIDs: []segid.ID{segid.PlaceholderTail},
		ClientID:    1,
		TimestampMs: 10,
	})
	require.NoError(t, err)
	require.Equal(t, before, seg.Tail())
}

func TestOptimisticCommitRace(t *testing.T) {
	ctx := context.Background()
	adaptor := storage.NewFakeAdaptor()
	seg, err := Open(ctx, adaptor, "meta_0")
	require.NoError(t, err)

	src := segid.New(segid.DataL0, 0, 1, 1)
	dest := segid.New(segid.DataLn, 1, 1, 1)

	// Put src into level 0 first, so the compaction deltas below remove a
	// segment from a level that exists.
	seed := lsmtree.TreeDelta{Levels: []lsmtree.LevelDelta{{Level: 0, IsAdd: true, Segs: []lsmtree.SegDesc{{ID: src}}}}}
	_, err = seg.AppendOptimisticCommit(ctx, 3, []segid.ID{segid.New(segid.DataL0, 0, 9, 3)}, seed)
	require.NoError(t, err)

	delta := lsmtree.NewFromCompaction(0, []lsmtree.SegDesc{{ID: src}}, 1, lsmtree.SegDesc{ID: dest})

	won, err := seg.AppendOptimisticCommit(ctx, 1, []segid.ID{src}, delta)
	require.NoError(t, err)
	require.True(t, won)

	dest2 := segid.New(segid.DataLn, 1, 2, 2)
	delta2 := lsmtree.NewFromCompaction(0, []lsmtree.SegDesc{{ID: src}}, 1, lsmtree.SegDesc{ID: dest2})
	won2, err := seg.AppendOptimisticCommit(ctx, 2, []segid.ID{src}, delta2)
	require.NoError(t, err)
	require.False(t, won2)
}
