package compaction

import (
	"context"
	"math/rand"
	"testing"

	"github.com/airkv-project/airkv/lsmtree"
	"github.com/airkv-project/airkv/segid"
	"github.com/airkv-project/airkv/segment"
	"github.com/stretchr/testify/require"
)

func TestFindCandidateLevelPicksHighestFill(t *testing.T) {
	tree := lsmtree.NewDescriptor()
	cfg := Config{Thresholds: []uint32{4, 4}, Fanouts: []uint32{2, 2}}

	for i := 0; i < 4; i++ {
		id := segid.New(segid.DataL0, 0, uint32(i+1), 0)
		require.NoError(t, tree.AppendTreeDelta(lsmtree.TreeDelta{Levels: []lsmtree.LevelDelta{
			{Level: 0, IsAdd: true, Segs: []lsmtree.SegDesc{{ID: id}}},
		}}))
	}
	level, ok := FindCandidateLevel(tree, cfg)
	require.True(t, ok)
	require.Equal(t, 0, level)
}

func TestPlanLevelZeroPicksFullBucket(t *testing.T) {
	tree := lsmtree.NewDescriptor()
	cfg := Config{Thresholds: []uint32{2}, Fanouts: []uint32{2}}
	ids := []segid.ID{
		segid.New(segid.DataL0, 0, 0, 0),
		segid.New(segid.DataL0, 0, 1, 0),
	}
	for _, id := range ids {
		require.NoError(t, tree.AppendTreeDelta(lsmtree.TreeDelta{Levels: []lsmtree.LevelDelta{
			{Level: 0, IsAdd: true, Segs: []lsmtree.SegDesc{{ID: id}}},
		}}))
	}
	task, ok := PlanCompaction(tree, cfg, rand.New(rand.NewSource(1)))
	require.True(t, ok)
	require.Equal(t, 0, task.FromLevel)
	require.Equal(t, 1, task.DestLevel)
	require.Len(t, task.SrcSegs, 2)
}

func TestExecuteL0DedupesKeepingNewest(t *testing.T) {
	ctx := context.Background()
	older := []segment.Entry{{Key: []byte("a"), Value: []byte("old-a")}}
	newer := []segment.Entry{{Key: []byte("a"), Value: []byte("new-a")}, {Key: []byte("b"), Value: []byte("b")}}

	out := ExecuteL0(ctx, [][]segment.Entry{older, newer}, []uint64{1, 2})
	require.Len(t, out, 2)
	for _, e := range out {
		if string(e.Key) == "a" {
			require.Equal(t, "new-a", string(e.Value))
		}
	}
}

func TestExecuteLnMergesSorted(t *testing.T) {
	ctx := context.Background()
	a := []segment.Entry{{Key: []byte("a"), Value: []byte("1")}, {Key: []byte("c"), Value: []byte("3")}}
	b := []segment.Entry{{Key: []byte("b"), Value: []byte("2")}}

	out := ExecuteLn(ctx, [][]segment.Entry{a, b}, []uint64{1, 2})
	require.Len(t, out, 3)
	require.Equal(t, "a", string(out[0].Key))
	require.Equal(t, "b", string(out[1].Key))
	require.Equal(t, "c", string(out[2].Key))
}
