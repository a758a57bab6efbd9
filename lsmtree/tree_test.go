package lsmtree

import (
	"bytes"
	"testing"

	"github.com/airkv-project/airkv/segid"
	"github.com/stretchr/testify/require"
)

func TestTailUpdateDemotesOldTailToL0(t *testing.T) {
	d := NewDescriptor()
	require.False(t, d.HasTail())

	firstTail := segid.NextTail(segid.PlaceholderTail)
	require.NoError(t, d.AppendTreeDelta(UpdateTailDelta(segid.PlaceholderTail, firstTail)))
	require.True(t, d.HasTail())
	require.Equal(t, firstTail, d.Tail.ID)
	require.Equal(t, 0, d.LevelCount())

	secondTail := segid.NextTail(firstTail)
	require.NoError(t, d.AppendTreeDelta(UpdateTailDelta(firstTail, secondTail)))
	require.Equal(t, secondTail, d.Tail.ID)
	require.Equal(t, 1, d.LevelCount())
	require.Len(t, d.Levels[0].Segs, 1)
	require.Equal(t, firstTail, d.Levels[0].Segs[0].ID)
}

func TestCompactionDeltaMovesSegmentsUpALevel(t *testing.T) {
	d := NewDescriptor()
	l0a := segid.New(segid.DataL0, 0, 1, 0)
	l0b := segid.New(segid.DataL0, 0, 2, 0)
	require.NoError(t, d.AppendTreeDelta(TreeDelta{Levels: []LevelDelta{
		{Level: 0, IsAdd: true, Segs: []SegDesc{{ID: l0a}, {ID: l0b}}},
	}}))
	require.Len(t, d.Levels[0].Segs, 2)

	dest := segid.New(segid.DataLn, 1, 1, 0)
	delta := NewFromCompaction(0, []SegDesc{{ID: l0a}, {ID: l0b}}, 1, SegDesc{ID: dest})
	require.NoError(t, d.AppendTreeDelta(delta))

	require.Equal(t, 2, d.LevelCount())
	require.Len(t, d.Levels[0].Segs, 0)
	require.Len(t, d.Levels[1].Segs, 1)
	require.Equal(t, dest, d.Levels[1].Segs[0].ID)
}

func TestReadSequenceIsNewestOrdinalFirst(t *testing.T) {
	d := NewDescriptor()
	a := segid.New(segid.DataL0, 0, 1, 0)
	b := segid.New(segid.DataLn, 1, 1, 0)
	require.NoError(t, d.AppendTreeDelta(TreeDelta{Levels: []LevelDelta{
		{Level: 0, IsAdd: true, Segs: []SegDesc{{ID: a}}},
	}}))
	require.NoError(t, d.AppendTreeDelta(TreeDelta{Levels: []LevelDelta{
		{Level: 1, IsAdd: true, Segs: []SegDesc{{ID: b}}},
	}}))
	seq := d.ReadSequence()
	require.Len(t, seq, 2)
	require.True(t, seq[0].ID > seq[1].ID)
}

func TestTreeDeltaEncodeDecodeRoundTrip(t *testing.T) {
	seg := segid.New(segid.DataLn, 2, 5, 0)
	delta := TreeDelta{Levels: []LevelDelta{
		{Level: 2, IsAdd: true, Segs: []SegDesc{{ID: seg, Min: []byte("a"), Max: []byte("z")}}},
	}}
	var buf bytes.Buffer
	delta.Encode(&buf)

	got, err := DecodeTreeDelta(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, delta, got)
}
