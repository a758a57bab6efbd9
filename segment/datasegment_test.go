package segment

import (
	"context"
	"testing"

	"github.com/airkv-project/airkv/segid"
	"github.com/airkv-project/airkv/storage"
	"github.com/stretchr/testify/require"
)

func newFakeDataSegment(t *testing.T, ctx context.Context, id segid.ID, compress bool) (*DataSegment, storage.Adaptor) {
	t.Helper()
	a := storage.NewFakeAdaptor()
	require.NoError(t, a.Open(ctx, "home", nil))
	require.NoError(t, a.Create(ctx, "seg"))
	return NewDataSegment(id, "seg", a, compress), a
}

func TestAppendSegmentRoundTripAndSearch(t *testing.T) {
	ctx := context.Background()
	id := segid.New(segid.DataL0, 0, 1, 0)
	ds, _ := newFakeDataSegment(t, ctx, id, false)

	_, err := ds.AppendEntries(ctx, []Entry{{Key: []byte("a"), Value: []byte("1")}})
	require.NoError(t, err)
	_, err = ds.AppendEntries(ctx, []Entry{{Key: []byte("b"), Value: []byte("2")}})
	require.NoError(t, err)
	_, err = ds.AppendEntries(ctx, []Entry{{Key: []byte("a"), Value: []byte("3")}})
	require.NoError(t, err)

	entries, err := ds.ReadAllEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	got, ok, err := ds.SearchEntry(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "3", string(got.Value), "reverse framing makes the newest write for a key the first one found")

	_, ok, err = ds.SearchEntry(ctx, []byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAppendSegmentSearchInRangeConfinesToSnapshot(t *testing.T) {
	ctx := context.Background()
	id := segid.New(segid.DataL0, 0, 1, 0)
	ds, _ := newFakeDataSegment(t, ctx, id, false)

	res, err := ds.AppendEntries(ctx, []Entry{{Key: []byte("k"), Value: []byte("old")}})
	require.NoError(t, err)
	snapshotLen := int64(0)
	_ = res
	snapshotLen = mustLen(t, ctx, ds)

	_, err = ds.AppendEntries(ctx, []Entry{{Key: []byte("k"), Value: []byte("new")}})
	require.NoError(t, err)

	entry, ok, err := ds.SearchEntryInRange(ctx, []byte("k"), snapshotLen)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "old", string(entry.Value))

	entry, ok, err = ds.SearchEntryInRange(ctx, []byte("k"), mustLen(t, ctx, ds))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "new", string(entry.Value))
}

func mustLen(t *testing.T, ctx context.Context, ds *DataSegment) int64 {
	t.Helper()
	all, err := ds.adaptor.ReadAll(ctx, ds.Path)
	require.NoError(t, err)
	return int64(len(all))
}

func TestWholeSegmentRoundTripAndColdRead(t *testing.T) {
	ctx := context.Background()
	id := segid.New(segid.DataLn, 1, 1, 0)
	ds, _ := newFakeDataSegment(t, ctx, id, true)

	entries := []Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("22")},
		{Key: []byte("c"), Value: []byte("333")},
	}
	require.NoError(t, ds.WriteAllEntries(ctx, entries))

	got, err := ds.ReadAllEntries(ctx)
	require.NoError(t, err)
	require.Equal(t, entries, got)

	// A second handle onto the same compressed, checksummed body but a
	// fresh empty cache, exercising a cold read through fetchMissing.
	ds2 := NewDataSegment(id, ds.Path, ds.adaptor, true)
	got2, err := ds2.ReadAllEntries(ctx)
	require.NoError(t, err)
	require.Equal(t, entries, got2)
}
