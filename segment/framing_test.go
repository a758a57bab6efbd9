package segment

import (
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"
)

func TestForwardRoundTrip(t *testing.T) {
	entries := []Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("bb"), Value: []byte("22")},
	}
	buf, err := EncodeForward(entries)
	require.NoError(t, err)
	got, err := DecodeForward(buf)
	require.NoError(t, err)
	require.Equal(t, entries, got)
}

func TestReverseRoundTripIsNewestFirst(t *testing.T) {
	entries := []Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
	}
	buf, err := EncodeReverse(entries)
	require.NoError(t, err)
	got, err := DecodeReverseAll(buf)
	require.NoError(t, err)
	require.Equal(t, []Entry{entries[2], entries[1], entries[0]}, got)
}

func TestSearchReverseFindsNewestWrite(t *testing.T) {
	entries := []Entry{
		{Key: []byte("k"), Value: []byte("old")},
		{Key: []byte("k"), Value: []byte("new")},
	}
	buf, err := EncodeReverse(entries)
	require.NoError(t, err)
	got, ok, err := SearchReverse(buf, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "new", string(got.Value))
}

func TestFuzzForwardRoundTrip(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(1, 20)
	for i := 0; i < 50; i++ {
		var raw [][2][]byte
		f.Fuzz(&raw)
		var entries []Entry
		for _, kv := range raw {
			k, v := kv[0], kv[1]
			if len(k) > maxFieldLen {
				k = k[:maxFieldLen]
			}
			if len(v) > maxFieldLen {
				v = v[:maxFieldLen]
			}
			entries = append(entries, Entry{Key: k, Value: v})
		}
		buf, err := EncodeForward(entries)
		require.NoError(t, err)
		got, err := DecodeForward(buf)
		require.NoError(t, err)
		require.Equal(t, entries, got)
	}
}

func TestCacheGrowsContiguously(t *testing.T) {
	c := NewCache()
	require.True(t, c.IsEmpty())

	res := c.GetFull()
	require.Equal(t, Miss, res.Kind)

	c.Update(false, 0, []byte("hello"))
	require.False(t, c.IsFull())

	res = c.Get(0, 5)
	require.Equal(t, Hit, res.Kind)
	require.Equal(t, []byte("hello"), res.Data)

	res = c.Get(0, 10)
	require.Equal(t, HitPartial, res.Kind)
	require.Equal(t, int64(5), res.MissStart)

	c.Update(true, 5, []byte("world"))
	require.True(t, c.IsFull())
	full := c.GetFull()
	require.Equal(t, Hit, full.Kind)
	require.Equal(t, []byte("helloworld"), full.Data)
}

func TestCacheRangeRequestOnEmptyCacheFetchesFromZero(t *testing.T) {
	c := NewCache()

	res := c.Get(5, 10)
	require.Equal(t, Miss, res.Kind)
	require.Equal(t, int64(0), res.MissStart, "a range miss on an empty cache must still fetch from 0 to stay a valid prefix")
	require.Equal(t, int64(10), res.MissEnd)

	c.Update(false, 0, []byte("0123456789"))
	res = c.Get(5, 10)
	require.Equal(t, Hit, res.Kind)
	require.Equal(t, []byte("56789"), res.Data)
}
