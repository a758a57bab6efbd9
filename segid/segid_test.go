package segid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAndAccessors(t *testing.T) {
	id := New(DataLn, 3, 42, 7)
	require.Equal(t, DataLn, id.Type())
	require.Equal(t, uint8(3), id.Level())
	require.Equal(t, uint32(42), id.Ordinal())
	require.Equal(t, uint32(7), id.ClientID())
	require.True(t, id.IsOptimistic())
	require.False(t, id.IsMeta())
}

func TestResourceIDStripsClient(t *testing.T) {
	a := New(DataL0, 0, 5, 1)
	b := New(DataL0, 0, 5, 2)
	require.NotEqual(t, a, b)
	require.Equal(t, a.ResourceID(), b.ResourceID())
}

func TestNextTail(t *testing.T) {
	require.True(t, IsUninitTail(PlaceholderTail))
	first := NextTail(PlaceholderTail)
	require.Equal(t, DataSegIDMin, first)
	require.False(t, HasPrevTail(PlaceholderTail))
	require.True(t, HasPrevTail(first))

	second := NextTail(first)
	require.True(t, IsNewTail(second, first))
	require.False(t, IsNewTail(first, second))
}

func TestFilename(t *testing.T) {
	require.Equal(t, "meta_0", NewMeta().Filename())

	plain := New(DataLn, 2, 9, 0)
	require.Equal(t, "data2_9", plain.Filename())

	opt := New(DataLn, 2, 9, 55)
	require.Equal(t, "data2_9_55", opt.Filename())
}

func TestOrdinalOverflowPanics(t *testing.T) {
	require.Panics(t, func() {
		New(DataL0, 0, 1<<22, 0)
	})
}
