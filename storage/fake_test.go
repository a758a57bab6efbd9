package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFakeAdaptorAppendLifecycle(t *testing.T) {
	ctx := context.Background()
	f := NewFakeAdaptor()
	require.NoError(t, f.Create(ctx, "seg1"))

	res, err := f.Append(ctx, "seg1", []byte("hello"))
	require.NoError(t, err)
	require.True(t, res.Outcome.IsSuccess())

	props, err := f.GetProps(ctx, "seg1")
	require.NoError(t, err)
	require.Equal(t, int64(5), props.Length)
	require.False(t, props.Sealed)

	require.NoError(t, f.Seal(ctx, "seg1"))
	res, err = f.Append(ctx, "seg1", []byte("world"))
	require.NoError(t, err)
	require.Equal(t, AppendToSealed, res.Outcome)
}

func TestFakeAdaptorReadRange(t *testing.T) {
	ctx := context.Background()
	f := NewFakeAdaptor()
	require.NoError(t, f.Create(ctx, "seg"))
	_, err := f.Append(ctx, "seg", []byte("0123456789"))
	require.NoError(t, err)

	got, err := f.ReadRange(ctx, "seg", 2, 4)
	require.NoError(t, err)
	require.Equal(t, []byte("2345"), got)
}

func TestFakeAdaptorMissingSegment(t *testing.T) {
	ctx := context.Background()
	f := NewFakeAdaptor()
	_, err := f.ReadAll(ctx, "nope")
	require.ErrorIs(t, err, ErrSegmentNotExist)

	res, err := f.Append(ctx, "nope", []byte("x"))
	require.NoError(t, err)
	require.Equal(t, AppendSegmentNotExist, res.Outcome)
}
