package airkv

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/airkv-project/airkv/segid"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	opts := DefaultOptions("unused-for-fake-backend")
	opts.Backend = BackendFake
	return opts
}

func TestOpenCreatesFirstTail(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, testOptions())
	require.NoError(t, err)
	defer s.Close(ctx)

	require.True(t, s.mgr.HasValidTail())
}

func TestPutThenGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, testOptions())
	require.NoError(t, err)
	defer s.Close(ctx)

	require.NoError(t, s.Put(ctx, []byte("key"), []byte("value")))

	got, ok, err := s.Get(ctx, []byte("key"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value", string(got))

	_, ok, err = s.Get(ctx, []byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetReturnsNewestWrite(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, testOptions())
	require.NoError(t, err)
	defer s.Close(ctx)

	require.NoError(t, s.Put(ctx, []byte("k"), []byte("v1")))
	require.NoError(t, s.Put(ctx, []byte("k"), []byte("v2")))

	got, ok, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", string(got))
}

func TestSecondTailUpdateCallLosesTheRace(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, testOptions())
	require.NoError(t, err)
	defer s.Close(ctx)

	// Open() has already installed the first tail starting from the
	// placeholder; calling createOrGetUpdatedTail again with that same
	// pre-creation id should find a newer tail already installed and do
	// nothing.
	won, err := s.createOrGetUpdatedTail(ctx, segid.PlaceholderTail)
	require.NoError(t, err)
	require.False(t, won)
}

func TestConcurrentTailCreationHasExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	s, err := Open(ctx, opts)
	require.NoError(t, err)
	defer s.Close(ctx)

	tail := s.mgr.CachedTail()
	require.NoError(t, s.adaptor.Seal(ctx, tail.Path))

	const n = 9
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.writeMu.Lock()
			defer s.writeMu.Unlock()
			won, err := s.createOrGetUpdatedTail(ctx, tail.ID)
			if err != nil {
				errs[i] = err
				return
			}
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, wins)
}

func TestRunCompactionFoldsFullBucket(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.CompactionConfig.Thresholds = []uint32{2}
	opts.CompactionConfig.Fanouts = []uint32{2}
	s, err := Open(ctx, opts)
	require.NoError(t, err)
	defer s.Close(ctx)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Put(ctx, []byte(fmt.Sprintf("k%02d", i)), []byte("v")))
		tail := s.mgr.CachedTail()
		require.NoError(t, s.adaptor.Seal(ctx, tail.Path))
		_, err := s.createOrGetUpdatedTail(ctx, tail.ID)
		require.NoError(t, err)
	}

	ran, err := s.RunCompaction(ctx)
	require.NoError(t, err)
	require.True(t, ran)

	for i := 0; i < 4; i++ {
		got, ok, err := s.Get(ctx, []byte(fmt.Sprintf("k%02d", i)))
		require.NoError(t, err)
		require.True(t, ok, "key k%02d missing after compaction", i)
		require.Equal(t, "v", string(got))
	}
}
