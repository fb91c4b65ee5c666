package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	item int
	err  error
}

func failureResult(item int, err error) result { return result{item: item, err: err} }

func TestRunBounded_OneResultPerItem(t *testing.T) {
	// given
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}

	// when
	results, err := RunBounded(context.Background(), items, 4,
		func(_ context.Context, i int) (result, error) { return result{item: i}, nil },
		failureResult,
	)

	// then
	require.NoError(t, err)
	require.Len(t, results, len(items))
	seen := make([]int, 0, len(results))
	for _, r := range results {
		seen = append(seen, r.item)
	}
	sort.Ints(seen)
	assert.Equal(t, items, seen)
}

func TestRunBounded_FailuresAreIsolated(t *testing.T) {
	// given
	boom := errors.New("boom")
	work := func(_ context.Context, i int) (result, error) {
		switch {
		case i%3 == 0:
			return result{}, boom
		case i == 7:
			panic("lane blew up")
		}
		return result{item: i}, nil
	}

	// when
	results, err := RunBounded(context.Background(), []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, 2, work, failureResult)

	// then
	require.NoError(t, err)
	require.Len(t, results, 9)
	failed := map[int]error{}
	for _, r := range results {
		if r.err != nil {
			failed[r.item] = r.err
		}
	}
	assert.Len(t, failed, 4)
	for _, i := range []int{0, 3, 6} {
		assert.ErrorIs(t, failed[i], boom)
	}
	assert.ErrorIs(t, failed[7], ErrWorkerPanic)
	assert.Contains(t, failed[7].Error(), "lane blew up")
}

func TestRunBounded_NeverExceedsLimit(t *testing.T) {
	// given
	var inFlight, peak atomic.Int32
	work := func(_ context.Context, i int) (result, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return result{item: i}, nil
	}
	items := make([]int, 30)

	// when
	results, err := RunBounded(context.Background(), items, 3, work, failureResult)

	// then
	require.NoError(t, err)
	assert.Len(t, results, 30)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Positive(t, peak.Load())
}

func TestRunBounded_InvalidLimit(t *testing.T) {
	for _, limit := range []int{0, -1} {
		t.Run(fmt.Sprint(limit), func(t *testing.T) {
			var called atomic.Bool
			_, err := RunBounded(context.Background(), []int{1, 2}, limit,
				func(_ context.Context, i int) (result, error) {
					called.Store(true)
					return result{item: i}, nil
				},
				failureResult,
			)
			require.ErrorIs(t, err, ErrInvalidLimit)
			assert.False(t, called.Load(), "no work may start")
		})
	}
}

func TestRunBounded_EmptyItems(t *testing.T) {
	results, err := RunBounded(context.Background(), nil, 3,
		func(_ context.Context, i int) (result, error) { return result{item: i}, nil },
		failureResult,
	)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunBounded_CanceledContextStillYieldsOneResultPerItem(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := RunBounded(ctx, []int{1, 2, 3, 4}, 2,
		func(ctx context.Context, i int) (result, error) {
			if err := ctx.Err(); err != nil {
				return result{}, err
			}
			return result{item: i}, nil
		},
		failureResult,
	)

	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, r := range results {
		assert.ErrorIs(t, r.err, context.Canceled)
	}
}

func TestLaneCount(t *testing.T) {
	assert.Equal(t, 3, laneCount(10, 3))
	assert.Equal(t, 2, laneCount(2, 3))
	assert.Equal(t, 0, laneCount(0, 3))
}
