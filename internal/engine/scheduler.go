package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// RunBounded applies work to every item with at most limit items in flight
// and returns exactly one result per item, in completion order.
//
// Lanes share a single cursor; each lane claims the next unclaimed index until
// the items are exhausted. A work error or panic is converted into a result by
// onFailure, so one item never affects another. RunBounded returns after every
// lane has finished.
//
// Lanes do not stop on ctx cancellation: work receives ctx and is expected to
// fail fast, which still yields one result per item.
func RunBounded[T, R any](
	ctx context.Context,
	items []T,
	limit int,
	work func(ctx context.Context, item T) (R, error),
	onFailure func(item T, err error) R,
) ([]R, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidLimit, limit)
	}
	if work == nil || onFailure == nil {
		return nil, errors.New("scheduler: work and onFailure are required")
	}

	results := make([]R, 0, len(items))
	if len(items) == 0 {
		return results, nil
	}

	var (
		cursor atomic.Int64
		mu     sync.Mutex
		g      errgroup.Group
	)
	for range laneCount(len(items), limit) {
		g.Go(func() error {
			for {
				i := int(cursor.Add(1) - 1)
				if i >= len(items) {
					return nil
				}
				r := runOne(ctx, items[i], work, onFailure)
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			}
		})
	}
	_ = g.Wait()

	return results, nil
}

func laneCount(n, limit int) int {
	return min(n, limit)
}

func runOne[T, R any](
	ctx context.Context,
	item T,
	work func(context.Context, T) (R, error),
	onFailure func(T, error) R,
) (r R) {
	defer func() {
		if p := recover(); p != nil {
			r = onFailure(item, fmt.Errorf("%w: %v", ErrWorkerPanic, p))
		}
	}()

	res, err := work(ctx, item)
	if err != nil {
		return onFailure(item, err)
	}
	return res
}
