package workqueue

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// HandlerFunc processes a single item taken from a queue.
type HandlerFunc[T any] func(ctx context.Context, item T) error

// Consume runs workers goroutines that take items from q and pass them to fn
// until the queue is closed and drained. It returns nil once every worker has
// seen end of stream.
//
// The first error returned by fn, or the cancellation of ctx, stops all
// workers; Consume then returns that error. Items still queued at that point
// are left in q.
func Consume[T any](ctx context.Context, q *WorkQueue[T], workers int, fn HandlerFunc[T]) error {
	if workers < 1 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidArgument, workers)
	}

	g, ctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() error {
			for {
				// Take prefers queued items over a done context.
				if err := ctx.Err(); err != nil {
					return err
				}
				item, ok, err := q.Take(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
				if err := fn(ctx, item); err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}
