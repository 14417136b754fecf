package workqueue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/eapache/queue"
)

// WorkQueue is an unbounded, concurrency-safe FIFO with close semantics. It is
// the handoff between producers (Put) and consumers (Take) of a pipeline.
//
// A queue starts open and empty. Close moves it to the closed state exactly
// once: Put fails from then on, while Take keeps handing out whatever was
// enqueued before and reports end of stream (ok == false, nil error) once the
// queue is drained.
//
// The zero value is not ready for use; construct with New.
type WorkQueue[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   *queue.Queue
	closed  bool
	waiting int

	name    string
	logger  *slog.Logger
	metrics *queueMetrics
}

// New creates an open, empty queue.
func New[T any](opts ...Option) *WorkQueue[T] {
	o := newQueueOptions(opts)
	q := &WorkQueue[T]{
		items:  queue.New(),
		name:   o.name,
		logger: o.logger.With("queue", o.name),
	}
	q.cond = sync.NewCond(&q.mu)

	m, err := newQueueMetrics(o.meterProvider, o.name)
	if err != nil {
		q.logger.Warn("failed to create queue metrics, recording disabled", "error", err)
		m = noopQueueMetrics(o.name)
	}
	q.metrics = m
	return q
}

// Name returns the name given with WithName.
func (q *WorkQueue[T]) Name() string {
	return q.name
}

// Put appends item to the tail of the queue and wakes one waiting consumer.
//
// Put returns ErrNilItem (matching ErrInvalidArgument) for nil items and
// ErrQueueClosed once the queue is closed. In both cases the queue is left
// untouched.
func (q *WorkQueue[T]) Put(item T) error {
	if isNil(item) {
		q.metrics.incRejected(rejectNilItem)
		return ErrNilItem
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.metrics.incRejected(rejectClosed)
		q.logger.Debug("put rejected, queue is closed")
		return ErrQueueClosed
	}
	q.items.Add(item)
	// Recorded under the lock so the depth gauge never goes below zero.
	q.metrics.incPut()
	q.cond.Signal()
	q.mu.Unlock()
	return nil
}

// Take removes and returns the head of the queue, blocking while the queue is
// empty and open.
//
// The results are:
//   - (item, true, nil) when an item was dequeued. Queued items are always
//     handed out before end of stream is reported, even after Close.
//   - (zero, false, nil) when the queue is closed and drained.
//   - (zero, false, ctx.Err()) when ctx was done while waiting. Nothing is
//     removed from the queue in that case.
//
// A nil ctx behaves like context.Background().
func (q *WorkQueue[T]) Take(ctx context.Context) (T, bool, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Length() == 0 && !q.closed {
		if err := q.wait(ctx); err != nil {
			return zero, false, err
		}
	}
	if q.items.Length() == 0 {
		return zero, false, nil
	}
	return q.dequeue(), true, nil
}

// wait blocks until the queue is non-empty, closed, or ctx is done.
// q.mu must be held.
func (q *WorkQueue[T]) wait(ctx context.Context) error {
	// sync.Cond knows nothing about contexts, so cancellation wakes every
	// waiter and each one re-checks its own ctx.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.waiting++
	q.metrics.addWaiting(1)
	defer func() {
		q.waiting--
		q.metrics.addWaiting(-1)
	}()

	for q.items.Length() == 0 && !q.closed {
		if err := ctx.Err(); err != nil {
			q.metrics.incCanceled()
			return err
		}
		q.cond.Wait()
	}
	return nil
}

// TryTake removes and returns the head of the queue without blocking. ok is
// false when the queue is empty, whether or not it is closed.
func (q *WorkQueue[T]) TryTake() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Length() == 0 {
		return item, false
	}
	return q.dequeue(), true
}

func (q *WorkQueue[T]) dequeue() T {
	item := q.items.Remove().(T)
	q.metrics.incTaken()
	return item
}

// Close marks the queue as closed and wakes every consumer blocked in Take.
// Items already queued stay available. Calling Close more than once is a no-op.
func (q *WorkQueue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	remaining, waiting := q.items.Length(), q.waiting
	q.cond.Broadcast()
	q.mu.Unlock()

	q.logger.Debug("queue closed", "remaining", remaining, "waiting", waiting)
}

// IsClosed reports whether Close has been called.
func (q *WorkQueue[T]) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued items.
func (q *WorkQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Waiting returns the number of consumers currently blocked in Take.
func (q *WorkQueue[T]) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting
}
