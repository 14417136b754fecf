package workqueue

import (
	"context"
	"sync"
	"time"
)

// Batcher drains a WorkQueue, collecting items of type T in some kind of
// window and reducing them to type U. For example this could be used to batch
// queued tasks into a list every 10 seconds, or every 100 tasks.
//
// A batch is flushed when CollectFunc asks for it, when FlushPeriod elapses
// with items pending, when Flush is called, and once more when the queue
// reports end of stream. After that final flush the output channel is closed
// (if the Batcher owns it) and the Batcher finishes.
//
// Stop abandons the pending collection. For a graceful shutdown close the
// queue and wait on ClosedChan instead.
type Batcher[T any, C any, U any] struct {
	RunnerBase[string]
	FlushPeriod time.Duration
	// CollectFunc adds an input to the collection and returns the updated collection.
	// The bool return value indicates whether a flush should be triggered immediately.
	CollectFunc func(input T, collection C) (C, bool)
	ReduceFunc  func(collectedItems C) (reducedOutputs U)

	queue      *WorkQueue[T]
	pending    C
	count      int
	selfOwnOut bool
	outputChan chan U

	windowMu     sync.Mutex
	cancelWindow context.CancelFunc
}

// BatcherOption is a functional option for configuring a Batcher
type BatcherOption[T any, C any, U any] func(*Batcher[T, C, U])

// WithFlushPeriod sets the flush period for the batcher
func WithFlushPeriod[T any, C any, U any](period time.Duration) BatcherOption[T, C, U] {
	return func(b *Batcher[T, C, U]) {
		b.FlushPeriod = period
	}
}

// WithOutputChan sets the output channel for the batcher. The channel stays
// owned by the caller and is not closed by the batcher.
func WithOutputChan[T any, C any, U any](ch chan U) BatcherOption[T, C, U] {
	return func(b *Batcher[T, C, U]) {
		b.outputChan = ch
		b.selfOwnOut = false
	}
}

// WithCollectFunc sets the function adding an item to the pending collection.
func WithCollectFunc[T any, C any, U any](fn func(T, C) (C, bool)) BatcherOption[T, C, U] {
	return func(b *Batcher[T, C, U]) {
		b.CollectFunc = fn
	}
}

// WithReduceFunc sets the function turning a collection into an output.
func WithReduceFunc[T any, C any, U any](fn func(C) U) BatcherOption[T, C, U] {
	return func(b *Batcher[T, C, U]) {
		b.ReduceFunc = fn
	}
}

// NewBatcher creates a batcher reading from q. CollectFunc and ReduceFunc must
// be provided via options. If no output channel is provided, the batcher
// creates and owns one. Just like other runners, the Batcher starts as soon
// as it is created.
func NewBatcher[T any, C any, U any](q *WorkQueue[T], opts ...BatcherOption[T, C, U]) *Batcher[T, C, U] {
	out := &Batcher[T, C, U]{
		RunnerBase:  NewRunnerBase("stop"),
		FlushPeriod: 100 * time.Millisecond,
		queue:       q,
		selfOwnOut:  true,
	}
	for _, opt := range opts {
		opt(out)
	}
	if out.outputChan == nil {
		out.outputChan = make(chan U)
	}
	out.start()
	return out
}

// NewIDBatcher creates a Batcher that simply collects items of type T into a
// list (of type []T). If maxSize is positive, a batch is flushed as soon as it
// holds maxSize items.
func NewIDBatcher[T any](q *WorkQueue[T], maxSize int, opts ...BatcherOption[T, []T, []T]) *Batcher[T, []T, []T] {
	defaults := []BatcherOption[T, []T, []T]{
		WithReduceFunc[T](IDFunc[[]T]),
		WithCollectFunc[T, []T, []T](func(input T, collection []T) ([]T, bool) {
			collection = append(collection, input)
			return collection, maxSize > 0 && len(collection) >= maxSize
		}),
	}
	return NewBatcher(q, append(defaults, opts...)...)
}

// RecvChan returns the channel from which we can read reduced batches.
func (b *Batcher[T, C, U]) RecvChan() <-chan U {
	return b.outputChan
}

// OutputChan is an alias for RecvChan.
func (b *Batcher[T, C, U]) OutputChan() <-chan U {
	return b.RecvChan()
}

// Flush asks the batcher to emit its pending collection now. It is a no-op
// when nothing is pending or the batcher has finished.
func (b *Batcher[T, C, U]) Flush() {
	b.send("flush")
}

func (b *Batcher[T, C, U]) start() {
	b.RunnerBase.start()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		for {
			select {
			case cmd := <-b.controlChan:
				if cmd == "stop" {
					cancel()
					return
				}
				// "flush": end the current window early
				b.windowMu.Lock()
				if b.cancelWindow != nil {
					b.cancelWindow()
				}
				b.windowMu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		var err error
		defer func() {
			cancel()
			if b.selfOwnOut {
				close(b.outputChan)
			}
			b.cleanup(err)
		}()
		for {
			window, cancelWindow := b.newWindow(ctx)
			b.windowMu.Lock()
			b.cancelWindow = cancelWindow
			b.windowMu.Unlock()

			eof, werr := b.collectWindow(window)
			cancelWindow()
			if werr != nil {
				err = werr
				return
			}
			if ctx.Err() != nil {
				if b.count > 0 {
					b.queue.logger.Debug("batcher stopped with pending items", "pending", b.count)
				}
				return
			}
			if !b.flush(ctx) || eof {
				return
			}
		}
	}()
}

// newWindow bounds the next collection window by FlushPeriod. A non-positive
// period disables time based flushing.
func (b *Batcher[T, C, U]) newWindow(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.FlushPeriod <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.FlushPeriod)
}

// collectWindow takes items until the window ends, CollectFunc requests a
// flush, or the queue is drained. It reports whether end of stream was seen.
//
// Take hands out queued items even when window is done, so the window is
// checked after every item or a backlog would keep it open.
func (b *Batcher[T, C, U]) collectWindow(window context.Context) (bool, error) {
	for {
		item, ok, err := b.queue.Take(window)
		if err != nil {
			if IsContextError(err) {
				return false, nil
			}
			return false, err
		}
		if !ok {
			return true, nil
		}
		var shouldFlush bool
		b.pending, shouldFlush = b.CollectFunc(item, b.pending)
		b.count++
		// window is derived from the run context, so this covers Stop too.
		if shouldFlush || window.Err() != nil {
			return false, nil
		}
	}
}

// flush sends the reduced pending collection, if any. It returns false if the
// batcher was stopped while the output was blocked.
func (b *Batcher[T, C, U]) flush(ctx context.Context) bool {
	if b.count == 0 {
		return true
	}
	reduced := b.ReduceFunc(b.pending)
	var zero C
	b.pending = zero
	b.count = 0
	select {
	case b.outputChan <- reduced:
		return true
	case <-ctx.Done():
		b.queue.logger.Debug("batcher stopped before a batch was delivered")
		return false
	}
}
