package workqueue

import "fmt"

func idMapperFunc[T any](input T) (output T, skip bool, stop bool) {
	output = input
	return
}

// Feeder connects an input channel to a WorkQueue, applying a transform to
// every value before it is put.
type Feeder[I any, T any] struct {
	RunnerBase[string]
	input       <-chan I
	queue       *WorkQueue[T]
	closeOnDone bool
	onDone      func()

	// mapFunc is applied to each value in the input channel
	// and returns a tuple of 3 things - outval, skip, stop
	// if skip is false, outval is put on the queue
	// if stop is true, then the feeder stops processing any further elements.
	mapFunc func(I) (T, bool, bool)
}

type feederOptions struct {
	closeOnDone bool
	onDone      func()
}

// FeederOption is a functional option for configuring a Feeder.
type FeederOption func(*feederOptions)

// WithCloseOnDone makes the feeder close its queue once the input channel is
// closed or the map function asks to stop. Stop does not close the queue.
func WithCloseOnDone() FeederOption {
	return func(o *feederOptions) {
		o.closeOnDone = true
	}
}

// WithFeederOnDone sets a callback run when the feeder finishes.
func WithFeederOnDone(fn func()) FeederOption {
	return func(o *feederOptions) {
		o.onDone = fn
	}
}

// NewFeeder creates and starts a feeder from input into q.
// The input channel is owned by the caller and is never closed by the feeder.
// The mapper function returns (output, skip, stop) where:
// - output: the value to put on the queue
// - skip: if true, nothing is put for this input
// - stop: if true, the feeder stops processing further elements
//
// A Put failure (a nil output or a queue closed by someone else) ends the
// feeder with that error on ClosedChan.
func NewFeeder[I any, T any](input <-chan I, q *WorkQueue[T], mapper func(I) (T, bool, bool), opts ...FeederOption) *Feeder[I, T] {
	var o feederOptions
	for _, opt := range opts {
		opt(&o)
	}
	out := &Feeder[I, T]{
		RunnerBase:  NewRunnerBase("stop"),
		input:       input,
		queue:       q,
		mapFunc:     mapper,
		closeOnDone: o.closeOnDone,
		onDone:      o.onDone,
	}
	out.start()
	return out
}

// NewPipe creates a feeder with the identity function, putting every value
// from input on q unchanged.
func NewPipe[T any](input <-chan T, q *WorkQueue[T], opts ...FeederOption) *Feeder[T, T] {
	return NewFeeder(input, q, idMapperFunc[T], opts...)
}

func (f *Feeder[I, T]) start() {
	f.RunnerBase.start()
	go func() {
		var err error
		defer func() { f.cleanup(err) }()
		for {
			select {
			case <-f.controlChan:
				// stopped - only "stop" allowed here
				return
			case value, ok := <-f.input:
				if !ok {
					f.finish()
					return
				}
				outval, skip, stop := f.mapFunc(value)
				if !skip {
					if perr := f.queue.Put(outval); perr != nil {
						err = fmt.Errorf("feeder put: %w", perr)
						return
					}
				}
				if stop {
					f.finish()
					return
				}
			}
		}
	}()
}

// finish runs when the input is exhausted.
func (f *Feeder[I, T]) finish() {
	if f.closeOnDone {
		f.queue.Close()
	}
}

func (f *Feeder[I, T]) cleanup(err error) {
	if f.onDone != nil {
		f.onDone()
	}
	f.RunnerBase.cleanup(err)
}
