package workqueue

import (
	"context"
)

// Source is a goroutine that drains a WorkQueue into a channel so that queue
// consumers can take part in select statements and range loops.
//
// The output channel is closed when the queue reports end of stream or when
// the Source is stopped. Stop aborts a pending Take, so a stopped Source
// never removes an item it cannot deliver, except for one item it may already
// hold while blocked on the output channel; that item is handed to the
// OnUndelivered callback.
type Source[T any] struct {
	RunnerBase[string]
	queue         *WorkQueue[T]
	msgChannel    chan T
	onDone        func(s *Source[T])
	onUndelivered func(item T)
}

// SourceOption is a functional option for configuring a Source.
type SourceOption[T any] func(*Source[T])

// WithOutputBuffer sets the buffer size for the output channel.
func WithOutputBuffer[T any](size int) SourceOption[T] {
	return func(s *Source[T]) {
		s.msgChannel = make(chan T, size)
	}
}

// WithSourceOnDone sets the callback to be called when the source finishes.
func WithSourceOnDone[T any](fn func(*Source[T])) SourceOption[T] {
	return func(s *Source[T]) {
		s.onDone = fn
	}
}

// WithOnUndelivered sets the callback receiving an item that was taken from
// the queue but could not be sent because the source was stopped.
func WithOnUndelivered[T any](fn func(item T)) SourceOption[T] {
	return func(s *Source[T]) {
		s.onUndelivered = fn
	}
}

// NewSource creates a source reading from q and starts it.
//
// Examples:
//
//	// Unbuffered output
//	src := NewSource(q)
//	for item := range src.OutputChan() { ... }
//
//	// With options
//	src := NewSource(q,
//	    WithOutputBuffer[int](64),
//	    WithOnUndelivered(func(item int) { retry <- item }))
func NewSource[T any](q *WorkQueue[T], opts ...SourceOption[T]) *Source[T] {
	out := &Source[T]{
		RunnerBase: NewRunnerBase("stop"),
		queue:      q,
		msgChannel: make(chan T), // default unbuffered
	}
	for _, opt := range opts {
		opt(out)
	}
	out.start()
	return out
}

// OutputChan returns the channel on which dequeued items are delivered.
func (s *Source[T]) OutputChan() <-chan T {
	return s.msgChannel
}

func (s *Source[T]) start() {
	s.RunnerBase.start()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		select {
		case <-s.controlChan:
			// only "stop" is sent here
			cancel()
		case <-ctx.Done():
		}
	}()

	go func() {
		var err error
		defer func() {
			cancel()
			s.cleanup(err)
		}()
		for {
			item, ok, terr := s.queue.Take(ctx)
			if terr != nil {
				if !IsContextError(terr) {
					err = terr
				}
				return
			}
			if !ok {
				s.queue.logger.Debug("source reached end of queue")
				return
			}
			select {
			case s.msgChannel <- item:
			case <-ctx.Done():
				s.undelivered(item)
				return
			}
		}
	}()
}

func (s *Source[T]) undelivered(item T) {
	if s.onUndelivered != nil {
		s.onUndelivered(item)
		return
	}
	s.queue.logger.Warn("source stopped holding an undelivered item")
}

func (s *Source[T]) cleanup(err error) {
	if s.onDone != nil {
		s.onDone(s)
	}
	close(s.msgChannel)
	s.RunnerBase.cleanup(err)
}
