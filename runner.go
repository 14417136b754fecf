package workqueue

import (
	"sync/atomic"
)

// RunnerBase holds the lifecycle shared by the goroutine-backed components
// (Source, Feeder, FanIn, Batcher). Commands of type C are delivered to the
// running goroutine over a control channel; stopVal is the command that asks
// it to exit.
type RunnerBase[C any] struct {
	controlChan chan C
	stopVal     C
	running     atomic.Bool
	done        chan struct{}
	closedChan  chan error
}

// NewRunnerBase creates a runner base whose Stop sends stopVal.
func NewRunnerBase[C any](stopVal C) RunnerBase[C] {
	return RunnerBase[C]{
		controlChan: make(chan C),
		stopVal:     stopVal,
		done:        make(chan struct{}),
		closedChan:  make(chan error, 1),
	}
}

// IsRunning returns true until the component's goroutine has finished.
func (r *RunnerBase[C]) IsRunning() bool {
	return r.running.Load()
}

// ClosedChan receives the error (nil on a clean finish) the component ended
// with and is closed right after.
func (r *RunnerBase[C]) ClosedChan() <-chan error {
	return r.closedChan
}

// Done is closed once the component's goroutine has finished.
func (r *RunnerBase[C]) Done() <-chan struct{} {
	return r.done
}

// Stop asks the component to exit and waits until it has. Stopping a finished
// component is a no-op.
func (r *RunnerBase[C]) Stop() error {
	r.send(r.stopVal)
	<-r.done
	return nil
}

// send delivers cmd to the running goroutine. It returns false if the
// goroutine has already finished.
func (r *RunnerBase[C]) send(cmd C) bool {
	select {
	case r.controlChan <- cmd:
		return true
	case <-r.done:
		return false
	}
}

func (r *RunnerBase[C]) DebugInfo() any {
	return map[string]any{
		"running":     r.IsRunning(),
		"controlChan": r.controlChan,
	}
}

func (r *RunnerBase[C]) start() {
	r.running.Store(true)
}

func (r *RunnerBase[C]) cleanup(err error) {
	r.running.Store(false)
	r.closedChan <- err
	close(r.closedChan)
	close(r.done)
}
