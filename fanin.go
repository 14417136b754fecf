package workqueue

type fanInCmd[T any] struct {
	Name           string
	AddedChannel   <-chan T
	RemovedChannel <-chan T
	Feeder         *Feeder[T, T]
}

// FanIn merges multiple input channels into a single WorkQueue.
// It implements the fan-in pattern where values from multiple producers end
// up in one queue drained by any number of consumers.
//
// When created with closeQueue set, the FanIn closes the queue as it finishes:
// either after Stop, or once Seal has been called and every input channel has
// been closed.
type FanIn[T any] struct {
	RunnerBase[fanInCmd[T]]
	// OnChannelRemoved is called when a channel is removed so the caller can
	// perform other cleanups etc based on this. Set it before adding inputs.
	OnChannelRemoved func(fi *FanIn[T], inchan <-chan T)

	queue      *WorkQueue[T]
	closeQueue bool
	inputs     []*Feeder[T, T]
	sealed     bool
}

// NewFanIn creates a new FanIn that merges input channels into q.
// The FanIn starts running immediately upon creation.
func NewFanIn[T any](q *WorkQueue[T], closeQueue bool) *FanIn[T] {
	out := &FanIn[T]{
		RunnerBase: NewRunnerBase(fanInCmd[T]{Name: "stop"}),
		queue:      q,
		closeQueue: closeQueue,
	}
	out.start()
	return out
}

// Queue returns the queue inputs are merged into.
func (fi *FanIn[T]) Queue() *WorkQueue[T] {
	return fi.queue
}

// Add adds one or more input channels to the FanIn.
// Values from these channels will be put on the queue.
// Panics if any input channel is nil. Returns false if the FanIn has already
// finished, in which case the remaining inputs are not drained.
func (fi *FanIn[T]) Add(inputs ...<-chan T) bool {
	for _, input := range inputs {
		if input == nil {
			panic("Cannot add nil channels")
		}
		if !fi.command(fanInCmd[T]{Name: "add", AddedChannel: input}) {
			return false
		}
	}
	return true
}

// Remove removes an input channel from the FanIn's monitor list.
// The channel will no longer contribute to the queue.
func (fi *FanIn[T]) Remove(target <-chan T) bool {
	return fi.command(fanInCmd[T]{Name: "remove", RemovedChannel: target})
}

// Seal declares that no more inputs will be added. Once every remaining input
// has finished, the FanIn stops on its own.
func (fi *FanIn[T]) Seal() bool {
	return fi.command(fanInCmd[T]{Name: "seal"})
}

func (fi *FanIn[T]) command(cmd fanInCmd[T]) bool {
	if fi.send(cmd) {
		return true
	}
	fi.queue.logger.Warn("fanin command dropped, fanin has finished",
		"queue", fi.queue.Name(), "command", cmd.Name)
	return false
}

func (fi *FanIn[T]) cleanup() {
	for _, input := range fi.inputs {
		input.Stop()
	}
	fi.inputs = nil
	if fi.closeQueue {
		fi.queue.Close()
	}
	fi.RunnerBase.cleanup(nil)
}

func (fi *FanIn[T]) start() {
	fi.RunnerBase.start()
	go func() {
		defer fi.cleanup()
		for {
			cmd := <-fi.controlChan
			switch cmd.Name {
			case "stop":
				return
			case "add":
				// Add a new feeder to our list
				input := NewPipe(cmd.AddedChannel, fi.queue)
				fi.inputs = append(fi.inputs, input)
				go fi.watch(input)
			case "remove":
				fi.queue.logger.Debug("removing fan-in channel")
				fi.remove(func(f *Feeder[T, T]) bool { return f.input == cmd.RemovedChannel })
			case "feederDone":
				fi.remove(func(f *Feeder[T, T]) bool { return f == cmd.Feeder })
			case "seal":
				fi.sealed = true
			}
			if fi.sealed && len(fi.inputs) == 0 {
				return
			}
		}
	}()
}

// watch reports back when a feeder has finished on its own.
func (fi *FanIn[T]) watch(f *Feeder[T, T]) {
	if err := <-f.ClosedChan(); err != nil {
		fi.queue.logger.Warn("fan-in input failed", "error", err)
	}
	fi.send(fanInCmd[T]{Name: "feederDone", Feeder: f})
}

// Count returns the number of input channels currently being monitored.
// It is only accurate when called from OnChannelRemoved.
func (fi *FanIn[T]) Count() int {
	return len(fi.inputs)
}

func (fi *FanIn[T]) removeAt(index int) {
	inchan := fi.inputs[index].input
	fi.inputs[index].Stop()
	fi.inputs[index] = fi.inputs[len(fi.inputs)-1]
	fi.inputs = fi.inputs[:len(fi.inputs)-1]
	if fi.OnChannelRemoved != nil {
		fi.OnChannelRemoved(fi, inchan)
	}
}

func (fi *FanIn[T]) remove(match func(*Feeder[T, T]) bool) {
	for index, input := range fi.inputs {
		if match(input) {
			fi.removeAt(index)
			break
		}
	}
}
