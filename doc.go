// Package workqueue provides an unbounded, closable work queue and the
// pipeline plumbing around it.
//
// WorkQueue is the producer-consumer handoff: producers Put items, consumers
// Take them in FIFO order, and Close shuts the input while letting consumers
// drain what was already accepted. Every item put before Close is handed out
// exactly once, and no consumer stays blocked after Close.
//
// The remaining components connect a queue to goroutines and channels:
//
//   - Source: drains a queue into a channel until end of stream
//   - Feeder / Pipe: put values read from a channel onto a queue
//   - FanIn: merge multiple input channels into one queue
//   - Batcher: collect queued items into batches by size, period or end of stream
//   - Consume: run a fixed number of consumer goroutines over a queue
//   - Block: stop a group of components together
//
// Runners start as soon as they are created, report completion on
// ClosedChan, and can be stopped with Stop.
package workqueue
