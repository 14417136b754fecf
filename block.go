package workqueue

import (
	"fmt"
	"sync"
)

// Component represents any building block that can be part of a Block.
// Source, Feeder, FanIn and Batcher all implement this interface.
type Component interface {
	// Stop stops the component and cleans up resources
	Stop() error

	// IsRunning returns true if the component is currently running
	IsRunning() bool
}

// OutputComponent represents a component with an output channel
type OutputComponent[T any] interface {
	Component

	// OutputChan returns the channel for receiving output from this component
	OutputChan() <-chan T
}

var (
	_ OutputComponent[int]   = (*Source[int])(nil)
	_ OutputComponent[[]int] = (*Batcher[int, []int, []int])(nil)
	_ Component              = (*Feeder[int, int])(nil)
	_ Component              = (*FanIn[int])(nil)
	_ Component              = (*Block)(nil)
)

// Block represents a composite component made up of multiple connected
// components, typically the stages around one or more queues. A Block itself
// acts as a component and can be nested within other Blocks.
type Block struct {
	name       string
	components []Component
	mu         sync.RWMutex
}

// NewBlock creates a new block with the given name
func NewBlock(name string) *Block {
	return &Block{
		name:       name,
		components: make([]Component, 0),
	}
}

// Add adds a component to this block
func (b *Block) Add(component Component) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.components = append(b.components, component)
}

// Stop stops all components in this block in reverse order, so components
// added last (usually the consumers) stop first.
func (b *Block) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := len(b.components) - 1; i >= 0; i-- {
		if err := b.components[i].Stop(); err != nil {
			return fmt.Errorf("block %s: failed to stop component %d: %w", b.name, i, err)
		}
	}
	return nil
}

// IsRunning returns true if any component in the block is running
func (b *Block) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, comp := range b.components {
		if comp.IsRunning() {
			return true
		}
	}
	return false
}

// Name returns the block's name
func (b *Block) Name() string {
	return b.name
}

// Count returns the number of components in this block
func (b *Block) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.components)
}
