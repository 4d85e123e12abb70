// Package cell holds the latest inbound signal value shared between the
// processor (single writer) and display readers.
package cell

import (
	"fmt"
	"sync"
)

// Cell is a single float32 slot guarded by a readers-writer lock. The zero
// value holds 0 and is ready to use.
type Cell struct {
	mu    sync.RWMutex
	value float32
}

// New returns an empty cell.
func New() *Cell {
	return &Cell{}
}

// Store replaces the current value.
func (c *Cell) Store(v float32) {
	c.mu.Lock()
	c.value = v
	c.mu.Unlock()
}

// Load returns the current value.
func (c *Cell) Load() float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Label renders the value the way the overlay displays it, "label: value".
// The lock is released before formatting.
func (c *Cell) Label(label string) string {
	return fmt.Sprintf("%s: %v", label, c.Load())
}
