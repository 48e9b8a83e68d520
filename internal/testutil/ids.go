package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates UUID-shaped IDs in a fixed sequence:
//
//	00000000-0000-7000-8000-000000000001
//	00000000-0000-7000-8000-000000000002
//	...
//
// IDs sort in generation order, like the UUIDv7 IDs they stand in for, so
// the id tie-breaker of a query is insertion order in tests too.
//
// Implements catalog.IDGenerator.
//
// Thread-safety: SequentialIDs is safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu sync.Mutex
	n  int
}

// NewSequentialIDs creates a generator whose first ID ends in 1.
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{}
}

// Generate returns the next ID.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return ID(g.n)
}

// ID returns the n-th ID of a SequentialIDs.
func ID(n int) string {
	return fmt.Sprintf("00000000-0000-7000-8000-%012d", n)
}
