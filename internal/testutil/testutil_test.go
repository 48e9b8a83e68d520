package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicClock_Advances(t *testing.T) {
	clock := NewDeterministicClock()

	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(time.Second), clock.Now())

	clock.Reset()
	assert.Equal(t, Epoch, clock.Now())
}

func TestDeterministicClock_Frozen(t *testing.T) {
	clock := NewDeterministicClock().WithStep(0)

	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch, clock.Now())
}

func TestSequentialIDs(t *testing.T) {
	gen := NewSequentialIDs()

	assert.Equal(t, "00000000-0000-7000-8000-000000000001", gen.Generate())
	assert.Equal(t, "00000000-0000-7000-8000-000000000002", gen.Generate())
	assert.Equal(t, ID(3), gen.Generate())
	assert.Less(t, ID(9), ID(10))
}

func TestSequentialIDs_ThreadSafe(t *testing.T) {
	gen := NewSequentialIDs()
	const numGoroutines = 10
	const callsPerGoroutine = 100

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				id := gen.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}
