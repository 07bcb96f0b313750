package transfer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_MutualExclusionPerKey(t *testing.T) {
	km := newKeyedMutex()

	var mu sync.Mutex
	counters := map[string]int{}
	highWater := map[string]int{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, key := range []string{"OFB::AST-001", "OXYZO::AST-001"} {
			wg.Add(1)
			go func() {
				defer wg.Done()

				km.lock(key)
				defer km.unlock(key)

				mu.Lock()
				counters[key]++
				if counters[key] > highWater[key] {
					highWater[key] = counters[key]
				}
				mu.Unlock()

				mu.Lock()
				counters[key]--
				mu.Unlock()
			}()
		}
	}
	wg.Wait()

	require.Equal(t, 1, highWater["OFB::AST-001"])
	require.Equal(t, 1, highWater["OXYZO::AST-001"])
}

func TestKeyedMutex_EntriesReclaimed(t *testing.T) {
	km := newKeyedMutex()

	km.lock("a")
	km.unlock("a")
	km.lock("b")
	km.unlock("b")

	km.mu.Lock()
	defer km.mu.Unlock()
	require.Empty(t, km.locks)
}
