package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashKeySeparatesTableAndKey(t *testing.T) {
	seed := GenerateSeed()
	assert.NotEqual(t, HashKey("a", "bc", seed), HashKey("ab", "c", seed))
	assert.Equal(t, HashKey("t", "k", seed), HashKey("t", "k", seed))
}

func TestKeyLocksSerializesSameKey(t *testing.T) {
	locks := NewKeyLocks(3)
	assert.Len(t, locks.stripes, 4)

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("table", "key")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}
