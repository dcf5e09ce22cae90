package util

import "sync"

// DefaultStripes is the number of mutexes a KeyLocks uses when none is given
const DefaultStripes = 256

// KeyLocks is a fixed set of mutexes selected by key hash.
// Writers to the same (table, key) serialize, writers to unrelated keys usually do not.
type KeyLocks struct {
	seed    uint64
	stripes []sync.Mutex
}

// NewKeyLocks creates a KeyLocks with n stripes (rounded up to a power of two)
func NewKeyLocks(n int) *KeyLocks {
	if n <= 0 {
		n = DefaultStripes
	}
	size := 1
	for size < n {
		size <<= 1
	}
	return &KeyLocks{
		seed:    GenerateSeed(),
		stripes: make([]sync.Mutex, size),
	}
}

// Lock locks the stripe for (table, key) and returns its unlock function
func (l *KeyLocks) Lock(table, key string) (unlock func()) {
	m := &l.stripes[HashKey(table, key, l.seed)&uint64(len(l.stripes)-1)]
	m.Lock()
	return m.Unlock
}
