package store

import "iter"

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is a table oriented key-value store.
// Implementations must be safe for concurrent use without external locking.
// Backend failures are returned as *Error with Kind ErrStorage.
type IStore interface {
	// Get returns the value for key in table. The boolean reports whether the key exists.
	Get(table, key string) (value Value, loaded bool, err error)
	// Set stores value under key and returns the value it replaced, if any.
	Set(table, key string, value Value) (prev Value, existed bool, err error)
	// Contains reports whether key exists in table.
	Contains(table, key string) (bool, error)
	// Delete removes key and returns the removed value, if any.
	Delete(table, key string) (prev Value, existed bool, err error)
	// GetAll returns every pair of the table.
	GetAll(table string) ([]Kvpair, error)
	// Iterate yields a single pass snapshot of the table in ascending key order.
	// A backend failure is yielded once as the error and ends the sequence.
	Iterate(table string) iter.Seq2[Kvpair, error]
	// Close releases the resources held by the store.
	Close() error
}

// Factory creates a fresh, empty store. It is used by the conformance tests.
type Factory func() IStore
