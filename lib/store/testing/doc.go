// Package testing provides a conformance suite and benchmarks for
// implementations of the store.IStore interface.
//
// Example usage:
//
//	factory := func() store.IStore {
//		return memstore.New()
//	}
//
//	storetesting.RunStoreTests(t, "MemStore", factory)
//	storetesting.RunStoreBenchmarks(b, "MemStore", factory)
package testing
