package testing

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/sKV/lib/store"
)

// RunStoreTests runs the conformance test suite for an IStore implementation.
func RunStoreTests(t *testing.T, name string, factory store.Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("SetReturnsPrevious", func(t *testing.T) {
			testSetReturnsPrevious(t, factory())
		})

		t.Run("Contains", func(t *testing.T) {
			testContains(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("TableIsolation", func(t *testing.T) {
			testTableIsolation(t, factory())
		})

		t.Run("GetAll", func(t *testing.T) {
			testGetAll(t, factory())
		})

		t.Run("IterateSnapshot", func(t *testing.T) {
			testIterateSnapshot(t, factory())
		})

		t.Run("ValueKinds", func(t *testing.T) {
			testValueKinds(t, factory())
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("ConcurrentSwap", func(t *testing.T) {
			testConcurrentSwap(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, s store.IStore) {
	defer s.Close()

	if _, _, err := s.Set("t1", "hello", store.StringValue("world")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	v, ok, err := s.Get("t1", "hello")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatalf("Expected key hello to exist after Set")
	}
	if !v.Equal(store.StringValue("world")) {
		t.Errorf("Expected value \"world\", got %s", v)
	}

	_, ok, err = s.Get("t1", "nonexistent-key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Errorf("Expected nonexistent key to return loaded=false")
	}
}

func testSetReturnsPrevious(t *testing.T, s store.IStore) {
	defer s.Close()

	v1 := store.StringValue("v1")
	v2 := store.StringValue("v2")

	prev, existed, err := s.Set("t", "k", v1)
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if existed || !prev.IsNone() {
		t.Errorf("Expected no previous value on first set, got %s", prev)
	}

	prev, existed, err = s.Set("t", "k", v2)
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !existed || !prev.Equal(v1) {
		t.Errorf("Expected previous value %s, got %s (existed=%v)", v1, prev, existed)
	}

	got, ok, err := s.Get("t", "k")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if !got.Equal(v2) {
		t.Errorf("Expected %s after second set, got %s", v2, got)
	}
}

func testContains(t *testing.T, s store.IStore) {
	defer s.Close()

	ok, err := s.Contains("t", "k")
	if err != nil {
		t.Fatalf("Contains failed: %v", err)
	}
	if ok {
		t.Errorf("Expected empty store to not contain k")
	}

	s.Set("t", "k", store.IntValue(1))

	ok, err = s.Contains("t", "k")
	if err != nil {
		t.Fatalf("Contains failed: %v", err)
	}
	if !ok {
		t.Errorf("Expected store to contain k after Set")
	}
}

func testDelete(t *testing.T, s store.IStore) {
	defer s.Close()

	s.Set("t", "k", store.IntValue(10))

	prev, existed, err := s.Delete("t", "k")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !existed || !prev.Equal(store.IntValue(10)) {
		t.Errorf("Expected Delete to return 10, got %s (existed=%v)", prev, existed)
	}

	if ok, _ := s.Contains("t", "k"); ok {
		t.Errorf("Expected k to be gone after Delete")
	}

	prev, existed, err = s.Delete("t", "k")
	if err != nil {
		t.Fatalf("Delete of missing key failed: %v", err)
	}
	if existed || !prev.IsNone() {
		t.Errorf("Expected second Delete to find nothing, got %s", prev)
	}
}

func testTableIsolation(t *testing.T, s store.IStore) {
	defer s.Close()

	s.Set("a", "k", store.StringValue("in-a"))
	s.Set("b", "k", store.StringValue("in-b"))
	// prefix overlap between table names must not leak keys
	s.Set("a:b", "c", store.StringValue("in-a:b"))

	v, _, _ := s.Get("a", "k")
	if !v.Equal(store.StringValue("in-a")) {
		t.Errorf("Expected table a to hold in-a, got %s", v)
	}
	v, _, _ = s.Get("b", "k")
	if !v.Equal(store.StringValue("in-b")) {
		t.Errorf("Expected table b to hold in-b, got %s", v)
	}

	pairs, err := s.GetAll("a")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(pairs) != 1 || pairs[0].Key != "k" {
		t.Errorf("Expected exactly one pair in table a, got %v", pairs)
	}
}

func testGetAll(t *testing.T, s store.IStore) {
	defer s.Close()

	pairs, err := s.GetAll("score")
	if err != nil {
		t.Fatalf("GetAll on empty table failed: %v", err)
	}
	if len(pairs) != 0 {
		t.Errorf("Expected empty table, got %v", pairs)
	}

	s.Set("score", "u1", store.IntValue(10))
	s.Set("score", "u2", store.IntValue(8))
	s.Set("score", "u3", store.IntValue(11))
	s.Set("score", "u1", store.IntValue(6))

	pairs, err = s.GetAll("score")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}

	want := []store.Kvpair{
		store.NewKvpair("u1", store.IntValue(6)),
		store.NewKvpair("u2", store.IntValue(8)),
		store.NewKvpair("u3", store.IntValue(11)),
	}
	if len(pairs) != len(want) {
		t.Fatalf("Expected %d pairs, got %d", len(want), len(pairs))
	}
	for i := range want {
		if pairs[i].Key != want[i].Key || !pairs[i].Value.Equal(want[i].Value) {
			t.Errorf("pair %d: expected %s=%s, got %s=%s", i, want[i].Key, want[i].Value, pairs[i].Key, pairs[i].Value)
		}
	}
}

func testIterateSnapshot(t *testing.T, s store.IStore) {
	defer s.Close()

	for i := 0; i < 20; i++ {
		s.Set("iter", fmt.Sprintf("key-%02d", i), store.IntValue(int64(i)))
	}

	seen := 0
	last := ""
	for pair, err := range s.Iterate("iter") {
		if err != nil {
			t.Fatalf("Iterate failed: %v", err)
		}
		if pair.Key <= last {
			t.Errorf("Expected ascending keys, got %s after %s", pair.Key, last)
		}
		last = pair.Key

		// writes during iteration must not show up in this pass
		s.Set("iter", "zz-added-"+pair.Key, store.IntValue(-1))
		seen++
	}
	if seen != 20 {
		t.Errorf("Expected 20 pairs in snapshot, got %d", seen)
	}

	// early break
	count := 0
	for range s.Iterate("iter") {
		count++
		if count == 3 {
			break
		}
	}
	if count != 3 {
		t.Errorf("Expected iteration to stop after 3 pairs, got %d", count)
	}
}

func testValueKinds(t *testing.T, s store.IStore) {
	defer s.Close()

	values := map[string]store.Value{
		"string": store.StringValue("text"),
		"binary": store.BinaryValue([]byte{0x00, 0xff, 0x10}),
		"int":    store.IntValue(-1 << 40),
		"float":  store.FloatValue(2.5),
		"bool":   store.BoolValue(true),
		"none":   {},
	}

	for k, v := range values {
		if _, _, err := s.Set("kinds", k, v); err != nil {
			t.Fatalf("Set %s failed: %v", k, err)
		}
	}
	for k, v := range values {
		got, ok, err := s.Get("kinds", k)
		if err != nil || !ok {
			t.Fatalf("Get %s failed: ok=%v err=%v", k, ok, err)
		}
		if !got.Equal(v) {
			t.Errorf("Expected %s for %s, got %s", v, k, got)
		}
	}
}

func testEdgeCases(t *testing.T, s store.IStore) {
	defer s.Close()

	// empty key and empty table
	s.Set("", "", store.StringValue("empty"))
	v, ok, err := s.Get("", "")
	if err != nil || !ok || !v.Equal(store.StringValue("empty")) {
		t.Errorf("Expected empty key to be stored, got %s ok=%v err=%v", v, ok, err)
	}

	// keys with separators and unicode
	odd := []string{"a:b", "::", "ключ", "key with spaces", "\x00bin"}
	for i, k := range odd {
		s.Set("odd", k, store.IntValue(int64(i)))
	}
	for i, k := range odd {
		v, ok, _ := s.Get("odd", k)
		if !ok || !v.Equal(store.IntValue(int64(i))) {
			t.Errorf("Expected %d for key %q, got %s", i, k, v)
		}
	}

	// large value
	large := make([]byte, 1<<20)
	for i := range large {
		large[i] = byte(i % 251)
	}
	s.Set("large", "k", store.BinaryValue(large))
	v, ok, _ = s.Get("large", "k")
	if !ok || !v.Equal(store.BinaryValue(large)) {
		t.Errorf("Expected large value to round trip")
	}
}

func testConcurrentSwap(t *testing.T, s store.IStore) {
	defer s.Close()

	const (
		numWorkers = 8
		perWorker  = 200
	)

	// every Set on the same key must observe exactly one distinct previous value,
	// so the number of writes that saw no previous value is exactly one
	var (
		wg       sync.WaitGroup
		fresh    int32
		errCount int32
	)
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, existed, err := s.Set("swap", "hot", store.IntValue(int64(w*perWorker+i)))
				if err != nil {
					atomic.AddInt32(&errCount, 1)
					continue
				}
				if !existed {
					atomic.AddInt32(&fresh, 1)
				}
				// unrelated keys in parallel
				s.Set("swap", fmt.Sprintf("cold-%d-%d", w, i), store.BoolValue(true))
			}
		}(w)
	}
	wg.Wait()

	if errCount > 0 {
		t.Fatalf("%d concurrent operations failed", errCount)
	}
	if fresh != 1 {
		t.Errorf("Expected exactly one Set to see no previous value, got %d", fresh)
	}

	pairs, err := s.GetAll("swap")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(pairs) != numWorkers*perWorker+1 {
		t.Errorf("Expected %d keys, got %d", numWorkers*perWorker+1, len(pairs))
	}
}
