package testing

import (
	"fmt"
	"testing"

	"github.com/ValentinKolb/sKV/lib/store"
)

// RunStoreBenchmarks runs the benchmarks for an IStore implementation
func RunStoreBenchmarks(b *testing.B, name string, factory store.Factory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Set", func(b *testing.B) {
			benchmarkSet(b, factory())
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory())
		})

		b.Run("MixedUsage", func(b *testing.B) {
			benchmarkMixedUsage(b, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkSet(b *testing.B, s store.IStore) {
	b.Cleanup(func() {
		s.Close()
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			s.Set("bench", fmt.Sprintf("test-key-%d", counter), store.StringValue("test-value"))
			counter++
		}
	})
}

func benchmarkGet(b *testing.B, s store.IStore) {
	b.Cleanup(func() {
		s.Close()
	})

	for i := 0; i < 1000; i++ {
		s.Set("bench", fmt.Sprintf("test-key-%d", i), store.IntValue(int64(i)))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			s.Get("bench", fmt.Sprintf("test-key-%d", counter%1000))
			counter++
		}
	})
}

func benchmarkMixedUsage(b *testing.B, s store.IStore) {
	b.Cleanup(func() {
		s.Close()
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter%100)
			switch counter % 4 {
			case 0:
				s.Set("bench", key, store.IntValue(int64(counter)))
			case 1:
				s.Get("bench", key)
			case 2:
				s.Contains("bench", key)
			case 3:
				s.Delete("bench", key)
			}
			counter++
		}
	})
}
