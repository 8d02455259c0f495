package benchmarks

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/randalmurphal/livegraph/pkg/livegraph/nodes"
	"github.com/randalmurphal/livegraph/pkg/livegraph/resultstore"
)

// BenchmarkMemoryStore_Put measures an in-memory result write.
func BenchmarkMemoryStore_Put(b *testing.B) {
	benchmarkPut(b, resultstore.NewMemoryStore(resultstore.WithRetention(100)))
}

// BenchmarkSQLiteStore_Put measures a durable result write.
func BenchmarkSQLiteStore_Put(b *testing.B) {
	store, err := resultstore.NewSQLiteStore(filepath.Join(b.TempDir(), "results.db"), resultstore.WithRetention(100))
	if err != nil {
		b.Fatal(err)
	}
	benchmarkPut(b, store)
}

// BenchmarkMemoryStore_Latest measures reading the newest result.
func BenchmarkMemoryStore_Latest(b *testing.B) {
	benchmarkLatest(b, resultstore.NewMemoryStore())
}

// BenchmarkSQLiteStore_Latest measures reading the newest result.
func BenchmarkSQLiteStore_Latest(b *testing.B) {
	store, err := resultstore.NewSQLiteStore(filepath.Join(b.TempDir(), "results.db"))
	if err != nil {
		b.Fatal(err)
	}
	benchmarkLatest(b, store)
}

// BenchmarkRedisStore_Put measures a write through the append script.
func BenchmarkRedisStore_Put(b *testing.B) {
	mr := miniredis.RunT(b)
	benchmarkPut(b, resultstore.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), resultstore.WithRetention(100)))
}

func benchmarkPut(b *testing.B, store resultstore.Store) {
	b.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	data := summaryResult(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := store.Put(ctx, "summary", data); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkLatest(b *testing.B, store resultstore.Store) {
	b.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	if _, err := store.Put(ctx, "summary", summaryResult(b)); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := store.Latest(ctx, "summary"); err != nil {
			b.Fatal(err)
		}
	}
}

func summaryResult(b *testing.B) []byte {
	b.Helper()
	values := make([]float64, 1000)
	for i := range values {
		values[i] = float64(i)
	}
	s := nodes.Summarize(values)
	data, err := json.Marshal(nodes.Result{Kind: nodes.ResultSummary, Summary: &s})
	if err != nil {
		b.Fatal(err)
	}
	return data
}
