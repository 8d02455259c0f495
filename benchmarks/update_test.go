package benchmarks

import (
	"context"
	"testing"

	"github.com/randalmurphal/livegraph/pkg/livegraph"
	"github.com/randalmurphal/livegraph/pkg/livegraph/nodes"
)

// BenchmarkUpdate_NoChange_10 reconciles an unchanged 10-node chain.
func BenchmarkUpdate_NoChange_10(b *testing.B) {
	benchmarkNoChange(b, 10)
}

// BenchmarkUpdate_NoChange_100 reconciles an unchanged 100-node chain.
func BenchmarkUpdate_NoChange_100(b *testing.B) {
	benchmarkNoChange(b, 100)
}

// BenchmarkUpdate_NoChange_1000 reconciles an unchanged 1000-node chain.
func BenchmarkUpdate_NoChange_1000(b *testing.B) {
	benchmarkNoChange(b, 1000)
}

// BenchmarkUpdate_EditHead edits the chain head, which invalidates the
// whole chain, on every reconciliation.
func BenchmarkUpdate_EditHead(b *testing.B) {
	exec, g, ids := startChain(b, 100)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		offset := float64(i)
		_ = g.Edit(ids[0], func(n livegraph.Node) { n.(*nodes.Source).Offset = offset })
		if _, err := exec.Update(ctx, g); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkUpdate_Rewire moves one wire back and forth.
func BenchmarkUpdate_Rewire(b *testing.B) {
	exec, g, ids := startChain(b, 10)
	ctx := context.Background()
	tail := ids[len(ids)-1]

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		from := ids[1+i%2]
		_ = g.Connect(tail, nodes.ScaleInput, livegraph.OutputRef{Node: from, Output: nodes.ScaleOutput})
		if _, err := exec.Update(ctx, g); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkUpdate_SpawnRetire adds and removes a node per iteration.
func BenchmarkUpdate_SpawnRetire(b *testing.B) {
	exec, g, _ := startChain(b, 10)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := g.Add(nodes.NewConstant(float64(i)))
		if _, err := exec.Update(ctx, g); err != nil {
			b.Fatal(err)
		}
		g.Remove(id)
		if _, err := exec.Update(ctx, g); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkNoChange(b *testing.B, n int) {
	exec, g, _ := startChain(b, n)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := exec.Update(ctx, g); err != nil {
			b.Fatal(err)
		}
	}
}

// Helper functions

// startChain runs source -> scale -> ... -> scale with n nodes in total.
func startChain(b *testing.B, n int) (*livegraph.Executor, *livegraph.MapGraph, []livegraph.NodeID) {
	b.Helper()
	g := livegraph.NewMapGraph()
	ids := make([]livegraph.NodeID, 0, n)
	ids = append(ids, g.Add(nodes.NewSource(64)))
	for i := 1; i < n; i++ {
		id := g.Add(nodes.NewScale(1))
		out := nodes.ScaleOutput
		if i == 1 {
			out = nodes.SourceOutput
		}
		if err := g.Connect(id, nodes.ScaleInput, livegraph.OutputRef{Node: ids[i-1], Output: out}); err != nil {
			b.Fatal(err)
		}
		ids = append(ids, id)
	}

	exec := livegraph.NewExecutor()
	b.Cleanup(func() { _ = exec.Close() })
	if _, err := exec.Update(context.Background(), g); err != nil {
		b.Fatal(err)
	}
	return exec, g, ids
}
