// Package nodes provides node kinds for scan-processing pipelines.
//
// A Source generates a chunked scan that is streamed to consumers as it is
// produced. Scale transforms a scan chunk by chunk on the executor's worker
// pool, Stats reduces one to a Summary and Constant serves a scalar that can
// drive another node's parameter. A Sink pulls from whatever it is wired to
// and records each new result in a resultstore.Store:
//
//	store := resultstore.NewMemoryStore()
//	g := livegraph.NewMapGraph()
//	src := g.Add(nodes.NewSource(1024))
//	stats := g.Add(nodes.NewStats())
//	sink := g.Add(nodes.NewSink(store))
//	_ = g.Connect(stats, nodes.StatsInput, livegraph.OutputRef{Node: src, Output: nodes.SourceOutput})
//	_ = g.Connect(sink, nodes.SinkInput, livegraph.OutputRef{Node: stats, Output: nodes.StatsOutput})
//
// Scans are stream.Response values. A scan that overflowed its ring before a
// consumer subscribed no longer satisfies ScanRequest, so the consumer's next
// request makes the producer generate it again.
package nodes
