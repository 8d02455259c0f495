package nodes

import (
	"context"

	"github.com/randalmurphal/livegraph/pkg/livegraph"
	"github.com/randalmurphal/livegraph/pkg/livegraph/connection"
	"github.com/randalmurphal/livegraph/pkg/livegraph/stream"
)

// SourceOutput streams the generated scan.
const SourceOutput livegraph.OutputID = 0

// Source generates a synthetic scan: sample i has the value Offset + i*Step.
// It stands in for an acquisition device.
type Source struct {
	Samples   int
	ChunkSize int
	Offset    float64
	Step      float64
	// StreamCapacity is the ring size of each published scan.
	StreamCapacity int
}

// NewSource returns a source producing samples values 0, 1, 2, ...
func NewSource(samples int) *Source {
	return &Source{Samples: samples, Step: 1}
}

func (n *Source) Kind() string { return "source" }

func (n *Source) Inputs() []livegraph.Binding { return nil }

func (n *Source) Clone() livegraph.Node {
	c := *n
	return &c
}

func (n *Source) Changed(prev livegraph.Node) bool {
	p, ok := prev.(*Source)
	return !ok || *p != *n
}

func (n *Source) CreateTask(b *livegraph.Builder) livegraph.Task {
	return livegraph.Erase[*Source, livegraph.InputID](b, &sourceTask{
		params: *n,
		out:    livegraph.AddOutput[ScanRequest, Scan](b, SourceOutput),
	})
}

type sourceTask struct {
	params Source
	out    *connection.Output[ScanRequest, Scan]
}

func (t *sourceTask) Sync(n *Source) { t.params = *n }

func (t *sourceTask) Connect(livegraph.InputID, *connection.Handle) {}

func (t *sourceTask) Disconnect(livegraph.InputID) {}

func (t *sourceTask) Invalidate(livegraph.InvalidationCause) {}

func (t *sourceTask) Run(ctx context.Context) error {
	if _, err := t.out.Receive(ctx); err != nil {
		return err
	}

	p := t.params
	size := p.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	capacity := p.StreamCapacity
	if capacity <= 0 {
		capacity = DefaultStreamCapacity
	}

	// Respond before generating so consumers stream chunks as they appear.
	resp, tx := stream.NewResponse[Chunk](capacity)
	defer tx.Close()
	t.out.Respond(resp)

	total := chunkCount(p.Samples, size)
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			t.out.Invalidate()
			return err
		}
		start := i * size
		end := min(start+size, p.Samples)
		values := make([]float64, 0, max(end-start, 0))
		for s := start; s < end; s++ {
			values = append(values, p.Offset+float64(s)*p.Step)
		}
		tx.Send(Chunk{Index: i, Total: total, Start: start, Values: values})
	}
	return nil
}
