package views

import (
	"context"
	"errors"
	"slices"

	"github.com/randalmurphal/livegraph/pkg/livegraph"
	"github.com/randalmurphal/livegraph/pkg/livegraph/connection"
	"github.com/randalmurphal/livegraph/pkg/livegraph/nodes"
	"github.com/randalmurphal/livegraph/pkg/livegraph/stream"
	"github.com/randalmurphal/livegraph/pkg/livegraph/watch"
)

// ChunkSnapshot is what a ChunkView shows: how much of the scan has arrived
// and the newest chunk.
type ChunkSnapshot struct {
	Received int
	Total    int
	Samples  int
	Latest   nodes.Chunk
	// Complete is set once the last chunk arrived.
	Complete bool
	// Lagged is set when the view fell behind the stream and missed chunks.
	Lagged bool
}

// ChunkView follows a streamed scan as it is produced.
type ChunkView struct {
	livegraph.Wires
	display display[ChunkSnapshot]
}

// NewChunkView returns an unwired view.
func NewChunkView() *ChunkView {
	return &ChunkView{
		Wires:   livegraph.NewWires(1),
		display: newDisplay(ChunkSnapshot{}),
	}
}

// Snapshot returns what the view currently shows.
func (v *ChunkView) Snapshot() ChunkSnapshot { return v.display.get() }

// Watch subscribes to snapshot changes.
func (v *ChunkView) Watch() *watch.Receiver[ChunkSnapshot] { return v.display.watch() }

func (v *ChunkView) Kind() string { return "chunk_view" }

func (v *ChunkView) Clone() livegraph.Node {
	c := *v
	c.Wires = v.Wires.Clone()
	return &c
}

func (v *ChunkView) Changed(prev livegraph.Node) bool {
	_, ok := prev.(*ChunkView)
	return !ok
}

func (v *ChunkView) CreateTask(b *livegraph.Builder) livegraph.Task {
	return livegraph.Erase[*ChunkView, livegraph.InputID](b, &chunkViewTask{display: v.display})
}

type chunkViewTask struct {
	livegraph.BaseTask[*ChunkView]
	in      connection.Input[nodes.ScanRequest, nodes.Scan]
	display display[ChunkSnapshot]
	current bool
}

func (t *chunkViewTask) Connect(_ livegraph.InputID, h *connection.Handle) {
	t.in.Connect(h)
}

func (t *chunkViewTask) Disconnect(livegraph.InputID) {
	t.in.Disconnect()
	t.display.update(func(s *ChunkSnapshot) bool {
		*s = ChunkSnapshot{}
		return true
	})
}

func (t *chunkViewTask) Invalidate(livegraph.InvalidationCause) {
	t.current = false
}

func (t *chunkViewTask) Run(ctx context.Context) error {
	if t.current {
		return waitForEvent(ctx)
	}

	scan, ok := t.in.Request(ctx, nodes.ScanRequest{})
	if err := ctx.Err(); err != nil {
		return err
	}
	t.current = true
	if !ok {
		return nil
	}
	rx, ok := scan.Subscribe()
	if !ok {
		// Overflowed before we got here; the next request regenerates it.
		t.current = false
		return nil
	}

	t.display.update(func(s *ChunkSnapshot) bool {
		*s = ChunkSnapshot{}
		return true
	})
	for {
		c, err := rx.Recv(ctx)
		switch {
		case errors.Is(err, stream.ErrLagged):
			t.display.update(func(s *ChunkSnapshot) bool {
				s.Lagged = true
				return true
			})
			continue
		case errors.Is(err, stream.ErrClosed):
			// Producer interrupted; an invalidation follows.
			return nil
		case err != nil:
			return err
		}

		t.display.update(func(s *ChunkSnapshot) bool {
			s.Received++
			s.Total = c.Total
			s.Samples += len(c.Values)
			s.Latest = nodes.Chunk{Index: c.Index, Total: c.Total, Start: c.Start, Values: slices.Clone(c.Values)}
			s.Complete = c.Last()
			return true
		})
		if c.Last() {
			return nil
		}
	}
}
