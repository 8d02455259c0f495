package nodes

import (
	"context"

	"github.com/randalmurphal/livegraph/pkg/livegraph"
	"github.com/randalmurphal/livegraph/pkg/livegraph/connection"
	"github.com/randalmurphal/livegraph/pkg/livegraph/stream"
	"github.com/randalmurphal/livegraph/pkg/livegraph/watch"
	"github.com/randalmurphal/livegraph/pkg/livegraph/workpool"
)

// Scale inputs and output.
const (
	ScaleInput       livegraph.InputID  = 0
	ScaleFactorInput livegraph.InputID  = 1
	ScaleOutput      livegraph.OutputID = 0
)

// Scale multiplies every sample of its input scan by a factor. The factor
// comes from ScaleFactorInput when wired and from Factor otherwise.
type Scale struct {
	livegraph.Wires
	Factor         float64
	StreamCapacity int
}

// NewScale returns an unwired Scale node.
func NewScale(factor float64) *Scale {
	return &Scale{Wires: livegraph.NewWires(2), Factor: factor}
}

func (n *Scale) Kind() string { return "scale" }

func (n *Scale) Clone() livegraph.Node {
	c := *n
	c.Wires = n.Wires.Clone()
	return &c
}

func (n *Scale) Changed(prev livegraph.Node) bool {
	p, ok := prev.(*Scale)
	return !ok || p.Factor != n.Factor || p.StreamCapacity != n.StreamCapacity
}

func (n *Scale) CreateTask(b *livegraph.Builder) livegraph.Task {
	return livegraph.Erase[*Scale, livegraph.InputID](b, &scaleTask{
		capacity: n.StreamCapacity,
		factor:   connection.NewInput[ValueRequest](n.Factor),
		out:      livegraph.AddOutput[ScanRequest, Scan](b, ScaleOutput),
		pool:     b.Pool(),
		progress: b.Progress(),
	})
}

type scaleTask struct {
	capacity int
	in       scanInput
	factor   connection.Input[ValueRequest, float64]
	out      *connection.Output[ScanRequest, Scan]
	pool     *workpool.Pool
	progress *watch.Sender[livegraph.Progress]
}

func (t *scaleTask) Sync(n *Scale) {
	t.capacity = n.StreamCapacity
	t.factor.SetDefault(n.Factor)
}

func (t *scaleTask) Connect(input livegraph.InputID, h *connection.Handle) {
	switch input {
	case ScaleInput:
		t.in.Connect(h)
	case ScaleFactorInput:
		t.factor.Connect(h)
	}
}

func (t *scaleTask) Disconnect(input livegraph.InputID) {
	switch input {
	case ScaleInput:
		t.in.Disconnect()
	case ScaleFactorInput:
		t.factor.Disconnect()
	}
}

func (t *scaleTask) Invalidate(livegraph.InvalidationCause) {}

func (t *scaleTask) Run(ctx context.Context) error {
	if _, err := t.out.Receive(ctx); err != nil {
		return err
	}

	factor, ok := t.factor.Request(ctx, ValueRequest{})
	if !ok {
		if err := ctx.Err(); err != nil {
			return err
		}
		// The wired factor producer went away; fall back to the parameter.
		factor, _ = t.factor.Default()
	}

	capacity := t.capacity
	if capacity <= 0 {
		capacity = DefaultStreamCapacity
	}
	resp, tx := stream.NewResponse[Chunk](capacity)
	defer tx.Close()
	t.out.Respond(resp)

	defer t.progress.Send(livegraph.Progress{})
	connected, err := readScan(ctx, &t.in, func(c Chunk) error {
		scaled, err := workpool.Submit(ctx, t.pool, func() ([]float64, error) {
			out := make([]float64, len(c.Values))
			for i, v := range c.Values {
				out[i] = v * factor
			}
			return out, nil
		})
		if err != nil {
			return err
		}
		c.Values = scaled
		tx.Send(c)
		t.progress.Send(livegraph.Progress{Active: true, Fraction: float64(c.Index+1) / float64(c.Total)})
		return nil
	})
	if err != nil {
		t.out.Invalidate()
		return err
	}
	if !connected {
		tx.Send(Chunk{Total: 1})
	}
	return nil
}
