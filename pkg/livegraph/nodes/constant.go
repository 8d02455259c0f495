package nodes

import (
	"context"

	"github.com/randalmurphal/livegraph/pkg/livegraph"
	"github.com/randalmurphal/livegraph/pkg/livegraph/connection"
)

// ConstantOutput serves the constant.
const ConstantOutput livegraph.OutputID = 0

// Constant serves a scalar parameter, e.g. the factor of a Scale node.
type Constant struct {
	Value float64
}

// NewConstant returns a Constant serving v.
func NewConstant(v float64) *Constant {
	return &Constant{Value: v}
}

func (n *Constant) Kind() string { return "constant" }

func (n *Constant) Inputs() []livegraph.Binding { return nil }

func (n *Constant) Clone() livegraph.Node {
	c := *n
	return &c
}

func (n *Constant) Changed(prev livegraph.Node) bool {
	p, ok := prev.(*Constant)
	return !ok || p.Value != n.Value
}

func (n *Constant) CreateTask(b *livegraph.Builder) livegraph.Task {
	return livegraph.Erase[*Constant, livegraph.InputID](b, &constantTask{
		value: n.Value,
		out:   livegraph.AddOutput[ValueRequest, float64](b, ConstantOutput),
	})
}

type constantTask struct {
	value float64
	out   *connection.Output[ValueRequest, float64]
}

func (t *constantTask) Sync(n *Constant) { t.value = n.Value }

func (t *constantTask) Connect(livegraph.InputID, *connection.Handle) {}

func (t *constantTask) Disconnect(livegraph.InputID) {}

func (t *constantTask) Invalidate(livegraph.InvalidationCause) {}

func (t *constantTask) Run(ctx context.Context) error {
	if _, err := t.out.Receive(ctx); err != nil {
		return err
	}
	t.out.Respond(t.value)
	return nil
}
