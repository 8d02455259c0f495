// Package views displays pipeline results.
//
// Views run on their own Executor whose wires resolve against the pipeline
// executor, so pipeline edits and view edits are reconciled independently
// and a slow view never holds up a pipeline node:
//
//	vg := livegraph.NewMapGraph()
//	sv := views.NewStatsView()
//	id := vg.Add(sv)
//	_ = vg.Connect(id, views.ViewInput, livegraph.OutputRef{Node: stats, Output: nodes.StatsOutput})
//
//	vexec := views.NewExecutor(pipeline)
//	_, _ = vexec.Update(ctx, vg)
//	snap := sv.Snapshot()
//
// A view keeps showing its last data while its input is being recomputed;
// Stale reports that state.
package views

import (
	"context"

	"github.com/randalmurphal/livegraph/pkg/livegraph"
	"github.com/randalmurphal/livegraph/pkg/livegraph/watch"
)

// ViewInput is the single input of every view.
const ViewInput livegraph.InputID = 0

// NewExecutor returns an executor for view graphs that resolves wires
// against pipeline.
func NewExecutor(pipeline livegraph.OutputSource, opts ...livegraph.Option) *livegraph.Executor {
	opts = append([]livegraph.Option{livegraph.WithName("views")}, opts...)
	return livegraph.NewExecutor(append(opts, livegraph.WithUpstream(pipeline))...)
}

// display is the cell a view task writes and observers read. It is shared by
// every clone of a view node.
type display[T any] struct {
	tx *watch.Sender[T]
}

func newDisplay[T any](initial T) display[T] {
	tx, _ := watch.New(initial)
	return display[T]{tx: tx}
}

func (d display[T]) watch() *watch.Receiver[T] { return d.tx.Subscribe() }

func (d display[T]) get() T { return d.tx.Borrow() }

func (d display[T]) update(fn func(*T) bool) { d.tx.SendIfModified(fn) }

// waitForEvent parks a view whose display is current until the loop cancels
// it for the next event.
func waitForEvent(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
