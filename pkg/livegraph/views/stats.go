package views

import (
	"context"

	"github.com/randalmurphal/livegraph/pkg/livegraph"
	"github.com/randalmurphal/livegraph/pkg/livegraph/connection"
	"github.com/randalmurphal/livegraph/pkg/livegraph/nodes"
	"github.com/randalmurphal/livegraph/pkg/livegraph/watch"
)

// StatsSnapshot is what a StatsView shows.
type StatsSnapshot struct {
	Summary nodes.Summary
	// Valid is false until a summary arrived and after the input disconnects.
	Valid bool
	// Stale is set while a newer summary is being computed.
	Stale bool
	// Updates counts summaries received.
	Updates int
}

// StatsView shows the summary produced by a nodes.Stats output.
type StatsView struct {
	livegraph.Wires
	display display[StatsSnapshot]
}

// NewStatsView returns an unwired view.
func NewStatsView() *StatsView {
	return &StatsView{
		Wires:   livegraph.NewWires(1),
		display: newDisplay(StatsSnapshot{}),
	}
}

// Snapshot returns what the view currently shows.
func (v *StatsView) Snapshot() StatsSnapshot { return v.display.get() }

// Watch subscribes to snapshot changes.
func (v *StatsView) Watch() *watch.Receiver[StatsSnapshot] { return v.display.watch() }

func (v *StatsView) Kind() string { return "stats_view" }

func (v *StatsView) Clone() livegraph.Node {
	c := *v
	c.Wires = v.Wires.Clone()
	return &c
}

func (v *StatsView) Changed(prev livegraph.Node) bool {
	_, ok := prev.(*StatsView)
	return !ok
}

func (v *StatsView) CreateTask(b *livegraph.Builder) livegraph.Task {
	return livegraph.Erase[*StatsView, livegraph.InputID](b, &statsViewTask{display: v.display})
}

type statsViewTask struct {
	livegraph.BaseTask[*StatsView]
	in      connection.Input[nodes.SummaryRequest, nodes.Summary]
	display display[StatsSnapshot]
	current bool
}

func (t *statsViewTask) Connect(_ livegraph.InputID, h *connection.Handle) {
	t.in.Connect(h)
}

func (t *statsViewTask) Disconnect(livegraph.InputID) {
	t.in.Disconnect()
	t.clear()
}

func (t *statsViewTask) clear() {
	t.display.update(func(s *StatsSnapshot) bool {
		changed := s.Valid
		s.Valid, s.Stale = false, false
		return changed
	})
}

func (t *statsViewTask) Invalidate(livegraph.InvalidationCause) {
	t.current = false
	t.display.update(func(s *StatsSnapshot) bool {
		if !s.Valid || s.Stale {
			return false
		}
		s.Stale = true
		return true
	})
}

func (t *statsViewTask) Run(ctx context.Context) error {
	if t.current {
		return waitForEvent(ctx)
	}

	summary, ok := t.in.Request(ctx, nodes.SummaryRequest{})
	if err := ctx.Err(); err != nil {
		return err
	}
	t.current = true
	if !ok {
		if !t.in.IsConnected() {
			// The producer retired.
			t.clear()
		}
		return nil
	}
	t.display.update(func(s *StatsSnapshot) bool {
		s.Summary, s.Valid, s.Stale = summary, true, false
		s.Updates++
		return true
	})
	return nil
}
