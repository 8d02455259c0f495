package nodes

import (
	"context"
	"math"

	"github.com/randalmurphal/livegraph/pkg/livegraph"
	"github.com/randalmurphal/livegraph/pkg/livegraph/connection"
	"github.com/randalmurphal/livegraph/pkg/livegraph/watch"
	"github.com/randalmurphal/livegraph/pkg/livegraph/workpool"
)

// Stats input and output.
const (
	StatsInput  livegraph.InputID  = 0
	StatsOutput livegraph.OutputID = 0
)

// Summary describes a scan.
type Summary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Sum   float64 `json:"sum"`
}

// Summarize computes a Summary. An empty slice gives the zero Summary.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	s := Summary{Count: len(values), Min: math.Inf(1), Max: math.Inf(-1)}
	for _, v := range values {
		s.Sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = s.Sum / float64(s.Count)
	return s
}

// SummaryRequest asks for the summary of the current input.
type SummaryRequest struct{}

// Accepts implements connection.Request.
func (SummaryRequest) Accepts(Summary) bool { return true }

// Stats reduces its input scan to a Summary.
type Stats struct {
	livegraph.Wires
}

// NewStats returns an unwired Stats node.
func NewStats() *Stats {
	return &Stats{Wires: livegraph.NewWires(1)}
}

func (n *Stats) Kind() string { return "stats" }

func (n *Stats) Clone() livegraph.Node {
	return &Stats{Wires: n.Wires.Clone()}
}

func (n *Stats) Changed(prev livegraph.Node) bool {
	_, ok := prev.(*Stats)
	return !ok
}

func (n *Stats) CreateTask(b *livegraph.Builder) livegraph.Task {
	return livegraph.Erase[*Stats, livegraph.InputID](b, &statsTask{
		out:      livegraph.AddOutput[SummaryRequest, Summary](b, StatsOutput),
		pool:     b.Pool(),
		progress: b.Progress(),
	})
}

type statsTask struct {
	livegraph.BaseTask[*Stats]
	in       scanInput
	out      *connection.Output[SummaryRequest, Summary]
	pool     *workpool.Pool
	progress *watch.Sender[livegraph.Progress]
}

func (t *statsTask) Connect(_ livegraph.InputID, h *connection.Handle) {
	t.in.Connect(h)
}

func (t *statsTask) Disconnect(livegraph.InputID) {
	t.in.Disconnect()
}

func (t *statsTask) Run(ctx context.Context) error {
	if _, err := t.out.Receive(ctx); err != nil {
		return err
	}
	defer t.progress.Send(livegraph.Progress{})

	var chunks []Chunk
	_, err := readScan(ctx, &t.in, func(c Chunk) error {
		chunks = append(chunks, c)
		t.progress.Send(livegraph.Progress{Active: true, Fraction: float64(c.Index+1) / float64(c.Total)})
		return nil
	})
	if err != nil {
		return err
	}

	summary, err := workpool.Submit(ctx, t.pool, func() (Summary, error) {
		return Summarize(Samples(chunks)), nil
	})
	if err != nil {
		return err
	}
	t.out.Respond(summary)
	return nil
}
