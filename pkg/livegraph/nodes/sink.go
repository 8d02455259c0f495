package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/randalmurphal/livegraph/pkg/livegraph"
	"github.com/randalmurphal/livegraph/pkg/livegraph/connection"
	"github.com/randalmurphal/livegraph/pkg/livegraph/resultstore"
)

// SinkInput accepts a scan, a summary or a value.
const SinkInput livegraph.InputID = 0

// Result is what a Sink persists. Exactly one of the payload fields is set,
// matching Kind.
type Result struct {
	Kind    string    `json:"kind"`
	Summary *Summary  `json:"summary,omitempty"`
	Value   *float64  `json:"value,omitempty"`
	Samples []float64 `json:"samples,omitempty"`
}

// Result kinds.
const (
	ResultSummary = "summary"
	ResultValue   = "value"
	ResultScan    = "scan"
)

// DecodeResult parses a record written by a Sink.
func DecodeResult(data []byte) (Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, fmt.Errorf("decode result: %w", err)
	}
	return r, nil
}

// Sink pulls whatever its input produces and appends it to a result store
// each time the upstream data changes. Nothing else in a pipeline asks for
// data, so sinks are what drive computation.
type Sink struct {
	livegraph.Wires
	// Key names the results in the store. Empty uses "node-<id>".
	Key   string
	Store resultstore.Store
	// Retry applies to failed writes.
	Retry resultstore.RetryPolicy
}

// NewSink returns an unwired Sink writing to store.
func NewSink(store resultstore.Store) *Sink {
	return &Sink{Wires: livegraph.NewWires(1), Store: store, Retry: resultstore.DefaultRetry}
}

func (n *Sink) Kind() string { return "sink" }

func (n *Sink) Clone() livegraph.Node {
	c := *n
	c.Wires = n.Wires.Clone()
	return &c
}

func (n *Sink) Changed(prev livegraph.Node) bool {
	p, ok := prev.(*Sink)
	return !ok || p.Key != n.Key || !sameStore(p.Store, n.Store) || p.Retry != n.Retry
}

// sameStore compares stores by identity. Stores of an uncomparable value
// type have no identity and are compared by content instead of panicking.
func sameStore(a, b resultstore.Store) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) {
		return false
	}
	if !ta.Comparable() {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

func (n *Sink) CreateTask(b *livegraph.Builder) livegraph.Task {
	t := &sinkTask{logger: b.Logger()}
	t.apply(n, b.NodeID())
	return livegraph.Erase[*Sink, livegraph.InputID](b, t)
}

type sinkTask struct {
	key    string
	node   livegraph.NodeID
	store  resultstore.Store
	retry  resultstore.RetryPolicy
	logger *slog.Logger

	summary connection.Input[SummaryRequest, Summary]
	value   connection.Input[ValueRequest, float64]
	scan    scanInput

	// done is set once the current data is stored and cleared on invalidation.
	done bool
}

func (t *sinkTask) apply(n *Sink, id livegraph.NodeID) {
	t.node = id
	t.key = n.Key
	if t.key == "" {
		t.key = fmt.Sprintf("node-%d", id)
	}
	t.store = n.Store
	t.retry = n.Retry
}

func (t *sinkTask) Sync(n *Sink) {
	t.apply(n, t.node)
}

// Connect binds the handle to the first input type it carries.
func (t *sinkTask) Connect(_ livegraph.InputID, h *connection.Handle) {
	t.disconnect()
	switch {
	case t.summary.Connect(h):
	case t.scan.Connect(h):
	case t.value.Connect(h):
	}
}

func (t *sinkTask) Disconnect(livegraph.InputID) {
	t.disconnect()
}

func (t *sinkTask) disconnect() {
	t.summary.Disconnect()
	t.value.Disconnect()
	t.scan.Disconnect()
}

func (t *sinkTask) Invalidate(livegraph.InvalidationCause) {
	t.done = false
}

func (t *sinkTask) Run(ctx context.Context) error {
	if t.done {
		<-ctx.Done()
		return ctx.Err()
	}

	res, ok, err := t.pull(ctx)
	if err != nil {
		return err
	}
	if !ok {
		// Nothing connected, or the producer went away. Wait for the next event.
		t.done = true
		return nil
	}

	if t.store == nil {
		livegraph.Logger(ctx).Warn("sink has no store, result dropped", slog.String("key", t.key))
		t.done = true
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	rec, err := resultstore.PutRetry(ctx, t.store, t.key, data, t.retry)
	if err != nil {
		return fmt.Errorf("store result %s: %w", t.key, err)
	}
	t.logger.Debug("result stored",
		slog.String("key", t.key),
		slog.String("kind", res.Kind),
		slog.Int("sequence", rec.Sequence),
	)
	t.done = true
	return nil
}

func (t *sinkTask) pull(ctx context.Context) (Result, bool, error) {
	switch {
	case t.summary.IsConnected():
		s, ok := t.summary.Request(ctx, SummaryRequest{})
		if !ok {
			return Result{}, false, ctx.Err()
		}
		return Result{Kind: ResultSummary, Summary: &s}, true, nil

	case t.value.IsConnected():
		v, ok := t.value.Request(ctx, ValueRequest{})
		if !ok {
			return Result{}, false, ctx.Err()
		}
		return Result{Kind: ResultValue, Value: &v}, true, nil

	case t.scan.IsConnected():
		var chunks []Chunk
		ok, err := readScan(ctx, &t.scan, func(c Chunk) error {
			chunks = append(chunks, c)
			return nil
		})
		if err != nil || !ok {
			return Result{}, false, err
		}
		return Result{Kind: ResultScan, Samples: Samples(chunks)}, true, nil
	}
	return Result{}, false, nil
}
