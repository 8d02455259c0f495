package livegraph

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/livegraph/pkg/livegraph/connection"
)

// Test node kinds shared across tests.

// anyInt accepts any published int.
type anyInt struct{}

func (anyInt) Accepts(int) bool { return true }

// probe records what a task observed. It is shared by all clones of a node.
type probe struct {
	mu            sync.Mutex
	runs          int
	requests      int
	syncs         []int
	causes        []InvalidationCause
	connected     bool
	closedSeen    bool
	lastDefault   int
	lastDefaultOK bool
}

func (p *probe) update(fn func(p *probe)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

func (p *probe) read(fn func(p *probe)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

func (p *probe) requestCount() int {
	var n int
	p.read(func(p *probe) { n = p.requests })
	return n
}

func (p *probe) isConnected() bool {
	var c bool
	p.read(func(p *probe) { c = p.connected })
	return c
}

// constNode has no inputs and serves its value on output 0.
type constNode struct {
	value int
	probe *probe
}

func (n *constNode) Kind() string      { return "const" }
func (n *constNode) Inputs() []Binding { return nil }
func (n *constNode) Clone() Node       { c := *n; return &c }

func (n *constNode) Changed(prev Node) bool {
	p, ok := prev.(*constNode)
	return !ok || p.value != n.value
}

func (n *constNode) CreateTask(b *Builder) Task {
	return Erase[*constNode, InputID](b, &constTask{
		value: n.value,
		probe: n.probe,
		out:   AddOutput[anyInt, int](b, 0),
	})
}

type constTask struct {
	value int
	probe *probe
	out   *connection.Output[anyInt, int]
}

func (t *constTask) Sync(n *constNode) {
	t.value = n.value
	t.probe.update(func(p *probe) { p.syncs = append(p.syncs, n.value) })
}

func (t *constTask) Connect(InputID, *connection.Handle) {}
func (t *constTask) Disconnect(InputID)                  {}

func (t *constTask) Invalidate(cause InvalidationCause) {
	t.probe.update(func(p *probe) { p.causes = append(p.causes, cause) })
}

func (t *constTask) Run(ctx context.Context) error {
	if _, err := t.out.Receive(ctx); err != nil {
		return err
	}
	t.probe.update(func(p *probe) { p.requests++ })
	t.out.Respond(t.value)
	return nil
}

// relayNode forwards its single input (input 0) to output 0. A disconnected
// input yields the default; a connection that closed mid-request yields -1.
type relayNode struct {
	from  *OutputRef
	def   int
	probe *probe
}

func (n *relayNode) Kind() string { return "relay" }

func (n *relayNode) Inputs() []Binding {
	return []Binding{{Input: 0, From: n.from}}
}

func (n *relayNode) Clone() Node {
	c := *n
	if n.from != nil {
		from := *n.from
		c.from = &from
	}
	return &c
}

func (n *relayNode) Changed(prev Node) bool {
	p, ok := prev.(*relayNode)
	return !ok || p.def != n.def
}

func (n *relayNode) SetInput(input InputID, from *OutputRef) bool {
	if input != 0 {
		return false
	}
	n.from = from
	return true
}

func (n *relayNode) CreateTask(b *Builder) Task {
	return Erase[*relayNode, InputID](b, &relayTask{
		in:    connection.NewInput[anyInt](n.def),
		out:   AddOutput[anyInt, int](b, 0),
		probe: n.probe,
	})
}

type relayTask struct {
	BaseTask[*relayNode]
	in    connection.Input[anyInt, int]
	out   *connection.Output[anyInt, int]
	probe *probe
}

func (t *relayTask) Connect(_ InputID, h *connection.Handle) {
	ok := t.in.Connect(h)
	t.probe.update(func(p *probe) { p.connected = ok || p.connected })
}

func (t *relayTask) Disconnect(InputID) {
	t.in.Disconnect()
	t.probe.update(func(p *probe) { p.connected = false })
}

func (t *relayTask) Invalidate(cause InvalidationCause) {
	t.probe.update(func(p *probe) { p.causes = append(p.causes, cause) })
}

func (t *relayTask) Run(ctx context.Context) error {
	if _, err := t.out.Receive(ctx); err != nil {
		return err
	}
	t.probe.update(func(p *probe) { p.runs++ })

	wasConnected := t.in.IsConnected()
	v, ok := t.in.Request(ctx, anyInt{})
	if !ok && wasConnected && !t.in.IsConnected() {
		t.probe.update(func(p *probe) { p.closedSeen = true })
	}
	if !ok {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		v = -1
	}

	def, defOK := t.in.Default()
	connected := t.in.IsConnected()
	t.probe.update(func(p *probe) {
		p.connected = connected
		p.lastDefault, p.lastDefaultOK = def, defOK
	})
	t.out.Respond(v)
	return nil
}

// faultyNode fails or panics on every run while armed.
type faultyNode struct {
	mode  string
	probe *probe
}

var errFaulty = errors.New("faulty node")

func (n *faultyNode) Kind() string      { return "faulty" }
func (n *faultyNode) Inputs() []Binding { return nil }
func (n *faultyNode) Clone() Node       { c := *n; return &c }

func (n *faultyNode) Changed(prev Node) bool {
	p, ok := prev.(*faultyNode)
	return !ok || p.mode != n.mode
}

func (n *faultyNode) CreateTask(b *Builder) Task {
	return Erase[*faultyNode, InputID](b, &faultyTask{
		mode:  n.mode,
		probe: n.probe,
		out:   AddOutput[anyInt, int](b, 0),
	})
}

type faultyTask struct {
	mode  string
	probe *probe
	out   *connection.Output[anyInt, int]
}

func (t *faultyTask) Sync(n *faultyNode) {
	t.mode = n.mode
	t.probe.update(func(p *probe) { p.syncs = append(p.syncs, len(n.mode)) })
}

func (t *faultyTask) Connect(InputID, *connection.Handle) {}
func (t *faultyTask) Disconnect(InputID)                  {}
func (t *faultyTask) Invalidate(InvalidationCause)        {}

func (t *faultyTask) Run(ctx context.Context) error {
	if _, err := t.out.Receive(ctx); err != nil {
		return err
	}
	t.probe.update(func(p *probe) { p.runs++ })

	switch t.mode {
	case "error":
		return errFaulty
	case "panic":
		panic("faulty node exploded")
	}
	t.out.Respond(42)
	return nil
}

// staticGraph is a Graph whose bindings are left untouched when nodes are
// removed, unlike MapGraph.
type staticGraph map[NodeID]Node

func (g staticGraph) NodeIDs() []NodeID {
	ids := make([]NodeID, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	return ids
}

func (g staticGraph) Node(id NodeID) (Node, bool) {
	n, ok := g[id]
	return n, ok
}

// consumer connects a test-owned input to an executor output.
func consumer(t *testing.T, e *Executor, node NodeID, out OutputID) *connection.Input[anyInt, int] {
	t.Helper()
	h, ok := e.Output(node, out)
	require.True(t, ok, "output %d:%d not found", node, out)
	in := &connection.Input[anyInt, int]{}
	require.True(t, in.Connect(h))
	return in
}

func request(t *testing.T, in *connection.Input[anyInt, int]) (int, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return in.Request(ctx, anyInt{})
}

func update(t *testing.T, e *Executor, g Graph) Report {
	t.Helper()
	rep, err := e.Update(context.Background(), g)
	require.NoError(t, err)
	return rep
}

func newTestExecutor(t *testing.T, opts ...Option) *Executor {
	t.Helper()
	e := NewExecutor(opts...)
	t.Cleanup(func() { _ = e.Close() })
	return e
}
