package livegraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/livegraph/pkg/livegraph/connection"
	"github.com/randalmurphal/livegraph/pkg/livegraph/event"
	"github.com/randalmurphal/livegraph/pkg/livegraph/observability"
	"github.com/randalmurphal/livegraph/pkg/livegraph/watch"
	"github.com/randalmurphal/livegraph/pkg/livegraph/workpool"
)

// OutputSource resolves the producing end of a wire to a connection handle.
// Executor implements it; pass an Executor to WithUpstream to let a second
// executor consume its outputs.
type OutputSource interface {
	Resolve(ref OutputRef) (*connection.Handle, error)
}

// Report counts what one Update did.
type Report struct {
	Spawned     int
	Retired     int
	Connects    int
	Disconnects int
	Syncs       int
	// Dropped counts wires that could not be resolved. They are retried on
	// the next Update.
	Dropped int
	// Errors holds a *ConnectError for every dropped wire and a
	// *PanicError or *NodeError for every task that could not be created.
	Errors []error
}

// Messages returns the number of control and sync messages sent to tasks.
func (r Report) Messages() int {
	return r.Connects + r.Disconnects + r.Syncs
}

func (r Report) stats() observability.ReconcileStats {
	return observability.ReconcileStats{
		Spawned:     r.Spawned,
		Retired:     r.Retired,
		Connects:    r.Connects,
		Disconnects: r.Disconnects,
		Syncs:       r.Syncs,
		Dropped:     r.Dropped,
	}
}

// Executor keeps one running task per node of a Graph and reconciles them
// with the graph on every Update.
//
// Update and Close are serialized. Output, Resolve, Nodes and Progress are
// safe to call from any goroutine at any time.
type Executor struct {
	cfg    executorConfig
	id     string
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	runners *runnerTable
	loops   sync.WaitGroup
}

// NewExecutor creates an executor without any running tasks.
func NewExecutor(opts ...Option) *Executor {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.pool == nil {
		cfg.pool = workpool.New(0)
	}

	id := uuid.New().String()
	return &Executor{
		cfg:     cfg,
		id:      id,
		logger:  cfg.logger.With(slog.String("executor", cfg.name)),
		runners: newRunnerTable(),
	}
}

// ID returns the unique id of this executor instance.
func (e *Executor) ID() string {
	return e.id
}

// Name returns the name set with WithName.
func (e *Executor) Name() string {
	return e.cfg.name
}

// Update reconciles the running tasks with g:
//
//  1. tasks of nodes missing from g are retired and their outputs closed,
//     as are tasks whose node was replaced by one of another kind;
//  2. tasks are spawned for new nodes;
//  3. inputs are connected and disconnected to match each node's bindings,
//     and inputs whose producer was respawned are connected to it again;
//  4. nodes whose parameters changed are pushed to their task.
//
// Wires whose producer cannot be found are logged, counted as dropped and
// retried on the next Update. A panic in a node's Kind, Inputs, Changed or
// Clone is recovered and reported as a *PanicError in Report.Errors.
// Calling Update twice without editing g sends no messages the second time.
func (e *Executor) Update(ctx context.Context, g Graph) (Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Report{}, ErrExecutorClosed
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	ctx, span := e.cfg.spans.StartReconcileSpan(ctx, e.cfg.name, e.id)
	start := time.Now()
	var rep Report

	ids := slices.Clone(g.NodeIDs())
	slices.Sort(ids)

	present := make(map[NodeID]struct{}, len(ids))
	for _, id := range ids {
		present[id] = struct{}{}
	}

	for _, id := range e.runners.ids() {
		if _, ok := present[id]; ok && !e.kindChanged(id, g, &rep) {
			continue
		}
		e.retire(id)
		rep.Retired++
	}

	for _, id := range ids {
		if _, ok := e.runners.get(id); ok {
			continue
		}
		node, ok := g.Node(id)
		if !ok {
			continue
		}
		if err := e.spawn(id, node); err != nil {
			rep.Errors = append(rep.Errors, err)
			continue
		}
		rep.Spawned++
	}

	for _, id := range ids {
		r, ok := e.runners.get(id)
		if !ok {
			continue
		}
		node, ok := g.Node(id)
		if !ok {
			continue
		}
		err := guard(id, func() {
			e.syncConnections(r, node, &rep)
			if e.syncNode(r, node) {
				rep.Syncs++
			}
		})
		if err != nil {
			e.nodePanicked(r.kind, err, &rep)
		}
	}

	duration := time.Since(start)
	stats := rep.stats()
	e.cfg.metrics.RecordReconcile(ctx, e.cfg.name, duration, stats)
	observability.LogReconcile(e.logger, e.id, stats, float64(duration.Microseconds())/1000)
	e.cfg.spans.EndSpanWithError(span, nil)

	return rep, nil
}

// spawn creates the task for node and starts its loop.
func (e *Executor) spawn(id NodeID, node Node) error {
	var (
		kind    string
		initial Node
	)
	if err := guard(id, func() {
		kind = node.Kind()
		initial = node.Clone()
	}); err != nil {
		perr := err.(*PanicError)
		observability.LogTaskPanicked(e.logger, uint32(id), perr.Value, perr.Stack)
		e.publish(event.TypeTaskPanicked, event.NodeStatus{NodeID: uint32(id), Error: perr.Error()})
		return err
	}
	logger := observability.EnrichLogger(e.cfg.logger, e.id, uint32(id), kind)
	b := newBuilder(id, logger, e.cfg.queueCap, e.cfg.pool)

	task, err := createTask(b, node)
	if err != nil {
		for _, c := range b.closers {
			c()
		}
		logger.Error("task creation failed", slog.String("error", err.Error()))
		e.publish(event.TypeTaskFailed, event.NodeStatus{NodeID: uint32(id), Kind: kind, Error: err.Error()})
		return err
	}

	syncTx, syncRx := watch.New(initial)
	r := &runner{
		id:       id,
		kind:     kind,
		outputs:  b.outputs,
		closers:  b.closers,
		progress: b.progress,
		wiring:   make(map[InputID]OutputRef),
		handles:  make(map[InputID]*connection.Handle),
		sync:     syncTx,
		mailbox:  newMailbox(),
		done:     make(chan struct{}),
	}
	l := newNodeLoop(e, r, task, syncRx, b.invalidators, logger)

	e.runners.put(r)
	e.loops.Add(1)
	go func() {
		defer e.loops.Done()
		l.run()
	}()

	e.cfg.metrics.RecordRunners(context.Background(), e.cfg.name, 1)
	observability.LogRunnerSpawned(e.logger, e.id, uint32(id), len(r.outputs))
	e.publish(event.TypeRunnerSpawned, event.NodeStatus{NodeID: uint32(id), Kind: kind})
	return nil
}

func createTask(b *Builder, node Node) (Task, error) {
	var task Task
	if err := guard(b.node, func() { task = node.CreateTask(b) }); err != nil {
		return nil, err
	}
	if task == nil {
		return nil, &NodeError{NodeID: b.node, Op: "create", Err: errors.New("no task returned")}
	}
	return task, nil
}

// guard runs fn, which calls into node code, and turns a panic into a
// *PanicError.
func guard(id NodeID, fn func()) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{NodeID: id, Value: v, Stack: string(debug.Stack())}
		}
	}()
	fn()
	return nil
}

// kindChanged reports whether the node under id in g is of another kind than
// its running task. Such a task cannot take the node's parameters and is
// replaced.
func (e *Executor) kindChanged(id NodeID, g Graph, rep *Report) bool {
	r, ok := e.runners.get(id)
	if !ok {
		return false
	}
	var kind string
	var found bool
	err := guard(id, func() {
		var node Node
		if node, found = g.Node(id); found {
			kind = node.Kind()
		}
	})
	if err != nil {
		e.nodePanicked(r.kind, err, rep)
		return false
	}
	if !found || kind == r.kind {
		return false
	}
	e.logger.Info("node kind changed, respawning",
		slog.Uint64("node_id", uint64(id)),
		slog.String("from", r.kind),
		slog.String("to", kind),
	)
	return true
}

// nodePanicked records a panic raised by node code during Update. The
// runner keeps its previous state.
func (e *Executor) nodePanicked(kind string, err error, rep *Report) {
	perr := err.(*PanicError)
	observability.LogTaskPanicked(e.logger, uint32(perr.NodeID), perr.Value, perr.Stack)
	e.publish(event.TypeTaskPanicked, event.NodeStatus{NodeID: uint32(perr.NodeID), Kind: kind, Error: perr.Error()})
	rep.Errors = append(rep.Errors, perr)
}

func (e *Executor) retire(id NodeID) {
	r, ok := e.runners.remove(id)
	if !ok {
		return
	}
	r.retire()
}

// syncConnections diffs the declared bindings of node against the wiring
// recorded for r and sends the difference to the task.
func (e *Executor) syncConnections(r *runner, node Node, rep *Report) {
	declared := make(map[InputID]struct{})

	for _, b := range node.Inputs() {
		declared[b.Input] = struct{}{}
		cur, wired := r.wiring[b.Input]

		switch {
		case b.From == nil && !wired:
		case b.From == nil:
			e.disconnect(r, b.Input)
			rep.Disconnects++
		case wired && cur == *b.From && !r.linkClosed(b.Input):
		case wired && cur == *b.From:
			// The producer closed under the same id. Follow it if it was
			// respawned; otherwise the input already sees a disconnect.
			h, err := e.resolve(*b.From)
			if err != nil || h.Closed() {
				continue
			}
			e.connect(r, b.Input, *b.From, h, rep)
		default:
			h, err := e.resolve(*b.From)
			if err != nil {
				cerr := &ConnectError{NodeID: r.id, Input: b.Input, From: *b.From, Err: err}
				rep.Dropped++
				rep.Errors = append(rep.Errors, cerr)
				observability.LogConnectDropped(e.logger, uint32(r.id), uint32(b.Input), cerr)
				input := uint32(b.Input)
				e.publish(event.TypeInputDropped, event.NodeStatus{
					NodeID: uint32(r.id), Kind: r.kind, InputID: &input, Error: cerr.Error(),
				})
				// A retargeted wire must not keep feeding from its old producer.
				if wired {
					e.disconnect(r, b.Input)
					rep.Disconnects++
				}
				continue
			}
			e.connect(r, b.Input, *b.From, h, rep)
		}
	}

	var stale []InputID
	for input := range r.wiring {
		if _, ok := declared[input]; !ok {
			stale = append(stale, input)
		}
	}
	slices.Sort(stale)
	for _, input := range stale {
		e.disconnect(r, input)
		rep.Disconnects++
	}
}

func (e *Executor) connect(r *runner, input InputID, from OutputRef, h *connection.Handle, rep *Report) {
	r.mailbox.push(control{kind: controlConnect, input: input, from: from, handle: h})
	r.wiring[input] = from
	r.handles[input] = h
	rep.Connects++
	observability.LogConnect(e.logger, uint32(r.id), uint32(input), uint32(from.Node), uint32(from.Output))
}

func (e *Executor) disconnect(r *runner, input InputID) {
	r.mailbox.push(control{kind: controlDisconnect, input: input})
	delete(r.wiring, input)
	delete(r.handles, input)
	observability.LogDisconnect(e.logger, uint32(r.id), uint32(input))
}

// syncNode pushes node to the task if its parameters changed since the last
// push.
func (e *Executor) syncNode(r *runner, node Node) bool {
	pushed := r.sync.SendIfModified(func(prev *Node) bool {
		if !node.Changed(*prev) {
			return false
		}
		*prev = node.Clone()
		return true
	})
	if pushed {
		observability.LogSync(e.logger, uint32(r.id))
		e.publish(event.TypeParametersSynced, event.NodeStatus{NodeID: uint32(r.id), Kind: r.kind})
	}
	return pushed
}

func (e *Executor) resolve(ref OutputRef) (*connection.Handle, error) {
	if e.cfg.upstream != nil {
		return e.cfg.upstream.Resolve(ref)
	}
	return e.Resolve(ref)
}

// Resolve returns a fresh handle to the output ref names.
func (e *Executor) Resolve(ref OutputRef) (*connection.Handle, error) {
	r, ok := e.runners.get(ref.Node)
	if !ok {
		return nil, fmt.Errorf("node %d: %w", ref.Node, ErrUnknownNode)
	}
	h, ok := r.output(ref.Output)
	if !ok {
		return nil, fmt.Errorf("node %d output %d: %w", ref.Node, ref.Output, ErrUnknownOutput)
	}
	return h, nil
}

// Output returns a fresh handle to an output of a running node, for wiring
// consumers outside the graph.
func (e *Executor) Output(node NodeID, output OutputID) (*connection.Handle, bool) {
	h, err := e.Resolve(OutputRef{Node: node, Output: output})
	return h, err == nil
}

// Nodes returns the ids of all running nodes in ascending order.
func (e *Executor) Nodes() []NodeID {
	return e.runners.ids()
}

// Len returns the number of running nodes.
func (e *Executor) Len() int {
	return e.runners.count()
}

// Progress subscribes to the progress a node publishes. It reports false if
// the node is not running or never declared progress.
func (e *Executor) Progress(node NodeID) (*watch.Receiver[Progress], bool) {
	r, ok := e.runners.get(node)
	if !ok || r.progress == nil {
		return nil, false
	}
	return r.progress.Subscribe(), true
}

// RunnerStatus describes one running node. Runs counts finished Run calls,
// cancelled ones included. Failing is set from a failed run until the next
// successful one.
type RunnerStatus struct {
	Node      NodeID                `json:"node"`
	Kind      string                `json:"kind"`
	Outputs   []OutputID            `json:"outputs"`
	Wiring    map[InputID]OutputRef `json:"wiring,omitempty"`
	Runs      int64                 `json:"runs"`
	Failures  int64                 `json:"failures"`
	Failing   bool                  `json:"failing"`
	LastError string                `json:"last_error,omitempty"`
}

// Status describes every running node in ascending id order. It waits for
// an Update in progress to finish.
func (e *Executor) Status() []RunnerStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := e.runners.ids()
	out := make([]RunnerStatus, 0, len(ids))
	for _, id := range ids {
		r, ok := e.runners.get(id)
		if !ok {
			continue
		}
		s := RunnerStatus{Node: id, Kind: r.kind}
		for o := range r.outputs {
			s.Outputs = append(s.Outputs, o)
		}
		slices.Sort(s.Outputs)
		if len(r.wiring) > 0 {
			s.Wiring = make(map[InputID]OutputRef, len(r.wiring))
			for in, ref := range r.wiring {
				s.Wiring[in] = ref
			}
		}
		r.health.fill(&s)
		out = append(out, s)
	}
	return out
}

// Close retires every task and waits for their loops to exit. Close is
// idempotent; Update returns ErrExecutorClosed afterwards.
func (e *Executor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for _, id := range e.runners.ids() {
		e.retire(id)
	}
	e.mu.Unlock()

	e.loops.Wait()
	return nil
}

func (e *Executor) publish(eventType string, status event.NodeStatus) {
	if e.cfg.bus == nil {
		return
	}
	// Publishing never blocks node loops with the default bus config; a full
	// subscriber buffer drops the event.
	_ = e.cfg.bus.Publish(context.Background(), event.New(eventType, e.cfg.name, status))
}
