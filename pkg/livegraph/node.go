package livegraph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/livegraph/pkg/livegraph/connection"
	"github.com/randalmurphal/livegraph/pkg/livegraph/watch"
	"github.com/randalmurphal/livegraph/pkg/livegraph/workpool"
)

// Graph is the editable description an Executor reconciles with.
// The executor only reads it.
type Graph interface {
	// NodeIDs returns the ids of all nodes in the graph.
	NodeIDs() []NodeID
	// Node returns the node with the given id.
	Node(id NodeID) (Node, bool)
}

// Node is the editable description of one processing step.
type Node interface {
	// Kind names the node type, e.g. "scale". Used in logs and metrics.
	Kind() string

	// Inputs returns the declared state of every input.
	Inputs() []Binding

	// Changed reports whether the parameters differ from prev, the last
	// description pushed to the running task. Returning false suppresses the
	// push.
	Changed(prev Node) bool

	// Clone returns a copy that is not affected by later edits.
	Clone() Node

	// CreateTask builds the running task for this node. Outputs must be
	// declared on b before CreateTask returns.
	CreateTask(b *Builder) Task
}

// CauseKind classifies an InvalidationCause.
type CauseKind int

const (
	// CauseConnected means an input was connected.
	CauseConnected CauseKind = iota + 1
	// CauseDisconnected means an input was disconnected.
	CauseDisconnected
	// CauseSynced means new parameters were pushed.
	CauseSynced
	// CauseInputInvalidated means an upstream producer invalidated its data.
	CauseInputInvalidated
)

// String implements fmt.Stringer.
func (k CauseKind) String() string {
	switch k {
	case CauseConnected:
		return "connected"
	case CauseDisconnected:
		return "disconnected"
	case CauseSynced:
		return "synced"
	case CauseInputInvalidated:
		return "input_invalidated"
	default:
		return fmt.Sprintf("CauseKind(%d)", int(k))
	}
}

// InvalidationCause tells a task why its cached state became stale.
// Input is set for every kind except CauseSynced.
type InvalidationCause struct {
	Kind  CauseKind
	Input InputID
}

// String implements fmt.Stringer.
func (c InvalidationCause) String() string {
	if c.Kind == CauseSynced {
		return c.Kind.String()
	}
	return fmt.Sprintf("%s(%d)", c.Kind, c.Input)
}

// Task is the running side of a node. All methods are called from the
// node's own loop, never concurrently with each other.
type Task interface {
	// Sync receives new parameters.
	Sync(node Node)

	// Connect offers a connection for an input. The task accepts it by
	// binding it to a connection.Input, which marks the handle connected.
	Connect(input InputID, h *connection.Handle)

	// Disconnect unbinds an input.
	Disconnect(input InputID)

	// Invalidate tells the task to drop cached state. Published outputs are
	// already invalidated when this is called.
	Invalidate(cause InvalidationCause)

	// Run does one unit of work, typically receiving a request on an output
	// and responding to it. It is called repeatedly and must return soon
	// after ctx is cancelled.
	Run(ctx context.Context) error
}

// NodeTask is the strongly typed form of Task for a node type N with input
// id type I. Use Erase to turn it into a Task.
type NodeTask[N Node, I ~uint32] interface {
	Sync(node N)
	Connect(input I, h *connection.Handle)
	Disconnect(input I)
	Invalidate(cause InvalidationCause)
	Run(ctx context.Context) error
}

// BaseTask provides no-op Sync and Invalidate for tasks without parameters
// or cached state.
type BaseTask[N Node] struct{}

// Sync does nothing.
func (BaseTask[N]) Sync(N) {}

// Invalidate does nothing.
func (BaseTask[N]) Invalidate(InvalidationCause) {}

// Erase adapts a typed task to Task. Descriptions of another node type
// passed to Sync are logged and dropped.
func Erase[N Node, I ~uint32](b *Builder, t NodeTask[N, I]) Task {
	return &erased[N, I]{task: t, logger: b.Logger()}
}

type erased[N Node, I ~uint32] struct {
	task   NodeTask[N, I]
	logger *slog.Logger
}

func (e *erased[N, I]) Sync(node Node) {
	typed, ok := node.(N)
	if !ok {
		var want N
		e.logger.Warn("sync dropped",
			slog.String("error", ErrTypeMismatch.Error()),
			slog.String("want", fmt.Sprintf("%T", want)),
			slog.String("got", fmt.Sprintf("%T", node)),
		)
		return
	}
	e.task.Sync(typed)
}

func (e *erased[N, I]) Connect(input InputID, h *connection.Handle) {
	e.task.Connect(I(input), h)
}

func (e *erased[N, I]) Disconnect(input InputID) {
	e.task.Disconnect(I(input))
}

func (e *erased[N, I]) Invalidate(cause InvalidationCause) {
	e.task.Invalidate(cause)
}

func (e *erased[N, I]) Run(ctx context.Context) error {
	return e.task.Run(ctx)
}

// Progress reports how far a node is through its current request.
type Progress struct {
	// Active is false while the node is idle.
	Active bool
	// Fraction is in [0, 1].
	Fraction float64
}

// Builder collects what CreateTask declares: outputs, their invalidators
// and the resources they must release when the task retires.
type Builder struct {
	node     NodeID
	logger   *slog.Logger
	queueCap int
	pool     *workpool.Pool

	outputs      map[OutputID]*connection.Handle
	invalidators []connection.Invalidator
	closers      []func()
	progress     *watch.Sender[Progress]
}

func newBuilder(node NodeID, logger *slog.Logger, queueCap int, pool *workpool.Pool) *Builder {
	return &Builder{
		node:     node,
		logger:   logger,
		queueCap: queueCap,
		pool:     pool,
		outputs:  make(map[OutputID]*connection.Handle),
	}
}

// NodeID returns the id of the node being built.
func (b *Builder) NodeID() NodeID {
	return b.node
}

// Logger returns a logger enriched with the executor and node.
func (b *Builder) Logger() *slog.Logger {
	return b.logger
}

// Pool returns the executor's worker pool for CPU-heavy work.
func (b *Builder) Pool() *workpool.Pool {
	return b.pool
}

// Progress returns a cell the task can publish its progress to. Observers
// read it through Executor.Progress.
func (b *Builder) Progress() *watch.Sender[Progress] {
	if b.progress == nil {
		b.progress, _ = watch.New(Progress{})
	}
	return b.progress
}

// OnClose registers fn to run when the task retires.
func (b *Builder) OnClose(fn func()) {
	b.closers = append(b.closers, fn)
}

// AddOutput declares output id on the node being built and returns its
// producer end. Declaring the same id twice replaces the earlier output.
func AddOutput[Q connection.Request[R], R any](b *Builder, id OutputID) *connection.Output[Q, R] {
	out := connection.NewOutput[Q, R](
		connection.WithQueueCapacity(b.queueCap),
		connection.WithLogger(b.logger),
	)
	if prev, ok := b.outputs[id]; ok {
		b.logger.Warn("output declared twice",
			slog.Uint64("output_id", uint64(id)),
			slog.String("previous", prev.String()),
		)
	}
	b.outputs[id] = out.Handle()
	b.invalidators = append(b.invalidators, out.Invalidator())
	b.closers = append(b.closers, out.Close)
	return out
}
