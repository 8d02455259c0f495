package livegraph

import (
	"errors"
	"fmt"
)

// Sentinel errors for reconciliation.
var (
	// ErrExecutorClosed indicates Update was called after Close.
	ErrExecutorClosed = errors.New("executor is closed")

	// ErrUnknownNode indicates a wire references a node without a runner.
	ErrUnknownNode = errors.New("unknown node")

	// ErrUnknownOutput indicates a wire references an output the producing
	// node does not declare.
	ErrUnknownOutput = errors.New("unknown output")

	// ErrTypeMismatch indicates a task was handed a node description or a
	// connection of a type it does not accept.
	ErrTypeMismatch = errors.New("node type mismatch")

	// ErrUnknownInput indicates a graph edit referenced an input the node
	// does not declare.
	ErrUnknownInput = errors.New("unknown input")

	// ErrNotConnectable indicates a graph edit targeted a node that has no
	// editable inputs.
	ErrNotConnectable = errors.New("node has no editable inputs")
)

// NodeError wraps an error returned by a task with node context.
type NodeError struct {
	// NodeID is the node whose task failed.
	NodeID NodeID
	// Op is the task operation that failed ("run", "create").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %d: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised inside a task.
type PanicError struct {
	// NodeID is the node whose task panicked.
	NodeID NodeID
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %d panicked: %v", e.NodeID, e.Value)
}

// ConnectError describes a wire that could not be established during
// reconciliation. The wire is retried on the next Update.
type ConnectError struct {
	NodeID NodeID
	Input  InputID
	From   OutputRef
	Err    error
}

// Error implements the error interface.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect node %d input %d from %s: %v", e.NodeID, e.Input, e.From, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ConnectError) Unwrap() error {
	return e.Err
}
