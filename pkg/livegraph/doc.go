// Package livegraph is a demand-driven execution engine for editable
// processing graphs.
//
// A Graph describes nodes and the wiring between their inputs and outputs.
// The description is edited freely by a program (typically a user interface)
// and handed to Executor.Update, which reconciles a set of long-running node
// tasks with it: tasks are spawned for new nodes and retired for removed
// ones, inputs are connected and disconnected to match the wiring, and changed
// node parameters are pushed to the running task.
//
// Each task runs its own event loop. Nothing is computed until somebody asks:
// a consumer sends a request over a connection, the producer computes
// exactly what is needed (asking its own inputs in turn) and publishes a
// response that every consumer can reuse while it stays valid. Whenever a
// node's parameters or upstream data change, its published responses are
// invalidated and the invalidation propagates downstream.
//
// # Basic Usage
//
//	g := livegraph.NewMapGraph()
//	src := g.Add(nodes.NewSource(1024))
//	scale := g.Add(nodes.NewScale(2))
//	if err := g.Connect(scale, nodes.ScaleInput, livegraph.OutputRef{Node: src, Output: nodes.SourceOutput}); err != nil {
//	    return err
//	}
//
//	exec := livegraph.NewExecutor(livegraph.WithLogger(logger))
//	defer exec.Close()
//
//	report, err := exec.Update(ctx, g)
//
// Call Update again after every edit. Reconciling an unchanged graph sends no
// messages to any task.
//
// # Writing Nodes
//
// A Node is the editable description; CreateTask turns it into a Task.
// Tasks declare their outputs with AddOutput and implement Run, which is
// called over and over. Run is cancelled through its context whenever a
// higher priority event (a connection change, new parameters or an upstream
// invalidation) arrives, and must leave no partial effect behind when it
// returns early.
//
// Errors returned from Run and panics inside it are logged and reported as
// lifecycle events. The task keeps its loop; Run is not called again until
// the next event.
package livegraph
