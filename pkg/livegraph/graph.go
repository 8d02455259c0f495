package livegraph

import (
	"fmt"
	"slices"
	"sync"
)

// Connector is implemented by nodes whose input bindings can be edited.
type Connector interface {
	// SetInput binds input to from, or unbinds it when from is nil. It
	// reports false if the node has no such input.
	SetInput(input InputID, from *OutputRef) bool
}

// Wires holds the bindings of a node with a fixed number of inputs, indexed
// by InputID. Embedding it provides Inputs and SetInput.
type Wires []*OutputRef

// NewWires returns n unbound inputs.
func NewWires(n int) Wires {
	return make(Wires, n)
}

// Inputs implements the Node method.
func (w Wires) Inputs() []Binding {
	out := make([]Binding, len(w))
	for i, from := range w {
		out[i] = Binding{Input: InputID(i), From: from}
	}
	return out
}

// SetInput implements Connector.
func (w Wires) SetInput(input InputID, from *OutputRef) bool {
	if int(input) >= len(w) {
		return false
	}
	if from != nil {
		ref := *from
		from = &ref
	}
	w[input] = from
	return true
}

// Clone returns a copy sharing nothing with w.
func (w Wires) Clone() Wires {
	out := make(Wires, len(w))
	for i, from := range w {
		if from != nil {
			ref := *from
			out[i] = &ref
		}
	}
	return out
}

// MapGraph is an editable Graph safe for concurrent use. Edits and
// reconciliation may run on different goroutines; Node returns clones so
// the executor never observes a half-applied edit.
//
// Example:
//
//	g := livegraph.NewMapGraph()
//	a := g.Add(nodes.NewConstant(1))
//	b := g.Add(nodes.NewSink(store))
//	err := g.Connect(b, nodes.SinkInput, livegraph.OutputRef{Node: a, Output: nodes.ConstantOutput})
type MapGraph struct {
	mu    sync.RWMutex
	nodes map[NodeID]Node
	next  NodeID
}

// Compile-time interface check.
var _ Graph = (*MapGraph)(nil)

// NewMapGraph creates an empty graph.
func NewMapGraph() *MapGraph {
	return &MapGraph{
		nodes: make(map[NodeID]Node),
		next:  1,
	}
}

// Add inserts n under a fresh id and returns the id.
//
// Panics if n is nil.
func (g *MapGraph) Add(n Node) NodeID {
	if n == nil {
		panic("livegraph: node cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		if _, taken := g.nodes[g.next]; !taken {
			break
		}
		g.next++
	}
	id := g.next
	g.next++
	g.nodes[id] = n
	return id
}

// Set inserts or replaces the node with the given id. Bindings of other
// nodes to id are kept. If n is of another kind than the node it replaces,
// the executor respawns the task and reconnects those bindings to it.
//
// Panics if n is nil.
func (g *MapGraph) Set(id NodeID, n Node) {
	if n == nil {
		panic("livegraph: node cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[id] = n
}

// Remove deletes a node and unbinds every input wired to it. It reports
// whether the node existed.
func (g *MapGraph) Remove(id NodeID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return false
	}
	delete(g.nodes, id)

	for _, n := range g.nodes {
		c, ok := n.(Connector)
		if !ok {
			continue
		}
		for _, b := range n.Inputs() {
			if b.From != nil && b.From.Node == id {
				c.SetInput(b.Input, nil)
			}
		}
	}
	return true
}

// Connect wires input of node to from.
func (g *MapGraph) Connect(node NodeID, input InputID, from OutputRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[from.Node]; !ok {
		return fmt.Errorf("connect from node %d: %w", from.Node, ErrUnknownNode)
	}
	return g.setInputLocked(node, input, &from)
}

// Disconnect unbinds input of node.
func (g *MapGraph) Disconnect(node NodeID, input InputID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.setInputLocked(node, input, nil)
}

func (g *MapGraph) setInputLocked(node NodeID, input InputID, from *OutputRef) error {
	n, ok := g.nodes[node]
	if !ok {
		return fmt.Errorf("node %d: %w", node, ErrUnknownNode)
	}
	c, ok := n.(Connector)
	if !ok {
		return fmt.Errorf("node %d (%s): %w", node, n.Kind(), ErrNotConnectable)
	}
	if !c.SetInput(input, from) {
		return fmt.Errorf("node %d input %d: %w", node, input, ErrUnknownInput)
	}
	return nil
}

// Edit runs fn on the stored node under the graph's lock. Use it to change
// parameters; the next Update pushes them to the running task.
func (g *MapGraph) Edit(id NodeID, fn func(Node)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("node %d: %w", id, ErrUnknownNode)
	}
	fn(n)
	return nil
}

// NodeIDs returns all node ids in ascending order.
func (g *MapGraph) NodeIDs() []NodeID {
	g.mu.RLock()
	ids := make([]NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	g.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Node returns a clone of the node with the given id.
func (g *MapGraph) Node(id NodeID) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// Len returns the number of nodes.
func (g *MapGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}
