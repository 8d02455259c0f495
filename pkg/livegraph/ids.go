package livegraph

import "fmt"

// NodeID identifies a node within one graph.
type NodeID uint32

// InputID identifies an input slot of a node.
type InputID uint32

// OutputID identifies an output slot of a node.
type OutputID uint32

// TypeID tags the kind of data an output produces. The engine carries it
// but never interprets it; graph editors use it to decide which inputs an
// output may be wired to.
type TypeID uint32

// OutputRef is the producing end of a wire.
type OutputRef struct {
	Node   NodeID
	Output OutputID
	Type   TypeID
}

// String implements fmt.Stringer.
func (r OutputRef) String() string {
	return fmt.Sprintf("%d:%d", r.Node, r.Output)
}

// Binding is the declared state of one input: the output it is wired to, or
// nil when unconnected.
type Binding struct {
	Input InputID
	From  *OutputRef
}

// Bind is shorthand for a connected Binding.
func Bind(input InputID, from OutputRef) Binding {
	return Binding{Input: input, From: &from}
}

// Unbound is shorthand for an unconnected Binding.
func Unbound(input InputID) Binding {
	return Binding{Input: input}
}
