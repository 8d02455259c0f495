package livegraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapGraph_Add(t *testing.T) {
	g := NewMapGraph()
	a := g.Add(&constNode{value: 1})
	b := g.Add(&constNode{value: 2})

	assert.Equal(t, NodeID(1), a)
	assert.Equal(t, NodeID(2), b)

	g.Set(3, &constNode{value: 3})
	assert.Equal(t, NodeID(4), g.Add(&constNode{}), "ids skip explicitly set nodes")
	assert.Equal(t, []NodeID{1, 2, 3, 4}, g.NodeIDs())
	assert.Equal(t, 4, g.Len())

	assert.Panics(t, func() { g.Add(nil) })
	assert.Panics(t, func() { g.Set(9, nil) })
}

func TestMapGraph_NodeReturnsClone(t *testing.T) {
	g := NewMapGraph()
	id := g.Add(&constNode{value: 1})

	n, ok := g.Node(id)
	require.True(t, ok)
	n.(*constNode).value = 99

	again, _ := g.Node(id)
	assert.Equal(t, 1, again.(*constNode).value)

	require.NoError(t, g.Edit(id, func(n Node) { n.(*constNode).value = 5 }))
	again, _ = g.Node(id)
	assert.Equal(t, 5, again.(*constNode).value)

	_, ok = g.Node(42)
	assert.False(t, ok)
	assert.ErrorIs(t, g.Edit(42, func(Node) {}), ErrUnknownNode)
}

func TestMapGraph_Connect(t *testing.T) {
	g := NewMapGraph()
	src := g.Add(&constNode{value: 1})
	dst := g.Add(&relayNode{})

	tests := []struct {
		name    string
		node    NodeID
		input   InputID
		from    OutputRef
		wantErr error
	}{
		{name: "valid", node: dst, input: 0, from: OutputRef{Node: src}},
		{name: "unknown producer", node: dst, input: 0, from: OutputRef{Node: 77}, wantErr: ErrUnknownNode},
		{name: "unknown consumer", node: 77, input: 0, from: OutputRef{Node: src}, wantErr: ErrUnknownNode},
		{name: "node without inputs", node: src, input: 0, from: OutputRef{Node: src}, wantErr: ErrNotConnectable},
		{name: "unknown input", node: dst, input: 3, from: OutputRef{Node: src}, wantErr: ErrUnknownInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Connect(tt.node, tt.input, tt.from)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			n, _ := g.Node(tt.node)
			assert.Equal(t, []Binding{Bind(tt.input, tt.from)}, n.Inputs())
		})
	}

	require.NoError(t, g.Disconnect(dst, 0))
	n, _ := g.Node(dst)
	assert.Equal(t, []Binding{Unbound(0)}, n.Inputs())
}

func TestMapGraph_RemoveUnbindsConsumers(t *testing.T) {
	g := NewMapGraph()
	src := g.Add(&constNode{value: 1})
	dst := g.Add(&relayNode{})
	require.NoError(t, g.Connect(dst, 0, OutputRef{Node: src}))

	assert.True(t, g.Remove(src))
	assert.False(t, g.Remove(src))

	n, ok := g.Node(dst)
	require.True(t, ok)
	assert.Nil(t, n.Inputs()[0].From)
	assert.Equal(t, []NodeID{dst}, g.NodeIDs())
}

func TestOutputRef_String(t *testing.T) {
	assert.Equal(t, "3:1", OutputRef{Node: 3, Output: 1, Type: 9}.String())
}

func TestWires(t *testing.T) {
	w := NewWires(2)
	assert.Equal(t, []Binding{Unbound(0), Unbound(1)}, w.Inputs())

	from := OutputRef{Node: 4, Output: 1}
	assert.True(t, w.SetInput(1, &from))
	assert.False(t, w.SetInput(2, &from))

	from.Node = 9
	assert.Equal(t, NodeID(4), w[1].Node, "SetInput copies the ref")

	c := w.Clone()
	c[1].Node = 5
	assert.Equal(t, NodeID(4), w[1].Node)
	assert.Nil(t, c[0])

	assert.True(t, w.SetInput(1, nil))
	assert.Equal(t, []Binding{Unbound(0), Unbound(1)}, w.Inputs())
}
