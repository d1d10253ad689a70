package ir

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
)

// InferFn computes the output shape (and dtype) of a node from the shapes of
// its data inputs, storing the result in Node.Shape.
type InferFn func(n *Node) error

// Node is a single operation in the graph.
//
// A node has at most one logical output: its value is identified with the node
// itself, and consumers connect to it through ordered input ports.
type Node struct {
	graph *Graph

	// Name uniquely identifies the node within its graph.
	Name string

	// Op is the operation type, e.g. "Eltwise", "ScaleShift", "Const".
	Op string

	// Attrs holds the operation attributes (axis, mode, epsilon, ...) as well
	// as flags set by rewriting passes.
	Attrs Attrs

	// Shape of the node output. The zero value means the shape is not (yet)
	// known; see HasShape.
	Shape shapes.Shape

	// Value is the materialized constant value, set only for constant nodes.
	Value *tensors.Tensor

	// Infer is the shape-inference function attached by the node factory.
	Infer InferFn

	in  []*Edge // Data edges, indexed by destination port.
	ctl []*Edge // Incoming control-flow edges.
	out []*Edge // Outgoing edges, both data and control-flow.
}

// Edge is a directed connection from the output of Src to an input port of Dst.
type Edge struct {
	Src, Dst *Node

	// Port is the input port on Dst. It is -1 for control-flow edges.
	Port int

	// ControlFlow marks an ordering-only dependency that carries no data.
	ControlFlow bool
}

// Graph returns the graph that owns the node.
func (n *Node) Graph() *Graph { return n.graph }

// HasShape reports whether shape inference has produced a shape for the node.
func (n *Node) HasShape() bool { return n.Shape.Ok() }

// NumInputs returns the number of data input ports.
func (n *Node) NumInputs() int { return len(n.in) }

// Input returns the producer connected to the given data input port.
// It panics if the port is not connected.
func (n *Node) Input(port int) *Node {
	if port < 0 || port >= len(n.in) || n.in[port] == nil {
		exceptions.Panicf("node %q (%s) has no input connected at port %d", n.Name, n.Op, port)
	}
	return n.in[port].Src
}

// InEdges returns the incoming data edges in port order.
// Control-flow edges are excluded, they never carry operands.
func (n *Node) InEdges() []*Edge {
	edges := make([]*Edge, 0, len(n.in))
	for _, e := range n.in {
		if e != nil {
			edges = append(edges, e)
		}
	}
	return edges
}

// DataInputs returns the producers of the data inputs, in port order.
func (n *Node) DataInputs() []*Node {
	edges := n.InEdges()
	inputs := make([]*Node, len(edges))
	for ii, e := range edges {
		inputs[ii] = e.Src
	}
	return inputs
}

// ControlInputs returns the sources of incoming control-flow edges.
func (n *Node) ControlInputs() []*Node {
	srcs := make([]*Node, len(n.ctl))
	for ii, e := range n.ctl {
		srcs[ii] = e.Src
	}
	return srcs
}

// Consumers returns the outgoing data edges of the node.
func (n *Node) Consumers() []*Edge {
	edges := make([]*Edge, 0, len(n.out))
	for _, e := range n.out {
		if !e.ControlFlow {
			edges = append(edges, e)
		}
	}
	return edges
}

// SoleConsumer returns the single data consumer of the node, or nil if there
// are 0 or 2+ consumers.
func (n *Node) SoleConsumer() *Node {
	edges := n.Consumers()
	if len(edges) == 1 {
		return edges[0].Dst
	}
	return nil
}
