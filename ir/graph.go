// Package ir defines the intermediate representation used by the model
// conversion pipeline: a graph of operation nodes connected by ordered data
// edges and unordered control-flow edges.
//
//   - Node factories (package ops) construct and connect nodes.
//   - Shape inference (package infer) annotates nodes with output shapes.
//   - Rewriting passes (package middle) analyze and restructure the graph.
//
// As in GoMLX graph-building code, construction errors panic (throw
// exceptions); analysis entry points return errors.
package ir

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Layout is the tensor memory layout the model was trained with. It decides
// which axis is the channels ("feature") axis.
type Layout string

const (
	// NCHW places channels at axis 1.
	NCHW Layout = "NCHW"
	// NHWC places channels at the last axis.
	NHWC Layout = "NHWC"
)

// FeatureAxis returns the channels axis for a tensor of the given rank.
func (l Layout) FeatureAxis(rank int) int {
	if l == NCHW {
		return 1
	}
	return rank - 1
}

// Graph is a mutable DAG of operation nodes.
type Graph struct {
	// Name of the model this graph was built from.
	Name string

	// Layout applies graph-wide; individual nodes don't carry layout.
	Layout Layout

	nodes  []*Node // In insertion order.
	byName map[string]*Node
}

// New creates an empty graph.
func New(name string, layout Layout) *Graph {
	if layout != NCHW && layout != NHWC {
		exceptions.Panicf("ir.New(%q): unknown layout %q", name, layout)
	}
	return &Graph{
		Name:   name,
		Layout: layout,
		byName: make(map[string]*Node),
	}
}

// AddNode creates a node and adds it to the graph. Node names must be unique.
// attrs may be nil.
func (g *Graph) AddNode(name, op string, attrs Attrs) *Node {
	if name == "" {
		exceptions.Panicf("graph %q: node of op %q must have a name", g.Name, op)
	}
	if _, found := g.byName[name]; found {
		exceptions.Panicf("graph %q already has a node named %q", g.Name, name)
	}
	if attrs == nil {
		attrs = make(Attrs)
	}
	n := &Node{graph: g, Name: name, Op: op, Attrs: attrs}
	g.nodes = append(g.nodes, n)
	g.byName[name] = n
	return n
}

// Connect wires the output of src to the given input port of dst.
// Ports must be connected at most once.
func (g *Graph) Connect(src, dst *Node, port int) *Edge {
	g.checkOwned(src)
	g.checkOwned(dst)
	if port < 0 {
		exceptions.Panicf("graph %q: cannot connect %q -> %q at negative port %d", g.Name, src.Name, dst.Name, port)
	}
	if port < len(dst.in) && dst.in[port] != nil {
		exceptions.Panicf("graph %q: node %q already has an input at port %d", g.Name, dst.Name, port)
	}
	for port >= len(dst.in) {
		dst.in = append(dst.in, nil)
	}
	e := &Edge{Src: src, Dst: dst, Port: port}
	dst.in[port] = e
	src.out = append(src.out, e)
	return e
}

// ConnectControl adds an ordering-only dependency from src to dst.
func (g *Graph) ConnectControl(src, dst *Node) *Edge {
	g.checkOwned(src)
	g.checkOwned(dst)
	e := &Edge{Src: src, Dst: dst, Port: -1, ControlFlow: true}
	dst.ctl = append(dst.ctl, e)
	src.out = append(src.out, e)
	return e
}

// Disconnect removes the edge from the graph, freeing its destination port.
func (g *Graph) Disconnect(e *Edge) {
	if e.ControlFlow {
		e.Dst.ctl = slices.DeleteFunc(e.Dst.ctl, func(o *Edge) bool { return o == e })
	} else {
		e.Dst.in[e.Port] = nil
	}
	e.Src.out = slices.DeleteFunc(e.Src.out, func(o *Edge) bool { return o == e })
}

// ReplaceWith rewires every data edge leaving the old nodes towards a
// destination outside of them to come from repl instead, then removes the old
// nodes. The inputs of repl must already be connected by the caller.
func (g *Graph) ReplaceWith(old []*Node, repl *Node) {
	g.checkOwned(repl)
	oldSet := make(map[*Node]bool, len(old))
	for _, n := range old {
		oldSet[n] = true
	}
	for _, n := range old {
		for _, e := range slices.Clone(n.out) {
			if e.ControlFlow || oldSet[e.Dst] {
				continue
			}
			dst, port := e.Dst, e.Port
			g.Disconnect(e)
			g.Connect(repl, dst, port)
		}
	}
	for _, n := range old {
		g.RemoveNode(n)
	}
}

// RemoveNode detaches all edges of the node and removes it from the graph.
func (g *Graph) RemoveNode(n *Node) {
	g.checkOwned(n)
	for _, e := range slices.Clone(n.out) {
		g.Disconnect(e)
	}
	for _, e := range slices.Clone(n.ctl) {
		g.Disconnect(e)
	}
	for _, e := range slices.Clone(n.in) {
		if e != nil {
			g.Disconnect(e)
		}
	}
	g.nodes = slices.DeleteFunc(g.nodes, func(o *Node) bool { return o == n })
	delete(g.byName, n.Name)
	n.graph = nil
}

// NodeByName returns the node with the given name, or nil.
func (g *Graph) NodeByName(name string) *Node { return g.byName[name] }

// Nodes returns all nodes in insertion order. The returned slice is shared,
// don't modify it.
func (g *Graph) Nodes() []*Node { return g.nodes }

// NumNodes returns the number of nodes in the graph.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NodesByOp returns the nodes of the given op type, in insertion order.
func (g *Graph) NodesByOp(op string) []*Node {
	var matched []*Node
	for _, n := range g.nodes {
		if n.Op == op {
			matched = append(matched, n)
		}
	}
	return matched
}

// SortedNodes returns a DAG ordering of the graph: every node appears after
// all of its data and control-flow dependencies.
//
// It returns an error if the graph has a cycle.
func (g *Graph) SortedNodes() ([]*Node, error) {
	sorted := make([]*Node, 0, len(g.nodes))

	// Number of dependencies still pending per node.
	pending := make(map[*Node]int, len(g.nodes))
	for _, n := range g.nodes {
		count := len(n.InEdges()) + len(n.ctl)
		pending[n] = count
		if count == 0 {
			sorted = append(sorted, n)
		}
	}

	// Mark nodes done in waves; insertion order keeps the result deterministic.
	for scan := 0; scan < len(sorted); scan++ {
		for _, e := range sorted[scan].out {
			pending[e.Dst]--
			if pending[e.Dst] == 0 {
				sorted = append(sorted, e.Dst)
			}
		}
	}
	if len(sorted) != len(g.nodes) {
		return nil, errors.Errorf("sorting graph %q failed: %d of %d nodes are reachable from the inputs, the rest form a cycle",
			g.Name, len(sorted), len(g.nodes))
	}
	return sorted, nil
}

func (g *Graph) checkOwned(n *Node) {
	if n.graph != g {
		exceptions.Panicf("node %q (%s) does not belong to graph %q", n.Name, n.Op, g.Name)
	}
}
