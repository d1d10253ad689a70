package ir

import (
	"bytes"
	"fmt"
	"maps"
	"slices"

	"github.com/gomlx/gomlx/types"
)

// String implements fmt.Stringer, and pretty prints a summary of the graph.
func (g *Graph) String() string {
	var buf bytes.Buffer
	w := func(format string, args ...any) {
		if len(args) == 0 {
			buf.WriteString(format)
		} else {
			buf.WriteString(fmt.Sprintf(format, args...))
		}
	}
	w("Graph %q:\n", g.Name)
	w("\tLayout:\t%s\n", g.Layout)
	w("\t# nodes:\t%d\n", len(g.nodes))

	opTypesSet := types.MakeSet[string]()
	numEdges, numControl := 0, 0
	for _, n := range g.nodes {
		opTypesSet.Insert(n.Op)
		numEdges += len(n.InEdges())
		numControl += len(n.ctl)
	}
	w("\t# edges:\t%d", numEdges)
	if numControl > 0 {
		w(" (+%d control-flow)", numControl)
	}
	w("\n")
	w("\tOp types:\t%v\n", slices.Sorted(maps.Keys(opTypesSet)))
	return buf.String()
}

// NodeToString returns a compact one-line description of a node for error
// messages: name, op, input names and shape (when known).
func NodeToString(n *Node) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s[%s](", n.Op, n.Name)
	for ii, input := range n.DataInputs() {
		if ii > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(input.Name)
	}
	buf.WriteString(")")
	if n.HasShape() {
		fmt.Fprintf(&buf, " -> %s", n.Shape)
	}
	return buf.String()
}
