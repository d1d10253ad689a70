// Package infer annotates IR graphs with output shapes.
//
// Each node carries a shape-inference function attached by its factory; the
// Shapes driver walks the graph in topological order invoking them. Shapes of
// data-dependent outputs (e.g. the selected-box count of NonMaxSuppression)
// stay unknown, and nodes downstream of an unknown shape are skipped.
package infer

import (
	"github.com/chxd/dldt/ir"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Shapes runs shape inference over the whole graph.
//
// It fails if the graph has a cycle, if a node has no inference function
// attached, or if an inference function rejects its input shapes.
func Shapes(g *ir.Graph) error {
	sorted, err := g.SortedNodes()
	if err != nil {
		return err
	}
	for _, n := range sorted {
		if n.Infer == nil {
			return errors.Errorf("op %s has no shape inference attached: %s", n.Op, ir.NodeToString(n))
		}
		if !inputsReady(n) {
			klog.V(1).Infof("shape inference: skipping %s, some input shapes are unknown", ir.NodeToString(n))
			continue
		}
		if err := n.Infer(n); err != nil {
			return errors.WithMessagef(err, "inferring shape of %s", ir.NodeToString(n))
		}
	}
	return nil
}

func inputsReady(n *ir.Node) bool {
	for _, input := range n.DataInputs() {
		if !input.HasShape() {
			return false
		}
	}
	return true
}
