package middle

import (
	"fmt"

	"github.com/chxd/dldt/ir"
	"github.com/chxd/dldt/ops"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// EltwiseInputReshape normalizes rank-1 inputs of eltwise nodes: a vector fed
// into an eltwise next to a higher-rank operand is reshaped to the operand's
// rank with the vector on the feature axis and 1s everywhere else
// (e.g. [C] becomes [1,C,1,1] under NCHW), so later per-channel analysis sees
// the alignment explicitly instead of relying on broadcast conventions.
type EltwiseInputReshape struct{}

func (EltwiseInputReshape) Name() string        { return "EltwiseInputReshape" }
func (EltwiseInputReshape) Enabled() bool       { return true }
func (EltwiseInputReshape) RunAfter() []string  { return []string{NameMiddleStart} }
func (EltwiseInputReshape) RunBefore() []string { return []string{"EltwiseChecker", NameMiddleFinish} }

func (EltwiseInputReshape) Run(g *ir.Graph) error {
	for _, n := range g.NodesByOp(ops.OpEltwise) {
		edges := n.InEdges()

		// Reference shape: the first input of maximal rank.
		maxRank := -1
		var ref *ir.Node
		shapesKnown := true
		for _, e := range edges {
			if !e.Src.HasShape() {
				shapesKnown = false
				break
			}
			if e.Src.Shape.Rank() > maxRank {
				maxRank = e.Src.Shape.Rank()
				ref = e.Src
			}
		}
		if !shapesKnown {
			klog.V(1).Infof("EltwiseInputReshape: skipping %s, input shapes unknown", ir.NodeToString(n))
			continue
		}
		featureAxis := g.Layout.FeatureAxis(maxRank)
		if maxRank < 2 || featureAxis >= maxRank {
			continue
		}
		channels := ref.Shape.Dim(featureAxis)

		for _, e := range edges {
			src := e.Src
			if src.Shape.Rank() != 1 {
				continue
			}
			length := src.Shape.Dim(0)
			if length != channels || length <= 1 {
				continue
			}
			dims := make([]int, maxRank)
			for axis := range dims {
				dims[axis] = 1
			}
			dims[featureAxis] = length

			dst, port := e.Dst, e.Port
			g.Disconnect(e)
			aligned := ops.Reshape(g, fmt.Sprintf("%s/in%d/aligned", n.Name, port), src, dims)
			g.Connect(aligned, dst, port)
			if err := aligned.Infer(aligned); err != nil {
				return errors.WithMessagef(err, "inferring shape of %s", ir.NodeToString(aligned))
			}
		}
	}
	return nil
}

func init() {
	RegisterPass(EltwiseInputReshape{})
}
