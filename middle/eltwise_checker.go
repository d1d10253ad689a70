package middle

import (
	"github.com/chxd/dldt/ir"
	"github.com/chxd/dldt/ops"
	"k8s.io/klog/v2"
)

// Flags annotated on eltwise nodes by EltwiseChecker. Absent means allowed:
// the checker only ever clears them.
const (
	// AttrCanBeFused marks whether linear fusion passes may fold the node
	// into an adjacent convolution or dense layer.
	AttrCanBeFused = "can_be_fused"

	// AttrCanBeScaleShift marks whether the node may be rewritten as a
	// per-channel ScaleShift.
	AttrCanBeScaleShift = "can_be_scaleshift"
)

// EltwiseChecker decides, for each eltwise node, whether it can be expressed
// as a per-channel affine transform (ScaleShift) and whether it is safe to
// fuse into a neighboring linear op.
//
// The node qualifies when every secondary operand is shaped like 1,C,1,1
// aligned to the feature axis of the primary (maximal-rank) operand: a tensor
// whose only non-1 dimension sits on the feature axis and matches the primary
// operand's channel count. Scalars and size-1 tensors always qualify.
type EltwiseChecker struct{}

func (EltwiseChecker) Name() string        { return "EltwiseChecker" }
func (EltwiseChecker) Enabled() bool       { return true }
func (EltwiseChecker) RunAfter() []string  { return []string{"EltwiseInputReshape"} }
func (EltwiseChecker) RunBefore() []string { return []string{NameMiddleFinish} }

func (EltwiseChecker) Run(g *ir.Graph) error {
	for _, n := range g.NodesByOp(ops.OpEltwise) {
		checkEltwise(g, n)
	}
	return nil
}

func checkEltwise(g *ir.Graph, n *ir.Node) {
	inputs := n.DataInputs()

	// Reference shape: the first input of maximal rank.
	maxRank := -1
	maxRankIdx := -1
	var refDims []int
	for idx, input := range inputs {
		if !input.HasShape() {
			klog.V(1).Infof("EltwiseChecker: skipping %s, input shapes unknown", ir.NodeToString(n))
			return
		}
		if input.Shape.Rank() > maxRank {
			maxRank = input.Shape.Rank()
			maxRankIdx = idx
			refDims = input.Shape.Dimensions
		}
	}
	if maxRank < 2 {
		// No distinct feature axis to align to; nothing to rule out.
		return
	}
	featureAxis := g.Layout.FeatureAxis(maxRank)

	// A secondary operand qualifies if it is shaped like 1,C,1,1: a single
	// non-1 dimension, long enough to reach the feature axis of the
	// reference shape when aligned to the right, with the aligned dimension
	// either matching the channel count or being a broadcast 1.
	tail := maxRank - featureAxis
	qualifies := func(dims []int) bool {
		if prodInts(dims) != maxInts(dims) {
			return false
		}
		if len(dims) < tail {
			return false
		}
		aligned := dims[len(dims)-tail]
		return aligned == refDims[featureAxis] || (aligned == 1 && maxInts(dims) == 1)
	}

	for idx, input := range inputs {
		if idx == maxRankIdx {
			continue
		}
		dims := input.Shape.Dimensions
		if len(dims) == 0 || prodInts(dims) == 1 {
			continue // Scalars always broadcast cleanly.
		}
		if !qualifies(dims) {
			n.Attrs.Set(AttrCanBeFused, false)
			n.Attrs.Set(AttrCanBeScaleShift, false)
		}
	}
}

func prodInts(dims []int) int {
	prod := 1
	for _, dim := range dims {
		prod *= dim
	}
	return prod
}

func maxInts(dims []int) int {
	m := dims[0]
	for _, dim := range dims[1:] {
		m = max(m, dim)
	}
	return m
}

func init() {
	RegisterPass(EltwiseChecker{})
}
