package middle

import (
	"github.com/chewxy/math32"
	"github.com/chxd/dldt/ir"
	"github.com/chxd/dldt/ops"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ConvertMulAddToScaleShift rewrites per-channel affine arithmetic into a
// single ScaleShift node:
//
//	Mul(x, scaleConst) [→ Add(·, shiftConst)]  ⇒  ScaleShift(x, weights, biases)
//
// The Add is folded in only when it is the sole consumer of the Mul. The
// constant operands must be constant float32 subexpressions (reshapes of
// constants fold; anything reaching a Parameter does not qualify), finite,
// and sized like the channel count of x, or scalar. Eltwise nodes whose
// AttrCanBeScaleShift flag was cleared by EltwiseChecker are left alone.
type ConvertMulAddToScaleShift struct{}

func (ConvertMulAddToScaleShift) Name() string        { return "ConvertMulAddToScaleShift" }
func (ConvertMulAddToScaleShift) Enabled() bool       { return true }
func (ConvertMulAddToScaleShift) RunAfter() []string  { return []string{"EltwiseChecker"} }
func (ConvertMulAddToScaleShift) RunBefore() []string { return []string{NameMiddleFinish} }

func (ConvertMulAddToScaleShift) Run(g *ir.Graph) error {
	for _, mul := range g.NodesByOp(ops.OpEltwise) {
		if mul.Graph() == nil {
			continue // Removed by an earlier match.
		}
		if mul.Attrs.StrOr(ops.AttrOperation, "") != "mul" {
			continue
		}
		if err := tryConvertScaleShift(g, mul); err != nil {
			return err
		}
	}
	return nil
}

// tryConvertScaleShift matches and rewrites a single Mul [+ Add] chain rooted
// at mul. Non-matches are not errors: the node simply stays as it is.
func tryConvertScaleShift(g *ir.Graph, mul *ir.Node) error {
	if !mul.Attrs.BoolOr(AttrCanBeScaleShift, true) {
		return nil
	}
	x, scale := splitDataAndConstant(mul)
	if x == nil {
		return nil
	}
	if !x.HasShape() || x.Shape.Rank() < 2 {
		return nil
	}
	channels := x.Shape.Dim(g.Layout.FeatureAxis(x.Shape.Rank()))

	weights := perChannel(foldConstantFlat(scale), channels)
	if weights == nil {
		klog.V(1).Infof("ConvertMulAddToScaleShift: %s scale operand is not a per-channel float32 constant, skipping",
			ir.NodeToString(mul))
		return nil
	}

	// Fold a following Add when mul feeds it exclusively.
	removed := []*ir.Node{mul}
	biases := make([]float32, channels)
	if add := mul.SoleConsumer(); add != nil &&
		add.Op == ops.OpEltwise && add.Attrs.StrOr(ops.AttrOperation, "") == "add" &&
		add.Attrs.BoolOr(AttrCanBeScaleShift, true) {
		_, shift := splitDataAndConstant(add)
		if shift != nil {
			if folded := perChannel(foldConstantFlat(shift), channels); folded != nil {
				biases = folded
				removed = append(removed, add)
			}
		}
	}

	if !allFinite(weights) || !allFinite(biases) {
		klog.Warningf("ConvertMulAddToScaleShift: %s has non-finite scale/shift values, skipping", ir.NodeToString(mul))
		return nil
	}

	weightsNode := ops.Constant(g, mul.Name+"/weights", weights)
	biasesNode := ops.Constant(g, mul.Name+"/biases", biases)
	scaleShift := ops.ScaleShift(g, mul.Name+"/fused", x, weightsNode, biasesNode)

	// Constant chains feeding only the removed nodes become dead.
	orphanRoots := constantOperands(removed)
	g.ReplaceWith(removed, scaleShift)
	for _, orphan := range orphanRoots {
		removeDeadConstChain(g, orphan)
	}

	for _, n := range []*ir.Node{weightsNode, biasesNode, scaleShift} {
		if err := n.Infer(n); err != nil {
			return errors.WithMessagef(err, "inferring shape of %s", ir.NodeToString(n))
		}
	}
	klog.V(1).Infof("ConvertMulAddToScaleShift: replaced %d nodes with %s", len(removed), ir.NodeToString(scaleShift))
	return nil
}

// splitDataAndConstant splits the two operands of a binary eltwise into the
// data operand and the constant-expression operand. It returns (nil, nil)
// unless exactly one operand is a constant expression.
func splitDataAndConstant(n *ir.Node) (data, constant *ir.Node) {
	inputs := n.DataInputs()
	if len(inputs) != 2 {
		return nil, nil
	}
	lhsConst := len(parameterDependencies(inputs[0])) == 0
	rhsConst := len(parameterDependencies(inputs[1])) == 0
	if lhsConst == rhsConst {
		// Both constant is a folding opportunity, not a scale/shift; neither
		// constant cannot match.
		return nil, nil
	}
	if lhsConst {
		return inputs[1], inputs[0]
	}
	return inputs[0], inputs[1]
}

// perChannel adapts the folded constant values to one value per channel:
// a full vector is used as is, a single value broadcasts. Anything else (or a
// failed fold) yields nil.
func perChannel(values []float32, channels int) []float32 {
	switch len(values) {
	case channels:
		return values
	case 1:
		broadcast := make([]float32, channels)
		for ii := range broadcast {
			broadcast[ii] = values[0]
		}
		return broadcast
	default:
		return nil
	}
}

func allFinite(values []float32) bool {
	for _, v := range values {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// constantOperands collects the operands of the nodes that are themselves
// not in the set, candidates to become dead once the set is removed.
func constantOperands(removed []*ir.Node) []*ir.Node {
	inSet := make(map[*ir.Node]bool, len(removed))
	for _, n := range removed {
		inSet[n] = true
	}
	var operands []*ir.Node
	for _, n := range removed {
		for _, input := range n.DataInputs() {
			if !inSet[input] {
				operands = append(operands, input)
			}
		}
	}
	return operands
}

// removeDeadConstChain removes n if it is a constant-expression node with no
// remaining consumers, recursing into its operands.
func removeDeadConstChain(g *ir.Graph, n *ir.Node) {
	if n.Graph() != g || len(n.Consumers()) > 0 {
		return
	}
	switch n.Op {
	case ops.OpConst, ops.OpReshape:
		inputs := n.DataInputs()
		g.RemoveNode(n)
		for _, input := range inputs {
			removeDeadConstChain(g, input)
		}
	}
}

func init() {
	RegisterPass(ConvertMulAddToScaleShift{})
}
