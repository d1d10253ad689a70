package middle

import (
	"github.com/chxd/dldt/ir"
	"github.com/chxd/dldt/ops"
	"github.com/gomlx/gomlx/types"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
)

// Constant-subexpression analysis used by rewriting passes that need operand
// values at conversion time.

// parameterDependencies returns the Parameter nodes the value of n depends
// on. A node with no parameter dependencies is a constant expression.
func parameterDependencies(n *ir.Node) []*ir.Node {
	visited := types.MakeSet[*ir.Node]()
	return recursiveParameterDependencies(n, visited, nil)
}

func recursiveParameterDependencies(n *ir.Node, visited types.Set[*ir.Node], params []*ir.Node) []*ir.Node {
	visited.Insert(n)
	if n.Op == ops.OpParameter {
		return append(params, n)
	}
	for _, input := range n.DataInputs() {
		if visited.Has(input) {
			continue
		}
		params = recursiveParameterDependencies(input, visited, params)
	}
	return params
}

// constantOrigin follows shape-pure ops (Reshape) up from n and returns the
// constant node producing its values, or nil if the chain involves actual
// computation. Reshapes don't reorder the flat data, so the origin's flat
// values are the values of n.
func constantOrigin(n *ir.Node) *ir.Node {
	for n.Op == ops.OpReshape {
		n = n.Input(0)
	}
	if n.Op == ops.OpConst {
		return n
	}
	return nil
}

// foldConstantFlat returns the flat float32 values of n if it is a constant
// (possibly reshaped) float32 tensor, or nil.
func foldConstantFlat(n *ir.Node) []float32 {
	origin := constantOrigin(n)
	if origin == nil || origin.Value == nil {
		return nil
	}
	if origin.Value.Shape().DType != dtypes.Float32 {
		return nil
	}
	var values []float32
	tensors.ConstFlatData(origin.Value, func(flat []float32) {
		values = append(values, flat...)
	})
	return values
}
