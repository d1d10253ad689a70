// Package ops provides the node factories of the IR: one function per
// operation that validates its arguments, fills in defaults, marshals the
// attribute map and delegates to the shared node constructor.
//
// Factories panic (throw exceptions) on invalid arguments, following the
// graph-building convention; they never return errors.
package ops

import (
	"github.com/chxd/dldt/infer"
	"github.com/chxd/dldt/ir"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
)

// Op type names used by the factories and recognized by the middle passes.
const (
	OpParameter          = "Parameter"
	OpConst              = "Const"
	OpResult             = "Result"
	OpEltwise            = "Eltwise"
	OpScaleShift         = "ScaleShift"
	OpReshape            = "Reshape"
	OpBatchNormInference = "BatchNormInference"
	OpGatherND           = "GatherND"
	OpLogSoftmax         = "LogSoftmax"
	OpNonMaxSuppression  = "NonMaxSuppression"
	OpRound              = "Round"
	OpHSigmoid           = "HSigmoid"
	OpGRUSequence        = "GRUSequence"
	OpRNNSequence        = "RNNSequence"
	OpLoop               = "Loop"
)

// AttrOperation selects the arithmetic of an Eltwise node: one of
// "add", "sub", "mul", "div", "max", "min", "pow".
const AttrOperation = "operation"

// newNode creates the node, connects the inputs in port order and attaches
// the shape-inference function. All factories funnel through here.
func newNode(g *ir.Graph, name, op string, inputs []*ir.Node, attrs ir.Attrs, inferFn ir.InferFn) *ir.Node {
	for ii, input := range inputs {
		if input == nil {
			exceptions.Panicf("%s(%q): input #%d is nil", op, name, ii)
		}
	}
	n := g.AddNode(name, op, attrs)
	for port, input := range inputs {
		g.Connect(input, n, port)
	}
	n.Infer = inferFn
	return n
}

// Parameter creates a graph input with a declared shape.
func Parameter(g *ir.Graph, name string, shape shapes.Shape) *ir.Node {
	if !shape.Ok() {
		exceptions.Panicf("Parameter(%q): a valid shape is required", name)
	}
	return newNode(g, name, OpParameter, nil, nil, infer.Declared(shape))
}

// Constant creates a constant node from any Go value accepted by GoMLX
// tensors (scalars, slices, multi-dimensional slices or a *tensors.Tensor).
// The dtype, shape and value are recorded on the node.
func Constant(g *ir.Graph, name string, value any) *ir.Node {
	t := tensors.FromAnyValue(value)
	n := newNode(g, name, OpConst, nil, nil, infer.Constant)
	n.Value = t
	return n
}

// Result marks input as a graph output.
func Result(g *ir.Graph, name string, input *ir.Node) *ir.Node {
	return newNode(g, name, OpResult, []*ir.Node{input}, nil, infer.CopyShape(0))
}
