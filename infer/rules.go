package infer

import (
	"github.com/chxd/dldt/ir"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/pkg/errors"
)

// This file implements the per-op shape inference rules. Factories attach
// them at construction time; rules that depend on static arguments (reshape
// dims, batch dims, ...) are closures over those arguments, so there is no
// attribute parsing at inference time.

// Declared returns a rule that sets a fixed, declared shape. Used by
// Parameter.
func Declared(shape shapes.Shape) ir.InferFn {
	return func(n *ir.Node) error {
		n.Shape = shape
		return nil
	}
}

// Constant infers the shape from the node's materialized value.
func Constant(n *ir.Node) error {
	if n.Value == nil {
		return errors.Errorf("constant node %q has no value", n.Name)
	}
	n.Shape = n.Value.Shape()
	return nil
}

// CopyShape returns a rule that copies the shape of the input at the given
// port. Used by elementwise-unary ops and ScaleShift.
func CopyShape(port int) ir.InferFn {
	return func(n *ir.Node) error {
		n.Shape = n.Input(port).Shape
		return nil
	}
}

// Unknown leaves the output shape unknown: the op's output is data dependent.
func Unknown(n *ir.Node) error { return nil }

// Elementwise broadcasts the input shapes following numpy rules (align right,
// dimensions must match or be 1) and promotes the operand dtypes.
func Elementwise(n *ir.Node) error {
	inputs := n.DataInputs()
	dtype := inputs[0].Shape.DType
	maxRank := 0
	for _, input := range inputs {
		var err error
		dtype, err = ir.PromoteDTypes(dtype, input.Shape.DType)
		if err != nil {
			return err
		}
		maxRank = max(maxRank, input.Shape.Rank())
	}

	dims := make([]int, maxRank)
	for axis := range dims {
		dims[axis] = 1
	}
	for _, input := range inputs {
		offset := maxRank - input.Shape.Rank()
		for axis, dim := range input.Shape.Dimensions {
			outAxis := offset + axis
			if dims[outAxis] == 1 {
				dims[outAxis] = dim
			} else if dim != 1 && dim != dims[outAxis] {
				return errors.Errorf("shapes %s and dimension %d at axis %d are not broadcastable",
					input.Shape, dims[outAxis], axis)
			}
		}
	}
	n.Shape = shapes.Make(dtype, dims...)
	return nil
}

// Reshape returns a rule resolving the target dims against the input shape:
// 0 copies the input dimension at the same axis, -1 is inferred from the
// remaining size.
func Reshape(dims []int) ir.InferFn {
	return func(n *ir.Node) error {
		input := n.Input(0).Shape
		resolved := make([]int, len(dims))
		inferredAxis := -1
		knownSize := 1
		for axis, dim := range dims {
			switch {
			case dim == 0:
				if axis >= input.Rank() {
					return errors.Errorf("dim 0 at axis %d has no matching input axis in %s", axis, input)
				}
				resolved[axis] = input.Dim(axis)
			case dim == -1:
				inferredAxis = axis
				continue
			default:
				resolved[axis] = dim
			}
			knownSize *= resolved[axis]
		}
		if inferredAxis >= 0 {
			if knownSize == 0 || input.Size()%knownSize != 0 {
				return errors.Errorf("cannot infer dim at axis %d: input %s does not divide into %v", inferredAxis, input, dims)
			}
			resolved[inferredAxis] = input.Size() / knownSize
			knownSize *= resolved[inferredAxis]
		}
		if knownSize != input.Size() {
			return errors.Errorf("reshape to %v changes the number of elements of %s", dims, input)
		}
		n.Shape = shapes.Make(input.DType, resolved...)
		return nil
	}
}

// BatchNorm copies the data shape, checking that the per-channel statistics
// are vectors sized like the feature axis of the data.
func BatchNorm(n *ir.Node) error {
	data := n.Input(0).Shape
	if data.Rank() < 2 {
		return errors.Errorf("data must have at least rank 2, got %s", data)
	}
	channels := data.Dim(n.Graph().Layout.FeatureAxis(data.Rank()))
	statNames := []string{"gamma", "beta", "mean", "variance"}
	for port, statName := range statNames {
		stat := n.Input(port + 1).Shape
		if stat.Rank() != 1 || stat.Dim(0) != channels {
			return errors.Errorf("%s must be a vector of %d channels, got %s", statName, channels, stat)
		}
	}
	n.Shape = data
	return nil
}

// GatherND returns the rule composing the output shape from the indices'
// leading axes and the data's trailing axes, past the gathered index tuple
// and the shared batch axes.
func GatherND(batchDims int) ir.InferFn {
	return func(n *ir.Node) error {
		data := n.Input(0).Shape
		indices := n.Input(1).Shape
		if indices.Rank() < 1 {
			return errors.Errorf("indices must have at least rank 1, got %s", indices)
		}
		tupleLen := indices.Dimensions[indices.Rank()-1]
		if batchDims >= min(data.Rank(), indices.Rank()) {
			return errors.Errorf("batch_dims=%d must be smaller than the ranks of data (%s) and indices (%s)",
				batchDims, data, indices)
		}
		for axis := range batchDims {
			if data.Dim(axis) != indices.Dim(axis) {
				return errors.Errorf("batch axis %d differs between data (%s) and indices (%s)", axis, data, indices)
			}
		}
		if tupleLen < 1 || tupleLen > data.Rank()-batchDims {
			return errors.Errorf("index tuples of length %d cannot address data %s with batch_dims=%d",
				tupleLen, data, batchDims)
		}
		dims := append([]int{}, indices.Dimensions[:indices.Rank()-1]...)
		dims = append(dims, data.Dimensions[batchDims+tupleLen:]...)
		n.Shape = shapes.Make(data.DType, dims...)
		return nil
	}
}

// LogSoftmax returns a copy-shape rule that validates the reduction axis
// against the input rank. Negative axis counts from the end.
func LogSoftmax(axis int) ir.InferFn {
	return func(n *ir.Node) error {
		input := n.Input(0).Shape
		if axis < -input.Rank() || axis >= input.Rank() {
			return errors.Errorf("axis %d out of range for input %s", axis, input)
		}
		n.Shape = input
		return nil
	}
}

// Sequence returns the rule for recurrent sequence ops: the input
// [batch, seqLen, inputSize] yields [batch, numDirections, seqLen, hiddenSize].
func Sequence(hiddenSize, numDirections int) ir.InferFn {
	return func(n *ir.Node) error {
		x := n.Input(0).Shape
		if x.Rank() != 3 {
			return errors.Errorf("sequence input must be shaped [batch, seqLen, inputSize], got %s", x)
		}
		n.Shape = shapes.Make(x.DType, x.Dim(0), numDirections, x.Dim(1), hiddenSize)
		return nil
	}
}
