package ops

import (
	"strings"

	"github.com/chxd/dldt/infer"
	"github.com/chxd/dldt/ir"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// eltwiseOperations are the arithmetic selectors accepted by Eltwise.
var eltwiseOperations = []string{"add", "sub", "mul", "div", "max", "min", "pow"}

// Eltwise creates an elementwise arithmetic node. operation selects the
// arithmetic, one of "add", "sub", "mul", "div", "max", "min" or "pow".
// Inputs broadcast following numpy rules.
func Eltwise(g *ir.Graph, name, operation string, inputs ...*ir.Node) *ir.Node {
	checkEnum(OpEltwise, name, "operation", operation, eltwiseOperations...)
	if len(inputs) < 2 {
		exceptions.Panicf("%s(%q): at least 2 inputs are required, got %d", OpEltwise, name, len(inputs))
	}
	attrs := ir.Attrs{AttrOperation: operation}
	return newNode(g, name, OpEltwise, inputs, attrs, infer.Elementwise)
}

// ScaleShift creates a per-channel affine node: out = input*weights + biases,
// with weights and biases broadcast along the feature axis.
func ScaleShift(g *ir.Graph, name string, input, weights, biases *ir.Node) *ir.Node {
	return newNode(g, name, OpScaleShift, []*ir.Node{input, weights, biases}, nil, infer.CopyShape(0))
}

// Reshape creates a node reshaping input to dims. A dim of 0 copies the input
// dimension at the same axis; a single dim of -1 is inferred from the input
// size.
func Reshape(g *ir.Graph, name string, input *ir.Node, dims []int) *ir.Node {
	numInferred := 0
	for _, dim := range dims {
		switch {
		case dim == -1:
			numInferred++
		case dim < -1:
			exceptions.Panicf("%s(%q): dims must be >= -1, got %v", OpReshape, name, dims)
		}
	}
	if numInferred > 1 {
		exceptions.Panicf("%s(%q): at most one dim may be -1, got %v", OpReshape, name, dims)
	}
	attrs := ir.Attrs{"dim": dims}
	return newNode(g, name, OpReshape, []*ir.Node{input}, attrs, infer.Reshape(dims))
}

// BatchNormInference normalizes data with the given per-channel statistics,
// applying scale (gamma) and offset (beta).
func BatchNormInference(g *ir.Graph, name string, data, gamma, beta, mean, variance *ir.Node, epsilon float32) *ir.Node {
	checkPositiveFloat(OpBatchNormInference, name, "epsilon", epsilon)
	attrs := ir.Attrs{"epsilon": epsilon}
	inputs := []*ir.Node{data, gamma, beta, mean, variance}
	return newNode(g, name, OpBatchNormInference, inputs, attrs, infer.BatchNorm)
}

// GatherND gathers slices of data at the index tuples in indices, with the
// leading batchDims axes shared between the two.
func GatherND(g *ir.Graph, name string, data, indices *ir.Node, batchDims int) *ir.Node {
	checkNonNegativeInt(OpGatherND, name, "batch_dims", batchDims)
	attrs := ir.Attrs{"batch_dims": batchDims}
	return newNode(g, name, OpGatherND, []*ir.Node{data, indices}, attrs, infer.GatherND(batchDims))
}

// LogSoftmax applies log-softmax along the given axis. Negative axis counts
// from the end.
func LogSoftmax(g *ir.Graph, name string, data *ir.Node, axis int) *ir.Node {
	attrs := ir.Attrs{"axis": axis}
	return newNode(g, name, OpLogSoftmax, []*ir.Node{data}, attrs, infer.LogSoftmax(axis))
}

// NonMaxSuppression filters boxes by score with per-class non-maximum
// suppression. The threshold inputs are optional: passing nil creates the
// corresponding zero-valued constant. softNMSSigma is also optional and is
// omitted from the inputs when nil.
//
// The number of selected boxes is data dependent, so the output shape stays
// unknown.
func NonMaxSuppression(g *ir.Graph, name string, boxes, scores, maxOutputBoxesPerClass, iouThreshold, scoreThreshold, softNMSSigma *ir.Node,
	boxEncoding string, sortResultDescending bool, outputType dtypes.DType) *ir.Node {
	if boxEncoding == "" {
		boxEncoding = "corner"
	}
	checkEnum(OpNonMaxSuppression, name, "box_encoding", boxEncoding, "corner", "center")
	if outputType != dtypes.Int32 && outputType != dtypes.Int64 {
		exceptions.Panicf("%s(%q): output_type must be Int32 or Int64, got %s", OpNonMaxSuppression, name, outputType)
	}

	if maxOutputBoxesPerClass == nil {
		maxOutputBoxesPerClass = Constant(g, name+"/max_output_boxes_per_class", int64(0))
	}
	if iouThreshold == nil {
		iouThreshold = Constant(g, name+"/iou_threshold", float32(0))
	}
	if scoreThreshold == nil {
		scoreThreshold = Constant(g, name+"/score_threshold", float32(0))
	}
	inputs := []*ir.Node{boxes, scores, maxOutputBoxesPerClass, iouThreshold, scoreThreshold}
	if softNMSSigma != nil {
		inputs = append(inputs, softNMSSigma)
	}

	attrs := ir.Attrs{
		"box_encoding":           boxEncoding,
		"sort_result_descending": sortResultDescending,
		"output_type":            outputType.String(),
	}
	return newNode(g, name, OpNonMaxSuppression, inputs, attrs, infer.Unknown)
}

// roundModes are the halfway tie-breaking rules accepted by Round.
var roundModes = []string{"HALF_TO_EVEN", "HALF_AWAY_FROM_ZERO"}

// Round rounds each element of data. mode selects how halfway cases break:
// "half_to_even" (the default when empty) or "half_away_from_zero", case
// insensitive.
func Round(g *ir.Graph, name string, data *ir.Node, mode string) *ir.Node {
	if mode == "" {
		mode = "half_to_even"
	}
	mode = strings.ToUpper(mode)
	checkEnum(OpRound, name, "mode", mode, roundModes...)
	attrs := ir.Attrs{"mode": mode}
	return newNode(g, name, OpRound, []*ir.Node{data}, attrs, infer.CopyShape(0))
}

// HSigmoid applies the hard-sigmoid approximation elementwise.
func HSigmoid(g *ir.Graph, name string, data *ir.Node) *ir.Node {
	return newNode(g, name, OpHSigmoid, []*ir.Node{data}, nil, infer.CopyShape(0))
}

// RecurrentConfig configures GRUSequence and RNNSequence nodes.
type RecurrentConfig struct {
	// HiddenSize is the size of the hidden state. Required, must be positive.
	HiddenSize int

	// Direction is "forward" (the default when empty), "reverse" or
	// "bidirectional".
	Direction string

	// Activations are the gate activation function names. Defaults:
	// [sigmoid tanh] for GRU, [tanh] for RNN.
	Activations []string

	// ActivationsAlpha and ActivationsBeta parameterize the activation
	// functions that take them. Default to empty.
	ActivationsAlpha []float32
	ActivationsBeta  []float32

	// Clip bounds tensor values to [-Clip, Clip]. 0 disables clipping.
	Clip float32

	// LinearBeforeReset applies the linear transformation before the reset
	// gate when computing the hidden gate output. GRU only.
	LinearBeforeReset bool
}

// numDirections returns 2 for bidirectional, 1 otherwise, validating the
// direction name.
func (cfg *RecurrentConfig) numDirections(op, name string) int {
	if cfg.Direction == "" {
		cfg.Direction = "forward"
	}
	checkEnum(op, name, "direction", cfg.Direction, "forward", "reverse", "bidirectional")
	if cfg.Direction == "bidirectional" {
		return 2
	}
	return 1
}

func (cfg *RecurrentConfig) attrs() ir.Attrs {
	return ir.Attrs{
		"hidden_size":       cfg.HiddenSize,
		"direction":         cfg.Direction,
		"activations":       cfg.Activations,
		"activations_alpha": cfg.ActivationsAlpha,
		"activations_beta":  cfg.ActivationsBeta,
		"clip":              cfg.Clip,
	}
}

// GRUSequence runs a GRU over the sequence in x.
//
//   - x: [batch, seqLen, inputSize] input data.
//   - hInitial: [batch, numDirections, hiddenSize] initial hidden state.
//   - seqLens: [batch] sequence length per batch element.
//   - w: [numDirections, 3*hiddenSize, inputSize] weights.
//   - r: [numDirections, 3*hiddenSize, hiddenSize] recurrence weights.
//   - b: [numDirections, 3*hiddenSize] sum of biases.
//
// The output is shaped [batch, numDirections, seqLen, hiddenSize].
func GRUSequence(g *ir.Graph, name string, x, hInitial, seqLens, w, r, b *ir.Node, cfg RecurrentConfig) *ir.Node {
	checkPositiveInt(OpGRUSequence, name, "hidden_size", cfg.HiddenSize)
	numDirections := cfg.numDirections(OpGRUSequence, name)
	if cfg.Activations == nil {
		cfg.Activations = []string{"sigmoid", "tanh"}
	}
	attrs := cfg.attrs()
	attrs.Set("linear_before_reset", cfg.LinearBeforeReset)
	inputs := []*ir.Node{x, hInitial, seqLens, w, r, b}
	return newNode(g, name, OpGRUSequence, inputs, attrs, infer.Sequence(cfg.HiddenSize, numDirections))
}

// RNNSequence runs a plain RNN over the sequence in x. Inputs and output are
// laid out as in GRUSequence, with the weight tensors sized for a single gate.
func RNNSequence(g *ir.Graph, name string, x, hInitial, seqLens, w, r, b *ir.Node, cfg RecurrentConfig) *ir.Node {
	checkPositiveInt(OpRNNSequence, name, "hidden_size", cfg.HiddenSize)
	numDirections := cfg.numDirections(OpRNNSequence, name)
	if cfg.Activations == nil {
		cfg.Activations = []string{"tanh"}
	}
	inputs := []*ir.Node{x, hInitial, seqLens, w, r, b}
	return newNode(g, name, OpRNNSequence, inputs, cfg.attrs(), infer.Sequence(cfg.HiddenSize, numDirections))
}

// Loop creates a loop node: tripCount is a scalar (or 1-element) tensor with
// the maximum number of iterations, executionCondition whether to execute the
// first iteration.
func Loop(g *ir.Graph, name string, tripCount, executionCondition *ir.Node) *ir.Node {
	return newNode(g, name, OpLoop, []*ir.Node{tripCount, executionCondition}, nil, infer.Unknown)
}
