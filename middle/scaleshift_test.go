package middle

import (
	"math"
	"testing"

	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chxd/dldt/infer"
	"github.com/chxd/dldt/ir"
	"github.com/chxd/dldt/ops"
)

// mulAddGraph builds x*scale+shift with the constants aligned to the feature
// axis, the canonical batch-norm leftover this pass targets.
func mulAddGraph(t *testing.T, scale, shift []float32) (*ir.Graph, *ir.Node) {
	t.Helper()
	g := ir.New("test", ir.NCHW)
	x := ops.Parameter(g, "x", shapes.Make(dtypes.Float32, 1, 3, 4, 4))

	scaleConst := ops.Constant(g, "scale", scale)
	scaleAligned := ops.Reshape(g, "scale/aligned", scaleConst, []int{1, 3, 1, 1})
	mul := ops.Eltwise(g, "mul", "mul", x, scaleAligned)

	shiftConst := ops.Constant(g, "shift", shift)
	shiftAligned := ops.Reshape(g, "shift/aligned", shiftConst, []int{1, 3, 1, 1})
	add := ops.Eltwise(g, "add", "add", mul, shiftAligned)

	ops.Result(g, "out", add)
	require.NoError(t, infer.Shapes(g))
	return g, x
}

func TestConvertMulAddToScaleShift(t *testing.T) {
	g, x := mulAddGraph(t, []float32{2, 4, 8}, []float32{1, 2, 3})
	require.NoError(t, RunAll(g))

	assert.Empty(t, g.NodesByOp(ops.OpEltwise))
	fused := g.NodeByName("mul/fused")
	require.NotNil(t, fused)
	assert.Equal(t, ops.OpScaleShift, fused.Op)
	assert.Same(t, x, fused.Input(0))
	assert.Equal(t, []int{1, 3, 4, 4}, fused.Shape.Dimensions)

	assert.Equal(t, []float32{2, 4, 8}, foldConstantFlat(fused.Input(1)))
	assert.Equal(t, []float32{1, 2, 3}, foldConstantFlat(fused.Input(2)))

	out := g.NodeByName("out")
	require.NotNil(t, out)
	assert.Same(t, fused, out.Input(0))

	// The replaced constants and their reshapes are gone.
	assert.Nil(t, g.NodeByName("scale"))
	assert.Nil(t, g.NodeByName("shift/aligned"))
	assert.Equal(t, 5, g.NumNodes()) // x, weights, biases, fused, out.
}

func TestConvertMulOnly(t *testing.T) {
	g := ir.New("test", ir.NCHW)
	x := ops.Parameter(g, "x", shapes.Make(dtypes.Float32, 1, 3, 4, 4))
	scaleConst := ops.Constant(g, "scale", []float32{2, 4, 8})
	scaleAligned := ops.Reshape(g, "scale/aligned", scaleConst, []int{1, 3, 1, 1})
	mul := ops.Eltwise(g, "mul", "mul", x, scaleAligned)
	ops.Result(g, "out", mul)
	require.NoError(t, infer.Shapes(g))

	require.NoError(t, RunAll(g))

	fused := g.NodeByName("mul/fused")
	require.NotNil(t, fused)
	assert.Equal(t, []float32{2, 4, 8}, foldConstantFlat(fused.Input(1)))
	assert.Equal(t, []float32{0, 0, 0}, foldConstantFlat(fused.Input(2)))
}

func TestConvertScalarScaleBroadcasts(t *testing.T) {
	g := ir.New("test", ir.NCHW)
	x := ops.Parameter(g, "x", shapes.Make(dtypes.Float32, 1, 3, 4, 4))
	scale := ops.Constant(g, "scale", float32(0.5))
	mul := ops.Eltwise(g, "mul", "mul", x, scale)
	ops.Result(g, "out", mul)
	require.NoError(t, infer.Shapes(g))

	require.NoError(t, RunAll(g))

	fused := g.NodeByName("mul/fused")
	require.NotNil(t, fused)
	assert.Equal(t, []float32{0.5, 0.5, 0.5}, foldConstantFlat(fused.Input(1)))
}

func TestConvertSkipsNonConstantOperands(t *testing.T) {
	g := ir.New("test", ir.NCHW)
	x := ops.Parameter(g, "x", shapes.Make(dtypes.Float32, 1, 3, 4, 4))
	y := ops.Parameter(g, "y", shapes.Make(dtypes.Float32, 1, 3, 4, 4))
	mul := ops.Eltwise(g, "mul", "mul", x, y)
	ops.Result(g, "out", mul)
	require.NoError(t, infer.Shapes(g))

	require.NoError(t, RunAll(g))
	assert.Equal(t, []*ir.Node{mul}, g.NodesByOp(ops.OpEltwise))
}

func TestConvertHonorsCheckerVerdict(t *testing.T) {
	// A constant aligned to a spatial axis instead of the feature axis: the
	// checker clears the flags and the conversion must not fire.
	g := ir.New("test", ir.NCHW)
	x := ops.Parameter(g, "x", shapes.Make(dtypes.Float32, 1, 3, 4, 4))
	spatial := ops.Constant(g, "spatial", []float32{1, 2, 3, 4})
	spatialAligned := ops.Reshape(g, "spatial/aligned", spatial, []int{1, 1, 4, 1})
	mul := ops.Eltwise(g, "mul", "mul", x, spatialAligned)
	ops.Result(g, "out", mul)
	require.NoError(t, infer.Shapes(g))

	require.NoError(t, RunAll(g))

	require.Equal(t, []*ir.Node{mul}, g.NodesByOp(ops.OpEltwise))
	assert.False(t, mul.Attrs.BoolOr(AttrCanBeScaleShift, true))
	assert.False(t, mul.Attrs.BoolOr(AttrCanBeFused, true))
}

func TestConvertSkipsNonFiniteValues(t *testing.T) {
	g, _ := mulAddGraph(t, []float32{float32(math.Inf(1)), 1, 1}, []float32{0, 0, 0})
	require.NoError(t, RunAll(g))
	assert.Nil(t, g.NodeByName("mul/fused"))
	assert.Len(t, g.NodesByOp(ops.OpEltwise), 2)
}

func TestConvertKeepsSharedAdd(t *testing.T) {
	// The Mul feeds two consumers, so the Add cannot be folded in: only the
	// Mul becomes a ScaleShift and the Add survives, rewired to it.
	g := ir.New("test", ir.NCHW)
	x := ops.Parameter(g, "x", shapes.Make(dtypes.Float32, 1, 3, 4, 4))
	scaleConst := ops.Constant(g, "scale", []float32{2, 4, 8})
	scaleAligned := ops.Reshape(g, "scale/aligned", scaleConst, []int{1, 3, 1, 1})
	mul := ops.Eltwise(g, "mul", "mul", x, scaleAligned)

	shiftConst := ops.Constant(g, "shift", []float32{1, 2, 3})
	shiftAligned := ops.Reshape(g, "shift/aligned", shiftConst, []int{1, 3, 1, 1})
	add := ops.Eltwise(g, "add", "add", mul, shiftAligned)

	ops.Result(g, "out", add)
	ops.Result(g, "tap", mul)
	require.NoError(t, infer.Shapes(g))

	require.NoError(t, RunAll(g))

	fused := g.NodeByName("mul/fused")
	require.NotNil(t, fused)
	assert.Equal(t, []float32{0, 0, 0}, foldConstantFlat(fused.Input(2)))
	require.NotNil(t, add.Graph())
	assert.Same(t, fused, add.Input(0))
	assert.Same(t, fused, g.NodeByName("tap").Input(0))
}

func TestParameterDependencies(t *testing.T) {
	g := ir.New("test", ir.NCHW)
	x := ops.Parameter(g, "x", shapes.Make(dtypes.Float32, 4))
	c := ops.Constant(g, "c", []float32{1, 2, 3, 4})
	sum := ops.Eltwise(g, "sum", "add", x, c)

	assert.Equal(t, []*ir.Node{x}, parameterDependencies(sum))
	assert.Empty(t, parameterDependencies(c))
}

func TestFoldConstantFlat(t *testing.T) {
	g := ir.New("test", ir.NCHW)
	c := ops.Constant(g, "c", []float32{1, 2, 3, 4})
	reshaped := ops.Reshape(g, "r", c, []int{2, 2})
	again := ops.Reshape(g, "r2", reshaped, []int{4, 1})

	// Reshape chains fold down to the constant's flat values.
	assert.Equal(t, []float32{1, 2, 3, 4}, foldConstantFlat(again))

	// Non-float32 constants and non-constant expressions do not fold.
	ints := ops.Constant(g, "ints", []int64{1, 2})
	assert.Nil(t, foldConstantFlat(ints))
	x := ops.Parameter(g, "x", shapes.Make(dtypes.Float32, 4))
	assert.Nil(t, foldConstantFlat(x))
}
